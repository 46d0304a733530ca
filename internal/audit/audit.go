// Package audit records changes to the mapping set and keyword resolutions
// as one structured event per line.
package audit

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents the type of audit event
type EventType string

const (
	EventMappingAdded     EventType = "mapping_added"
	EventMappingDeleted   EventType = "mapping_deleted"
	EventSnapshotImported EventType = "snapshot_imported"
	EventImportRejected   EventType = "import_rejected"
	EventSnapshotExported EventType = "snapshot_exported"
	EventKeywordResolved  EventType = "keyword_resolved"
	EventSearchFallback   EventType = "search_fallback"
	EventMappingsListed   EventType = "mappings_listed"
	EventStorageError     EventType = "storage_error"
)

// Event represents an audit log event
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source,omitempty"`
	Keyword   string            `json:"keyword,omitempty"`
	URL       string            `json:"url,omitempty"`
	Action    string            `json:"action,omitempty"`
	Code      string            `json:"code,omitempty"`
	Count     int               `json:"count,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Config holds audit logger configuration
type Config struct {
	// Enabled enables/disables audit logging
	Enabled bool `yaml:"enabled"`

	// Level controls what events are logged
	// "minimal" - only changes to the mapping set and storage failures
	// "standard" - changes + resolutions + exports
	// "verbose" - all events including listings
	Level string `yaml:"level"`

	// Output specifies where to write logs
	// "stdout", "stderr", or a file path
	Output string `yaml:"output"`

	// Format specifies log format: "json" or "text"
	Format string `yaml:"format"`

	// IncludeURLs writes mapping targets into events. Off by default since
	// bookmarked URLs can carry tokens.
	IncludeURLs bool `yaml:"include_urls"`
}

// DefaultConfig returns the default audit configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Level:       "standard",
		Output:      "stderr",
		Format:      "json",
		IncludeURLs: false,
	}
}

// Auditor is implemented by Logger and NopLogger
type Auditor interface {
	Log(event *Event)
	LogMappingAdded(source, keyword, url string)
	LogMappingDeleted(source, keyword string)
	LogImported(source string, count int)
	LogImportRejected(source, code, keyword string)
	LogExported(source string, count int)
	LogResolved(keyword, url, action string, matched bool)
	LogListed(source string, count int)
	LogStorageError(source, op, errorMsg string)
	Close() error
}

// Logger handles audit logging
type Logger struct {
	mu      sync.RWMutex
	config  *Config
	logger  zerolog.Logger
	output  io.Writer
	enabled bool
}

// NewLogger creates a new audit logger
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{
		config:  cfg,
		enabled: cfg.Enabled,
	}

	if err := l.setupOutput(); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Logger) setupOutput() error {
	var output io.Writer

	switch l.config.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		// File output
		f, err := os.OpenFile(l.config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //#nosec G304 -- path comes from operator config
		if err != nil {
			return err
		}
		output = f
	}

	l.output = output

	w := output
	if l.config.Format != "json" {
		w = zerolog.ConsoleWriter{Out: output, NoColor: true, TimeFormat: time.RFC3339}
	}

	l.logger = zerolog.New(w).With().Str("log", "audit").Logger()
	return nil
}

// Log logs an audit event
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.enabled
	level := l.config.Level
	includeURLs := l.config.IncludeURLs
	logger := l.logger
	l.mu.RUnlock()

	if !enabled {
		return
	}

	// Check if event should be logged based on level
	if !shouldLog(level, event.Type) {
		return
	}

	event.Timestamp = time.Now()

	// Redact targets if not enabled
	if !includeURLs {
		event.URL = ""
	}

	e := logger.Info().
		Time("timestamp", event.Timestamp).
		Str("type", string(event.Type))

	if event.Source != "" {
		e = e.Str("source", event.Source)
	}
	if event.Keyword != "" {
		e = e.Str("keyword", event.Keyword)
	}
	if event.URL != "" {
		e = e.Str("url", event.URL)
	}
	if event.Action != "" {
		e = e.Str("action", event.Action)
	}
	if event.Code != "" {
		e = e.Str("code", event.Code)
	}
	if event.Count > 0 {
		e = e.Int("count", event.Count)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error)
	}
	for k, v := range event.Metadata {
		e = e.Str(k, v)
	}

	e.Msg("audit")
}

func shouldLog(level string, eventType EventType) bool {
	switch level {
	case "minimal":
		return eventType == EventMappingAdded ||
			eventType == EventMappingDeleted ||
			eventType == EventSnapshotImported ||
			eventType == EventImportRejected ||
			eventType == EventStorageError
	case "standard":
		return eventType != EventMappingsListed
	case "verbose":
		return true
	default:
		return true
	}
}

// LogMappingAdded logs an added or replaced mapping
func (l *Logger) LogMappingAdded(source, keyword, url string) {
	l.Log(&Event{
		Type:    EventMappingAdded,
		Source:  source,
		Keyword: keyword,
		URL:     url,
	})
}

// LogMappingDeleted logs a deleted mapping
func (l *Logger) LogMappingDeleted(source, keyword string) {
	l.Log(&Event{
		Type:    EventMappingDeleted,
		Source:  source,
		Keyword: keyword,
	})
}

// LogImported logs a successful import
func (l *Logger) LogImported(source string, count int) {
	l.Log(&Event{
		Type:   EventSnapshotImported,
		Source: source,
		Count:  count,
	})
}

// LogImportRejected logs an import that failed validation
func (l *Logger) LogImportRejected(source, code, keyword string) {
	l.Log(&Event{
		Type:    EventImportRejected,
		Source:  source,
		Code:    code,
		Keyword: keyword,
	})
}

// LogExported logs an export
func (l *Logger) LogExported(source string, count int) {
	l.Log(&Event{
		Type:   EventSnapshotExported,
		Source: source,
		Count:  count,
	})
}

// LogResolved logs a resolution, as a fallback search if nothing matched
func (l *Logger) LogResolved(keyword, url, action string, matched bool) {
	eventType := EventKeywordResolved
	if !matched {
		eventType = EventSearchFallback
	}
	l.Log(&Event{
		Type:    eventType,
		Keyword: keyword,
		URL:     url,
		Action:  action,
	})
}

// LogListed logs a listing of the mapping set
func (l *Logger) LogListed(source string, count int) {
	l.Log(&Event{
		Type:   EventMappingsListed,
		Source: source,
		Count:  count,
	})
}

// LogStorageError logs a failed storage operation
func (l *Logger) LogStorageError(source, op, errorMsg string) {
	l.Log(&Event{
		Type:     EventStorageError,
		Source:   source,
		Error:    errorMsg,
		Metadata: map[string]string{"op": op},
	})
}

// Enable enables audit logging
func (l *Logger) Enable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = true
}

// Disable disables audit logging
func (l *Logger) Disable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = false
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// Close closes the logger
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if closer, ok := l.output.(io.Closer); ok {
		if l.output != os.Stdout && l.output != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}

// NopLogger is a logger that does nothing
type NopLogger struct{}

// NewNopLogger creates a no-op logger
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// Log does nothing
func (l *NopLogger) Log(_ *Event) {}

// LogMappingAdded does nothing
func (l *NopLogger) LogMappingAdded(_, _, _ string) {}

// LogMappingDeleted does nothing
func (l *NopLogger) LogMappingDeleted(_, _ string) {}

// LogImported does nothing
func (l *NopLogger) LogImported(_ string, _ int) {}

// LogImportRejected does nothing
func (l *NopLogger) LogImportRejected(_, _, _ string) {}

// LogExported does nothing
func (l *NopLogger) LogExported(_ string, _ int) {}

// LogResolved does nothing
func (l *NopLogger) LogResolved(_, _, _ string, _ bool) {}

// LogListed does nothing
func (l *NopLogger) LogListed(_ string, _ int) {}

// LogStorageError does nothing
func (l *NopLogger) LogStorageError(_, _, _ string) {}

// Close does nothing
func (l *NopLogger) Close() error { return nil }
