package audit

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileLogger returns a logger writing to a temp file and a func reading it
func fileLogger(t *testing.T, cfg Config) (*Logger, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	cfg.Output = path
	if cfg.Format == "" {
		cfg.Format = "json"
	}

	logger, err := NewLogger(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	return logger, func() string {
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		return string(content)
	}
}

func TestLogger_Fields(t *testing.T) {
	logger, read := fileLogger(t, Config{Enabled: true, Level: "verbose"})

	logger.LogImportRejected("api", "INVALID_ENTRY_URL", "wiki")
	logger.LogImported("cli", 4)

	out := read()
	assert.Contains(t, out, `"type":"import_rejected"`)
	assert.Contains(t, out, `"code":"INVALID_ENTRY_URL"`)
	assert.Contains(t, out, `"keyword":"wiki"`)
	assert.Contains(t, out, `"source":"api"`)
	assert.Contains(t, out, `"type":"snapshot_imported"`)
	assert.Contains(t, out, `"count":4`)
	assert.Contains(t, out, `"log":"audit"`)
}

func TestLogger_Levels(t *testing.T) {
	emitAll := func(l *Logger) {
		l.LogMappingAdded("api", "added", "https://a.example")
		l.LogMappingDeleted("api", "deleted")
		l.LogResolved("matched", "https://m.example", "OpenNew", true)
		l.LogResolved("fallback", "https://search.example?q=fallback", "ReplaceCurrent", false)
		l.LogExported("api", 2)
		l.LogListed("listed", 2)
		l.LogStorageError("api", "write", "disk full")
	}

	tests := []struct {
		level   string
		present []string
		absent  []string
	}{
		{
			level:   "minimal",
			present: []string{"mapping_added", "mapping_deleted", "storage_error"},
			absent:  []string{"keyword_resolved", "search_fallback", "snapshot_exported", "mappings_listed"},
		},
		{
			level:   "standard",
			present: []string{"mapping_added", "keyword_resolved", "search_fallback", "snapshot_exported", "storage_error"},
			absent:  []string{"mappings_listed"},
		},
		{
			level:   "verbose",
			present: []string{"mapping_added", "keyword_resolved", "search_fallback", "mappings_listed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, read := fileLogger(t, Config{Enabled: true, Level: tt.level})
			emitAll(logger)

			out := read()
			for _, s := range tt.present {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestLogger_EnableDisable(t *testing.T) {
	logger, read := fileLogger(t, Config{Enabled: true, Level: "verbose"})

	logger.LogMappingDeleted("cli", "kw-1")
	logger.Disable()
	logger.LogMappingDeleted("cli", "kw-2")
	logger.Enable()
	logger.LogMappingDeleted("cli", "kw-3")

	out := read()
	assert.Contains(t, out, "kw-1")
	assert.NotContains(t, out, "kw-2")
	assert.Contains(t, out, "kw-3")
}

func TestLogger_StartsDisabled(t *testing.T) {
	logger, read := fileLogger(t, Config{Enabled: false, Level: "verbose"})

	logger.LogMappingAdded("api", "kw-1", "https://example.com")
	assert.Empty(t, read())
}

func TestLogger_SetLevel(t *testing.T) {
	logger, read := fileLogger(t, Config{Enabled: true, Level: "verbose"})

	logger.SetLevel("minimal")
	logger.LogResolved("gh", "https://github.com", "OpenNew", true)
	assert.Empty(t, read())

	logger.SetLevel("standard")
	logger.LogResolved("gh", "https://github.com", "OpenNew", true)
	assert.Contains(t, read(), "keyword_resolved")
}

func TestLogger_ReconfigureWhileLogging(t *testing.T) {
	logger, _ := fileLogger(t, Config{Enabled: true, Level: "verbose"})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			logger.LogMappingDeleted("api", "kw")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			logger.SetLevel("minimal")
			logger.Disable()
			logger.SetLevel("verbose")
			logger.Enable()
		}
	}()
	wg.Wait()
}

func TestLogger_URLRedaction(t *testing.T) {
	const target = "https://intranet.example/private-path"

	redacted, readRedacted := fileLogger(t, Config{Enabled: true, Level: "verbose"})
	redacted.LogMappingAdded("api", "intranet", target)
	redacted.LogResolved("intranet", target, "OpenNew", true)
	assert.NotContains(t, readRedacted(), "private-path")
	assert.Contains(t, readRedacted(), `"keyword":"intranet"`)

	full, readFull := fileLogger(t, Config{Enabled: true, Level: "verbose", IncludeURLs: true})
	full.LogMappingAdded("api", "intranet", target)
	assert.Contains(t, readFull(), "private-path")
}

func TestLogger_TextFormat(t *testing.T) {
	logger, read := fileLogger(t, Config{Enabled: true, Level: "verbose", Format: "text"})

	logger.LogStorageError("api", "write", "disk full")

	out := read()
	assert.Contains(t, out, "storage_error")
	assert.Contains(t, out, "disk full")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"), "text format should not write JSON")
}

func TestLogger_StandardStreams(t *testing.T) {
	for _, output := range []string{"stdout", "stderr"} {
		logger, err := NewLogger(&Config{Enabled: true, Level: "minimal", Output: output, Format: "json"})
		require.NoError(t, err, output)
		require.NoError(t, logger.Close(), output)
	}
}

func TestNewLogger_BadOutput(t *testing.T) {
	_, err := NewLogger(&Config{Enabled: true, Output: filepath.Join(t.TempDir(), "missing", "audit.log")})
	assert.Error(t, err)
}

func TestNopLogger(t *testing.T) {
	var logger Auditor = NewNopLogger()

	logger.Log(&Event{Type: EventMappingAdded})
	logger.LogMappingAdded("api", "k", "http://x")
	logger.LogMappingDeleted("api", "k")
	logger.LogImported("api", 1)
	logger.LogImportRejected("api", "WRONG_SHAPE", "")
	logger.LogExported("api", 1)
	logger.LogResolved("k", "http://x", "OpenNew", true)
	logger.LogListed("api", 1)
	logger.LogStorageError("api", "read", "error")
	assert.NoError(t, logger.Close())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "standard", cfg.Level)
	assert.Equal(t, "stderr", cfg.Output)
	assert.Equal(t, "json", cfg.Format)
	assert.False(t, cfg.IncludeURLs)
}
