// Package manager implements the management operations offered to user
// interfaces: add, delete, list, export and import. Each call is one
// round trip to the mapping store, recorded in the audit trail and metrics.
package manager

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hfi/gotab/internal/apperr"
	"github.com/hfi/gotab/internal/audit"
	"github.com/hfi/gotab/internal/mapping"
	"github.com/hfi/gotab/internal/metrics"
	"github.com/hfi/gotab/internal/resolver"
	"github.com/hfi/gotab/internal/snapshot"
)

// Snapshot is an exported mapping set ready to be saved as a file
type Snapshot struct {
	Filename string
	Data     []byte
	Count    int
}

// Manager runs management operations against a mapping store
type Manager struct {
	store   *mapping.Store
	auditor audit.Auditor
	logger  zerolog.Logger
	source  string
	now     func() time.Time
}

// New creates a manager. source names the calling surface ("api", "cli")
// in audit events. A nil auditor disables auditing.
func New(store *mapping.Store, auditor audit.Auditor, logger zerolog.Logger, source string) *Manager {
	if auditor == nil {
		auditor = audit.NewNopLogger()
	}
	return &Manager{
		store:   store,
		auditor: auditor,
		logger:  logger.With().Str("component", "manager").Logger(),
		source:  source,
		now:     time.Now,
	}
}

// Store returns the underlying mapping store
func (m *Manager) Store() *mapping.Store {
	return m.store
}

// Add validates and stores one mapping
func (m *Manager) Add(ctx context.Context, keyword, url string) error {
	defer m.observe("add", time.Now())

	if err := m.store.SetOne(ctx, keyword, url); err != nil {
		return m.fail("add", err)
	}

	keyword = mapping.NormalizeKeyword(keyword)
	metrics.RecordMutation("add")
	m.auditor.LogMappingAdded(m.source, keyword, strings.TrimSpace(url))
	m.logger.Debug().Str("keyword", keyword).Msg("mapping added")
	return nil
}

// Delete removes a mapping. Deleting an unknown keyword succeeds and is
// neither audited nor counted as a mutation.
func (m *Manager) Delete(ctx context.Context, keyword string) error {
	defer m.observe("delete", time.Now())

	removed, err := m.store.DeleteOne(ctx, keyword)
	if err != nil {
		return m.fail("delete", err)
	}

	keyword = mapping.NormalizeKeyword(keyword)
	if !removed {
		m.logger.Debug().Str("keyword", keyword).Msg("delete of unknown keyword")
		return nil
	}
	metrics.RecordMutation("delete")
	m.auditor.LogMappingDeleted(m.source, keyword)
	m.logger.Debug().Str("keyword", keyword).Msg("mapping deleted")
	return nil
}

// List returns every mapping ordered by keyword
func (m *Manager) List(ctx context.Context) ([]mapping.Mapping, error) {
	defer m.observe("list", time.Now())

	set, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, m.fail("list", err)
	}

	metrics.MappingSetSize.Set(float64(len(set)))
	m.auditor.LogListed(m.source, len(set))
	return set.Sorted(), nil
}

// Export serializes the full mapping set
func (m *Manager) Export(ctx context.Context) (Snapshot, error) {
	defer m.observe("export", time.Now())

	set, err := m.store.GetAll(ctx)
	if err != nil {
		return Snapshot{}, m.fail("export", err)
	}

	data, err := snapshot.Export(set)
	if err != nil {
		return Snapshot{}, m.fail("export", err)
	}

	metrics.MappingSetSize.Set(float64(len(set)))
	m.auditor.LogExported(m.source, len(set))
	return Snapshot{
		Filename: snapshot.Filename(m.now()),
		Data:     data,
		Count:    len(set),
	}, nil
}

// Import validates raw in full and only then merges it into the store,
// imported entries winning conflicts. It returns the number of entries
// imported. A rejected snapshot writes nothing.
func (m *Manager) Import(ctx context.Context, raw []byte) (int, error) {
	defer m.observe("import", time.Now())

	entries, err := snapshot.Parse(raw)
	if err != nil {
		var keyword string
		if appErr := asAppError(err); appErr != nil {
			keyword = appErr.Keyword
		}
		m.auditor.LogImportRejected(m.source, apperr.CodeOf(err), keyword)
		return 0, m.fail("import", err)
	}

	merged, err := m.store.MergeAll(ctx, entries)
	if err != nil {
		return 0, m.fail("import", err)
	}

	metrics.RecordMutation("import")
	metrics.ImportedEntriesTotal.Add(float64(len(entries)))
	metrics.MappingSetSize.Set(float64(len(merged)))
	m.auditor.LogImported(m.source, len(entries))
	m.logger.Info().Int("count", len(entries)).Int("total", len(merged)).Msg("snapshot imported")
	return len(entries), nil
}

// Resolved records a resolution; it lets the manager observe a
// resolver.Trigger.
func (m *Manager) Resolved(cmd resolver.Command) {
	outcome := metrics.OutcomeResolved
	if !cmd.Matched {
		outcome = metrics.OutcomeFallback
	}
	metrics.RecordResolution(outcome, string(cmd.Action))
	m.auditor.LogResolved(cmd.Keyword, cmd.URL, string(cmd.Action), cmd.Matched)
}

// ResolveFailed records a resolution that could not read the store
func (m *Manager) ResolveFailed(err error) {
	metrics.RecordResolution(metrics.OutcomeError, "")
	m.fail("resolve", err)
}

// fail records err against op and returns it unchanged
func (m *Manager) fail(op string, err error) error {
	switch {
	case apperr.IsValidation(err):
		metrics.RecordValidationFailure(apperr.CodeOf(err))
		m.logger.Debug().Err(err).Str("op", op).Msg("rejected")
	case apperr.IsStorage(err):
		metrics.RecordStorageError(op)
		m.auditor.LogStorageError(m.source, op, err.Error())
		m.logger.Error().Err(err).Str("op", op).Msg("storage failure")
	default:
		m.logger.Error().Err(err).Str("op", op).Msg("operation failed")
	}
	return err
}

func (m *Manager) observe(op string, start time.Time) {
	metrics.RecordDuration(op, time.Since(start).Seconds())
}

func asAppError(err error) *apperr.AppError {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
