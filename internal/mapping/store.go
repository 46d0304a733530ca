package mapping

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/hfi/gotab/internal/apperr"
	"github.com/hfi/gotab/internal/storage"
	"github.com/hfi/gotab/pkg/urlcheck"
)

// Store persists a Set under one backend key. Every operation reads the
// full set from the backend and every mutation writes the full set back;
// nothing is cached between calls. Mutations are serialized by a mutex so
// concurrent callers cannot lose each other's updates.
type Store struct {
	mu      sync.Mutex
	backend storage.Backend
	key     string
}

// NewStore creates a store over backend. An empty key selects DefaultKey.
func NewStore(backend storage.Backend, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		backend: backend,
		key:     key,
	}
}

// GetAll returns the full current set, empty if nothing has been persisted
func (s *Store) GetAll(ctx context.Context) (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

// Lookup returns the URL for keyword after normalizing it
func (s *Store) Lookup(ctx context.Context, keyword string) (string, bool, error) {
	set, err := s.GetAll(ctx)
	if err != nil {
		return "", false, err
	}
	url, ok := set[NormalizeKeyword(keyword)]
	return url, ok, nil
}

// SetOne validates and upserts a single mapping. The keyword is trimmed
// and lowercased, the URL trimmed. Nothing is written if validation fails.
func (s *Store) SetOne(ctx context.Context, keyword, url string) error {
	keyword = NormalizeKeyword(keyword)
	url = strings.TrimSpace(url)

	if keyword == "" || url == "" {
		return apperr.ErrInvalidInput
	}
	if !urlcheck.IsValid(url) {
		return apperr.New(apperr.CodeInvalidURL, urlcheck.Reason(url)).WithEntry(keyword, url)
	}

	return s.update(ctx, func(set Set) bool {
		set[keyword] = url
		return true
	})
}

// DeleteOne removes keyword and reports whether it was present. Deleting
// an absent keyword is not an error and performs no write.
func (s *Store) DeleteOne(ctx context.Context, keyword string) (bool, error) {
	keyword = NormalizeKeyword(keyword)

	var removed bool
	err := s.update(ctx, func(set Set) bool {
		if _, ok := set[keyword]; !ok {
			return false
		}
		delete(set, keyword)
		removed = true
		return true
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// MergeAll overwrites the persisted entries for every key in incoming and
// keeps every other persisted entry. Every entry is checked first, in
// keyword order; if any fails nothing is read or written.
func (s *Store) MergeAll(ctx context.Context, incoming Set) (Set, error) {
	entries := make(Set, len(incoming))
	for _, m := range incoming.Sorted() {
		keyword := NormalizeKeyword(m.Keyword)
		if keyword == "" {
			return nil, apperr.ErrInvalidInput
		}
		if !urlcheck.IsValid(m.URL) {
			return nil, apperr.New(apperr.CodeInvalidEntryURL,
				"invalid url for keyword: "+urlcheck.Reason(m.URL)).WithEntry(keyword, m.URL)
		}
		entries[keyword] = m.URL
	}

	var merged Set
	err := s.update(ctx, func(set Set) bool {
		for k, v := range entries {
			set[k] = v
		}
		merged = set.Clone()
		return true
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Ping checks the underlying backend
func (s *Store) Ping(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return apperr.Storage("ping mapping storage", err)
	}
	return nil
}

// update runs one read-modify-write round trip under the store lock.
// mutate reports whether the set changed and must be written back.
func (s *Store) update(ctx context.Context, mutate func(Set) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.read(ctx)
	if err != nil {
		return err
	}
	if !mutate(set) {
		return nil
	}
	return s.write(ctx, set)
}

func (s *Store) read(ctx context.Context) (Set, error) {
	raw, found, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, apperr.Storage("read mappings", err)
	}
	set := Set{}
	if !found || len(raw) == 0 {
		return set, nil
	}
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, apperr.Storage("decode mappings", err)
	}
	if set == nil {
		set = Set{}
	}
	return set, nil
}

func (s *Store) write(ctx context.Context, set Set) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return apperr.Storage("encode mappings", err)
	}
	if err := s.backend.Set(ctx, s.key, raw); err != nil {
		return apperr.Storage("write mappings", err)
	}
	return nil
}
