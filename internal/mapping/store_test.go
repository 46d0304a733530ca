package mapping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfi/gotab/internal/apperr"
	"github.com/hfi/gotab/internal/storage"
)

// countingBackend wraps a memory backend and counts round trips
type countingBackend struct {
	*storage.MemoryBackend
	mu     sync.Mutex
	gets   int
	sets   int
	getErr error
	setErr error
}

func newCountingBackend() *countingBackend {
	return &countingBackend{MemoryBackend: storage.NewMemoryBackend()}
}

func (c *countingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	c.gets++
	err := c.getErr
	c.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return c.MemoryBackend.Get(ctx, key)
}

func (c *countingBackend) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	c.sets++
	err := c.setErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.MemoryBackend.Set(ctx, key, value)
}

func TestStore_GetAllEmpty(t *testing.T) {
	store := NewStore(storage.NewMemoryBackend(), "")

	set, err := store.GetAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, set)
	assert.Empty(t, set)
}

func TestStore_SetOneLowercasesKeyword(t *testing.T) {
	store := NewStore(storage.NewMemoryBackend(), "")
	ctx := context.Background()

	require.NoError(t, store.SetOne(ctx, "FOO", "http://x.example"))

	set, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Set{"foo": "http://x.example"}, set)
	assert.NotContains(t, set, "FOO")
}

func TestStore_SetOneTrimsAndUpserts(t *testing.T) {
	store := NewStore(storage.NewMemoryBackend(), "")
	ctx := context.Background()

	require.NoError(t, store.SetOne(ctx, "  gh ", " https://github.com "))
	require.NoError(t, store.SetOne(ctx, "GH", "https://github.com/golang"))

	set, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Set{"gh": "https://github.com/golang"}, set)
}

func TestStore_SetOneValidation(t *testing.T) {
	backend := newCountingBackend()
	store := NewStore(backend, "")
	ctx := context.Background()

	tests := []struct {
		name    string
		keyword string
		url     string
		code    string
	}{
		{"empty keyword", "  ", "https://example.com", apperr.CodeInvalidInput},
		{"empty url", "k", "", apperr.CodeInvalidInput},
		{"javascript", "k", "javascript:alert(1)", apperr.CodeInvalidURL},
		{"ftp", "k", "ftp://x", apperr.CodeInvalidURL},
		{"relative", "k", "/path", apperr.CodeInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.SetOne(ctx, tt.keyword, tt.url)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
			assert.True(t, apperr.IsValidation(err))
		})
	}

	assert.Zero(t, backend.gets, "validation failures must not touch storage")
	assert.Zero(t, backend.sets)
}

func TestStore_DeleteOne(t *testing.T) {
	store := NewStore(storage.NewMemoryBackend(), "")
	ctx := context.Background()

	require.NoError(t, store.SetOne(ctx, "a", "http://a.example"))
	require.NoError(t, store.SetOne(ctx, "b", "http://b.example"))

	removed, err := store.DeleteOne(ctx, "A")
	require.NoError(t, err)
	assert.True(t, removed)

	set, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Set{"b": "http://b.example"}, set)
}

func TestStore_DeleteOneAbsentIsNoop(t *testing.T) {
	backend := newCountingBackend()
	store := NewStore(backend, "")
	ctx := context.Background()

	require.NoError(t, store.SetOne(ctx, "a", "http://a.example"))
	setsBefore := backend.sets

	removed, err := store.DeleteOne(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, removed)

	set, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Set{"a": "http://a.example"}, set)
	assert.Equal(t, setsBefore, backend.sets, "absent delete must not write")
}

func TestStore_MergeAllPrecedence(t *testing.T) {
	store := NewStore(storage.NewMemoryBackend(), "")
	ctx := context.Background()

	require.NoError(t, store.SetOne(ctx, "a", "http://x"))
	require.NoError(t, store.SetOne(ctx, "keep", "http://keep"))

	merged, err := store.MergeAll(ctx, Set{"a": "http://y", "new": "http://new"})
	require.NoError(t, err)

	want := Set{"a": "http://y", "keep": "http://keep", "new": "http://new"}
	assert.Equal(t, want, merged)

	persisted, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, persisted)
}

func TestStore_MergeAllValidatesBeforeStorage(t *testing.T) {
	backend := newCountingBackend()
	store := NewStore(backend, "")
	ctx := context.Background()

	require.NoError(t, store.SetOne(ctx, "keep", "http://keep.example"))
	gets, sets := backend.gets, backend.sets

	tests := []struct {
		name     string
		incoming Set
		code     string
		keyword  string
	}{
		{"bad url", Set{"a": "http://a.example", "b": "ftp://b"}, apperr.CodeInvalidEntryURL, "b"},
		{"first in keyword order", Set{"z": "nope", "m": "javascript:x"}, apperr.CodeInvalidEntryURL, "m"},
		{"empty keyword", Set{"  ": "http://a.example"}, apperr.CodeInvalidInput, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, err := store.MergeAll(ctx, tt.incoming)
			require.Error(t, err)
			assert.Nil(t, merged)
			assert.Equal(t, tt.code, apperr.CodeOf(err))

			var appErr *apperr.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.keyword, appErr.Keyword)
		})
	}

	assert.Equal(t, gets, backend.gets, "rejected merge must not read")
	assert.Equal(t, sets, backend.sets, "rejected merge must not write")

	set, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Set{"keep": "http://keep.example"}, set)
}

func TestStore_OneRoundTripPerMutation(t *testing.T) {
	backend := newCountingBackend()
	store := NewStore(backend, "")
	ctx := context.Background()

	require.NoError(t, store.SetOne(ctx, "a", "http://a.example"))
	assert.Equal(t, 1, backend.gets)
	assert.Equal(t, 1, backend.sets)

	_, err := store.MergeAll(ctx, Set{"b": "http://b.example"})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.gets)
	assert.Equal(t, 2, backend.sets)

	_, err = store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.gets)
	assert.Equal(t, 2, backend.sets)
}

func TestStore_StorageErrors(t *testing.T) {
	backend := newCountingBackend()
	store := NewStore(backend, "")
	ctx := context.Background()
	require.NoError(t, store.SetOne(ctx, "a", "http://a.example"))

	backend.setErr = errors.New("disk full")
	err := store.SetOne(ctx, "b", "http://b.example")
	require.Error(t, err)
	assert.True(t, apperr.IsStorage(err))
	assert.ErrorIs(t, err, backend.setErr)

	backend.setErr = nil
	backend.getErr = errors.New("unreachable")
	_, err = store.GetAll(ctx)
	assert.True(t, apperr.IsStorage(err))
	_, err = store.DeleteOne(ctx, "a")
	assert.True(t, apperr.IsStorage(err))
	_, err = store.MergeAll(ctx, Set{"c": "http://c.example"})
	assert.True(t, apperr.IsStorage(err))

	// Prior state survives every failure
	backend.getErr = nil
	set, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Set{"a": "http://a.example"}, set)
}

func TestStore_CorruptDocument(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, DefaultKey, []byte(`["not","a","map"]`)))

	_, err := NewStore(backend, "").GetAll(ctx)
	assert.True(t, apperr.IsStorage(err))
}

func TestStore_Lookup(t *testing.T) {
	store := NewStore(storage.NewMemoryBackend(), "custom")
	ctx := context.Background()
	require.NoError(t, store.SetOne(ctx, "gh", "https://github.com"))

	url, ok, err := store.Lookup(ctx, " GH ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://github.com", url)

	_, ok, err = store.Lookup(ctx, "xyz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ConcurrentMutationsAreNotLost(t *testing.T) {
	store := NewStore(storage.NewMemoryBackend(), "")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = store.SetOne(ctx, fmt.Sprintf("k%d", id), fmt.Sprintf("https://example.com/%d", id))
		}(i)
	}
	wg.Wait()

	set, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, set, 50)
}
