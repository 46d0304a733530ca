// Package mapping implements the keyword to URL mapping set and the store
// that persists it as a single document in a storage backend.
package mapping

import (
	"sort"
	"strings"
)

// DefaultKey is the storage key the whole mapping set is kept under
const DefaultKey = "urlMappings"

// Set maps a lowercase keyword to its URL
type Set map[string]string

// Mapping is one keyword and its URL
type Mapping struct {
	Keyword string `json:"keyword"`
	URL     string `json:"url"`
}

// NormalizeKeyword trims surrounding whitespace and lowercases k
func NormalizeKeyword(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// Clone returns a copy of s. A nil set clones to an empty one.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Sorted returns the entries of s ordered by keyword
func (s Set) Sorted() []Mapping {
	out := make([]Mapping, 0, len(s))
	for k, v := range s {
		out = append(out, Mapping{Keyword: k, URL: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Keyword < out[j].Keyword })
	return out
}

// Merge returns a new set holding every entry of current overwritten by
// every entry of incoming. Neither argument is modified.
func Merge(current, incoming Set) Set {
	merged := current.Clone()
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}
