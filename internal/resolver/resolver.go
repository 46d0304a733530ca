// Package resolver turns text entered in the browser's command input into a
// navigation command: a stored mapping if the text is a known keyword,
// otherwise a web search for the text.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hfi/gotab/internal/mapping"
)

// QueryPlaceholder marks where the encoded text goes in a search template
const QueryPlaceholder = "{query}"

// DefaultSearchURL is the fallback search template
const DefaultSearchURL = "https://www.google.com/search?q=" + QueryPlaceholder

// Disposition is where the user asked the result to open
type Disposition int

const (
	// CurrentView reuses the current tab
	CurrentView Disposition = iota
	// NewView opens a new tab
	NewView
)

// String returns the browser name of the disposition
func (d Disposition) String() string {
	if d == CurrentView {
		return "currentTab"
	}
	return "newForegroundTab"
}

// ParseDisposition accepts the browser omnibox disposition names. Anything
// other than "currentTab" (or an empty string) opens a new view.
func ParseDisposition(s string) Disposition {
	switch strings.TrimSpace(s) {
	case "", "currentTab", "current":
		return CurrentView
	default:
		return NewView
	}
}

// Action is what the navigation collaborator must do
type Action string

const (
	ReplaceCurrent Action = "ReplaceCurrent"
	OpenNew        Action = "OpenNew"
)

// Command tells the navigation collaborator where to go
type Command struct {
	Action Action `json:"action"`
	URL    string `json:"url"`

	// Keyword is the normalized lookup key
	Keyword string `json:"keyword"`

	// Matched is false when URL is the search fallback
	Matched bool `json:"matched"`
}

// Lookup is the read side of the mapping store
type Lookup interface {
	Lookup(ctx context.Context, keyword string) (string, bool, error)
}

// Resolver maps entered text to navigation commands
type Resolver struct {
	store     Lookup
	searchURL string
}

// New creates a resolver. An empty searchURL selects DefaultSearchURL.
func New(store Lookup, searchURL string) *Resolver {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &Resolver{
		store:     store,
		searchURL: searchURL,
	}
}

// Resolve looks text up as a keyword. A stored URL is used verbatim; a miss
// falls back to a search for text. The only error is a storage failure.
func (r *Resolver) Resolve(ctx context.Context, text string, openInCurrentView bool) (Command, error) {
	cmd := Command{
		Action:  OpenNew,
		Keyword: mapping.NormalizeKeyword(text),
	}
	if openInCurrentView {
		cmd.Action = ReplaceCurrent
	}

	target, ok, err := r.store.Lookup(ctx, text)
	if err != nil {
		return Command{}, fmt.Errorf("resolve %q: %w", text, err)
	}

	if ok {
		cmd.URL = target
		cmd.Matched = true
		return cmd, nil
	}

	cmd.URL = r.SearchURL(text)
	return cmd, nil
}

// SearchURL builds the fallback search URL for text. The text keeps its
// case and is percent-encoded with spaces as %20.
func (r *Resolver) SearchURL(text string) string {
	return strings.ReplaceAll(r.searchURL, QueryPlaceholder, EncodeQuery(text))
}

// EncodeQuery percent-encodes s for use as a query parameter value
func EncodeQuery(s string) string {
	// QueryEscape turns spaces into '+' and a literal '+' into %2B, so the
	// replacement cannot touch an encoded plus.
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
