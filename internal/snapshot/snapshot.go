// Package snapshot serializes a mapping set for export and validates
// snapshots offered for import.
//
// A snapshot is a UTF-8 JSON object whose members map keyword to url. There
// is no nesting, no array form and no version field.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hfi/gotab/internal/apperr"
	"github.com/hfi/gotab/internal/mapping"
	"github.com/hfi/gotab/pkg/urlcheck"
)

// FilePrefix starts every export file name
const FilePrefix = "goTab-mappings-"

// Export serializes set as an indented JSON object with keys sorted.
// URLs are written unescaped so query strings stay readable.
func Export(set mapping.Set) ([]byte, error) {
	if set == nil {
		set = mapping.Set{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(set); err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename returns the export file name for an export taken at t, for
// example goTab-mappings-2024-03-05T14-07-09.json.
func Filename(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return FilePrefix + stamp + ".json"
}

// Result is the outcome of a successful import
type Result struct {
	// Merged is the current set with the imported entries applied
	Merged mapping.Set
	// Count is the number of imported entries
	Count int
}

// Import validates raw and merges its entries over current. current is not
// modified. On any validation failure nothing is merged.
func Import(raw []byte, current mapping.Set) (Result, error) {
	entries, err := Parse(raw)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Merged: mapping.Merge(current, entries),
		Count:  len(entries),
	}, nil
}

// Parse validates raw and returns its entries with keywords normalized.
// Checks run in order and stop at the first failure:
//
//  1. raw must be valid UTF-8 JSON (MALFORMED_JSON)
//  2. the top-level value must be an object (WRONG_SHAPE)
//  3. every member value must be a string and every keyword non-empty (WRONG_SHAPE)
//  4. every url must be a valid http(s) url (INVALID_ENTRY_URL, first in document order)
func Parse(raw []byte) (mapping.Set, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	// encoding/json would replace invalid UTF-8 with U+FFFD
	if !utf8.Valid(raw) || !json.Valid(raw) {
		return nil, apperr.ErrMalformedJSON
	}

	members, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	for _, m := range members {
		if !urlcheck.IsValid(m.URL) {
			return nil, apperr.New(apperr.CodeInvalidEntryURL,
				"invalid url for keyword: "+urlcheck.Reason(m.URL)).WithEntry(m.Keyword, m.URL)
		}
	}

	entries := make(mapping.Set, len(members))
	for _, m := range members {
		entries[mapping.NormalizeKeyword(m.Keyword)] = m.URL
	}
	return entries, nil
}

// decodeObject walks a valid JSON document and returns the members of its
// top-level object in document order.
func decodeObject(raw []byte) ([]mapping.Mapping, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeMalformedJSON, apperr.ErrMalformedJSON.Message)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, apperr.ErrWrongShape
	}

	var members []mapping.Mapping
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeMalformedJSON, apperr.ErrMalformedJSON.Message)
		}
		keyword, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeMalformedJSON, apperr.ErrMalformedJSON.Message)
		}

		var url string
		if err := json.Unmarshal(value, &url); err != nil || isNull(value) {
			return nil, apperr.New(apperr.CodeWrongShape,
				apperr.ErrWrongShape.Message).WithEntry(keyword, "")
		}
		if mapping.NormalizeKeyword(keyword) == "" {
			return nil, apperr.New(apperr.CodeWrongShape, "import file has an empty keyword")
		}

		members = append(members, mapping.Mapping{Keyword: keyword, URL: url})
	}

	// Closing brace, then nothing else
	if _, err := dec.Token(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeMalformedJSON, apperr.ErrMalformedJSON.Message)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, apperr.ErrMalformedJSON
	}

	return members, nil
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}
