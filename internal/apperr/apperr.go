// Package apperr defines the error taxonomy shared by the mapping store,
// the snapshot importer and the management surfaces.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// CodeInvalidInput is an empty keyword or url
	CodeInvalidInput = "INVALID_INPUT"
	// CodeInvalidURL is a url that fails the http(s) validity check
	CodeInvalidURL = "INVALID_URL"
	// CodeMalformedJSON is an import payload that does not parse
	CodeMalformedJSON = "MALFORMED_JSON"
	// CodeWrongShape is an import payload that is not a flat string map
	CodeWrongShape = "WRONG_SHAPE"
	// CodeInvalidEntryURL is an import entry whose url is invalid
	CodeInvalidEntryURL = "INVALID_ENTRY_URL"
	// CodeStorageUnavailable is a failure of the persistence backend
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)

// AppError is an application error carrying a stable code
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Keyword string `json:"keyword,omitempty"`
	URL     string `json:"url,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Keyword != "" {
		msg += fmt.Sprintf(" (keyword %q", e.Keyword)
		if e.URL != "" {
			msg += fmt.Sprintf(", url %q", e.URL)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any *AppError with the same code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an error with the given code and message
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an error with the given code wrapping err
func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// WithEntry attaches the offending keyword/url pair
func (e *AppError) WithEntry(keyword, url string) *AppError {
	e.Keyword = keyword
	e.URL = url
	return e
}

// Sentinel values for use with errors.Is
var (
	ErrInvalidInput       = New(CodeInvalidInput, "keyword and url are required")
	ErrInvalidURL         = New(CodeInvalidURL, "url must be an absolute http:// or https:// url")
	ErrMalformedJSON      = New(CodeMalformedJSON, "import file is not valid JSON")
	ErrWrongShape         = New(CodeWrongShape, "import file must be a flat object of keyword to url strings")
	ErrInvalidEntryURL    = New(CodeInvalidEntryURL, "import entry has an invalid url")
	ErrStorageUnavailable = New(CodeStorageUnavailable, "mapping storage unavailable")
)

// Storage wraps a backend failure
func Storage(op string, err error) *AppError {
	return Wrap(err, CodeStorageUnavailable, op)
}

// CodeOf returns the code of the first AppError in err's chain, or "" if none
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsValidation reports whether err is a recoverable validation failure
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidInput, CodeInvalidURL, CodeMalformedJSON, CodeWrongShape, CodeInvalidEntryURL:
		return true
	default:
		return false
	}
}

// IsStorage reports whether err came from the persistence backend
func IsStorage(err error) bool {
	return CodeOf(err) == CodeStorageUnavailable
}
