package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/hfi/gotab/internal/apperr"
	"github.com/hfi/gotab/internal/mapping"
	"github.com/hfi/gotab/internal/resolver"
)

// maxSnapshotBytes caps import uploads
const maxSnapshotBytes = 1 << 20

// ActionHeader carries the navigation action on /go redirects
const ActionHeader = "X-Gotab-Action"

// addRequest is the body of POST /api/mappings
type addRequest struct {
	Keyword string `json:"keyword"`
	URL     string `json:"url"`
}

// importResponse is the body returned by POST /api/import
type importResponse struct {
	Imported int `json:"imported"`
}

func (s *Server) registerAPI() {
	s.mux.HandleFunc("GET /api/mappings", s.listHandler)
	s.mux.HandleFunc("POST /api/mappings", s.addHandler)
	s.mux.HandleFunc("DELETE /api/mappings/{keyword}", s.deleteHandler)
	s.mux.HandleFunc("GET /api/export", s.exportHandler)
	s.mux.HandleFunc("POST /api/import", s.importHandler)

	if s.deps.Resolver != nil {
		s.mux.HandleFunc("GET /go", s.goHandler)
	}
}

// listHandler returns the mapping set as a keyword to url object
func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.Manager.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	set := make(mapping.Set, len(rows))
	for _, row := range rows {
		set[row.Keyword] = row.URL
	}
	s.writeJSON(w, http.StatusOK, set)
}

// addHandler accepts a JSON body or form values keyword and url
func (s *Server) addHandler(w http.ResponseWriter, r *http.Request) {
	var req addRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxSnapshotBytes)).Decode(&req); err != nil {
			s.writeError(w, apperr.Wrap(err, apperr.CodeInvalidInput, "request body must be a JSON object with keyword and url"))
			return
		}
	} else {
		req.Keyword = r.FormValue("keyword")
		req.URL = r.FormValue("url")
	}

	if err := s.deps.Manager.Add(r.Context(), req.Keyword, req.URL); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, mapping.Mapping{
		Keyword: mapping.NormalizeKeyword(req.Keyword),
		URL:     strings.TrimSpace(req.URL),
	})
}

// deleteHandler removes a keyword; unknown keywords also get 204
func (s *Server) deleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Manager.Delete(r.Context(), r.PathValue("keyword")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// exportHandler returns the snapshot as a file download
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Manager.Export(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": snap.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(snap.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(snap.Data); err != nil {
		return
	}
}

// importHandler accepts the snapshot as the raw body or as the "file"
// part of a multipart form
func (s *Server) importHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := readSnapshot(w, r)
	if err != nil {
		s.writeError(w, apperr.Wrap(err, apperr.CodeMalformedJSON, "could not read import file"))
		return
	}

	n, err := s.deps.Manager.Import(r.Context(), raw)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, importResponse{Imported: n})
}

func readSnapshot(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSnapshotBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// goHandler is the navigation trigger: it resolves q and redirects
func (s *Server) goHandler(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("q")
	disposition := resolver.ParseDisposition(r.URL.Query().Get("disposition"))

	nav := resolver.NavigatorFunc(func(_ context.Context, cmd resolver.Command) error {
		w.Header().Set(ActionHeader, string(cmd.Action))
		http.Redirect(w, r, cmd.URL, http.StatusFound)
		return nil
	})

	trigger := resolver.NewTrigger(s.deps.Resolver, nav, s.deps.Manager)
	if _, err := trigger.Enter(r.Context(), text, disposition); err != nil {
		s.deps.Manager.ResolveFailed(err)
		s.writeError(w, err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

// writeError maps validation errors to 400 and storage errors to 503
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperr.IsValidation(err):
		status = http.StatusBadRequest
	case apperr.IsStorage(err):
		status = http.StatusServiceUnavailable
	}

	var appErr *apperr.AppError
	if !errors.As(err, &appErr) {
		appErr = apperr.New("INTERNAL", "internal error")
	}

	// The message of a storage failure can name hosts or file paths
	body := *appErr
	if status != http.StatusBadRequest {
		body.Message = http.StatusText(status)
	}
	s.writeJSON(w, status, body)
}
