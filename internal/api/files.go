package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dharsanguruparan/filevault/internal/admission"
	"github.com/dharsanguruparan/filevault/internal/auth"
	"github.com/dharsanguruparan/filevault/internal/catalog"
	"github.com/dharsanguruparan/filevault/internal/model"
	"github.com/dharsanguruparan/filevault/internal/repository"
	"github.com/dharsanguruparan/filevault/internal/storage"
)

const (
	defaultFilename = "upload.bin"
	// maxFieldBytes bounds non-file form fields.
	maxFieldBytes = 1024
)

type uploadResponse struct {
	File *model.FileRecord `json:"file"`
}

type listResponse struct {
	Items  []*model.FileRecord `json:"items"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	actor := u.Actor()
	limits, ok := s.admission.Limit(actor.Role)
	if !ok {
		s.writeError(w, r, &admission.RejectedError{Code: admission.CodeUnknownRole, Role: actor.Role})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxBytes+64*1024)
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, badRequest("expecting multipart form"))
		return
	}
	in, err := readUpload(mr, actor.Role, limits.MaxBytes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.catalog.Upload(r.Context(), actor, *in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, uploadResponse{File: rec})
}

// readUpload collects the file and visibility parts of an upload form,
// reading at most maxBytes of file content.
func readUpload(mr *multipart.Reader, role model.Role, maxBytes int64) (*catalog.Upload, error) {
	var in catalog.Upload
	var sawFile bool
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, tooLargeOr(err, role, maxBytes, badRequest("malformed multipart body"))
		}
		switch part.FormName() {
		case "file":
			content, err := readCapped(part, maxBytes)
			part.Close()
			if err != nil {
				return nil, tooLargeOr(err, role, maxBytes, badRequest("read file"))
			}
			if int64(len(content)) > maxBytes {
				return nil, &admission.RejectedError{Code: admission.CodeSizeExceeded, Role: role, Limit: maxBytes}
			}
			in.Content = content
			in.Filename = part.FileName()
			in.ContentType = part.Header.Get("Content-Type")
			sawFile = true
		case "visibility":
			value, err := readCapped(part, maxFieldBytes)
			part.Close()
			if err != nil {
				return nil, badRequest("read visibility")
			}
			in.Visibility = strings.TrimSpace(string(value))
		default:
			part.Close()
		}
	}
	if !sawFile {
		return nil, badRequest("missing file part")
	}
	if in.Filename == "" {
		in.Filename = defaultFilename
	}
	return &in, nil
}

// readCapped reads up to limit+1 bytes so callers can detect overflow
// without buffering the rest of the part.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, limit+1)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tooLargeOr(err error, role model.Role, maxBytes int64, fallback error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &admission.RejectedError{Code: admission.CodeSizeExceeded, Role: role, Limit: maxBytes}
	}
	return fallback
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, _ := auth.UserFrom(r.Context())
	rec, err := s.catalog.Get(r.Context(), u.Actor(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, _ := auth.UserFrom(r.Context())
	recs, err := s.catalog.List(r.Context(), u.Actor(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*model.FileRecord{}
	}
	respondJSON(w, http.StatusOK, listResponse{Items: recs, Limit: filter.Limit, Offset: filter.Offset})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, _ := auth.UserFrom(r.Context())
	grant, err := s.catalog.Download(r.Context(), u.Actor(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, grant)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, _ := auth.UserFrom(r.Context())
	if err := s.catalog.Delete(r.Context(), u.Actor(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBlob serves an object of the in-memory store behind a signed URL.
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if !s.blobs.Verify(key, r.URL.Query()) {
		respondError(w, http.StatusForbidden, "invalid_signature", "Signature invalid or expired")
		return
	}
	obj, err := s.blobs.Open(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "Object not found")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id")
	}
	return id, nil
}

func parseFilter(q url.Values) (repository.Filter, error) {
	var f repository.Filter
	if v := q.Get("filename"); v != "" {
		f.Filename = &v
	}
	if v := q.Get("ext"); v != "" {
		f.Extension = &v
	}
	if v := q.Get("visibility"); v != "" {
		vis, ok := model.ParseVisibility(v)
		if !ok {
			return f, badRequest(fmt.Sprintf("invalid visibility %q", v))
		}
		f.Visibility = &vis
	}
	var err error
	if f.OwnerID, err = optionalInt(q, "owner_id"); err != nil {
		return f, err
	}
	if f.DepartmentID, err = optionalInt(q, "department_id"); err != nil {
		return f, err
	}
	if f.Limit, err = intParam(q, "limit", repository.DefaultListLimit); err != nil {
		return f, err
	}
	switch {
	case f.Limit == 0:
		f.Limit = repository.DefaultListLimit
	case f.Limit > repository.MaxListLimit:
		f.Limit = repository.MaxListLimit
	}
	if f.Offset, err = intParam(q, "offset", 0); err != nil {
		return f, err
	}
	return f, nil
}

func optionalInt(q url.Values, name string) (*int64, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("invalid %s", name))
	}
	return &n, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest(fmt.Sprintf("invalid %s", name))
	}
	return n, nil
}
