// Package model contains the struct definitions shared across packages.
package model

import (
	"strings"
	"time"
)

// Role is the authority level of an authenticated user.
type Role string

const (
	RoleUser    Role = "USER"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return r, true
	}
	return "", false
}

// Elevated reports whether the role reads every file regardless of visibility.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleManager
}

// Visibility is the disclosure scope of a file.
type Visibility string

const (
	VisibilityPrivate    Visibility = "PRIVATE"
	VisibilityDepartment Visibility = "DEPARTMENT"
	VisibilityPublic     Visibility = "PUBLIC"
)

// ParseVisibility normalizes s case-insensitively.
func ParseVisibility(s string) (Visibility, bool) {
	v := Visibility(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case VisibilityPrivate, VisibilityDepartment, VisibilityPublic:
		return v, true
	}
	return "", false
}

// FileStatus describes the metadata extraction lifecycle of a file.
type FileStatus string

const (
	StatusPending FileStatus = "PENDING"
	StatusReady   FileStatus = "READY"
	StatusFailed  FileStatus = "FAILED"
)

// Metadata is the open key/value document produced by extraction.
type Metadata map[string]any

// Clone returns a shallow copy so callers cannot mutate shared state.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Actor is the authenticated identity behind a request.
type Actor struct {
	ID           int64 `json:"id"`
	Role         Role  `json:"role"`
	DepartmentID int64 `json:"department_id"`
}

// FileRecord is a row in the files table.
type FileRecord struct {
	ID               int64      `json:"id"`
	OwnerID          int64      `json:"owner_id"`
	DepartmentID     int64      `json:"department_id"`
	FilenameOriginal string     `json:"filename_original"`
	StorageKey       string     `json:"-"`
	MimeType         string     `json:"mime_type"`
	Extension        string     `json:"ext"`
	SizeBytes        int64      `json:"size_bytes"`
	Visibility       Visibility `json:"visibility"`
	Status           FileStatus `json:"status"`
	DownloadCount    int64      `json:"download_count"`
	Metadata         Metadata   `json:"metadata"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Clone returns a deep enough copy for handing records across goroutines.
func (f *FileRecord) Clone() *FileRecord {
	cp := *f
	cp.Metadata = f.Metadata.Clone()
	return &cp
}
