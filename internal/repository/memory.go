package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dharsanguruparan/filevault/internal/access"
	"github.com/dharsanguruparan/filevault/internal/lifecycle"
	"github.com/dharsanguruparan/filevault/internal/model"
)

// MemoryFiles is an in-memory FileRepository. Every method holds the lock
// for its whole read-modify-write, which gives the same atomicity the
// Postgres statements give.
type MemoryFiles struct {
	mu     sync.RWMutex
	nextID int64
	files  map[int64]*model.FileRecord
	keys   map[string]int64
}

// NewMemoryFiles constructs an empty MemoryFiles.
func NewMemoryFiles() *MemoryFiles {
	return &MemoryFiles{
		files: make(map[int64]*model.FileRecord),
		keys:  make(map[string]int64),
	}
}

func (m *MemoryFiles) Insert(_ context.Context, rec *model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.keys[rec.StorageKey]; dup {
		return ErrConflict
	}
	m.nextID++
	now := time.Now().UTC()
	rec.ID = m.nextID
	rec.Status = lifecycle.Initial()
	rec.Metadata = model.Metadata{}
	rec.DownloadCount = 0
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.files[rec.ID] = rec.Clone()
	m.keys[rec.StorageKey] = rec.ID
	return nil
}

func (m *MemoryFiles) GetByID(_ context.Context, id int64) (*model.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryFiles) Finish(_ context.Context, id int64, outcome lifecycle.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.files[id]
	if !ok {
		return ErrNotFound
	}
	// Apply on a copy so a rejected transition leaves the stored row intact.
	next := rec.Clone()
	if err := lifecycle.Apply(next, outcome); err != nil {
		return err
	}
	next.UpdatedAt = time.Now().UTC()
	m.files[id] = next
	return nil
}

func (m *MemoryFiles) IncrementDownloads(_ context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.files[id]
	if !ok {
		return 0, ErrNotFound
	}
	rec.DownloadCount++
	return rec.DownloadCount, nil
}

func (m *MemoryFiles) Query(_ context.Context, pred access.Predicate, filter Filter) ([]*model.FileRecord, error) {
	filter = filter.normalized()
	m.mu.RLock()
	var out []*model.FileRecord
	for _, rec := range m.files {
		if pred.Matches(rec) && filter.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryFiles) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.files[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.keys, rec.StorageKey)
	delete(m.files, id)
	return nil
}

// MemoryDirectory is an in-memory UserRepository and DepartmentRepository.
type MemoryDirectory struct {
	mu          sync.RWMutex
	nextUser    int64
	nextDept    int64
	users       map[int64]*model.User
	departments map[int64]*model.Department
}

// NewMemoryDirectory constructs an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:       make(map[int64]*model.User),
		departments: make(map[int64]*model.Department),
	}
}

// Users returns the directory as a UserRepository.
func (m *MemoryDirectory) Users() UserRepository { return memoryUsers{m} }

// Departments returns the directory as a DepartmentRepository.
func (m *MemoryDirectory) Departments() DepartmentRepository { return memoryDepartments{m} }

type memoryUsers struct{ m *MemoryDirectory }

func (r memoryUsers) Create(_ context.Context, u *model.User) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	m.nextUser++
	u.ID = m.nextUser
	u.CreatedAt = time.Now().UTC()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (r memoryUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	m := r.m
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memoryUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m := r.m
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r memoryUsers) UpdateRole(_ context.Context, id int64, role model.Role) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	return nil
}

func (r memoryUsers) List(_ context.Context, departmentID *int64) ([]*model.User, error) {
	m := r.m
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.User
	for _, u := range m.users {
		if departmentID != nil && u.DepartmentID != *departmentID {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryDepartments struct{ m *MemoryDirectory }

func (r memoryDepartments) GetByID(_ context.Context, id int64) (*model.Department, error) {
	m := r.m
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.departments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r memoryDepartments) Ensure(_ context.Context, name string) (*model.Department, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.departments {
		if d.Name == name {
			cp := *d
			return &cp, nil
		}
	}
	m.nextDept++
	d := &model.Department{ID: m.nextDept, Name: name}
	m.departments[d.ID] = d
	cp := *d
	return &cp, nil
}
