package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/filevault/internal/access"
	"github.com/dharsanguruparan/filevault/internal/admission"
	"github.com/dharsanguruparan/filevault/internal/lifecycle"
	"github.com/dharsanguruparan/filevault/internal/model"
	"github.com/dharsanguruparan/filevault/internal/repository"
	"github.com/dharsanguruparan/filevault/internal/signing"
	"github.com/dharsanguruparan/filevault/internal/storage"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< >>\nendobj\ntrailer\n<< >>\n%%EOF\n")

var (
	alice   = model.Actor{ID: 1, Role: model.RoleUser, DepartmentID: 10}
	bob     = model.Actor{ID: 2, Role: model.RoleUser, DepartmentID: 20}
	carol   = model.Actor{ID: 3, Role: model.RoleUser, DepartmentID: 10}
	manager = model.Actor{ID: 4, Role: model.RoleManager, DepartmentID: 10}
	outside = model.Actor{ID: 5, Role: model.RoleManager, DepartmentID: 30}
	admin   = model.Actor{ID: 6, Role: model.RoleAdmin, DepartmentID: 99}
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (q *recordingQueue) EnqueueExtract(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

// flakyStore fails the selected operations and delegates the rest.
type flakyStore struct {
	*storage.MemoryStore
	failPut, failDelete, failPresign bool
}

var errStorageDown = errors.New("connection refused")

func (s *flakyStore) Put(ctx context.Context, key string, data []byte, ct string) error {
	if s.failPut {
		return errStorageDown
	}
	return s.MemoryStore.Put(ctx, key, data, ct)
}

func (s *flakyStore) Delete(ctx context.Context, key string) error {
	if s.failDelete {
		return errStorageDown
	}
	return s.MemoryStore.Delete(ctx, key)
}

func (s *flakyStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.failPresign {
		return "", errStorageDown
	}
	return s.MemoryStore.Presign(ctx, key, ttl)
}

// failingInsert rejects every insert.
type failingInsert struct {
	repository.FileRepository
}

func (failingInsert) Insert(context.Context, *model.FileRecord) error {
	return errors.New("deadlock detected")
}

type fixture struct {
	files   *repository.MemoryFiles
	store   *flakyStore
	queue   *recordingQueue
	catalog *Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files := repository.NewMemoryFiles()
	store := &flakyStore{MemoryStore: storage.NewMemoryStore(signing.NewSigner([]byte("secret")), "http://files.test")}
	q := &recordingQueue{}
	c := New(files, store, q, admission.NewPolicy(admission.DefaultLimits()), 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n := 0
	c.newID = func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
	return &fixture{files: files, store: store, queue: q, catalog: c}
}

func (f *fixture) upload(t *testing.T, actor model.Actor, name string, vis model.Visibility) *model.FileRecord {
	t.Helper()
	rec, err := f.catalog.Upload(context.Background(), actor, Upload{Filename: name, Content: pdfBytes, Visibility: string(vis)})
	require.NoError(t, err)
	return rec
}

func TestUpload_UserForcedPrivate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec, err := f.catalog.Upload(context.Background(), alice, Upload{Filename: "Report.PDF", Content: pdfBytes, Visibility: "public"})
	require.NoError(t, err)

	assert.Equal(t, model.VisibilityPrivate, rec.Visibility)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Empty(t, rec.Metadata)
	assert.Equal(t, "pdf", rec.Extension)
	assert.Equal(t, "application/pdf", rec.MimeType)
	assert.Equal(t, int64(len(pdfBytes)), rec.SizeBytes)
	assert.Equal(t, "10/1/id1.pdf", rec.StorageKey)
	assert.Equal(t, []int64{rec.ID}, f.queue.ids)

	stored, err := f.store.Get(context.Background(), rec.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, stored)
}

func TestUpload_ManagerKeepsVisibility(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.upload(t, manager, "plan.pdf", model.VisibilityDepartment)
	assert.Equal(t, model.VisibilityDepartment, rec.Visibility)
}

func TestUpload_Rejections(t *testing.T) {
	t.Parallel()

	big := append(append([]byte{}, pdfBytes...), make([]byte, 11<<20)...)
	tests := []struct {
		name  string
		actor model.Actor
		in    Upload
		code  admission.Code
	}{
		{"forged extension", manager, Upload{Filename: "evil.pdf", Content: []byte("MZ\x90\x00\x03\x00\x00\x00"), Visibility: "PRIVATE"}, admission.CodeContentMismatch},
		{"too large", alice, Upload{Filename: "big.pdf", Content: big, Visibility: "PRIVATE"}, admission.CodeSizeExceeded},
		{"extension", alice, Upload{Filename: "notes.txt", Content: []byte("hello"), Visibility: "PRIVATE"}, admission.CodeExtensionNotAllowed},
		{"visibility", manager, Upload{Filename: "a.pdf", Content: pdfBytes, Visibility: "EVERYONE"}, admission.CodeVisibilityNotAllowed},
		{"empty", manager, Upload{Filename: "a.pdf", Visibility: "PRIVATE"}, admission.CodeEmptyFile},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			_, err := f.catalog.Upload(context.Background(), tt.actor, tt.in)
			require.Error(t, err)
			assert.Equal(t, Rejected, Classify(err))
			var rej *admission.RejectedError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.code, rej.Code)

			listed, err := f.catalog.List(context.Background(), admin, repository.Filter{})
			require.NoError(t, err)
			assert.Empty(t, listed)
			assert.Empty(t, f.queue.ids)
		})
	}
}

func TestUpload_StorageFailureCreatesNoRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.failPut = true
	_, err := f.catalog.Upload(context.Background(), manager, Upload{Filename: "a.pdf", Content: pdfBytes, Visibility: "PUBLIC"})
	require.ErrorIs(t, err, errStorageDown)
	assert.Equal(t, Unavailable, Classify(err))

	listed, err := f.catalog.List(context.Background(), admin, repository.Filter{})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestUpload_InsertFailureRemovesObject(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.catalog.files = failingInsert{f.files}
	_, err := f.catalog.Upload(context.Background(), manager, Upload{Filename: "a.pdf", Content: pdfBytes, Visibility: "PUBLIC"})
	require.Error(t, err)
	assert.Equal(t, Internal, Classify(err))

	_, err = f.store.Get(context.Background(), "10/4/id1.pdf")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpload_EnqueueFailureKeepsUpload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.queue.err = errors.New("redis down")
	rec := f.upload(t, manager, "a.pdf", model.VisibilityPublic)

	got, err := f.files.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestGet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.upload(t, alice, "a.pdf", model.VisibilityPrivate)
	ctx := context.Background()

	got, err := f.catalog.Get(ctx, alice, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = f.catalog.Get(ctx, carol, rec.ID)
	assert.Equal(t, Forbidden, Classify(err))
	var denied *access.DeniedError
	require.ErrorAs(t, err, &denied)

	_, err = f.catalog.Get(ctx, manager, rec.ID)
	assert.NoError(t, err, "managers read everything")

	_, err = f.catalog.Get(ctx, alice, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, NotFound, Classify(err))
}

func TestDownload_ConcurrentCounts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.upload(t, manager, "a.pdf", model.VisibilityPublic)

	const n = 50
	counts := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			grant, err := f.catalog.Download(context.Background(), bob, rec.ID)
			if !assert.NoError(t, err) {
				return
			}
			counts <- grant.DownloadCount
		}()
	}
	wg.Wait()
	close(counts)

	seen := make(map[int64]bool)
	for c := range counts {
		assert.False(t, seen[c], "count %d issued twice", c)
		seen[c] = true
	}
	assert.Len(t, seen, n)

	got, err := f.files.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.DownloadCount)
}

func TestDownload_Grant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.upload(t, alice, "a.pdf", model.VisibilityPrivate)

	grant, err := f.catalog.Download(context.Background(), alice, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, grant.ExpiresIn)
	assert.Equal(t, int64(1), grant.DownloadCount)

	u, err := url.Parse(grant.URL)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(grant.URL, "http://files.test/blobs/10/1/"))
	assert.True(t, f.store.Verify(rec.StorageKey, u.Query()))
}

func TestDownload_DeniedDoesNotCount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.upload(t, alice, "a.pdf", model.VisibilityPrivate)

	_, err := f.catalog.Download(context.Background(), bob, rec.ID)
	assert.Equal(t, Forbidden, Classify(err))

	got, err := f.files.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Zero(t, got.DownloadCount)
}

func TestDownload_PresignFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.upload(t, alice, "a.pdf", model.VisibilityPrivate)
	f.store.failPresign = true

	_, err := f.catalog.Download(context.Background(), alice, rec.ID)
	assert.Equal(t, Unavailable, Classify(err))

	got, err := f.files.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Zero(t, got.DownloadCount)
}

func TestDelete_Policy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		actor  model.Actor
		reason access.Reason
	}{
		{"owner", alice, ""},
		{"same department manager", manager, ""},
		{"admin", admin, ""},
		{"other user", carol, access.ReasonNotOwner},
		{"other department manager", outside, access.ReasonOtherDepartment},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			rec := f.upload(t, alice, "a.pdf", model.VisibilityPrivate)

			err := f.catalog.Delete(context.Background(), tt.actor, rec.ID)
			if tt.reason == "" {
				require.NoError(t, err)
				_, err = f.files.GetByID(context.Background(), rec.ID)
				assert.ErrorIs(t, err, repository.ErrNotFound)
				_, err = f.store.Get(context.Background(), rec.StorageKey)
				assert.ErrorIs(t, err, storage.ErrNotFound)
				return
			}
			var denied *access.DeniedError
			require.ErrorAs(t, err, &denied)
			assert.Equal(t, tt.reason, denied.Reason)
			_, err = f.files.GetByID(context.Background(), rec.ID)
			assert.NoError(t, err, "denied delete leaves the record")
		})
	}
}

func TestDelete_PublicReadableButNotDeletable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.upload(t, manager, "a.pdf", model.VisibilityPublic)

	_, err := f.catalog.Get(context.Background(), bob, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, Forbidden, Classify(f.catalog.Delete(context.Background(), bob, rec.ID)))
	assert.Equal(t, Forbidden, Classify(f.catalog.Delete(context.Background(), outside, rec.ID)))
}

func TestDelete_ObjectAlreadyGone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.upload(t, alice, "a.pdf", model.VisibilityPrivate)
	require.NoError(t, f.store.MemoryStore.Delete(context.Background(), rec.StorageKey))

	require.NoError(t, f.catalog.Delete(context.Background(), alice, rec.ID))
	assert.ErrorIs(t, f.catalog.Delete(context.Background(), alice, rec.ID), ErrNotFound)
}

func TestDelete_StorageErrorTolerated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.upload(t, alice, "a.pdf", model.VisibilityPrivate)
	f.store.failDelete = true

	require.NoError(t, f.catalog.Delete(context.Background(), alice, rec.ID))
	_, err := f.files.GetByID(context.Background(), rec.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestList_DepartmentVisibility(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	deptFile := f.upload(t, manager, "dept.pdf", model.VisibilityDepartment)

	ids := func(actor model.Actor, filter repository.Filter) []int64 {
		recs, err := f.catalog.List(ctx, actor, filter)
		require.NoError(t, err)
		var out []int64
		for _, r := range recs {
			out = append(out, r.ID)
		}
		return out
	}

	assert.NotContains(t, ids(bob, repository.Filter{}), deptFile.ID)
	assert.Contains(t, ids(alice, repository.Filter{}), deptFile.ID)
	assert.Contains(t, ids(outside, repository.Filter{}), deptFile.ID)
	assert.Contains(t, ids(admin, repository.Filter{}), deptFile.ID)

	// Asking for department 10 from department 20 is scoped back to 20.
	dept10 := int64(10)
	assert.Empty(t, ids(bob, repository.Filter{DepartmentID: &dept10}))
	assert.Contains(t, ids(outside, repository.Filter{DepartmentID: &dept10}), deptFile.ID)
}

func TestList_FiltersAndOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := f.upload(t, manager, "alpha.pdf", model.VisibilityPublic)
	second := f.upload(t, manager, "beta.pdf", model.VisibilityPublic)
	f.upload(t, alice, "gamma.pdf", model.VisibilityPrivate)

	recs, err := f.catalog.List(context.Background(), bob, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, second.ID, recs[0].ID)
	assert.Equal(t, first.ID, recs[1].ID)

	name := "ALPHA"
	recs, err = f.catalog.List(context.Background(), bob, repository.Filter{Filename: &name})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, first.ID, recs[0].ID)
}

func TestExtractionOutcomeVisibleThroughGet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.upload(t, alice, "a.pdf", model.VisibilityPrivate)
	require.NoError(t, f.files.Finish(context.Background(), rec.ID, lifecycle.Succeeded(model.Metadata{"pages": 1})))

	got, err := f.catalog.Get(context.Background(), alice, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, got.Status)
	assert.Equal(t, 1, got.Metadata["pages"])
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, Success},
		{ErrNotFound, NotFound},
		{fmt.Errorf("wrap: %w", repository.ErrNotFound), NotFound},
		{&access.DeniedError{Op: "read", Reason: access.ReasonNotVisible}, Forbidden},
		{&admission.RejectedError{Code: admission.CodeEmptyFile}, Rejected},
		{&StorageError{Op: "put", Key: "k", Err: errStorageDown}, Unavailable},
		{errors.New("boom"), Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}
