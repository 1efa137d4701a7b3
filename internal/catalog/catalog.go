// Package catalog orchestrates uploads, reads, listings, downloads and
// deletes. Every operation passes its policy gate before any storage or
// persistence call is made.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/filevault/internal/access"
	"github.com/dharsanguruparan/filevault/internal/admission"
	"github.com/dharsanguruparan/filevault/internal/metrics"
	"github.com/dharsanguruparan/filevault/internal/model"
	"github.com/dharsanguruparan/filevault/internal/queue"
	"github.com/dharsanguruparan/filevault/internal/repository"
	"github.com/dharsanguruparan/filevault/internal/storage"
)

// DefaultDownloadTTL is how long a download URL stays valid.
const DefaultDownloadTTL = 60 * time.Second

// Upload is an upload intent.
type Upload struct {
	Filename string
	Content  []byte
	// ContentType is the client-declared type; the sniffed type is used when empty.
	ContentType string
	Visibility  string
}

// DownloadGrant is a short-lived retrieval URL.
type DownloadGrant struct {
	URL           string `json:"url"`
	ExpiresIn     int    `json:"expires_in"`
	DownloadCount int64  `json:"-"`
}

// Catalog is the file catalog service.
type Catalog struct {
	files       repository.FileRepository
	store       storage.ObjectStore
	queue       queue.Enqueuer
	admission   *admission.Policy
	downloadTTL time.Duration
	logger      *slog.Logger
	newID       func() string
}

// New wires a Catalog. A non-positive downloadTTL uses DefaultDownloadTTL.
func New(files repository.FileRepository, store storage.ObjectStore, q queue.Enqueuer, policy *admission.Policy, downloadTTL time.Duration, logger *slog.Logger) *Catalog {
	if downloadTTL <= 0 {
		downloadTTL = DefaultDownloadTTL
	}
	return &Catalog{
		files:       files,
		store:       store,
		queue:       q,
		admission:   policy,
		downloadTTL: downloadTTL,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// StorageKey builds the object key for an upload. The random component
// makes keys unique without a lookup.
func StorageKey(departmentID, ownerID int64, id, ext string) string {
	if ext == "" {
		return fmt.Sprintf("%d/%d/%s", departmentID, ownerID, id)
	}
	return fmt.Sprintf("%d/%d/%s.%s", departmentID, ownerID, id, ext)
}

// Upload admits, stores and records a new file, then queues extraction. The
// returned record is PENDING with empty metadata.
func (c *Catalog) Upload(ctx context.Context, actor model.Actor, in Upload) (rec *model.FileRecord, err error) {
	defer func() { metrics.UploadsTotal.WithLabelValues(Classify(err).String()).Inc() }()

	ext := admission.ExtensionOf(in.Filename)
	size := int64(len(in.Content))
	if err := admission.CheckContent(ext, in.Content); err != nil {
		return nil, err
	}
	visibility, err := c.admission.Admit(actor.Role, ext, size, in.Visibility)
	if err != nil {
		return nil, err
	}

	mimeType := in.ContentType
	if mimeType == "" {
		mimeType = admission.SniffMIME(in.Content)
	}
	key := StorageKey(actor.DepartmentID, actor.ID, c.newID(), ext)
	if err := c.store.Put(ctx, key, in.Content, mimeType); err != nil {
		return nil, &StorageError{Op: "put", Key: key, Err: err}
	}

	rec = &model.FileRecord{
		OwnerID:          actor.ID,
		DepartmentID:     actor.DepartmentID,
		FilenameOriginal: in.Filename,
		StorageKey:       key,
		MimeType:         mimeType,
		Extension:        ext,
		SizeBytes:        size,
		Visibility:       visibility,
	}
	if err := c.files.Insert(ctx, rec); err != nil {
		if delErr := c.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			c.logger.Warn("cleanup after failed insert", "key", key, "error", delErr)
			metrics.OrphanedObjectsTotal.Inc()
		}
		return nil, fmt.Errorf("insert file record: %w", err)
	}
	metrics.UploadBytesTotal.Add(float64(size))

	if err := c.queue.EnqueueExtract(ctx, rec.ID); err != nil {
		// The upload is committed; the record stays PENDING.
		c.logger.Error("enqueue extraction", "file_id", rec.ID, "error", err)
	}
	c.logger.Info("file uploaded", "file_id", rec.ID, "owner_id", actor.ID, "ext", ext, "size", size, "visibility", visibility)
	return rec, nil
}

// Get returns a file the actor may read.
func (c *Catalog) Get(ctx context.Context, actor model.Actor, id int64) (*model.FileRecord, error) {
	rec, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorizeRead(actor, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns the files the actor may read that match filter, newest
// first. A non-elevated actor's department filter is scoped to their own.
func (c *Catalog) List(ctx context.Context, actor model.Actor, filter repository.Filter) ([]*model.FileRecord, error) {
	filter.DepartmentID = access.ScopeDepartment(actor, filter.DepartmentID)
	recs, err := c.files.Query(ctx, access.ListPredicate(actor), filter)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return recs, nil
}

// Download issues a short-lived URL and counts the download before
// returning it. A failed presign is not counted.
func (c *Catalog) Download(ctx context.Context, actor model.Actor, id int64) (grant *DownloadGrant, err error) {
	defer func() { metrics.DownloadsTotal.WithLabelValues(Classify(err).String()).Inc() }()

	rec, err := c.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	url, err := c.store.Presign(ctx, rec.StorageKey, c.downloadTTL)
	if err != nil {
		return nil, &StorageError{Op: "presign", Key: rec.StorageKey, Err: err}
	}
	// Counted only once a URL exists, and before the caller sees it.
	count, err := c.files.IncrementDownloads(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("count download: %w", err)
	}
	return &DownloadGrant{
		URL:           url,
		ExpiresIn:     int(c.downloadTTL / time.Second),
		DownloadCount: count,
	}, nil
}

// Delete removes the object and then the record. A storage failure is
// logged and does not stop the record from being removed.
func (c *Catalog) Delete(ctx context.Context, actor model.Actor, id int64) (err error) {
	defer func() { metrics.DeletesTotal.WithLabelValues(Classify(err).String()).Inc() }()

	rec, err := c.load(ctx, id)
	if err != nil {
		return err
	}
	if err := access.CanDelete(actor, rec); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, rec.StorageKey); err != nil {
		c.logger.Warn("storage delete failed, removing record anyway", "file_id", id, "key", rec.StorageKey, "error", err)
		metrics.OrphanedObjectsTotal.Inc()
	}
	if err := c.files.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete file record: %w", err)
	}
	c.logger.Info("file deleted", "file_id", id, "actor_id", actor.ID)
	return nil
}

func (c *Catalog) load(ctx context.Context, id int64) (*model.FileRecord, error) {
	rec, err := c.files.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load file %d: %w", id, err)
	}
	return rec, nil
}
