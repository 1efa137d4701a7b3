package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dharsanguruparan/filevault/internal/lifecycle"
	"github.com/dharsanguruparan/filevault/internal/metrics"
	"github.com/dharsanguruparan/filevault/internal/model"
	"github.com/dharsanguruparan/filevault/internal/repository"
	"github.com/dharsanguruparan/filevault/internal/storage"
)

// maxParses caps parser goroutines per Job, including ones still running
// after their run timed out.
const maxParses = 16

// Job moves one file from PENDING to READY or FAILED.
type Job struct {
	files     repository.FileRepository
	store     storage.ObjectStore
	extractor *Extractor
	timeout   time.Duration
	parses    chan struct{}
	logger    *slog.Logger
}

// NewJob wires a Job. timeout bounds the fetch and parse of one file.
func NewJob(files repository.FileRepository, store storage.ObjectStore, extractor *Extractor, timeout time.Duration, logger *slog.Logger) *Job {
	return &Job{
		files:     files,
		store:     store,
		extractor: extractor,
		timeout:   timeout,
		parses:    make(chan struct{}, maxParses),
		logger:    logger,
	}
}

// Run extracts metadata for fileID and commits the terminal status. A
// missing record is a no-op. Fetch and parse failures are recorded as FAILED
// and not returned; only failures to read or write the record itself are
// returned, so the queue can redeliver.
func (j *Job) Run(ctx context.Context, fileID int64) error {
	rec, err := j.files.GetByID(ctx, fileID)
	if errors.Is(err, repository.ErrNotFound) {
		j.logger.Info("extraction skipped, file no longer exists", "file_id", fileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load file %d: %w", fileID, err)
	}
	if lifecycle.IsTerminal(rec.Status) {
		j.logger.Info("extraction skipped, file already finished", "file_id", fileID, "status", rec.Status)
		return nil
	}

	kind := KindOf(rec.Extension)
	start := time.Now()
	meta, extractErr := j.extract(ctx, rec)
	metrics.ExtractionDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())

	if extractErr != nil && ctx.Err() != nil {
		// Shutdown, not a document problem: leave PENDING for redelivery.
		return fmt.Errorf("extract file %d: %w", fileID, ctx.Err())
	}

	outcome := lifecycle.Succeeded(meta)
	if extractErr != nil {
		j.logger.Warn("extraction failed", "file_id", fileID, "kind", kind.String(), "error", extractErr)
		outcome = lifecycle.Failed()
	}

	err = j.files.Finish(ctx, fileID, outcome)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		j.logger.Info("file deleted during extraction", "file_id", fileID)
		return nil
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		j.logger.Info("file finished by another delivery", "file_id", fileID)
		return nil
	default:
		return fmt.Errorf("finish file %d: %w", fileID, err)
	}

	metrics.ExtractionsTotal.WithLabelValues(kind.String(), string(outcome.Status)).Inc()
	j.logger.Info("extraction finished", "file_id", fileID, "kind", kind.String(), "status", outcome.Status)
	return nil
}

func (j *Job) extract(ctx context.Context, rec *model.FileRecord) (model.Metadata, error) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	data, err := j.store.Get(ctx, rec.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch object: %w", err)
	}
	type result struct {
		meta model.Metadata
		err  error
	}
	select {
	case j.parses <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for parser: %w", ctx.Err())
	}
	// Parsers that ignore ctx keep their slot until they return; the result
	// is then dropped.
	done := make(chan result, 1)
	go func() {
		defer func() { <-j.parses }()
		meta, err := j.extractor.Extract(ctx, rec.Extension, data)
		done <- result{meta, err}
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("extraction: %w", ctx.Err())
	case r := <-done:
		return r.meta, r.err
	}
}
