package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/filevault/internal/access"
	"github.com/dharsanguruparan/filevault/internal/lifecycle"
	"github.com/dharsanguruparan/filevault/internal/model"
)

// likeEscaper quotes LIKE wildcards so a filename filter matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

const fileColumns = `id, owner_id, department_id, filename_original, storage_key, mime_type, ext,
	size_bytes, visibility, status, download_count, metadata, created_at, updated_at`

// FileStore is the Postgres FileRepository.
type FileStore struct {
	db DBTX
}

// NewFileStore constructs a FileStore.
func NewFileStore(db DBTX) *FileStore {
	return &FileStore{db: db}
}

func (r *FileStore) Insert(ctx context.Context, rec *model.FileRecord) error {
	now := time.Now().UTC()
	rec.Status = lifecycle.Initial()
	rec.Metadata = model.Metadata{}
	rec.DownloadCount = 0
	rec.CreatedAt = now
	rec.UpdatedAt = now
	err := r.db.QueryRow(ctx, `
		INSERT INTO files (owner_id, department_id, filename_original, storage_key, mime_type, ext,
			size_bytes, visibility, status, download_count, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,$11,$11)
		RETURNING id
	`, rec.OwnerID, rec.DepartmentID, rec.FilenameOriginal, rec.StorageKey, rec.MimeType, rec.Extension,
		rec.SizeBytes, string(rec.Visibility), string(rec.Status), rec.Metadata, now).Scan(&rec.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert file %s: %w", rec.StorageKey, ErrConflict)
		}
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (r *FileStore) GetByID(ctx context.Context, id int64) (*model.FileRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	rec, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select file: %w", err)
	}
	return rec, nil
}

// Finish writes status and metadata in one statement guarded by
// status = 'PENDING', so a second terminal write can never land.
func (r *FileStore) Finish(ctx context.Context, id int64, outcome lifecycle.Outcome) error {
	if err := lifecycle.Check(model.StatusPending, outcome.Status); err != nil {
		return err
	}
	var meta any
	if outcome.Metadata != nil {
		meta = outcome.Metadata
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE files
		SET status = $1,
			metadata = COALESCE($2::jsonb, metadata),
			updated_at = $3
		WHERE id = $4 AND status = $5
	`, string(outcome.Status), meta, time.Now().UTC(), id, string(model.StatusPending))
	if err != nil {
		return fmt.Errorf("finish file %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var current model.FileStatus
	if err := r.db.QueryRow(ctx, `SELECT status FROM files WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("select file status: %w", err)
	}
	return lifecycle.Check(current, outcome.Status)
}

func (r *FileStore) IncrementDownloads(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		UPDATE files SET download_count = download_count + 1
		WHERE id = $1
		RETURNING download_count
	`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment downloads: %w", err)
	}
	return count, nil
}

func (r *FileStore) Query(ctx context.Context, pred access.Predicate, filter Filter) ([]*model.FileRecord, error) {
	filter = filter.normalized()
	where, args := buildFileWhere(pred, filter)
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM files %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		fileColumns, where, n+1, n+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var out []*model.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return out, nil
}

func (r *FileStore) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildFileWhere combines the access predicate with the caller's filters.
func buildFileWhere(pred access.Predicate, f Filter) (string, []any) {
	var conditions []string
	var args []any

	if clause, predArgs := pred.SQL(1); clause != "" {
		conditions = append(conditions, clause)
		args = append(args, predArgs...)
	}
	add := func(format string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}
	if f.Filename != nil && *f.Filename != "" {
		add(`filename_original ILIKE $%d ESCAPE '\'`, "%"+likeEscaper.Replace(*f.Filename)+"%")
	}
	if f.Extension != nil && *f.Extension != "" {
		add("ext = $%d", *f.Extension)
	}
	if f.Visibility != nil {
		add("visibility = $%d", string(*f.Visibility))
	}
	if f.OwnerID != nil {
		add("owner_id = $%d", *f.OwnerID)
	}
	if f.DepartmentID != nil {
		add("department_id = $%d", *f.DepartmentID)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanFile(row pgx.Row) (*model.FileRecord, error) {
	var rec model.FileRecord
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.DepartmentID, &rec.FilenameOriginal, &rec.StorageKey,
		&rec.MimeType, &rec.Extension, &rec.SizeBytes, &rec.Visibility, &rec.Status, &rec.DownloadCount,
		&rec.Metadata, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rec.Metadata == nil {
		rec.Metadata = model.Metadata{}
	}
	return &rec, nil
}
