package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("export record not found")

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const writeTimeout = 5 * time.Second

// Repository stores export history
type Repository struct {
	db     querier
	logger *logging.Logger

	mu   sync.Mutex
	last map[string]string
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *logging.Logger) *Repository {
	return newRepository(db.Pool, logger)
}

func newRepository(q querier, logger *logging.Logger) *Repository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Repository{db: q, logger: logger, last: make(map[string]string)}
}

func observe(operation string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
	}
	metrics.RecordDatabaseOperation(operation, status, time.Since(start).Seconds())
}

const upsertExport = `
	INSERT INTO export_jobs (id, status, stage, progress, title, options, output_path, retry_of,
	                         clip_count, duration_seconds, size_bytes, encode_fallback,
	                         error_kind, error_message, created_at, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		stage = EXCLUDED.stage,
		progress = EXCLUDED.progress,
		output_path = EXCLUDED.output_path,
		duration_seconds = EXCLUDED.duration_seconds,
		size_bytes = EXCLUDED.size_bytes,
		encode_fallback = EXCLUDED.encode_fallback,
		error_kind = EXCLUDED.error_kind,
		error_message = EXCLUDED.error_message,
		started_at = EXCLUDED.started_at,
		finished_at = EXCLUDED.finished_at,
		updated_at = NOW()
`

// SaveExport inserts or updates a history row
func (r *Repository) SaveExport(ctx context.Context, rec models.ExportRecord) (err error) {
	defer observe("save_export", time.Now(), &err)

	options, err := json.Marshal(rec.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	_, err = r.db.Exec(ctx, upsertExport,
		rec.ID, string(rec.Status), string(rec.Stage), rec.Progress, rec.Title, options,
		rec.OutputPath, rec.RetryOf, rec.ClipCount, rec.DurationSeconds, rec.SizeBytes,
		rec.EncodeFallback, rec.ErrorKind, rec.ErrorMessage, rec.CreatedAt, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save export %s: %w", rec.ID, err)
	}
	return nil
}

const selectExport = `
	SELECT id, status, stage, progress, title, options, output_path, retry_of,
	       clip_count, duration_seconds, size_bytes, encode_fallback,
	       error_kind, error_message, created_at, started_at, finished_at
	FROM export_jobs
`

func scanRecord(row pgx.Row) (*models.ExportRecord, error) {
	var (
		rec           models.ExportRecord
		status, stage string
		options       []byte
	)
	err := row.Scan(
		&rec.ID, &status, &stage, &rec.Progress, &rec.Title, &options, &rec.OutputPath, &rec.RetryOf,
		&rec.ClipCount, &rec.DurationSeconds, &rec.SizeBytes, &rec.EncodeFallback,
		&rec.ErrorKind, &rec.ErrorMessage, &rec.CreatedAt, &rec.StartedAt, &rec.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = models.JobStatus(status)
	rec.Stage = models.Stage(stage)
	if err := rec.Options.Scan(options); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	return &rec, nil
}

// GetExport retrieves a history row by job id
func (r *Repository) GetExport(ctx context.Context, id string) (rec *models.ExportRecord, err error) {
	defer observe("get_export", time.Now(), &err)

	rec, err = scanRecord(r.db.QueryRow(ctx, selectExport+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export: %w", err)
	}
	return rec, nil
}

// ListExports returns history rows, newest first
func (r *Repository) ListExports(ctx context.Context, limit, offset int) (recs []*models.ExportRecord, err error) {
	defer observe("list_exports", time.Now(), &err)

	rows, err := r.db.Query(ctx, selectExport+" ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exports: %w", err)
	}
	return recs, nil
}

// DeleteExport removes a history row
func (r *Repository) DeleteExport(ctx context.Context, id string) (err error) {
	defer observe("delete_export", time.Now(), &err)

	tag, err := r.db.Exec(ctx, "DELETE FROM export_jobs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete export: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// JobUpdated writes the job's history row whenever its status or stage
// changes. Progress-only updates are skipped.
func (r *Repository) JobUpdated(job *models.ExportJob) {
	key := string(job.Status) + "/" + string(job.Stage)
	r.mu.Lock()
	if r.last[job.ID] == key {
		r.mu.Unlock()
		return
	}
	r.last[job.ID] = key
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.SaveExport(ctx, models.RecordFromJob(job)); err != nil {
		metrics.RecordError("database", "save_export")
		r.logger.WithJobID(job.ID).WarnWithErr("Failed to record export history", err)
	}
}
