package models

import "time"

// ExportRecord is the persisted history row of an export job.
type ExportRecord struct {
	ID              string        `json:"id" db:"id"`
	Status          JobStatus     `json:"status" db:"status"`
	Stage           Stage         `json:"stage" db:"stage"`
	Progress        int           `json:"progress" db:"progress"`
	Title           string        `json:"title" db:"title"`
	Options         ExportOptions `json:"options" db:"options"`
	OutputPath      string        `json:"output_path,omitempty" db:"output_path"`
	RetryOf         string        `json:"retry_of,omitempty" db:"retry_of"`
	ClipCount       int           `json:"clip_count" db:"clip_count"`
	DurationSeconds float64       `json:"duration_seconds" db:"duration_seconds"`
	SizeBytes       int64         `json:"size_bytes" db:"size_bytes"`
	EncodeFallback  bool          `json:"encode_fallback" db:"encode_fallback"`
	ErrorKind       string        `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage    string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty" db:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty" db:"finished_at"`
}

// RecordFromJob flattens a job into its history row.
func RecordFromJob(job *ExportJob) ExportRecord {
	r := ExportRecord{
		ID:              job.ID,
		Status:          job.Status,
		Stage:           job.Stage,
		Progress:        job.Progress,
		Title:           job.Metadata.Title,
		Options:         job.Options,
		OutputPath:      job.OutputPath,
		RetryOf:         job.RetryOf,
		ClipCount:       job.Summary.ClipCount,
		DurationSeconds: job.Summary.DurationSeconds,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
	}
	if job.Result != nil {
		r.SizeBytes = job.Result.SizeBytes
		r.EncodeFallback = job.Result.EncodeFallback
		if job.Result.DurationSeconds > 0 {
			r.DurationSeconds = job.Result.DurationSeconds
		}
	}
	if job.Error != nil {
		r.ErrorKind = job.Error.Kind
		r.ErrorMessage = job.Error.Message
	}
	return r
}
