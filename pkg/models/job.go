package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JobStatus of an export job.
type JobStatus string

// JobStatus constants
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Stage names a job's current phase.
type Stage string

// Stage constants. The first five are the execution stages, in order.
const (
	StagePreparing  Stage = "preparing"
	StageMerging    Stage = "merging"
	StageEncoding   Stage = "encoding"
	StageSaving     Stage = "saving"
	StageValidating Stage = "validating"

	StageQueued     Stage = "queued"
	StageCompleted  Stage = "completed"
	StageCancelled  Stage = "cancelled"
	StageCancelling Stage = "cancelling"
	StageFailed     Stage = "failed"
)

// ExportOptions are the resolved render settings of a job. Zero values
// mean "unset" when used as a request override.
type ExportOptions struct {
	Resolution string `json:"resolution"`
	FPS        int    `json:"fps"`
	Format     string `json:"format"`
	Bitrate    string `json:"bitrate"`
	CRF        int    `json:"crf"`
	Preset     string `json:"preset"`
	Codec      string `json:"codec"`
}

// Value implements driver.Valuer for database storage
func (o ExportOptions) Value() (driver.Value, error) {
	return json.Marshal(o)
}

// Scan implements sql.Scanner for database retrieval
func (o *ExportOptions) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	default:
		return nil
	}
}

// ExportMetadata describes the exported file.
type ExportMetadata struct {
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
}

// ExportSummary is computed at build time and checked during validation.
type ExportSummary struct {
	ClipCount       int     `json:"clip_count"`
	DurationSeconds float64 `json:"duration_seconds"`
	// TimelineSeconds is the latest clip end on any track.
	TimelineSeconds float64 `json:"timeline_seconds"`
}

// JobLogEntry is one structured line in a job's log ring.
type JobLogEntry struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
}

// ValidationSummary reports the post-export checks. A failed validation
// never changes the job status.
type ValidationSummary struct {
	Checked         bool    `json:"checked"`
	Passed          bool    `json:"passed"`
	ExpectedSeconds float64 `json:"expected_seconds"`
	ProbedSeconds   float64 `json:"probed_seconds"`
	DeltaSeconds    float64 `json:"delta_seconds"`
	TimelineSeconds float64 `json:"timeline_seconds"`
	Message         string  `json:"message,omitempty"`
}

// ExportResult is attached to a completed job.
type ExportResult struct {
	JobID           string            `json:"job_id"`
	OutputPath      string            `json:"output_path"`
	SizeBytes       int64             `json:"size_bytes"`
	DurationSeconds float64           `json:"duration_seconds"`
	EncodeFallback  bool              `json:"encode_fallback"`
	Validation      ValidationSummary `json:"validation"`
	Logs            []JobLogEntry     `json:"logs,omitempty"`
}

// JobErrorInfo is the serializable failure attached to a job.
type JobErrorInfo struct {
	Kind    string `json:"kind"`
	Stage   Stage  `json:"stage,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

// ExportJob is one queued export request. The snapshot fields are
// immutable once the job is enqueued; only the orchestrator mutates the
// status, progress, stage, timing, log, result and error fields.
type ExportJob struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Stage      Stage      `json:"stage"`
	Progress   int        `json:"progress"`
	ETASeconds *float64   `json:"eta_seconds"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	RetryOf    string     `json:"retry_of,omitempty"`

	Options    ExportOptions  `json:"options"`
	Metadata   ExportMetadata `json:"metadata"`
	OutputPath string         `json:"output_path,omitempty"`

	TimelineSnapshot   []Clip            `json:"timeline_snapshot"`
	TrackSnapshot      []Track           `json:"track_snapshot,omitempty"`
	TransitionSnapshot []Transition      `json:"transition_snapshot,omitempty"`
	MediaSnapshot      []MediaFile       `json:"media_snapshot"`
	BlobURLs           map[string]string `json:"blob_urls,omitempty"`
	Summary            ExportSummary     `json:"summary"`

	Logs   []JobLogEntry `json:"logs,omitempty"`
	Result *ExportResult `json:"result,omitempty"`
	Error  *JobErrorInfo `json:"error,omitempty"`
}

// ProgressEvent is delivered to progress subscribers.
type ProgressEvent struct {
	JobID      string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	Stage      Stage     `json:"stage"`
	Percent    int       `json:"percent"`
	ETASeconds *float64  `json:"eta_seconds"`
}

// JobEvent is published to external listeners when a job reaches a
// terminal state.
type JobEvent struct {
	Event      string        `json:"event"`
	JobID      string        `json:"job_id"`
	Status     JobStatus     `json:"status"`
	Title      string        `json:"title"`
	OutputPath string        `json:"output_path,omitempty"`
	Error      *JobErrorInfo `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
