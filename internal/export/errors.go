package export

import (
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// Kind separates genuine failures from user cancellation.
type Kind string

// Kind constants
const (
	KindFatal     Kind = "fatal"
	KindCancelled Kind = "cancelled"
)

// Job-level reasons, usable with errors.Is on anything the orchestrator
// returns.
var (
	ErrCancelled             = errors.New("export cancelled")
	ErrTranscoderInit        = errors.New("transcoder failed to initialize")
	ErrNoValidClips          = errors.New("no valid clips found")
	ErrInsufficientDiskSpace = errors.New("insufficient disk space")
	ErrNoOutputPath          = errors.New("no output path resolved")
	ErrOutputMissing         = errors.New("output file missing after write")
	ErrMergeFailed           = errors.New("merge failed")
	ErrSaveFailed            = errors.New("save failed")
	ErrInvalidOptions        = errors.New("invalid export options")

	ErrJobNotFound   = errors.New("export job not found")
	ErrJobFinished   = errors.New("export job already finished")
	ErrNotRetryable  = errors.New("only failed or cancelled jobs can be retried")
	ErrPanicRecovery = errors.New("export panicked")
)

// JobError is the terminal error of a failed or cancelled job.
type JobError struct {
	Kind    Kind
	Stage   models.Stage
	Message string
	Details string
	Cause   error

	reason error
}

func (e *JobError) Error() string {
	msg := e.Message
	if msg == "" && e.reason != nil {
		msg = e.reason.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the reason sentinel and the underlying cause.
func (e *JobError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.reason != nil {
		out = append(out, e.reason)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Info is the serializable form stored on the job record.
func (e *JobError) Info() *models.JobErrorInfo {
	info := &models.JobErrorInfo{
		Kind:    string(e.Kind),
		Stage:   e.Stage,
		Message: e.Message,
		Details: e.Details,
	}
	if info.Message == "" && e.reason != nil {
		info.Message = e.reason.Error()
	}
	if e.Cause != nil {
		info.Cause = e.Cause.Error()
	}
	return info
}

// IsCancelled reports whether err ended a job by cancellation rather than
// failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

func fatal(stage models.Stage, reason error, message string, cause error) *JobError {
	return &JobError{Kind: KindFatal, Stage: stage, Message: message, Cause: cause, reason: reason}
}

func cancelled(stage models.Stage, message string) *JobError {
	if message == "" {
		message = "Export cancelled"
	}
	return &JobError{Kind: KindCancelled, Stage: stage, Message: message, reason: ErrCancelled}
}

// asJobError normalizes anything a job run returned.
func asJobError(stage models.Stage, err error) *JobError {
	var je *JobError
	if errors.As(err, &je) {
		return je
	}
	if IsCancelled(err) {
		return cancelled(stage, "")
	}
	return fatal(stage, nil, "Export failed", err)
}
