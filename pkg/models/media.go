package models

import (
	"io"
	"time"
)

// MediaHandle is an open, in-memory or process-local handle on a media
// asset. Handles are never copied into job snapshots; they are looked up
// again by media file id when a job runs.
type MediaHandle interface {
	Open() (io.ReadCloser, error)
	Size() int64
}

// MediaFile references an external media asset used by clips.
type MediaFile struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	MimeType         string    `json:"mime_type,omitempty"`
	Path             string    `json:"path,omitempty"`
	BlobURL          string    `json:"blob_url,omitempty"`
	RecordedBasePath string    `json:"recorded_base_path,omitempty"`
	Size             int64     `json:"size,omitempty"`
	Duration         float64   `json:"duration,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// MediaSourceKind tags which variant of MediaSource is populated.
type MediaSourceKind string

// MediaSourceKind constants, in resolution priority order.
const (
	SourceInMemory     MediaSourceKind = "in_memory"
	SourceRecordedBase MediaSourceKind = "recorded_base"
	SourceBlob         MediaSourceKind = "blob"
	SourceFilesystem   MediaSourceKind = "filesystem"
	SourceText         MediaSourceKind = "text"
)

// MediaSource is the resolved input of one exported clip. Exactly one of
// Handle, Path or URL is meaningful, depending on Kind. SourceText carries
// nothing: the clip renders its text overlay only.
type MediaSource struct {
	Kind   MediaSourceKind `json:"kind"`
	Handle MediaHandle     `json:"-"`
	Path   string          `json:"path,omitempty"`
	URL    string          `json:"url,omitempty"`
}

// Location returns the path or URL a transcoder can open directly.
func (s MediaSource) Location() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Path
}

// ClipData is the flat, ordered descriptor handed to the transcoder's merge.
type ClipData struct {
	ClipID           string            `json:"clip_id"`
	TrackID          string            `json:"track_id"`
	MediaType        TrackType         `json:"media_type"`
	Name             string            `json:"name"`
	Source           MediaSource       `json:"source"`
	Start            float64           `json:"start"`
	End              float64           `json:"end"`
	Duration         float64           `json:"duration"`
	SourceIn         float64           `json:"source_in"`
	SourceOut        float64           `json:"source_out"`
	VolumeScalar     float64           `json:"volume_scalar"`
	Visible          bool              `json:"visible"`
	OverlayTransform *OverlayTransform `json:"overlay_transform,omitempty"`
	TextOverlay      *TextOverlay      `json:"text_overlay,omitempty"`
	Keyframes        []Keyframe        `json:"keyframes,omitempty"`
	TransitionOut    *Transition       `json:"transition_out,omitempty"`
}

// MergeRequest is everything the transcoder needs to flatten a timeline.
type MergeRequest struct {
	Clips  []ClipData `json:"clips"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
	FPS    int        `json:"fps"`
}

// Artifact is an intermediate or final media file produced by a stage.
type Artifact struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// ProbeResult is the subset of probe output the export pipeline reads.
type ProbeResult struct {
	Format ProbeFormat `json:"format"`
}

// ProbeFormat carries container-level probe data.
type ProbeFormat struct {
	FormatName      string  `json:"format_name"`
	DurationSeconds float64 `json:"duration"`
	Size            int64   `json:"size"`
	BitRate         int64   `json:"bit_rate"`
}

// LogLevel of a collaborator log line.
type LogLevel string

// LogLevel constants
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// StageHooks carries the progress and log channels a collaborator reports
// through while a stage runs. Either func may be nil.
type StageHooks struct {
	OnProgress func(fraction float64)
	OnLog      func(level LogLevel, message string)
}

// Progress reports a 0..1 fraction if a progress hook is set.
func (h StageHooks) Progress(fraction float64) {
	if h.OnProgress != nil {
		h.OnProgress(Clamp(fraction, 0, 1))
	}
}

// Log forwards a line if a log hook is set.
func (h StageHooks) Log(level LogLevel, message string) {
	if h.OnLog != nil {
		h.OnLog(level, message)
	}
}
