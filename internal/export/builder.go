package export

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/vedit/internal/timeline"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// FallbackOptions are used for any setting neither the request nor the
// user defaults provide. Codec is derived from the format.
var FallbackOptions = models.ExportOptions{
	Resolution: "1920x1080",
	FPS:        60,
	Format:     models.FormatMP4,
	Bitrate:    "8000k",
	CRF:        23,
	Preset:     "veryfast",
}

// Request is an explicit export payload. Snapshot fields are copied, never
// retained.
type Request struct {
	Options    models.ExportOptions  `json:"options"`
	Metadata   models.ExportMetadata `json:"metadata"`
	OutputPath string                `json:"output_path,omitempty"`

	Clips       []models.Clip       `json:"clips"`
	Tracks      []models.Track      `json:"tracks,omitempty"`
	Transitions []models.Transition `json:"transitions,omitempty"`
	Media       []models.MediaFile  `json:"media"`
	BlobURLs    map[string]string   `json:"blob_urls,omitempty"`
}

// State is the live editor state a job can be built from.
// *timeline.Model satisfies it.
type State interface {
	Tracks() []models.Track
	Clips() []models.Clip
	Transitions() []models.Transition
}

// MediaState is the live media library. *timeline.MediaLibrary
// satisfies it.
type MediaState interface {
	Files() []models.MediaFile
	BlobURLs() map[string]string
}

// Builder turns editor state and caller overrides into immutable jobs.
type Builder struct {
	appName  string
	defaults models.ExportOptions
	now      func() time.Time
	newID    func() string
}

// NewBuilder creates a builder layering request options over the given
// user defaults.
func NewBuilder(appName string, defaults models.ExportOptions) *Builder {
	if appName == "" {
		appName = "Vedit"
	}
	return &Builder{
		appName:  appName,
		defaults: defaults,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// ResolveOptions layers request > user defaults > fallback per field.
func (b *Builder) ResolveOptions(req models.ExportOptions) models.ExportOptions {
	d := b.defaults
	f := FallbackOptions
	out := models.ExportOptions{
		Resolution: firstString(req.Resolution, d.Resolution, f.Resolution),
		FPS:        firstInt(req.FPS, d.FPS, f.FPS),
		Format:     strings.ToLower(firstString(req.Format, d.Format, f.Format)),
		Bitrate:    firstString(req.Bitrate, d.Bitrate, f.Bitrate),
		CRF:        firstInt(req.CRF, d.CRF, f.CRF),
		Preset:     firstString(req.Preset, d.Preset, f.Preset),
	}

	// A default codec only applies to the format it was chosen for.
	switch {
	case req.Codec != "":
		out.Codec = req.Codec
	case d.Codec != "" && strings.EqualFold(d.Format, out.Format):
		out.Codec = d.Codec
	default:
		out.Codec = models.CodecForFormat(out.Format)
	}
	return out
}

// FromRequest builds a pending job from an explicit payload.
func (b *Builder) FromRequest(req Request) (*models.ExportJob, error) {
	opts := b.ResolveOptions(req.Options)
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	meta := req.Metadata
	meta.Title = strings.TrimSpace(meta.Title)
	if meta.Title == "" {
		meta.Title = fmt.Sprintf("%s Export %s", b.appName, b.now().Local().Format("2006-01-02 15:04:05"))
	}

	clips := models.CloneClips(req.Clips)
	job := &models.ExportJob{
		ID:                 b.newID(),
		Status:             models.JobStatusPending,
		Stage:              models.StageQueued,
		CreatedAt:          b.now(),
		Options:            opts,
		Metadata:           meta,
		OutputPath:         strings.TrimSpace(req.OutputPath),
		TimelineSnapshot:   clips,
		TrackSnapshot:      models.CloneTracks(req.Tracks),
		TransitionSnapshot: models.CloneTransitions(req.Transitions),
		MediaSnapshot:      models.CloneMediaFiles(req.Media),
		BlobURLs:           models.CloneStringMap(req.BlobURLs),
		Summary:            summarize(clips),
	}
	return job, nil
}

// FromModel snapshots the live timeline and media library. Any snapshot
// fields set on req are ignored.
func (b *Builder) FromModel(state State, media MediaState, req Request) (*models.ExportJob, error) {
	req.Clips = state.Clips()
	req.Tracks = state.Tracks()
	req.Transitions = state.Transitions()
	req.Media = nil
	req.BlobURLs = nil
	if media != nil {
		req.Media = media.Files()
		req.BlobURLs = media.BlobURLs()
	}
	return b.FromRequest(req)
}

// Retry clones a finished job's inputs into a fresh pending job.
func (b *Builder) Retry(prev *models.ExportJob) *models.ExportJob {
	job := prev.Clone()
	job.ID = b.newID()
	job.RetryOf = prev.ID
	job.Status = models.JobStatusPending
	job.Stage = models.StageQueued
	job.Progress = 0
	job.ETASeconds = nil
	job.CreatedAt = b.now()
	job.StartedAt = nil
	job.FinishedAt = nil
	job.Logs = nil
	job.Result = nil
	job.Error = nil
	return job
}

func validateOptions(opts models.ExportOptions) error {
	if _, _, err := models.ParseResolution(opts.Resolution); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	switch opts.Format {
	case models.FormatMP4, models.FormatWebM, models.FormatMOV:
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidOptions, opts.Format)
	}
	if opts.FPS <= 0 || opts.FPS > 240 {
		return fmt.Errorf("%w: fps %d out of range", ErrInvalidOptions, opts.FPS)
	}
	if opts.CRF < 0 || opts.CRF > 63 {
		return fmt.Errorf("%w: crf %d out of range", ErrInvalidOptions, opts.CRF)
	}
	return nil
}

// summarize counts clips and sums their durations. Clips stacked on
// different tracks both count, so the sum can exceed the timeline extent.
func summarize(clips []models.Clip) models.ExportSummary {
	s := models.ExportSummary{ClipCount: len(clips)}
	for _, c := range timeline.SortByStart(clips) {
		s.DurationSeconds += c.Duration
		s.TimelineSeconds = math.Max(s.TimelineSeconds, c.Start+c.Duration)
	}
	return s
}

var filenameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// DefaultFilename derives a file name from a job title and format.
func DefaultFilename(title, format string) string {
	cleaned := filenameReplacer.Replace(title)
	cleaned = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, cleaned)
	name := strings.Trim(strings.Join(strings.Fields(cleaned), "-"), ".-")
	if name == "" {
		name = "export"
	}
	return name + models.FileExtension(format)
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
