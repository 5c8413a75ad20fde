package transcoder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/vedit/internal/config"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// Service is the ffmpeg-backed media collaborator of the export
// pipeline. Intermediate files live under its temp directory until
// released.
type Service struct {
	ffmpeg  *FFmpeg
	tempDir string
	logger  *logging.Logger
	newID   func() string

	mu      sync.Mutex
	version string
}

// NewService creates a new transcoder service
func NewService(cfg config.TranscoderConfig, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "vedit")
	}
	return &Service{
		ffmpeg:  NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath),
		tempDir: tempDir,
		logger:  logger,
		newID:   func() string { return uuid.New().String() },
	}
}

// Init verifies ffmpeg runs and the temp directory exists. Success is
// remembered; failures are retried on the next call.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != "" {
		return nil
	}

	if err := os.MkdirAll(s.tempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	version, err := s.ffmpeg.Version(ctx)
	if err != nil {
		return err
	}
	s.version = version
	s.logger.WithField("version", version).Info("Transcoder ready")
	return nil
}

// Merge flattens the clips into one intermediate file at the requested
// canvas size.
func (s *Service) Merge(ctx context.Context, req models.MergeRequest, hooks models.StageHooks) (models.Artifact, error) {
	inputs, cleanup, err := s.prepareInputs(ctx, req.Clips)
	defer cleanup()
	if err != nil {
		return models.Artifact{}, err
	}

	graph, err := BuildMergeGraph(inputs, req.Width, req.Height, req.FPS)
	if err != nil {
		return models.Artifact{}, err
	}
	fps := req.FPS
	if fps <= 0 {
		fps = 30
	}

	out := filepath.Join(s.tempDir, "merged-"+s.newID()+".mp4")
	args := append(graph.Args, intermediateArgs(fps)...)
	args = append(args, out)

	hooks.Log(models.LogLevelInfo, fmt.Sprintf("Merging %d clips into %.2fs at %dx%d", len(inputs), graph.Duration, req.Width, req.Height))
	if err := s.ffmpeg.run(ctx, args, graph.Duration, hooks); err != nil {
		removeFile(out)
		return models.Artifact{}, err
	}
	return artifactAt(out)
}

// ExportVideo encodes the merged file with the export options.
func (s *Service) ExportVideo(ctx context.Context, in models.Artifact, outputName string, opts models.ExportOptions, hooks models.StageHooks) (models.Artifact, error) {
	out := filepath.Join(s.tempDir, s.newID()+"-"+filepath.Base(outputName))
	args, err := BuildEncodeArgs(in.Path, out, opts)
	if err != nil {
		return models.Artifact{}, err
	}

	total := 0.0
	if meta, err := s.ffmpeg.ProbeVideo(ctx, in.Path); err == nil {
		total = meta.ProbeResult().Format.DurationSeconds
	} else {
		hooks.Log(models.LogLevelDebug, "Could not probe merged file, progress unavailable: "+err.Error())
	}

	hooks.Log(models.LogLevelInfo, fmt.Sprintf("Encoding %s with %s (crf %d, preset %s)", opts.Format, opts.Codec, opts.CRF, opts.Preset))
	if err := s.ffmpeg.run(ctx, args, total, hooks); err != nil {
		removeFile(out)
		return models.Artifact{}, err
	}
	return artifactAt(out)
}

// ProbeMedia reads container information of a finished file.
func (s *Service) ProbeMedia(ctx context.Context, a models.Artifact) (models.ProbeResult, error) {
	meta, err := s.ffmpeg.ProbeVideo(ctx, a.Path)
	if err != nil {
		return models.ProbeResult{}, err
	}
	return meta.ProbeResult(), nil
}

// Release deletes an intermediate file. Paths outside the temp directory
// are never touched.
func (s *Service) Release(a models.Artifact) {
	if a.Path == "" || !s.owns(a.Path) {
		return
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		s.logger.WarnWithErr("Failed to remove intermediate file", err)
	}
}

func (s *Service) owns(path string) bool {
	rel, err := filepath.Rel(s.tempDir, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

// prepareInputs resolves every clip to something ffmpeg can open and
// probes which streams it carries. In-memory handles are written to temp
// files that cleanup removes.
func (s *Service) prepareInputs(ctx context.Context, clips []models.ClipData) ([]Input, func(), error) {
	var temp []string
	cleanup := func() {
		for _, p := range temp {
			removeFile(p)
		}
	}

	inputs := make([]Input, 0, len(clips))
	for _, c := range clips {
		in := Input{Clip: c}
		switch c.Source.Kind {
		case models.SourceText:
			inputs = append(inputs, in)
			continue
		case models.SourceInMemory:
			path, err := s.materialize(c.ClipID, c.Source.Handle)
			if err != nil {
				return nil, cleanup, err
			}
			temp = append(temp, path)
			in.Location = path
		default:
			in.Location = c.Source.Location()
		}
		if in.Location == "" {
			return nil, cleanup, fmt.Errorf("clip %s has no readable source", c.ClipID)
		}

		meta, err := s.ffmpeg.ProbeVideo(ctx, in.Location)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to probe clip %s: %w", c.ClipID, err)
		}
		in.HasVideo = meta.HasStream("video") && c.MediaType != models.TrackTypeAudio
		in.HasAudio = meta.HasStream("audio")
		inputs = append(inputs, in)
	}
	return inputs, cleanup, nil
}

func (s *Service) materialize(clipID string, h models.MediaHandle) (string, error) {
	if h == nil {
		return "", fmt.Errorf("clip %s has no media handle", clipID)
	}
	r, err := h.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open media for clip %s: %w", clipID, err)
	}
	defer r.Close()

	f, err := os.CreateTemp(s.tempDir, "input-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp input: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		removeFile(f.Name())
		return "", fmt.Errorf("failed to buffer media for clip %s: %w", clipID, err)
	}
	return f.Name(), nil
}

func artifactAt(path string) (models.Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.Artifact{}, fmt.Errorf("output not written: %w", err)
	}
	return models.Artifact{Path: path, Size: info.Size()}, nil
}
