package export

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/internal/tracing"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// hooks routes a collaborator's progress and log lines into the job.
func (o *Orchestrator) hooks(id string, stage models.Stage) models.StageHooks {
	return models.StageHooks{
		OnProgress: func(fraction float64) { o.reportProgress(id, stage, fraction) },
		OnLog: func(level models.LogLevel, message string) {
			o.appendLog(id, stage, level, message)
		},
	}
}

// runStage checks for cancellation, enters the stage, runs fn inside a
// span and marks the stage complete if fn succeeds.
func (o *Orchestrator) runStage(ctx context.Context, id string, stage models.Stage, fn func(context.Context, models.StageHooks) error) error {
	if err := o.checkpoint(ctx, id, stage); err != nil {
		return err
	}
	o.enterStage(id, stage)

	span, sctx := tracing.StartSpan(ctx, "export."+string(stage))
	tracing.SetTag(span, "job_id", id)
	start := time.Now()

	err := fn(sctx, o.hooks(id, stage))

	status := "ok"
	if err != nil {
		status = "error"
		if IsCancelled(err) {
			status = "cancelled"
		}
		tracing.LogError(span, err)
	}
	tracing.FinishSpan(span)
	metrics.RecordExportStage(string(stage), status, time.Since(start).Seconds())

	if err != nil {
		return err
	}
	o.reportProgress(id, stage, 1)
	return nil
}

// execute drives one job through every stage. job is a private copy.
func (o *Orchestrator) execute(ctx context.Context, job *models.ExportJob) (*models.ExportResult, error) {
	id := job.ID
	span, ctx := tracing.StartSpan(ctx, "export.job")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "job_id", id)
	tracing.SetTag(span, "format", job.Options.Format)

	if err := o.transcoder.Init(ctx); err != nil {
		tracing.LogError(span, err)
		return nil, fatal(models.StagePreparing, ErrTranscoderInit, "Failed to initialize transcoder", err)
	}

	var (
		clips         []models.ClipData
		width, height int
		merged, final models.Artifact
		fallback      bool
		outputPath    string
		size          int64
		validation    models.ValidationSummary
	)
	outputName := DefaultFilename(job.Metadata.Title, job.Options.Format)

	err := o.runStage(ctx, id, models.StagePreparing, func(ctx context.Context, hooks models.StageHooks) error {
		w, h, err := models.ParseResolution(job.Options.Resolution)
		if err != nil {
			return fatal(models.StagePreparing, ErrInvalidOptions, "Invalid export resolution", err)
		}
		width, height = w, h

		var dropped []string
		clips, dropped = resolveClipData(job, o.handles)
		for _, clipID := range dropped {
			hooks.Log(models.LogLevelWarn, fmt.Sprintf("Skipping clip %s: media could not be resolved", clipID))
		}
		if len(clips) == 0 {
			je := fatal(models.StagePreparing, ErrNoValidClips, "No valid clips found", nil)
			je.Details = fmt.Sprintf("%d clips in timeline, %d without resolvable media", len(job.TimelineSnapshot), len(dropped))
			return je
		}
		hooks.Log(models.LogLevelInfo, fmt.Sprintf("Prepared %d clips at %dx%d", len(clips), width, height))
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = o.runStage(ctx, id, models.StageMerging, func(ctx context.Context, hooks models.StageHooks) error {
		a, err := o.transcoder.Merge(ctx, models.MergeRequest{
			Clips:  clips,
			Width:  width,
			Height: height,
			FPS:    job.Options.FPS,
		}, hooks)
		if err != nil {
			return fatal(models.StageMerging, ErrMergeFailed, "Failed to merge clips", err)
		}
		merged = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer o.transcoder.Release(merged)

	err = o.runStage(ctx, id, models.StageEncoding, func(ctx context.Context, hooks models.StageHooks) error {
		a, err := o.transcoder.ExportVideo(ctx, merged, outputName, job.Options, hooks)
		if err != nil {
			hooks.Log(models.LogLevelWarn, fmt.Sprintf("Encoding failed, keeping merged output: %v", err))
			final = merged
			fallback = true
			return nil
		}
		final = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !fallback && final.Path != merged.Path {
		defer o.transcoder.Release(final)
	}

	err = o.runStage(ctx, id, models.StageSaving, func(ctx context.Context, hooks models.StageHooks) error {
		path := job.OutputPath
		if path == "" {
			p, ok, err := o.persistence.ResolveSavePath(ctx, outputName)
			if err != nil {
				return fatal(models.StageSaving, ErrNoOutputPath, "Failed to resolve output path", err)
			}
			if !ok || strings.TrimSpace(p) == "" {
				return cancelled(models.StageSaving, "Export cancelled: no output path chosen")
			}
			path = p
			o.setOutputPath(id, path)
		}

		free, err := o.persistence.FreeSpace(ctx, path)
		if err != nil {
			return fatal(models.StageSaving, ErrSaveFailed, "Failed to check free disk space", err)
		}
		artifactSize := uint64(0)
		if final.Size > 0 {
			artifactSize = uint64(final.Size)
		}
		needed := artifactSize + o.cfg.DiskSafetyMarginBytes
		if needed > free {
			je := fatal(models.StageSaving, ErrInsufficientDiskSpace,
				fmt.Sprintf("Insufficient disk space: %s available, %s needed", humanize.Bytes(free), humanize.Bytes(needed)), nil)
			je.Details = fmt.Sprintf("export %s plus %s safety margin at %s",
				humanize.Bytes(artifactSize), humanize.Bytes(o.cfg.DiskSafetyMarginBytes), path)
			return je
		}
		hooks.Progress(0.1)

		if err := o.persistence.WriteFile(ctx, path, final); err != nil {
			return fatal(models.StageSaving, ErrSaveFailed, "Failed to write export", err)
		}
		hooks.Log(models.LogLevelInfo, fmt.Sprintf("Wrote %s to %s", humanize.Bytes(artifactSize), path))
		outputPath = path
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = o.runStage(ctx, id, models.StageValidating, func(ctx context.Context, hooks models.StageHooks) error {
		exists, sz, err := o.persistence.Stat(ctx, outputPath)
		if err != nil || !exists {
			return fatal(models.StageValidating, ErrOutputMissing, "Exported file not found after write", err)
		}
		size = sz
		validation = o.validate(ctx, job, outputPath, sz, hooks)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.ExportResult{
		JobID:           id,
		OutputPath:      outputPath,
		SizeBytes:       size,
		DurationSeconds: job.Summary.DurationSeconds,
		EncodeFallback:  fallback,
		Validation:      validation,
	}, nil
}

// validate compares the probed duration with the job summary. Problems are
// reported in the summary and never fail the job.
func (o *Orchestrator) validate(ctx context.Context, job *models.ExportJob, path string, size int64, hooks models.StageHooks) models.ValidationSummary {
	v := models.ValidationSummary{
		ExpectedSeconds: job.Summary.DurationSeconds,
		TimelineSeconds: job.Summary.TimelineSeconds,
	}
	if o.prober == nil {
		v.Message = "probing unavailable, duration not checked"
		return v
	}

	res, err := o.prober.ProbeMedia(ctx, models.Artifact{Path: path, Size: size})
	if err != nil {
		v.Message = fmt.Sprintf("probe failed: %v", err)
		hooks.Log(models.LogLevelWarn, "Validation probe failed: "+err.Error())
		return v
	}

	v.Checked = true
	v.ProbedSeconds = res.Format.DurationSeconds
	v.DeltaSeconds = math.Abs(v.ProbedSeconds - v.ExpectedSeconds)
	v.Passed = v.DeltaSeconds <= o.cfg.ValidationToleranceSeconds
	if !v.Passed {
		v.Message = fmt.Sprintf("duration mismatch: expected %.2fs, probed %.2fs", v.ExpectedSeconds, v.ProbedSeconds)
		// Stacked tracks play at once, so their clip durations overcount.
		if math.Abs(v.ProbedSeconds-v.TimelineSeconds) <= o.cfg.ValidationToleranceSeconds {
			v.Message += fmt.Sprintf(" (matches the %.2fs timeline extent; clips overlap across tracks)", v.TimelineSeconds)
		}
		hooks.Log(models.LogLevelWarn, "Validation "+v.Message)
	}
	return v
}
