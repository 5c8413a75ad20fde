// Package export builds immutable export jobs from the timeline and runs
// them one at a time through the preparing, merging, encoding, saving and
// validating stages.
package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// Transcoder is the media engine the orchestrator drives. Progress and log
// lines are reported through the hooks passed to each call.
type Transcoder interface {
	Init(ctx context.Context) error
	Merge(ctx context.Context, req models.MergeRequest, hooks models.StageHooks) (models.Artifact, error)
	ExportVideo(ctx context.Context, in models.Artifact, outputName string, opts models.ExportOptions, hooks models.StageHooks) (models.Artifact, error)
	// Release removes an intermediate artifact once a job no longer needs it.
	Release(a models.Artifact)
}

// Prober is the optional probing capability used during validation.
type Prober interface {
	ProbeMedia(ctx context.Context, a models.Artifact) (models.ProbeResult, error)
}

// Persistence resolves, checks and writes output files.
type Persistence interface {
	// ResolveSavePath returns ok=false when the user declined to choose a path.
	ResolveSavePath(ctx context.Context, suggested string) (path string, ok bool, err error)
	FreeSpace(ctx context.Context, path string) (uint64, error)
	WriteFile(ctx context.Context, path string, a models.Artifact) error
	Stat(ctx context.Context, path string) (exists bool, size int64, err error)
}

// Observer receives a copy of a job after every status, stage or output
// change. Progress ticks within a stage go to progress listeners only.
// Calls are made in order from a single goroutine.
type Observer interface {
	JobUpdated(job *models.ExportJob)
}

// ProgressListener receives progress events.
type ProgressListener func(models.ProgressEvent)

// Config holds the pipeline tunables.
type Config struct {
	DiskSafetyMarginBytes      uint64
	LogRingSize                int
	ValidationToleranceSeconds float64
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		DiskSafetyMarginBytes:      200 * 1024 * 1024,
		LogRingSize:                200,
		ValidationToleranceSeconds: 0.5,
	}
}

// Deps wires an Orchestrator.
type Deps struct {
	Transcoder  Transcoder
	Persistence Persistence
	// Prober overrides the transcoder's own probing capability, if any.
	Prober    Prober
	Handles   HandleSource
	Builder   *Builder
	Logger    *logging.Logger
	Observers []Observer
	Config    Config
}

// update is one ordered delivery to observers and listeners.
type update struct {
	job   *models.ExportJob
	event models.ProgressEvent
}

// Orchestrator owns the export queue. It runs at most one job at a time,
// in FIFO order among pending jobs.
type Orchestrator struct {
	transcoder  Transcoder
	persistence Persistence
	prober      Prober
	handles     HandleSource
	builder     *Builder
	logger      *logging.Logger
	cfg         Config
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	jobs      map[string]*models.ExportJob
	order     []string
	done      map[string]chan struct{}
	errs      map[string]*JobError
	cancelReq map[string]bool
	activeID  string
	paused    bool

	listenMu     sync.RWMutex
	observers    []Observer
	listeners    map[int]ProgressListener
	nextListener int
	legacy       ProgressListener

	queueMu      sync.Mutex
	pending      []update
	wake         chan struct{}
	quit         chan struct{}
	dispatchDone chan struct{}
	closeOnce    sync.Once
}

// NewOrchestrator creates an idle, unpaused orchestrator.
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	if deps.Transcoder == nil {
		return nil, errors.New("export: transcoder is required")
	}
	if deps.Persistence == nil {
		return nil, errors.New("export: persistence is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Builder == nil {
		deps.Builder = NewBuilder("", models.ExportOptions{})
	}
	if deps.Config == (Config{}) {
		deps.Config = DefaultConfig()
	}
	if deps.Config.LogRingSize <= 0 {
		deps.Config.LogRingSize = DefaultConfig().LogRingSize
	}
	prober := deps.Prober
	if prober == nil {
		prober, _ = deps.Transcoder.(Prober)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		transcoder:   deps.Transcoder,
		persistence:  deps.Persistence,
		prober:       prober,
		handles:      deps.Handles,
		builder:      deps.Builder,
		logger:       deps.Logger,
		cfg:          deps.Config,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
		jobs:         make(map[string]*models.ExportJob),
		done:         make(map[string]chan struct{}),
		errs:         make(map[string]*JobError),
		cancelReq:    make(map[string]bool),
		observers:    append([]Observer(nil), deps.Observers...),
		listeners:    make(map[int]ProgressListener),
		wake:         make(chan struct{}, 1),
		quit:         make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	go o.dispatch()
	return o, nil
}

// Builder returns the job builder used by EnqueueExport.
func (o *Orchestrator) Builder() *Builder {
	return o.builder
}

// AddObserver registers an observer for subsequent updates.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.listenMu.Lock()
	defer o.listenMu.Unlock()
	o.observers = append(o.observers, obs)
}

// Subscribe registers a progress listener and returns its unsubscribe func.
func (o *Orchestrator) Subscribe(fn ProgressListener) func() {
	o.listenMu.Lock()
	defer o.listenMu.Unlock()
	id := o.nextListener
	o.nextListener++
	o.listeners[id] = fn
	return func() {
		o.listenMu.Lock()
		defer o.listenMu.Unlock()
		delete(o.listeners, id)
	}
}

// SetLegacyListener sets the single-callback listener. nil clears it.
func (o *Orchestrator) SetLegacyListener(fn ProgressListener) {
	o.listenMu.Lock()
	defer o.listenMu.Unlock()
	o.legacy = fn
}

// EnqueueExport builds a job from an explicit request and queues it.
func (o *Orchestrator) EnqueueExport(req Request) (*models.ExportJob, error) {
	job, err := o.builder.FromRequest(req)
	if err != nil {
		return nil, err
	}
	return o.Enqueue(job)
}

// EnqueueFromModel snapshots live editor state into a job and queues it.
func (o *Orchestrator) EnqueueFromModel(state State, media MediaState, req Request) (*models.ExportJob, error) {
	job, err := o.builder.FromModel(state, media, req)
	if err != nil {
		return nil, err
	}
	return o.Enqueue(job)
}

// ExportTimeline snapshots, queues and waits for one export.
func (o *Orchestrator) ExportTimeline(ctx context.Context, state State, media MediaState, req Request) (*models.ExportResult, error) {
	job, err := o.EnqueueFromModel(state, media, req)
	if err != nil {
		return nil, err
	}
	return o.AwaitJob(ctx, job.ID)
}

// Enqueue adds a built job to the queue and starts it if the queue is idle.
// The orchestrator takes ownership of job.
func (o *Orchestrator) Enqueue(job *models.ExportJob) (*models.ExportJob, error) {
	if job == nil {
		return nil, errors.New("export: nil job")
	}

	o.mu.Lock()
	if job.ID == "" || o.jobs[job.ID] != nil {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = o.now()
	}
	job.Status = models.JobStatusPending
	job.Stage = models.StageQueued
	job.Progress = 0
	job.ETASeconds = nil
	o.jobs[job.ID] = job
	o.order = append(o.order, job.ID)
	o.done[job.ID] = make(chan struct{})
	o.pushLocked(job)
	o.startNextLocked()
	snap := job.Clone()
	o.mu.Unlock()

	metrics.RecordExportJobCreated(snap.Options.Format)
	o.logger.LogJobEvent(snap.ID, "enqueued", string(snap.Status), map[string]interface{}{
		"title":  snap.Metadata.Title,
		"clips":  snap.Summary.ClipCount,
		"format": snap.Options.Format,
	})
	return snap, nil
}

// AwaitJob blocks until the job is terminal or ctx ends. A cancelled job
// returns an error for which IsCancelled is true.
func (o *Orchestrator) AwaitJob(ctx context.Context, id string) (*models.ExportResult, error) {
	o.mu.Lock()
	done, ok := o.done[id]
	o.mu.Unlock()
	if !ok {
		return nil, ErrJobNotFound
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	job := o.jobs[id]
	if job.Status == models.JobStatusCompleted && job.Result != nil {
		return job.Clone().Result, nil
	}
	if je := o.errs[id]; je != nil {
		return nil, je
	}
	return nil, fmt.Errorf("export job %s ended as %s", id, job.Status)
}

// Pause stops new jobs from starting. A running job finishes normally.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = true
	o.logger.Info("Export queue paused")
}

// Resume lets queued jobs start again.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
	o.logger.Info("Export queue resumed")
	o.startNextLocked()
}

// Paused reports whether the queue is paused.
func (o *Orchestrator) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// CancelJob cancels a pending job immediately, or flags the running job so
// it stops at its next stage boundary.
func (o *Orchestrator) CancelJob(id string) (*models.ExportJob, error) {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return nil, ErrJobNotFound
	}

	var done chan struct{}
	switch job.Status {
	case models.JobStatusPending:
		now := o.now()
		je := cancelled(models.StageQueued, "Export cancelled before it started")
		job.Status = models.JobStatusCancelled
		job.Stage = models.StageCancelled
		job.FinishedAt = &now
		job.Error = je.Info()
		o.errs[id] = je
		done = o.done[id]
	case models.JobStatusProcessing:
		o.cancelReq[id] = true
		job.Status = models.JobStatusCancelling
		job.Stage = models.StageCancelling
	case models.JobStatusCancelling:
	default:
		o.mu.Unlock()
		return nil, ErrJobFinished
	}
	o.pushLocked(job)
	snap := job.Clone()
	o.mu.Unlock()

	if done != nil {
		close(done)
		metrics.RecordExportJobFinished(string(snap.Status), 0, snap.Options.Resolution, snap.Options.Codec)
	}
	o.logger.LogJobEvent(id, "cancel_requested", string(snap.Status), nil)
	return snap, nil
}

// RetryJob queues a fresh copy of a failed or cancelled job.
func (o *Orchestrator) RetryJob(id string) (*models.ExportJob, error) {
	o.mu.Lock()
	prev, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return nil, ErrJobNotFound
	}
	if prev.Status != models.JobStatusFailed && prev.Status != models.JobStatusCancelled {
		o.mu.Unlock()
		return nil, ErrNotRetryable
	}
	next := o.builder.Retry(prev)
	o.mu.Unlock()

	return o.Enqueue(next)
}

// Jobs returns copies of all jobs in creation order.
func (o *Orchestrator) Jobs() []*models.ExportJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*models.ExportJob, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.jobs[id].Clone())
	}
	return out
}

// Job returns a copy of one job.
func (o *Orchestrator) Job(id string) (*models.ExportJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// Close interrupts the running job through its context, waits for it to
// finish and flushes pending deliveries.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.cancel()
		o.wg.Wait()
		close(o.quit)
		<-o.dispatchDone
	})
}

// startNextLocked starts the oldest pending job if nothing is running.
func (o *Orchestrator) startNextLocked() {
	pending := 0
	for _, id := range o.order {
		if o.jobs[id].Status == models.JobStatusPending {
			pending++
		}
	}
	defer func() {
		active := 0
		if o.activeID != "" {
			active = 1
		}
		metrics.UpdateExportQueue(active, pending)
	}()

	if o.paused || o.activeID != "" || o.ctx.Err() != nil {
		return
	}
	for _, id := range o.order {
		job := o.jobs[id]
		if job.Status != models.JobStatusPending {
			continue
		}
		now := o.now()
		job.Status = models.JobStatusProcessing
		job.Stage = models.StagePreparing
		job.StartedAt = &now
		o.activeID = id
		pending--
		o.pushLocked(job)

		o.wg.Add(1)
		go o.run(id, job.Clone())
		return
	}
}

func (o *Orchestrator) run(id string, job *models.ExportJob) {
	defer o.wg.Done()
	o.logger.WithJobID(id).Info("Export started")

	var (
		result *models.ExportResult
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fatal(o.currentStage(id), ErrPanicRecovery, "Export failed unexpectedly", fmt.Errorf("%v", r))
			}
		}()
		result, err = o.execute(o.ctx, job)
	}()
	o.finish(id, result, err)
}

func (o *Orchestrator) finish(id string, result *models.ExportResult, runErr error) {
	o.mu.Lock()
	job := o.jobs[id]
	now := o.now()
	job.FinishedAt = &now
	delete(o.cancelReq, id)

	// A cancel that lands during the last stage has no boundary left to
	// stop at. The file is already written, so report it and cancel anyway.
	if runErr == nil && job.Status == models.JobStatusCancelling {
		job.OutputPath = result.OutputPath
		o.appendLogLocked(job, models.StageValidating, models.LogLevelWarn,
			"Cancel requested after the export was written to "+result.OutputPath)
		runErr = cancelled(models.StageValidating, "Export cancelled after the file was written")
	}

	var je *JobError
	switch {
	case runErr == nil:
		job.Status = models.JobStatusCompleted
		job.Stage = models.StageCompleted
		job.Progress = 100
		job.ETASeconds = EstimateETA(0, 100)
		result.Logs = append([]models.JobLogEntry(nil), job.Logs...)
		job.Result = result
		job.OutputPath = result.OutputPath
	default:
		je = asJobError(job.Stage, runErr)
		// A requested cancel wins over whatever the interrupted stage reported.
		if job.Status == models.JobStatusCancelling && je.Kind != KindCancelled {
			o.appendLogLocked(job, job.Stage, models.LogLevelWarn, je.Error())
			je = cancelled(je.Stage, "")
		}
		if je.Kind == KindCancelled {
			job.Status = models.JobStatusCancelled
			job.Stage = models.StageCancelled
		} else {
			job.Status = models.JobStatusFailed
			job.Stage = models.StageFailed
		}
		job.ETASeconds = nil
		job.Error = je.Info()
		o.errs[id] = je
	}
	o.activeID = ""
	o.pushLocked(job)
	snap := job.Clone()
	done := o.done[id]
	o.startNextLocked()
	o.mu.Unlock()

	var elapsed float64
	if snap.StartedAt != nil {
		elapsed = now.Sub(*snap.StartedAt).Seconds()
	}
	metrics.RecordExportJobFinished(string(snap.Status), elapsed, snap.Options.Resolution, snap.Options.Codec)

	log := o.logger.WithJobID(id)
	switch {
	case je == nil:
		metrics.RecordExportOutput(snap.Result.SizeBytes, snap.Result.DurationSeconds, snap.Result.EncodeFallback)
		log.Infof("Export completed: %s", snap.OutputPath)
	case je.Kind == KindCancelled:
		log.Info("Export cancelled")
	default:
		metrics.RecordError("export", string(je.Stage))
		log.ErrorWithErr("Export failed", je)
	}
	o.logger.LogJobEvent(id, "finished", string(snap.Status), map[string]interface{}{"elapsed_seconds": elapsed})

	close(done)
}

// currentStage reads a job's stage for error attribution.
func (o *Orchestrator) currentStage(id string) models.Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.jobs[id].Stage
}

// checkpoint runs before every stage and turns a pending cancel request
// or a closed orchestrator into a cancellation.
func (o *Orchestrator) checkpoint(ctx context.Context, id string, next models.Stage) error {
	o.mu.Lock()
	requested := o.cancelReq[id]
	o.mu.Unlock()
	if requested {
		return cancelled(next, "")
	}
	if ctx.Err() != nil {
		return cancelled(next, "Export interrupted")
	}
	return nil
}

// enterStage records a stage transition. Progress jumps to the stage's
// base offset and never moves backwards.
func (o *Orchestrator) enterStage(id string, stage models.Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job := o.jobs[id]
	if job.Status == models.JobStatusProcessing {
		job.Stage = stage
	}
	o.setProgressLocked(job, OverallPercent(stage, 0))
	o.appendLogLocked(job, stage, models.LogLevelInfo, fmt.Sprintf("Stage %s started", stage))
	o.pushLocked(job)
}

// reportProgress maps a stage fraction onto the job and publishes it if
// the percentage moved.
func (o *Orchestrator) reportProgress(id string, stage models.Stage, fraction float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job := o.jobs[id]
	if job.Status.Terminal() {
		return
	}
	if !o.setProgressLocked(job, OverallPercent(stage, fraction)) {
		return
	}
	o.logger.LogStageProgress(id, string(stage), job.Progress, job.ETASeconds)
	o.pushProgressLocked(job)
}

// setProgressLocked applies a monotonic percent and refreshes the ETA.
func (o *Orchestrator) setProgressLocked(job *models.ExportJob, percent int) bool {
	if percent < job.Progress {
		percent = job.Progress
	}
	changed := percent != job.Progress
	job.Progress = percent
	var elapsed time.Duration
	if job.StartedAt != nil {
		elapsed = o.now().Sub(*job.StartedAt)
	}
	job.ETASeconds = EstimateETA(elapsed, percent)
	return changed
}

func (o *Orchestrator) appendLog(id string, stage models.Stage, level models.LogLevel, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appendLogLocked(o.jobs[id], stage, level, message)
}

// appendLogLocked adds a line to the job's ring, dropping the oldest entry
// once the ring is full.
func (o *Orchestrator) appendLogLocked(job *models.ExportJob, stage models.Stage, level models.LogLevel, message string) {
	entry := models.JobLogEntry{Time: o.now(), Level: level, Stage: stage, Message: message}
	if n := o.cfg.LogRingSize; len(job.Logs) >= n {
		copy(job.Logs, job.Logs[len(job.Logs)-n+1:])
		job.Logs = job.Logs[:n-1]
	}
	job.Logs = append(job.Logs, entry)

	log := o.logger.WithJobID(job.ID).WithStage(string(stage))
	switch level {
	case models.LogLevelError:
		log.Error(message)
	case models.LogLevelWarn:
		log.Warn(message)
	case models.LogLevelDebug:
		log.Debug(message)
	default:
		log.Info(message)
	}
}

func (o *Orchestrator) setOutputPath(id, path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job := o.jobs[id]
	job.OutputPath = path
	o.pushLocked(job)
}

// pushLocked queues a delivery to observers and listeners. Called with
// o.mu held, so deliveries keep the order of the state changes that
// produced them.
func (o *Orchestrator) pushLocked(job *models.ExportJob) {
	o.enqueueLocked(update{job: job.Clone(), event: progressEvent(job)})
}

// pushProgressLocked queues a progress tick for listeners only. Observers
// track job state and skip the copy.
func (o *Orchestrator) pushProgressLocked(job *models.ExportJob) {
	o.enqueueLocked(update{event: progressEvent(job)})
}

func progressEvent(job *models.ExportJob) models.ProgressEvent {
	e := models.ProgressEvent{
		JobID:   job.ID,
		Status:  job.Status,
		Stage:   job.Stage,
		Percent: job.Progress,
	}
	if job.ETASeconds != nil {
		eta := *job.ETASeconds
		e.ETASeconds = &eta
	}
	return e
}

func (o *Orchestrator) enqueueLocked(u update) {
	o.queueMu.Lock()
	o.pending = append(o.pending, u)
	o.queueMu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// dispatch delivers updates to observers and listeners from one goroutine.
func (o *Orchestrator) dispatch() {
	defer close(o.dispatchDone)
	for {
		select {
		case <-o.wake:
			o.deliver()
		case <-o.quit:
			o.deliver()
			return
		}
	}
}

func (o *Orchestrator) deliver() {
	o.queueMu.Lock()
	batch := o.pending
	o.pending = nil
	o.queueMu.Unlock()

	for _, u := range batch {
		o.listenMu.RLock()
		observers := append([]Observer(nil), o.observers...)
		listeners := make([]ProgressListener, 0, len(o.listeners)+1)
		for _, fn := range o.listeners {
			listeners = append(listeners, fn)
		}
		if o.legacy != nil {
			listeners = append(listeners, o.legacy)
		}
		o.listenMu.RUnlock()

		if u.job != nil {
			for _, obs := range observers {
				obs.JobUpdated(u.job)
			}
		}
		for _, fn := range listeners {
			fn(u.event)
		}
	}
}
