package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

type fakeTranscoder struct {
	mu sync.Mutex

	initErr   error
	mergeErr  error
	exportErr error
	// gate blocks Merge until closed or sent on.
	gate      chan struct{}
	started   chan string
	mergeLogs int

	merges   []models.MergeRequest
	encodes  int
	released []models.Artifact
}

func newFakeTranscoder() *fakeTranscoder {
	return &fakeTranscoder{started: make(chan string, 16)}
}

func (f *fakeTranscoder) Init(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initErr
}

func (f *fakeTranscoder) Merge(ctx context.Context, req models.MergeRequest, hooks models.StageHooks) (models.Artifact, error) {
	f.mu.Lock()
	f.merges = append(f.merges, req)
	n := len(f.merges)
	gate, mergeErr, logs := f.gate, f.mergeErr, f.mergeLogs
	f.mu.Unlock()

	clipID := ""
	if len(req.Clips) > 0 {
		clipID = req.Clips[0].ClipID
	}
	f.started <- clipID
	if gate != nil {
		<-gate
	}

	for i := 0; i < logs; i++ {
		hooks.Log(models.LogLevelDebug, fmt.Sprintf("frame batch %d", i))
	}
	hooks.Progress(0.25)
	hooks.Progress(0.5)
	hooks.Progress(0.4) // stale reports must not move progress back
	hooks.Progress(1)
	if mergeErr != nil {
		return models.Artifact{}, mergeErr
	}
	return models.Artifact{Path: fmt.Sprintf("/tmp/merged-%d.mp4", n), Size: 4096}, nil
}

func (f *fakeTranscoder) ExportVideo(ctx context.Context, in models.Artifact, outputName string, opts models.ExportOptions, hooks models.StageHooks) (models.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.encodes++
	if f.exportErr != nil {
		return models.Artifact{}, f.exportErr
	}
	hooks.Progress(0.5)
	return models.Artifact{Path: "/tmp/encoded-" + outputName, Size: 2048}, nil
}

func (f *fakeTranscoder) Release(a models.Artifact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, a)
}

func (f *fakeTranscoder) mergeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.merges)
}

func (f *fakeTranscoder) encodeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encodes
}

type fakeProber struct {
	duration float64
	err      error
}

func (p fakeProber) ProbeMedia(ctx context.Context, a models.Artifact) (models.ProbeResult, error) {
	if p.err != nil {
		return models.ProbeResult{}, p.err
	}
	return models.ProbeResult{Format: models.ProbeFormat{DurationSeconds: p.duration, Size: a.Size}}, nil
}

// gatedProber blocks in ProbeMedia until release is closed.
type gatedProber struct {
	duration float64
	entered  chan struct{}
	release  chan struct{}
}

func newGatedProber(duration float64) *gatedProber {
	return &gatedProber{duration: duration, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (p *gatedProber) ProbeMedia(ctx context.Context, a models.Artifact) (models.ProbeResult, error) {
	p.entered <- struct{}{}
	<-p.release
	return models.ProbeResult{Format: models.ProbeFormat{DurationSeconds: p.duration, Size: a.Size}}, nil
}

type fakePersistence struct {
	mu sync.Mutex

	free        uint64
	savePath    string
	declineSave bool
	resolveErr  error
	dropWrites  bool

	suggested []string
	written   map[string]models.Artifact
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{
		free:     10 << 30,
		savePath: "/exports/out.mp4",
		written:  make(map[string]models.Artifact),
	}
}

func (p *fakePersistence) ResolveSavePath(ctx context.Context, suggested string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suggested = append(p.suggested, suggested)
	if p.resolveErr != nil {
		return "", false, p.resolveErr
	}
	if p.declineSave {
		return "", false, nil
	}
	return p.savePath, true, nil
}

func (p *fakePersistence) FreeSpace(ctx context.Context, path string) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free, nil
}

func (p *fakePersistence) WriteFile(ctx context.Context, path string, a models.Artifact) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dropWrites {
		p.written[path] = a
	}
	return nil
}

func (p *fakePersistence) Stat(ctx context.Context, path string) (bool, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.written[path]
	return ok, a.Size, nil
}

func (p *fakePersistence) writtenArtifact(path string) (models.Artifact, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.written[path]
	return a, ok
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses map[string][]models.JobStatus
}

func (r *recordingObserver) JobUpdated(job *models.ExportJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statuses == nil {
		r.statuses = make(map[string][]models.JobStatus)
	}
	r.statuses[job.ID] = append(r.statuses[job.ID], job.Status)
}

func (r *recordingObserver) last(id string) models.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.statuses[id]
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

// eventLog collects progress events per job.
type eventLog struct {
	mu     sync.Mutex
	events map[string][]models.ProgressEvent
}

func (l *eventLog) listen(e models.ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.events == nil {
		l.events = make(map[string][]models.ProgressEvent)
	}
	l.events[e.JobID] = append(l.events[e.JobID], e)
}

func (l *eventLog) forJob(id string) []models.ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.ProgressEvent(nil), l.events[id]...)
}

type harness struct {
	orch        *Orchestrator
	transcoder  *fakeTranscoder
	persistence *fakePersistence
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	h := &harness{transcoder: newFakeTranscoder(), persistence: newFakePersistence()}
	deps := Deps{
		Transcoder:  h.transcoder,
		Persistence: h.persistence,
		Builder:     NewBuilder("Vedit", models.ExportOptions{}),
		Config:      DefaultConfig(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	orch, err := NewOrchestrator(deps)
	require.NoError(t, err)
	h.orch = orch
	t.Cleanup(func() {
		h.transcoder.mu.Lock()
		gate := h.transcoder.gate
		h.transcoder.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			default:
				close(gate)
			}
		}
		orch.Close()
	})
	return h
}

// simpleRequest is one 5 second clip backed by a file on disk.
func simpleRequest(title string) Request {
	return Request{
		Metadata: models.ExportMetadata{Title: title},
		Clips: []models.Clip{{
			ID: "clip-" + title, TrackID: "video-1", MediaFileID: "media-1",
			MediaType: models.TrackTypeVideo, Start: 0, End: 5, Duration: 5,
			SourceOut: 5, EndTrim: 5, Volume: 100,
		}},
		Media: []models.MediaFile{{ID: "media-1", Name: "take.mp4", Path: "/media/take.mp4"}},
	}
}

func await(t *testing.T, o *Orchestrator, id string) (*models.ExportResult, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := o.AwaitJob(ctx, id)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "job %s did not finish", id)
	return res, err
}

func waitStarted(t *testing.T, f *fakeTranscoder) string {
	t.Helper()
	select {
	case id := <-f.started:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("merge never started")
		return ""
	}
}
