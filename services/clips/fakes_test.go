package clips

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/nijaru/autoclip/config"
	"github.com/nijaru/autoclip/errors"
	"github.com/nijaru/autoclip/models"
	"github.com/nijaru/autoclip/validation"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// journal records the order of side effects across fakes.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type memRepo struct {
	mu          sync.Mutex
	jobs        map[string]models.Job
	clips       map[string][]models.Clip
	interrupted []models.Status
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: map[string]models.Job{}, clips: map[string][]models.Clip{}}
}

func (r *memRepo) Create(_ context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) Update(_ context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return errors.NotFound("memRepo.Update", nil, "Job not found")
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) AddClip(_ context.Context, jobID string, clip models.Clip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips[jobID] = append(r.clips[jobID], clip)
	return nil
}

func (r *memRepo) Find(_ context.Context, id string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.NotFound("memRepo.Find", nil, "Job not found")
	}
	return &job, nil
}

func (r *memRepo) MarkInterrupted(_ context.Context, statuses []models.Status, message string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interrupted = statuses
	var n int64
	for id, job := range r.jobs {
		for _, s := range statuses {
			if job.Status == s {
				job.Status = models.StatusFailed
				job.Error = message
				r.jobs[id] = job
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type fakeTranscoder struct {
	mu         sync.Mutex
	checkErr   error
	extractErr error
	failCuts   map[float64]bool
	cutDelay   func(start float64) time.Duration
	checks     int
	cuts       int
	// blockExtract makes ExtractAudio wait for ctx; started is closed on entry.
	blockExtract bool
	started      chan struct{}
}

func (f *fakeTranscoder) Check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.checkErr
}

func (f *fakeTranscoder) ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error) {
	if f.blockExtract {
		close(f.started)
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.extractErr != nil {
		return "", f.extractErr
	}
	return filepath.Join(outDir, "audio.wav"), nil
}

func (f *fakeTranscoder) CutClip(ctx context.Context, videoPath string, start, end float64, outDir string) (string, error) {
	if f.cutDelay != nil {
		time.Sleep(f.cutDelay(start))
	}
	f.mu.Lock()
	f.cuts++
	f.mu.Unlock()
	if f.failCuts[start] {
		return "", fmt.Errorf("cut failed at %.2f", start)
	}
	return filepath.Join(outDir, fmt.Sprintf("clip_%03d.mp4", int(start*10))), nil
}

type fakeTranscriber struct {
	result   *models.TranscriptionResult
	err      error
	checkErr error
}

func (f *fakeTranscriber) Check(context.Context) error { return f.checkErr }

func (f *fakeTranscriber) Transcribe(context.Context, string) (*models.TranscriptionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type recordingReporter struct {
	mu       sync.Mutex
	events   []models.Event
	terminal chan models.Event
	journal  *journal
}

func newRecordingReporter(j *journal) *recordingReporter {
	return &recordingReporter{terminal: make(chan models.Event, 16), journal: j}
}

func (r *recordingReporter) Emit(_ context.Context, jobID string, kind models.EventKind, data any) models.Event {
	r.mu.Lock()
	ev := models.Event{Kind: kind, JobID: jobID, Seq: uint64(len(r.events) + 1), Timestamp: time.Now(), Data: data}
	r.events = append(r.events, ev)
	r.mu.Unlock()

	if r.journal != nil {
		r.journal.add("event:%s", kind)
	}
	if ev.Terminal() {
		r.terminal <- ev
	}
	return ev
}

func (r *recordingReporter) list() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

func (r *recordingReporter) ofKind(kind models.EventKind) []models.Event {
	var out []models.Event
	for _, ev := range r.list() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type fakeFiles struct {
	mu    sync.Mutex
	saves int
}

func (f *fakeFiles) SaveUpload(jobID, filename string, r io.Reader, maxSize int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return filepath.Join("/uploads", jobID+filepath.Ext(filename)), nil
}

type fakeJanitor struct {
	mu      sync.Mutex
	cleaned []string
	sweeps  int
	journal *journal
}

func (f *fakeJanitor) CleanupJob(paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		if p != "" {
			f.cleaned = append(f.cleaned, p)
		}
	}
	if f.journal != nil {
		f.journal.add("cleanup")
	}
}

func (f *fakeJanitor) Sweep([]string, time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 0
}

func (f *fakeJanitor) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleaned...)
}

type fakeMirror struct {
	err error
}

func (f *fakeMirror) UploadClip(_ context.Context, jobID, clipPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example.com/" + jobID + "/" + filepath.Base(clipPath), nil
}

type harness struct {
	svc         *Orchestrator
	repo        *memRepo
	transcoder  *fakeTranscoder
	transcriber *fakeTranscriber
	reporter    *recordingReporter
	files       *fakeFiles
	janitor     *fakeJanitor
	journal     *journal
}

func segments(n int) []models.Segment {
	segs := make([]models.Segment, n)
	for i := range segs {
		start := float64(i) * 2
		segs[i] = models.Segment{StartTime: start, EndTime: start + 1.5, Text: fmt.Sprintf("segment %d", i+1)}
	}
	return segs
}

func newHarness(segs []models.Segment, tweak func(*Config, *Deps)) *harness {
	j := &journal{}
	h := &harness{
		repo:       newMemRepo(),
		transcoder: &fakeTranscoder{failCuts: map[float64]bool{}},
		transcriber: &fakeTranscriber{result: &models.TranscriptionResult{
			Language: "en",
			Duration: 10,
			Segments: segs,
		}},
		reporter: newRecordingReporter(j),
		files:    &fakeFiles{},
		janitor:  &fakeJanitor{journal: j},
		journal:  j,
	}

	appCfg := &config.Config{Media: config.MediaConfig{
		AllowedExtensions: []string{".mp4", ".mov"},
		MaxUploadSize:     1 << 20,
	}}

	cfg := Config{
		UploadDir:      "/uploads",
		ClipsDir:       "/clips",
		MaxUploadSize:  1 << 20,
		WorkerCount:    1,
		QueueSize:      4,
		ClipWorkers:    1,
		ProcessTimeout: 5 * time.Second,
	}
	deps := Deps{
		Repo:        h.repo,
		Transcoder:  h.transcoder,
		Transcriber: h.transcriber,
		Reporter:    h.reporter,
		Files:       h.files,
		Janitor:     h.janitor,
		Validator:   validation.NewValidator(appCfg),
		Logger:      quietLogger(),
	}
	if tweak != nil {
		tweak(&cfg, &deps)
	}

	h.svc = NewService(deps, cfg)
	return h
}
