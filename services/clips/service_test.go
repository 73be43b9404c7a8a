package clips

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nijaru/autoclip/errors"
	"github.com/nijaru/autoclip/models"
)

func upload(name string) Upload {
	return Upload{Filename: name, Size: 5, Body: strings.NewReader("video")}
}

func waitTerminal(t *testing.T, r *recordingReporter) models.Event {
	t.Helper()
	select {
	case ev := <-r.terminal:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
		return models.Event{}
	}
}

func TestProcessCreatesClipPerSegment(t *testing.T) {
	h := newHarness(segments(3), nil)

	job, err := h.svc.Process(context.Background(), upload("talk.mp4"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if job.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if len(job.Clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(job.Clips))
	}

	events := h.reporter.list()
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	if events[0].Kind != models.EventProcessingStart {
		t.Errorf("expected processing_start first, got %s", events[0].Kind)
	}

	progress := h.reporter.ofKind(models.EventClipProgress)
	for i, ev := range progress {
		data := ev.Data.(models.ClipProgressData)
		if data.Current != i+1 || data.Total != 3 {
			t.Errorf("event %d: expected %d/3, got %d/%d", i, i+1, data.Current, data.Total)
		}
		if !data.ClipCreated || data.Clip == nil {
			t.Errorf("event %d: expected a created clip", i)
		}
	}

	final := events[len(events)-1]
	if final.Kind != models.EventClipComplete {
		t.Fatalf("expected clip_complete last, got %s", final.Kind)
	}
	complete := final.Data.(models.ClipCompleteData)
	for i, clip := range complete.Clips {
		if clip.Filename != job.Clips[i].Filename {
			t.Errorf("clip %d: expected %s, got %s", i, job.Clips[i].Filename, clip.Filename)
		}
		if clip.URL != "/clips/"+clip.Filename {
			t.Errorf("clip %d: unexpected url %s", i, clip.URL)
		}
	}
	if complete.Transcription == nil || complete.Transcription.Language != "en" {
		t.Error("expected transcription in clip_complete")
	}

	stored, err := h.repo.Find(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if stored.Status != models.StatusCompleted {
		t.Errorf("expected stored status completed, got %s", stored.Status)
	}
	if got := len(h.repo.clips[job.ID]); got != 3 {
		t.Errorf("expected 3 stored clips, got %d", got)
	}

	cleaned := h.janitor.paths()
	if len(cleaned) != 2 || cleaned[0] != job.SourcePath || cleaned[1] != "/uploads/audio.wav" {
		t.Errorf("unexpected cleanup paths %v", cleaned)
	}

	entries := h.journal.list()
	if entries[len(entries)-2] != "cleanup" {
		t.Errorf("expected cleanup before clip_complete, got %v", entries)
	}
}

func TestProcessSilentVideo(t *testing.T) {
	h := newHarness(nil, nil)

	job, err := h.svc.Process(context.Background(), upload("silent.mp4"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if job.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if job.Clips == nil || len(job.Clips) != 0 {
		t.Errorf("expected empty non-nil clips, got %#v", job.Clips)
	}
	if n := len(h.reporter.ofKind(models.EventClipProgress)); n != 0 {
		t.Errorf("expected no progress events, got %d", n)
	}

	complete := h.reporter.ofKind(models.EventClipComplete)
	if len(complete) != 1 {
		t.Fatalf("expected one clip_complete, got %d", len(complete))
	}
	if clips := complete[0].Data.(models.ClipCompleteData).Clips; clips == nil {
		t.Error("expected clips to be an empty list, not nil")
	}
}

func TestProcessSkipsFailedClip(t *testing.T) {
	h := newHarness(segments(3), nil)
	h.transcoder.failCuts[2] = true

	job, err := h.svc.Process(context.Background(), upload("talk.mp4"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if job.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if len(job.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(job.Clips))
	}
	if job.Clips[0].Index != 0 || job.Clips[1].Index != 2 {
		t.Errorf("unexpected clip indexes %d, %d", job.Clips[0].Index, job.Clips[1].Index)
	}

	progress := h.reporter.ofKind(models.EventClipProgress)
	if len(progress) != 3 {
		t.Fatalf("expected 3 progress events, got %d", len(progress))
	}
	failed := progress[1].Data.(models.ClipProgressData)
	if failed.ClipCreated || failed.Clip != nil || failed.Error == "" {
		t.Errorf("expected second event to report failure, got %+v", failed)
	}
	if failed.Text != "segment 2" {
		t.Errorf("expected segment text, got %q", failed.Text)
	}
}

func TestProcessParallelKeepsOrder(t *testing.T) {
	h := newHarness(segments(6), func(cfg *Config, _ *Deps) {
		cfg.ClipWorkers = 4
	})
	// Later segments finish first.
	h.transcoder.cutDelay = func(start float64) time.Duration {
		return time.Duration(12-start) * 3 * time.Millisecond
	}

	job, err := h.svc.Process(context.Background(), upload("talk.mp4"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	progress := h.reporter.ofKind(models.EventClipProgress)
	if len(progress) != 6 {
		t.Fatalf("expected 6 progress events, got %d", len(progress))
	}
	for i, ev := range progress {
		if cur := ev.Data.(models.ClipProgressData).Current; cur != i+1 {
			t.Errorf("event %d: expected current %d, got %d", i, i+1, cur)
		}
	}
	for i, clip := range job.Clips {
		if clip.Index != i {
			t.Errorf("clip %d out of order: index %d", i, clip.Index)
		}
	}
}

func TestProcessMirrorsClips(t *testing.T) {
	h := newHarness(segments(2), func(_ *Config, deps *Deps) {
		deps.Mirror = &fakeMirror{}
	})

	job, err := h.svc.Process(context.Background(), upload("talk.mp4"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	for _, clip := range job.Clips {
		if !strings.HasPrefix(clip.RemoteURL, "https://cdn.example.com/"+job.ID+"/") {
			t.Errorf("unexpected remote url %q", clip.RemoteURL)
		}
	}
}

func TestProcessMirrorFailureKeepsClip(t *testing.T) {
	h := newHarness(segments(2), func(_ *Config, deps *Deps) {
		deps.Mirror = &fakeMirror{err: fmt.Errorf("bucket unreachable")}
	})

	job, err := h.svc.Process(context.Background(), upload("talk.mp4"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(job.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(job.Clips))
	}
	if job.Clips[0].RemoteURL != "" {
		t.Errorf("expected no remote url, got %q", job.Clips[0].RemoteURL)
	}
}

func TestProcessStageFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*harness)
		stage string
	}{
		{
			name:  "extraction",
			setup: func(h *harness) { h.transcoder.extractErr = fmt.Errorf("no audio stream") },
			stage: stageExtracting,
		},
		{
			name:  "transcription",
			setup: func(h *harness) { h.transcriber.err = fmt.Errorf("model crashed") },
			stage: stageTranscribing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(segments(2), nil)
			tt.setup(h)

			job, err := h.svc.Process(context.Background(), upload("talk.mp4"))
			if err == nil {
				t.Fatal("expected Process() to fail")
			}
			if errors.Code(err) != http.StatusInternalServerError {
				t.Errorf("expected 500, got %d", errors.Code(err))
			}
			if job.Status != models.StatusFailed {
				t.Errorf("expected failed, got %s", job.Status)
			}
			if job.Error == "" {
				t.Error("expected job error to be set")
			}

			failed := h.reporter.ofKind(models.EventProcessingFailed)
			if len(failed) != 1 {
				t.Fatalf("expected one processing_failed, got %d", len(failed))
			}
			if stage := failed[0].Data.(models.FailedData).Stage; stage != tt.stage {
				t.Errorf("expected stage %s, got %s", tt.stage, stage)
			}
			if n := len(h.reporter.ofKind(models.EventClipComplete)); n != 0 {
				t.Errorf("expected no clip_complete, got %d", n)
			}
			if len(h.janitor.paths()) == 0 {
				t.Error("expected cleanup to run")
			}

			stored, _ := h.repo.Find(context.Background(), job.ID)
			if stored.Status != models.StatusFailed {
				t.Errorf("expected stored status failed, got %s", stored.Status)
			}
		})
	}
}

func TestRejectsDisallowedExtension(t *testing.T) {
	h := newHarness(segments(1), nil)

	_, err := h.svc.Submit(context.Background(), upload("notes.txt"))
	if !errors.IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if h.transcoder.checks != 0 || h.files.saves != 0 || h.repo.count() != 0 {
		t.Error("expected no adapter calls for a rejected upload")
	}
}

func TestUnavailableToolsPersistNothing(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*harness)
	}{
		{
			name:  "transcoder",
			setup: func(h *harness) { h.transcoder.checkErr = errors.Unavailable("op", nil, "ffmpeg missing") },
		},
		{
			name:  "transcriber",
			setup: func(h *harness) { h.transcriber.checkErr = errors.Unavailable("op", nil, "model server down") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(segments(1), nil)
			tt.setup(h)

			_, err := h.svc.Submit(context.Background(), upload("talk.mp4"))
			if !errors.IsUnavailable(err) {
				t.Fatalf("expected unavailable, got %v", err)
			}
			if h.files.saves != 0 || h.repo.count() != 0 {
				t.Error("expected nothing to be persisted")
			}
			if len(h.reporter.list()) != 0 {
				t.Error("expected no events")
			}
		})
	}
}

func TestSubmitRunsInBackground(t *testing.T) {
	h := newHarness(segments(2), nil)
	h.svc.Start()
	defer h.svc.Close()

	job, err := h.svc.Submit(context.Background(), upload("talk.mp4"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if job.Status != models.StatusCreated {
		t.Errorf("expected created, got %s", job.Status)
	}

	ev := waitTerminal(t, h.reporter)
	if ev.Kind != models.EventClipComplete || ev.JobID != job.ID {
		t.Fatalf("unexpected terminal event %+v", ev)
	}

	stored, err := h.svc.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status != models.StatusCompleted {
		t.Errorf("expected completed, got %s", stored.Status)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	h := newHarness(segments(1), func(cfg *Config, _ *Deps) {
		cfg.QueueSize = 1
	})

	if _, err := h.svc.Submit(context.Background(), upload("one.mp4")); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	_, err := h.svc.Submit(context.Background(), upload("two.mp4"))
	if !errors.IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}

	cleaned := h.janitor.paths()
	if len(cleaned) != 1 || !strings.HasSuffix(cleaned[0], ".mp4") {
		t.Errorf("expected rejected upload to be removed, got %v", cleaned)
	}
}

func TestCancelRunningJob(t *testing.T) {
	h := newHarness(segments(2), nil)
	h.transcoder.blockExtract = true
	h.transcoder.started = make(chan struct{})
	h.svc.Start()
	defer h.svc.Close()

	job, err := h.svc.Submit(context.Background(), upload("talk.mp4"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case <-h.transcoder.started:
	case <-time.After(5 * time.Second):
		t.Fatal("extraction never started")
	}

	if err := h.svc.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	ev := waitTerminal(t, h.reporter)
	if ev.Kind != models.EventProcessingFailed {
		t.Fatalf("expected processing_failed, got %s", ev.Kind)
	}
	if stage := ev.Data.(models.FailedData).Stage; stage != stageCancelled {
		t.Errorf("expected stage cancelled, got %s", stage)
	}

	stored, _ := h.svc.Get(context.Background(), job.ID)
	if stored.Status != models.StatusCancelled {
		t.Errorf("expected cancelled, got %s", stored.Status)
	}
	if h.transcoder.cuts != 0 {
		t.Errorf("expected no clips to be cut, got %d", h.transcoder.cuts)
	}
}

func TestCancelFinishedJob(t *testing.T) {
	h := newHarness(segments(1), nil)

	job, err := h.svc.Process(context.Background(), upload("talk.mp4"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	err = h.svc.Cancel(context.Background(), job.ID)
	if errors.Code(err) != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	h := newHarness(nil, nil)

	if _, err := h.svc.Get(context.Background(), "missing"); !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := h.svc.Get(context.Background(), ""); !errors.IsInvalidInput(err) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if err := h.svc.Cancel(context.Background(), "missing"); !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRecoverInterrupted(t *testing.T) {
	h := newHarness(nil, nil)
	ctx := context.Background()

	for id, status := range map[string]models.Status{
		"a": models.StatusTranscribing,
		"b": models.StatusCompleted,
		"c": models.StatusCreated,
	} {
		_ = h.repo.Create(ctx, &models.Job{ID: id, Status: status})
	}

	n, err := h.svc.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("RecoverInterrupted() error = %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 interrupted jobs, got %d", n)
	}

	a, _ := h.repo.Find(ctx, "a")
	if a.Status != models.StatusFailed || a.Error != interruptedMessage {
		t.Errorf("unexpected job a: %s %q", a.Status, a.Error)
	}
	b, _ := h.repo.Find(ctx, "b")
	if b.Status != models.StatusCompleted {
		t.Errorf("completed job should be untouched, got %s", b.Status)
	}
}

func TestSweepAfterJob(t *testing.T) {
	h := newHarness(segments(1), func(cfg *Config, _ *Deps) {
		cfg.SweepAfterJob = true
	})

	if _, err := h.svc.Process(context.Background(), upload("talk.mp4")); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if h.janitor.sweeps != 2 {
		t.Errorf("expected 2 sweeps, got %d", h.janitor.sweeps)
	}
}

func TestCloseFailsQueuedJobs(t *testing.T) {
	h := newHarness(segments(1), nil)
	h.transcoder.blockExtract = true
	h.transcoder.started = make(chan struct{})
	h.svc.Start()

	running, err := h.svc.Submit(context.Background(), upload("first.mp4"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	select {
	case <-h.transcoder.started:
	case <-time.After(5 * time.Second):
		t.Fatal("extraction never started")
	}
	waiting, err := h.svc.Submit(context.Background(), upload("second.mp4"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	h.svc.Close()

	for _, id := range []string{running.ID, waiting.ID} {
		stored, err := h.svc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		if stored.Status != models.StatusFailed {
			t.Errorf("%s: expected failed, got %s", id, stored.Status)
		}
		if stored.Error != ErrShutdown.Error() {
			t.Errorf("%s: expected error %q, got %q", id, ErrShutdown.Error(), stored.Error)
		}
	}
	if got := len(h.reporter.ofKind(models.EventProcessingFailed)); got != 2 {
		t.Errorf("expected 2 processing_failed events, got %d", got)
	}

	cleaned := strings.Join(h.janitor.paths(), ",")
	if !strings.Contains(cleaned, "/uploads/"+waiting.ID+".mp4") {
		t.Errorf("expected queued upload to be cleaned, got %s", cleaned)
	}
	if h.svc.InUse("/uploads/" + waiting.ID + ".mp4") {
		t.Error("expected queued job to release its files")
	}
}

func TestInUseCoversRunningJob(t *testing.T) {
	h := newHarness(segments(1), nil)
	h.transcoder.blockExtract = true
	h.transcoder.started = make(chan struct{})
	h.svc.Start()
	defer h.svc.Close()

	job, err := h.svc.Submit(context.Background(), upload("talk.mp4"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	select {
	case <-h.transcoder.started:
	case <-time.After(5 * time.Second):
		t.Fatal("extraction never started")
	}

	tests := []struct {
		path string
		want bool
	}{
		{"/uploads/" + job.ID + ".mp4", true},
		{"/uploads/" + job.ID + ".wav", true},
		{"/uploads/" + job.ID + "_16k.wav", true},
		{"/uploads/other.mp4", false},
	}
	for _, tt := range tests {
		if got := h.svc.InUse(tt.path); got != tt.want {
			t.Errorf("InUse(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if err := h.svc.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	waitTerminal(t, h.reporter)
	if h.svc.InUse("/uploads/" + job.ID + ".mp4") {
		t.Error("expected finished job to release its files")
	}
}
