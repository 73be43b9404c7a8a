package clips

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/nijaru/autoclip/models"
	"github.com/nijaru/autoclip/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	stageExtracting   = "extracting"
	stageTranscribing = "transcribing"
	stageClipping     = "clipping"
	stageCancelled    = "cancelled"
)

// stageError records which step of the pipeline a job failed in.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.stage, e.err)
}

func (e *stageError) Unwrap() error {
	return e.err
}

// run drives one job from created to a terminal state. Exactly one
// terminal event is emitted, after the job's temporary files are removed.
func (s *Orchestrator) run(ctx context.Context, job *models.Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ProcessTimeout)
	defer cancel()

	logger := s.logger.WithField("job_id", job.ID)
	detached := context.WithoutCancel(ctx)

	s.reporter.Emit(detached, job.ID, models.EventProcessingStart, models.StartData{
		Filename: job.Filename,
	})

	err := s.execute(ctx, job, logger)

	s.janitor.CleanupJob(job.SourcePath, job.AudioPath)
	s.release(job.ID)
	if s.config.SweepAfterJob {
		s.sweep()
	}

	if err != nil {
		return s.finishFailed(ctx, job, err, logger)
	}
	return s.finishCompleted(ctx, job, logger)
}

func (s *Orchestrator) execute(ctx context.Context, job *models.Job, logger *logrus.Entry) error {
	if err := s.enter(ctx, job, models.StatusExtracting, stageExtracting); err != nil {
		return err
	}
	audioPath, err := s.transcoder.ExtractAudio(ctx, job.SourcePath, s.config.UploadDir)
	if err != nil {
		return &stageError{stage: stageExtracting, err: err}
	}
	job.AudioPath = audioPath

	if err := s.enter(ctx, job, models.StatusTranscribing, stageTranscribing); err != nil {
		return err
	}
	result, err := s.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return &stageError{stage: stageTranscribing, err: err}
	}
	job.Transcription = result
	logger.WithField("segments", len(result.Segments)).Info("Transcription finished")

	if err := s.enter(ctx, job, models.StatusClipping, stageClipping); err != nil {
		return err
	}
	job.Clips = s.cutClips(ctx, job, result.Segments, logger)

	if err := ctx.Err(); err != nil {
		return &stageError{stage: stageClipping, err: err}
	}
	return nil
}

// enter moves the job into the next stage unless it has been stopped.
func (s *Orchestrator) enter(ctx context.Context, job *models.Job, to models.Status, stage string) error {
	if err := ctx.Err(); err != nil {
		return &stageError{stage: stage, err: err}
	}
	if err := job.Transition(to); err != nil {
		return &stageError{stage: stage, err: err}
	}
	s.persist(ctx, job)
	return nil
}

type clipOutcome struct {
	clip *models.Clip
	err  error
	done bool
}

// cutClips attempts every segment with up to ClipWorkers cuts in flight.
// Progress events are released strictly in segment order. A failed cut is
// reported and skipped; segments not yet started when the job is stopped
// are not attempted.
func (s *Orchestrator) cutClips(ctx context.Context, job *models.Job, segments []models.Segment, logger *logrus.Entry) []models.Clip {
	total := len(segments)
	clips := make([]models.Clip, 0, total)
	outcomes := make([]clipOutcome, total)
	detached := context.WithoutCancel(ctx)

	var (
		mu   sync.Mutex
		next int
	)

	g := new(errgroup.Group)
	g.SetLimit(s.config.ClipWorkers)

	for i, seg := range segments {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			clip, err := s.cutClip(ctx, job, i, seg, logger)

			mu.Lock()
			defer mu.Unlock()
			outcomes[i] = clipOutcome{clip: clip, err: err, done: true}

			for next < total && outcomes[next].done {
				out := outcomes[next]
				data := models.ClipProgressData{
					Current: next + 1,
					Total:   total,
					Text:    segments[next].Text,
				}
				if out.err != nil {
					data.Error = out.err.Error()
				} else {
					data.ClipCreated = true
					data.Clip = out.clip
					clips = append(clips, *out.clip)
				}
				s.reporter.Emit(detached, job.ID, models.EventClipProgress, data)
				next++
			}
			return nil
		})
	}
	_ = g.Wait()

	return clips
}

func (s *Orchestrator) cutClip(ctx context.Context, job *models.Job, index int, seg models.Segment, logger *logrus.Entry) (*models.Clip, error) {
	log := logger.WithField("segment", index)

	path, err := s.transcoder.CutClip(ctx, job.SourcePath, seg.StartTime, seg.EndTime, s.config.ClipsDir)
	if err != nil {
		log.WithError(err).Warn("Failed to cut clip")
		return nil, err
	}

	name := filepath.Base(path)
	clip := &models.Clip{
		Index:     index,
		StartTime: seg.StartTime,
		EndTime:   seg.EndTime,
		Text:      seg.Text,
		Filename:  name,
		URL:       storage.ClipURL(name),
	}

	if s.mirror != nil {
		remote, err := s.mirror.UploadClip(ctx, job.ID, path)
		if err != nil {
			log.WithError(err).Warn("Failed to mirror clip")
		} else {
			clip.RemoteURL = remote
		}
	}

	if err := s.repo.AddClip(context.WithoutCancel(ctx), job.ID, *clip); err != nil {
		log.WithError(err).Error("Failed to save clip")
	}

	return clip, nil
}

func (s *Orchestrator) finishCompleted(ctx context.Context, job *models.Job, logger *logrus.Entry) error {
	if err := job.Transition(models.StatusCompleted); err != nil {
		return s.finishFailed(ctx, job, &stageError{stage: stageClipping, err: err}, logger)
	}
	s.persist(ctx, job)

	s.reporter.Emit(context.WithoutCancel(ctx), job.ID, models.EventClipComplete, models.ClipCompleteData{
		Clips:         job.Clips,
		Transcription: job.Transcription,
	})

	logger.WithField("clips", len(job.Clips)).Info("Job completed")
	return nil
}

func (s *Orchestrator) finishFailed(ctx context.Context, job *models.Job, err error, logger *logrus.Entry) error {
	stage := stageClipping
	if se, ok := err.(*stageError); ok {
		stage = se.stage
	}

	status, message := models.StatusFailed, err.Error()
	if ctx.Err() != nil {
		status, message = stopReason(ctx)
	}
	if status == models.StatusCancelled {
		stage = stageCancelled
	}

	job.Error = message
	if terr := job.Transition(status); terr != nil {
		logger.WithError(terr).Error("Failed to mark job")
	} else {
		s.persist(ctx, job)
	}

	s.reporter.Emit(context.WithoutCancel(ctx), job.ID, models.EventProcessingFailed, models.FailedData{
		Stage: stage,
		Error: message,
	})

	logger.WithFields(logrus.Fields{
		"stage":  stage,
		"status": status,
	}).WithError(err).Warn("Job did not complete")
	return err
}

func (s *Orchestrator) sweep() {
	s.janitor.Sweep([]string{s.config.UploadDir}, s.config.UploadRetention)
	s.janitor.Sweep([]string{s.config.ClipsDir}, s.config.ClipRetention)
}
