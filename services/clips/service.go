package clips

import (
	"context"
	stderrors "errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nijaru/autoclip/errors"
	"github.com/nijaru/autoclip/models"
	"github.com/nijaru/autoclip/repository"
	"github.com/nijaru/autoclip/validation"
	"github.com/sirupsen/logrus"
)

type Repository = repository.JobRepository

const interruptedMessage = "interrupted by restart"

// Deps groups the collaborators of the orchestrator. Mirror is optional.
type Deps struct {
	Repo        Repository
	Transcoder  Transcoder
	Transcriber Transcriber
	Reporter    Reporter
	Files       FileStore
	Mirror      Mirror
	Janitor     Janitor
	Validator   *validation.Validator
	Logger      *logrus.Logger
}

type Orchestrator struct {
	repo        Repository
	transcoder  Transcoder
	transcriber Transcriber
	reporter    Reporter
	files       FileStore
	mirror      Mirror
	janitor     Janitor
	validator   *validation.Validator
	queue       *JobQueue
	config      Config
	logger      *logrus.Logger

	// active holds the ids of jobs whose files must survive sweeps.
	active sync.Map
}

var _ Service = (*Orchestrator)(nil)

func NewService(deps Deps, cfg Config) *Orchestrator {
	if cfg.ClipWorkers < 1 {
		cfg.ClipWorkers = 1
	}
	return &Orchestrator{
		repo:        deps.Repo,
		transcoder:  deps.Transcoder,
		transcriber: deps.Transcriber,
		reporter:    deps.Reporter,
		files:       deps.Files,
		mirror:      deps.Mirror,
		janitor:     deps.Janitor,
		validator:   deps.Validator,
		queue:       NewJobQueue(cfg.WorkerCount, cfg.QueueSize, cfg.HungJobTimeout, deps.Logger),
		config:      cfg,
		logger:      deps.Logger,
	}
}

// Start launches the background workers.
func (s *Orchestrator) Start() {
	s.queue.Start(s.run)
}

// Close cancels outstanding jobs and waits for the workers to stop.
func (s *Orchestrator) Close() {
	s.queue.Close()
}

func (s *Orchestrator) Submit(ctx context.Context, upload Upload) (*models.Job, error) {
	const op = "ClipService.Submit"
	logger := s.logger.WithFields(logrus.Fields{
		"operation": op,
		"filename":  upload.Filename,
	})

	job, err := s.accept(ctx, upload)
	if err != nil {
		return nil, err
	}
	logger = logger.WithField("job_id", job.ID)

	if err := s.queue.Submit(job); err != nil {
		logger.WithError(err).Warn("Rejected job")
		s.janitor.CleanupJob(job.SourcePath)
		s.release(job.ID)
		job.Error = err.Error()
		if terr := job.Transition(models.StatusFailed); terr == nil {
			s.persist(ctx, job)
		}
		return nil, errors.Unavailable(op, err, "Server is busy, try again later")
	}

	logger.Info("Queued job")
	return job, nil
}

func (s *Orchestrator) Process(ctx context.Context, upload Upload) (*models.Job, error) {
	const op = "ClipService.Process"

	job, err := s.accept(ctx, upload)
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if err := s.run(jobCtx, job); err != nil {
		return job, errors.Internal(op, err, "Processing failed")
	}
	return job, nil
}

// accept validates and stores an upload and records its job. Nothing is
// written when a required tool is unavailable.
func (s *Orchestrator) accept(ctx context.Context, upload Upload) (*models.Job, error) {
	const op = "ClipService.accept"

	if err := s.validator.ValidateUpload(upload.Filename, upload.Size); err != nil {
		return nil, err
	}

	if err := s.checkAvailable(ctx); err != nil {
		s.logger.WithError(err).WithField("operation", op).Warn("Processing tools unavailable")
		return nil, err
	}

	id := uuid.New().String()
	s.active.Store(id, struct{}{})
	path, err := s.files.SaveUpload(id, upload.Filename, upload.Body, s.config.MaxUploadSize)
	if err != nil {
		s.release(id)
		return nil, err
	}

	now := time.Now()
	job := &models.Job{
		ID:         id,
		Filename:   filepath.Base(upload.Filename),
		SourcePath: path,
		Status:     models.StatusCreated,
		Clips:      []models.Clip{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, job); err != nil {
		s.janitor.CleanupJob(path)
		s.release(id)
		return nil, errors.Internal(op, err, "Failed to save job")
	}

	return job, nil
}

func (s *Orchestrator) release(id string) {
	s.active.Delete(id)
}

// InUse reports whether path belongs to a job that has not finished.
// Every transient file of a job is named after its id.
func (s *Orchestrator) InUse(path string) bool {
	base := filepath.Base(path)
	inUse := false
	s.active.Range(func(key, _ any) bool {
		if strings.HasPrefix(base, key.(string)) {
			inUse = true
			return false
		}
		return true
	})
	return inUse
}

func (s *Orchestrator) checkAvailable(ctx context.Context) error {
	if err := s.transcoder.Check(); err != nil {
		return err
	}
	return s.transcriber.Check(ctx)
}

func (s *Orchestrator) Get(ctx context.Context, id string) (*models.Job, error) {
	const op = "ClipService.Get"

	if id == "" {
		return nil, errors.InvalidInput(op, nil, "Job ID is required")
	}

	job, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		return nil, errors.Internal(op, err, "Failed to load job")
	}
	return job, nil
}

func (s *Orchestrator) Cancel(ctx context.Context, id string) error {
	const op = "ClipService.Cancel"

	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if job.IsTerminal() || !s.queue.Cancel(id) {
		return errors.E(op, nil, "Job has already finished", http.StatusConflict)
	}

	s.logger.WithFields(logrus.Fields{
		"operation": op,
		"job_id":    id,
	}).Info("Cancellation requested")
	return nil
}

// RecoverInterrupted fails jobs a previous process left mid-pipeline.
func (s *Orchestrator) RecoverInterrupted(ctx context.Context) (int64, error) {
	const op = "ClipService.RecoverInterrupted"

	n, err := s.repo.MarkInterrupted(ctx, models.ActiveStatuses, interruptedMessage)
	if err != nil {
		return 0, errors.Internal(op, err, "Failed to recover interrupted jobs")
	}
	if n > 0 {
		s.logger.WithField("count", n).Warn("Marked interrupted jobs as failed")
	}
	return n, nil
}

// persist writes the job with a context that survives cancellation of the
// job itself, so terminal states always reach the store.
func (s *Orchestrator) persist(ctx context.Context, job *models.Job) {
	if err := s.repo.Update(context.WithoutCancel(ctx), job); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"job_id": job.ID,
			"status": job.Status,
		}).Error("Failed to save job")
	}
}

// stopReason maps a done job context to the state the job ends in.
func stopReason(ctx context.Context) (models.Status, string) {
	cause := context.Cause(ctx)
	switch {
	case stderrors.Is(cause, ErrCancelled):
		return models.StatusCancelled, ErrCancelled.Error()
	case stderrors.Is(cause, context.DeadlineExceeded):
		return models.StatusFailed, "processing timed out"
	case cause != nil:
		return models.StatusFailed, cause.Error()
	default:
		return models.StatusFailed, "processing stopped"
	}
}
