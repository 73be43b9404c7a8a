package clips

import (
	"context"
	"io"
	"time"

	"github.com/nijaru/autoclip/config"
	"github.com/nijaru/autoclip/models"
)

type Service interface {
	// Submit stores the upload and queues it; processing runs in the
	// background.
	Submit(ctx context.Context, upload Upload) (*models.Job, error)

	// Process runs the whole pipeline inline and returns the finished job.
	Process(ctx context.Context, upload Upload) (*models.Job, error)

	Get(ctx context.Context, id string) (*models.Job, error)

	Cancel(ctx context.Context, id string) error
}

// Upload is a video file as received from a client. Size is -1 when unknown.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

type Transcoder interface {
	Check() error
	ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error)
	CutClip(ctx context.Context, videoPath string, start, end float64, outDir string) (string, error)
}

type Transcriber interface {
	Check(ctx context.Context) error
	Transcribe(ctx context.Context, audioPath string) (*models.TranscriptionResult, error)
}

type Reporter interface {
	Emit(ctx context.Context, jobID string, kind models.EventKind, data any) models.Event
}

type FileStore interface {
	SaveUpload(jobID, filename string, r io.Reader, maxSize int64) (string, error)
}

// Mirror copies a finished clip somewhere durable and returns its URL.
type Mirror interface {
	UploadClip(ctx context.Context, jobID, clipPath string) (string, error)
}

type Janitor interface {
	CleanupJob(paths ...string)
	Sweep(folders []string, maxAge time.Duration) int
}

type Config struct {
	UploadDir     string
	ClipsDir      string
	MaxUploadSize int64

	WorkerCount int
	QueueSize   int
	ClipWorkers int

	// ProcessTimeout is the maximum time allowed for a single job
	ProcessTimeout time.Duration
	HungJobTimeout time.Duration

	SweepAfterJob   bool
	UploadRetention time.Duration
	ClipRetention   time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		UploadDir:       cfg.UploadDir,
		ClipsDir:        cfg.ClipsDir,
		MaxUploadSize:   cfg.Media.MaxUploadSize,
		WorkerCount:     cfg.Pipeline.WorkerCount,
		QueueSize:       cfg.Pipeline.QueueSize,
		ClipWorkers:     cfg.Pipeline.ClipWorkers,
		ProcessTimeout:  cfg.Pipeline.ProcessTimeout,
		HungJobTimeout:  cfg.Pipeline.HungJobTimeout,
		SweepAfterJob:   cfg.Pipeline.SweepAfterJob,
		UploadRetention: cfg.Janitor.UploadRetention,
		ClipRetention:   cfg.Janitor.ClipRetention,
	}
}
