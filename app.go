package main

import (
	"context"
	"fmt"

	"github.com/nijaru/autoclip/config"
	"github.com/nijaru/autoclip/janitor"
	"github.com/nijaru/autoclip/logger"
	"github.com/nijaru/autoclip/progress"
	"github.com/nijaru/autoclip/repository/sqlite"
	"github.com/nijaru/autoclip/services/clips"
	"github.com/nijaru/autoclip/storage"
	"github.com/nijaru/autoclip/transcoder"
	"github.com/nijaru/autoclip/transcription"
	"github.com/nijaru/autoclip/validation"
	"github.com/sirupsen/logrus"
)

// app holds every long lived component built from the configuration.
type app struct {
	cfg         *config.Config
	logger      *logrus.Logger
	db          *sqlite.DB
	files       *storage.Local
	transcoder  *transcoder.Transcoder
	transcriber *transcription.Service
	reporter    *progress.Reporter
	janitor     *janitor.Janitor
	scheduler   *janitor.Scheduler
	clips       *clips.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	a := &app{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	db, err := sqlite.Open(ctx, cfg.Database.Path, sqlite.DBConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	a.db = db

	files, err := storage.NewLocal(cfg.UploadDir, cfg.ClipsDir)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.files = files

	a.transcoder = transcoder.New(cfg.Media, log)

	engine, err := transcription.NewEngine(cfg.Transcription, log)
	if err != nil {
		return fmt.Errorf("transcription engine: %w", err)
	}
	policy, err := transcription.NewPolicy(cfg.Transcription.SegmentPolicy, cfg.Transcription.SegmentLimit)
	if err != nil {
		engine.Close()
		return fmt.Errorf("segment policy: %w", err)
	}
	a.transcriber = transcription.NewService(engine, a.transcoder, policy, log)

	reporter, err := newReporter(ctx, cfg, log)
	if err != nil {
		return err
	}
	a.reporter = reporter

	a.janitor = janitor.New(log)
	a.scheduler, err = janitor.NewScheduler(a.janitor, cfg.Janitor.Schedule, []janitor.Target{
		{Folder: cfg.UploadDir, Retention: cfg.Janitor.UploadRetention},
		{Folder: cfg.ClipsDir, Retention: cfg.Janitor.ClipRetention},
	}, log)
	if err != nil {
		return fmt.Errorf("janitor: %w", err)
	}

	deps := clips.Deps{
		Repo:        sqlite.NewRepository(db),
		Transcoder:  a.transcoder,
		Transcriber: a.transcriber,
		Reporter:    a.reporter,
		Files:       files,
		Janitor:     a.janitor,
		Validator:   validation.NewValidator(cfg),
		Logger:      log,
	}
	if cfg.Spaces.Enabled {
		mirror, err := storage.NewSpacesClient(ctx, cfg.Spaces)
		if err != nil {
			return fmt.Errorf("spaces: %w", err)
		}
		deps.Mirror = mirror
		log.WithField("bucket", cfg.Spaces.Bucket).Info("Mirroring clips to Spaces")
	}

	a.clips = clips.NewService(deps, clips.ConfigFrom(cfg))
	a.janitor.Protect(a.clips.InUse)
	return nil
}

// newReporter picks the in-process hub or the Redis broker and attaches
// the Kafka audit sink when brokers are configured.
func newReporter(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*progress.Reporter, error) {
	hub := progress.NewHub(cfg.Pipeline.SubscriberBuffer, log)

	var broker progress.Broker = hub
	if cfg.Redis.URL != "" {
		rb, err := progress.NewRedisBroker(ctx, cfg.Redis.URL, cfg.Redis.ChannelPrefix, hub, log)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		broker = rb
		log.Info("Publishing progress through Redis")
	}

	var sinks []progress.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := progress.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			broker.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		sinks = append(sinks, sink)
		log.WithField("topic", cfg.Kafka.Topic).Info("Auditing progress events to Kafka")
	}

	return progress.NewReporter(broker, log, sinks...), nil
}

// Close releases everything in reverse order of construction. It is safe
// on a partially built app.
func (a *app) Close() {
	if a.clips != nil {
		a.clips.Close()
	}
	if a.reporter != nil {
		if err := a.reporter.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close progress reporter")
		}
	}
	if a.transcriber != nil {
		if err := a.transcriber.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close transcription engine")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close database")
		}
	}
}
