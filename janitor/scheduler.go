package janitor

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Target is one folder and how long its files are kept.
type Target struct {
	Folder    string
	Retention time.Duration
}

// Scheduler runs a sweep over its targets on a cron schedule.
type Scheduler struct {
	janitor *Janitor
	targets []Target
	cron    *cron.Cron
	cronID  cron.EntryID
	logger  *logrus.Logger
}

func NewScheduler(j *Janitor, schedule string, targets []Target, logger *logrus.Logger) (*Scheduler, error) {
	s := &Scheduler{
		janitor: j,
		targets: targets,
		cron:    cron.New(),
		logger:  logger,
	}

	id, err := s.cron.AddFunc(schedule, func() { s.RunOnce() })
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cronID = id
	return s, nil
}

// RunOnce sweeps every target immediately.
func (s *Scheduler) RunOnce() int {
	total := 0
	for _, t := range s.targets {
		total += s.janitor.Sweep([]string{t.Folder}, t.Retention)
	}
	return total
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("next_run", s.cron.Entry(s.cronID).Next).Info("Sweep scheduler started")
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
