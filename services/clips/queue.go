package clips

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nijaru/autoclip/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull = errors.New("job queue is full")
	ErrCancelled = errors.New("job cancelled")
	ErrShutdown  = errors.New("server shutting down")
)

type JobQueue struct {
	jobs           chan *queuedJob
	process        func(context.Context, *models.Job) error
	activeJobs     map[string]*queuedJob
	workerCount    int
	hungJobTimeout time.Duration
	mu             sync.Mutex
	quit           chan struct{}
	closeOnce      sync.Once
	wg             sync.WaitGroup
	logger         *logrus.Logger
}

type queuedJob struct {
	job        *models.Job
	ctx        context.Context
	cancelFunc context.CancelCauseFunc
	queuedAt   time.Time
	startTime  time.Time
}

func NewJobQueue(workerCount, maxQueueSize int, hungJobTimeout time.Duration, logger *logrus.Logger) *JobQueue {
	if workerCount < 1 {
		workerCount = 1
	}
	if maxQueueSize < 1 {
		maxQueueSize = 1
	}
	return &JobQueue{
		jobs:           make(chan *queuedJob, maxQueueSize),
		activeJobs:     make(map[string]*queuedJob),
		workerCount:    workerCount,
		hungJobTimeout: hungJobTimeout,
		quit:           make(chan struct{}),
		logger:         logger,
	}
}

// Start begins processing jobs
func (q *JobQueue) Start(processFunc func(context.Context, *models.Job) error) {
	q.process = processFunc
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(i, processFunc)
	}

	if q.hungJobTimeout > 0 {
		go q.monitorHungJobs()
	}
}

// Submit adds a job to the queue without blocking. The job context is
// detached from any request so it outlives the upload handler.
func (q *JobQueue) Submit(job *models.Job) error {
	jobCtx, cancel := context.WithCancelCause(context.Background())

	qj := &queuedJob{
		job:        job,
		ctx:        jobCtx,
		cancelFunc: cancel,
		queuedAt:   time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.quit:
		cancel(ErrShutdown)
		return ErrShutdown
	default:
	}

	select {
	case q.jobs <- qj:
		q.activeJobs[job.ID] = qj
		return nil
	default:
		cancel(ErrQueueFull)
		return ErrQueueFull
	}
}

// Cancel attempts to cancel a queued or running job
func (q *JobQueue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	qj, exists := q.activeJobs[jobID]
	if !exists {
		return false
	}

	qj.cancelFunc(ErrCancelled)
	return true
}

// Active reports the number of queued and running jobs
func (q *JobQueue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.activeJobs)
}

func (q *JobQueue) worker(id int, processFunc func(context.Context, *models.Job) error) {
	defer q.wg.Done()

	log := q.logger.WithField("worker_id", id)
	log.Debug("Starting worker")

	for {
		var qj *queuedJob
		select {
		case <-q.quit:
			log.Debug("Worker shutting down")
			return
		case qj = <-q.jobs:
		}

		q.mu.Lock()
		qj.startTime = time.Now()
		q.mu.Unlock()

		jobLog := log.WithFields(logrus.Fields{
			"job_id":  qj.job.ID,
			"wait_ms": qj.startTime.Sub(qj.queuedAt).Milliseconds(),
		})
		jobLog.Info("Started processing job")

		err := processFunc(qj.ctx, qj.job)
		duration := time.Since(qj.startTime)

		if err != nil {
			jobLog.WithError(err).WithField("duration_ms", duration.Milliseconds()).Error("Job processing failed")
		} else {
			jobLog.WithField("duration_ms", duration.Milliseconds()).Info("Job processing succeeded")
		}

		q.mu.Lock()
		delete(q.activeJobs, qj.job.ID)
		q.mu.Unlock()
		qj.cancelFunc(nil)
	}
}

// Close cancels every queued and running job and waits for the workers
// to return. Jobs still waiting in the queue are then handed to the
// process function with their cancelled context so they reach a terminal
// state too.
func (q *JobQueue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		close(q.quit)
		for _, qj := range q.activeJobs {
			qj.cancelFunc(ErrShutdown)
		}
		q.mu.Unlock()
	})
	q.wg.Wait()
	q.drain()
}

func (q *JobQueue) drain() {
	for {
		select {
		case qj := <-q.jobs:
			if q.process != nil {
				if err := q.process(qj.ctx, qj.job); err != nil {
					q.logger.WithError(err).WithField("job_id", qj.job.ID).Debug("Dropped queued job at shutdown")
				}
			}
			q.mu.Lock()
			delete(q.activeJobs, qj.job.ID)
			q.mu.Unlock()
			qj.cancelFunc(nil)
		default:
			return
		}
	}
}

// monitorHungJobs periodically checks for hung jobs
func (q *JobQueue) monitorHungJobs() {
	interval := q.hungJobTimeout / 6
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.quit:
			return
		case <-ticker.C:
			q.checkHungJobs()
		}
	}
}

// checkHungJobs returns the ids of running jobs past the hung timeout.
// They are logged but not cancelled; the per-job deadline handles that.
func (q *JobQueue) checkHungJobs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var hung []string
	for id, qj := range q.activeJobs {
		if qj.startTime.IsZero() {
			continue
		}
		if running := now.Sub(qj.startTime); running > q.hungJobTimeout {
			hung = append(hung, id)
			q.logger.WithFields(logrus.Fields{
				"job_id":   id,
				"duration": running.String(),
			}).Warn("Found hung job")
		}
	}
	return hung
}
