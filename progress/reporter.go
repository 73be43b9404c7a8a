package progress

import (
	"context"
	"sync"
	"time"

	"github.com/nijaru/autoclip/models"
	"github.com/sirupsen/logrus"
)

// Reporter stamps events with a per-job sequence number and hands them to
// the broker and every sink. Failures are logged, never returned.
//
// Callers must not emit for the same job from two goroutines at once;
// per-job order is the order of Emit calls.
type Reporter struct {
	broker Broker
	sinks  []Sink
	logger *logrus.Logger

	mu   sync.Mutex
	seqs map[string]uint64
}

func NewReporter(broker Broker, logger *logrus.Logger, sinks ...Sink) *Reporter {
	return &Reporter{
		broker: broker,
		sinks:  sinks,
		logger: logger,
		seqs:   make(map[string]uint64),
	}
}

func (r *Reporter) Emit(ctx context.Context, jobID string, kind models.EventKind, data any) models.Event {
	r.mu.Lock()
	r.seqs[jobID]++
	seq := r.seqs[jobID]
	event := models.Event{
		Kind:      kind,
		JobID:     jobID,
		Seq:       seq,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	if event.Terminal() {
		delete(r.seqs, jobID)
	}
	r.mu.Unlock()

	if err := r.broker.Publish(ctx, event); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"job_id": jobID,
			"event":  kind,
		}).Warn("Failed to publish event")
	}

	for _, sink := range r.sinks {
		if err := sink.Send(ctx, event); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"job_id": jobID,
				"event":  kind,
			}).Warn("Failed to send event to sink")
		}
	}

	return event
}

func (r *Reporter) Subscribe(jobID string) *Subscription {
	return r.broker.Subscribe(jobID)
}

func (r *Reporter) Unsubscribe(sub *Subscription) {
	r.broker.Unsubscribe(sub)
}

func (r *Reporter) Close() error {
	var first error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := r.broker.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
