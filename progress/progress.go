// Package progress delivers job events to live listeners. Delivery is best
// effort: only subscribers connected at emission time receive an event and
// nothing is replayed.
package progress

import (
	"context"
	"sync"

	"github.com/nijaru/autoclip/models"
)

// Broker fans events out to the subscribers of a job.
type Broker interface {
	Publish(ctx context.Context, event models.Event) error
	Subscribe(jobID string) *Subscription
	Unsubscribe(sub *Subscription)
	Close() error
}

// Sink receives a copy of every event, for auditing or analytics.
type Sink interface {
	Send(ctx context.Context, event models.Event) error
	Close() error
}

// Subscription is one listener on one job. Events is closed after
// Unsubscribe.
type Subscription struct {
	JobID string

	ch   chan models.Event
	once sync.Once
}

func (s *Subscription) Events() <-chan models.Event {
	return s.ch
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}
