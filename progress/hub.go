package progress

import (
	"context"
	"sync"

	"github.com/nijaru/autoclip/models"
	"github.com/sirupsen/logrus"
)

const defaultBuffer = 64

// Hub is the in-process broker. Each subscriber has a bounded buffer; a
// full buffer drops the event for that subscriber only.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	logger *logrus.Logger
}

func NewHub(buffer int, logger *logrus.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) Subscribe(jobID string) *Subscription {
	sub := &Subscription{
		JobID: jobID,
		ch:    make(chan models.Event, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[jobID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe is idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[sub.JobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.JobID)
		}
	}
	sub.close()
}

// Publish never blocks. Channels are only closed under the write lock, so
// sending under the read lock is safe.
func (h *Hub) Publish(ctx context.Context, event models.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.JobID] {
		select {
		case sub.ch <- event:
			continue
		default:
		}
		log := h.logger.WithFields(logrus.Fields{
			"job_id": event.JobID,
			"event":  event.Kind,
			"seq":    event.Seq,
		})
		if !event.Terminal() {
			log.Warn("Subscriber buffer full, dropping event")
			continue
		}
		// A terminal event ends the stream, so it replaces the oldest
		// buffered event instead of being dropped.
		h.evictOne(sub, event)
		log.Warn("Subscriber buffer full, evicted oldest event")
	}
	return nil
}

// evictOne drops buffered events until event fits.
func (h *Hub) evictOne(sub *Subscription, event models.Event) {
	for {
		select {
		case sub.ch <- event:
			return
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

// Subscribers returns the number of live listeners on jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for jobID, set := range h.subs {
		for sub := range set {
			sub.close()
		}
		delete(h.subs, jobID)
	}
	return nil
}
