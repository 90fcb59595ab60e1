package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"sentinel-sim/internal/logging"
)

// ErrSubscriberClosed is returned by a subscriber whose consumer has gone
// away. The broadcaster drops it like any other failed delivery.
var ErrSubscriberClosed = errors.New("subscriber closed")

// Subscriber receives snapshots. Returning an error or panicking removes it.
type Subscriber func(Snapshot) error

// Broadcaster fans snapshots out to subscribers. Registration and removal
// are safe at any time, including during a publish.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]Subscriber
	last    uint64
	log     *slog.Logger
	metrics MetricsRecorder
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(log *slog.Logger, metrics MetricsRecorder) *Broadcaster {
	if log == nil {
		log = logging.Discard()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Broadcaster{subs: make(map[uuid.UUID]Subscriber), log: log, metrics: metrics}
}

// Subscribe registers fn and returns an idempotent unsubscribe function.
func (b *Broadcaster) Subscribe(fn Subscriber) func() {
	id := uuid.New()
	b.mu.Lock()
	b.subs[id] = fn
	n := len(b.subs)
	b.mu.Unlock()
	b.metrics.SetSubscribers(n)
	b.log.Debug("subscriber added", "subscriber", id, "subscribers", n)
	return func() { b.remove(id) }
}

// Len returns the number of registered subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers s to every subscriber registered when it starts. A
// snapshot older than one already published is dropped.
func (b *Broadcaster) Publish(s Snapshot) {
	b.mu.Lock()
	if s.version != 0 && s.version < b.last {
		b.mu.Unlock()
		return
	}
	b.last = s.version
	type entry struct {
		id uuid.UUID
		fn Subscriber
	}
	targets := make([]entry, 0, len(b.subs))
	for id, fn := range b.subs {
		targets = append(targets, entry{id, fn})
	}
	b.mu.Unlock()

	for _, t := range targets {
		if err := deliver(t.fn, s); err != nil {
			if b.remove(t.id) {
				b.metrics.IncDeliveryFailure()
				b.log.Warn("subscriber removed after failed delivery", "subscriber", t.id, "err", err)
			}
		}
	}
}

func deliver(fn Subscriber, s Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return fn(s)
}

func (b *Broadcaster) remove(id uuid.UUID) bool {
	b.mu.Lock()
	_, ok := b.subs[id]
	delete(b.subs, id)
	n := len(b.subs)
	b.mu.Unlock()
	if ok {
		b.metrics.SetSubscribers(n)
	}
	return ok
}
