package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"waivery/contexts/remediation/exception-service/domain/entities"
	"waivery/contexts/remediation/exception-service/ports"
)

// PendingNotifier owns the single authoritative count of pending requests.
// It is updated only by committed transitions reported by the service and
// fans the count out to live subscribers. A freshly connected subscriber
// always receives the current snapshot before any subsequent updates.
type PendingNotifier struct {
	Sink   ports.PendingCountSink
	Logger *slog.Logger

	mu    sync.RWMutex
	count int
	subs  map[chan int]struct{}
}

func NewPendingNotifier(sink ports.PendingCountSink, logger *slog.Logger) *PendingNotifier {
	return &PendingNotifier{
		Sink:   sink,
		Logger: logger,
		subs:   make(map[chan int]struct{}),
	}
}

// Seed sets the baseline count, read from the store at startup.
func (n *PendingNotifier) Seed(count int) {
	if count < 0 {
		count = 0
	}
	n.mu.Lock()
	n.count = count
	n.mu.Unlock()
}

func (n *PendingNotifier) Current() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.count
}

// Subscribe registers a live observer. The snapshot is placed on the channel
// before Subscribe returns so reconnecting observers never start blind.
func (n *PendingNotifier) Subscribe(buffer int) chan int {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan int, buffer)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	ch <- n.count
	n.mu.Unlock()
	return ch
}

func (n *PendingNotifier) Unsubscribe(ch chan int) {
	n.mu.Lock()
	_, exists := n.subs[ch]
	if exists {
		delete(n.subs, ch)
	}
	n.mu.Unlock()
	if exists {
		close(ch)
	}
}

// OnTransition adjusts the count when a committed transition changes
// pending-membership. Delivery is fire-and-forget: a slow subscriber is
// skipped, never waited on.
func (n *PendingNotifier) OnTransition(oldStatus, newStatus entities.RequestStatus) {
	delta := 0
	if oldStatus != entities.RequestStatusPending && newStatus == entities.RequestStatusPending {
		delta = 1
	}
	if oldStatus == entities.RequestStatusPending && newStatus != entities.RequestStatusPending {
		delta = -1
	}
	if delta == 0 {
		return
	}

	n.mu.Lock()
	n.count += delta
	if n.count < 0 {
		n.count = 0
	}
	count := n.count
	for ch := range n.subs {
		select {
		case ch <- count:
		default:
		}
	}
	n.mu.Unlock()

	n.publishSnapshot(count)
}

func (n *PendingNotifier) publishSnapshot(count int) {
	if n.Sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := n.Sink.SetPendingCount(ctx, count); err != nil {
			ResolveLogger(n.Logger).Warn("pending count sink update failed",
				"event", "exception_pending_sink_failed",
				"module", "remediation/exception-service",
				"layer", "application",
				"count", count,
				"error", err.Error(),
			)
		}
	}()
}
