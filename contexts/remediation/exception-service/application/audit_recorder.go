package application

import (
	"context"
	"log/slog"
	"sync"

	"waivery/contexts/remediation/exception-service/domain/entities"
	"waivery/contexts/remediation/exception-service/ports"
)

// AuditRecorder appends audit events off the transition's critical path.
// A single worker goroutine drains a FIFO queue, so events for the same
// request land in the order their transitions committed. Append failures
// are logged and dropped; they never fail the originating transition.
type AuditRecorder struct {
	log    ports.AuditLog
	logger *slog.Logger

	mu      sync.Mutex
	queue   []entities.AuditEvent
	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
	pending sync.WaitGroup
	once    sync.Once
}

func NewAuditRecorder(log ports.AuditLog, logger *slog.Logger) *AuditRecorder {
	r := &AuditRecorder{
		log:     log,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues one audit event and returns immediately.
func (r *AuditRecorder) Record(event entities.AuditEvent) {
	r.mu.Lock()
	r.pending.Add(1)
	r.queue = append(r.queue, event)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every recorded event has been handed to the audit log.
func (r *AuditRecorder) Flush() {
	r.pending.Wait()
}

// Close drains the queue and stops the worker.
func (r *AuditRecorder) Close() {
	r.once.Do(func() {
		close(r.stop)
	})
	<-r.stopped
}

func (r *AuditRecorder) run() {
	defer close(r.stopped)
	for {
		r.drain()
		select {
		case <-r.stop:
			r.drain()
			return
		case <-r.wake:
		}
	}
}

func (r *AuditRecorder) drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		event := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		if err := r.log.AppendAuditEvent(context.Background(), event); err != nil {
			ResolveLogger(r.logger).Error("audit append failed",
				"event", "exception_audit_append_failed",
				"module", "remediation/exception-service",
				"layer", "application",
				"request_id", event.RequestID,
				"event_type", string(event.EventType),
				"error", err.Error(),
			)
		}
		r.pending.Done()
	}
}
