package notify

import (
	"context"
	"sync"
	"time"

	"custody-wallet-go/internal/metrics"

	"go.uber.org/zap"
)

const deliveryTimeout = 10 * time.Second

// Target is a named emitter the dispatcher fans out to.
type Target struct {
	Name    string
	Emitter Emitter
}

// Dispatcher queues notifications and delivers them to every target from a
// fixed set of workers. Emit never blocks; a full queue drops the notification.
type Dispatcher struct {
	targets []Target
	queue   chan Notification
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ Emitter = (*Dispatcher)(nil)

func NewDispatcher(queueSize, workers int, targets ...Target) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		targets: targets,
		queue:   make(chan Notification, queueSize),
		workers: workers,
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Stop stops accepting notifications and waits for queued ones to be delivered.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) Emit(_ context.Context, n Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.NotificationsDropped.Inc()
		zap.L().Warn("Notification dropped, dispatcher stopped", zap.String("user_id", n.UserId))
		return nil
	}

	select {
	case d.queue <- n:
	default:
		metrics.NotificationsDropped.Inc()
		zap.L().Warn("Notification dropped, queue full",
			zap.String("user_id", n.UserId),
			zap.String("title", n.Title))
	}
	return nil
}

func (d *Dispatcher) work() {
	defer d.wg.Done()

	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	for _, t := range d.targets {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		err := t.Emitter.Emit(ctx, n)
		cancel()

		if err != nil {
			metrics.NotificationFailures.WithLabelValues(t.Name).Inc()
			zap.L().Error("Notification delivery failed",
				zap.String("emitter", t.Name),
				zap.String("user_id", n.UserId),
				zap.String("title", n.Title),
				zap.Error(err))
		}
	}
}
