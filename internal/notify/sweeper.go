package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper deletes expired notifications on an interval.
type Sweeper struct {
	store    notificationStore
	interval time.Duration
	now      func() time.Time

	stopChan chan struct{}
	doneChan chan struct{}
	once     sync.Once
}

func NewSweeper(st notificationStore, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    st,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	zap.L().Info("Starting notification sweeper", zap.Duration("interval", s.interval))
	go s.loop(ctx)
}

func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.stopChan) })
	<-s.doneChan
}

// Sweep runs one deletion pass.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	deleted, err := s.store.DeleteExpiredNotifications(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		zap.L().Info("Expired notifications deleted", zap.Int64("count", deleted))
	}
	return deleted, nil
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				zap.L().Error("Notification sweep failed", zap.Error(err))
			}
		}
	}
}
