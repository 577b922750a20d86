package session

import (
	"context"
	"sync"
	"time"

	"PSession/logger"
	"PSession/tools/safe"
)

// Sweeper runs the periodic reclamation passes: expired tokens, stale
// touched rooms and lapsed presence heartbeats. Each pass is independent;
// a failing one never blocks the others.
type Sweeper struct {
	core     *Core
	registry *Registry
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSweeper(core *Core, registry *Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		core:     core,
		registry: registry,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	safe.Go(s.loop)
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Sweeper) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			s.runOnce(ctx, now)
			cancel()
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context, now time.Time) {
	if n, err := s.core.tokens.SweepExpired(ctx, now); err != nil {
		logger.Warnf("[sweeper] token sweep failed err=%v", err)
	} else if n > 0 {
		logger.Infof("[sweeper] removed %d expired tokens", n)
	}

	expired, err := s.core.rooms.SweepExpiredTouched(ctx, now)
	if err != nil {
		logger.Warnf("[sweeper] touched room sweep failed err=%v", err)
	}
	for _, rm := range expired {
		orders := []int{rm.Order}
		s.core.emitter.Broadcast("notify-room-delete", nil, orders)
		if s.core.notifier != nil {
			if perr := s.core.notifier.PublishRoomDelete(orders); perr != nil {
				logger.Warnf("[sweeper] room delete publish failed room=%s err=%v", rm.Key, perr)
			}
		}
	}

	if s.core.presence != nil {
		stale, err := s.core.presence.SweepExpired(ctx)
		if err != nil {
			logger.Warnf("[sweeper] presence sweep failed err=%v", err)
			return
		}
		for _, connID := range stale {
			s.registry.Kick(connID)
		}
	}
}
