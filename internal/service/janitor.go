package service

import (
	"context"
	"time"

	"github.com/iliyamo/identity-authority/internal/clock"
	"github.com/iliyamo/identity-authority/internal/logging"
)

// SessionJanitor periodically deletes sessions that expired or were
// revoked longer than retention ago. Validity checks never depend on it.
type SessionJanitor struct {
	sessions  SessionStore
	clock     clock.Clock
	log       logging.Logger
	interval  time.Duration
	retention time.Duration
}

func NewSessionJanitor(sessions SessionStore, clk clock.Clock, log logging.Logger, interval, retention time.Duration) *SessionJanitor {
	return &SessionJanitor{sessions: sessions, clock: clk, log: log, interval: interval, retention: retention}
}

// RunOnce performs a single sweep and returns the number of rows removed.
func (j *SessionJanitor) RunOnce(ctx context.Context) (int64, error) {
	return j.sessions.DeleteStaleSessions(ctx, j.clock.Now().Add(-j.retention))
}

// Run sweeps every interval until ctx is cancelled.
func (j *SessionJanitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.RunOnce(ctx)
			if err != nil {
				j.log.Warn(ctx, "session cleanup failed", "err", err)
				continue
			}
			if n > 0 {
				j.log.Info(ctx, "stale sessions removed", "count", n)
			}
		}
	}
}
