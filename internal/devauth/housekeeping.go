package devauth

import (
	"log/slog"
	"time"
)

// Housekeeping periodically drops expired refresh tokens and MFA challenges
// so a long-running dev server does not grow without bound.
type Housekeeping struct {
	Tokens   *TokenService
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeping creates the worker. If interval is 0 or negative, it
// defaults to 10 minutes.
func NewHousekeeping(tokens *TokenService, logger *slog.Logger, interval time.Duration) *Housekeeping {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Housekeeping{
		Tokens:   tokens,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (h *Housekeeping) Start() {
	go h.run()
	h.Logger.Info("housekeeping started", "interval", h.Interval)
}

// Stop blocks until any in-progress sweep has finished.
func (h *Housekeeping) Stop() {
	close(h.stopCh)
	<-h.doneCh
	h.Logger.Info("housekeeping stopped")
}

func (h *Housekeeping) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sweep()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Housekeeping) sweep() {
	n := h.Tokens.DeleteExpired()
	h.Logger.Debug("housekeeping sweep completed", "deleted", n)
}
