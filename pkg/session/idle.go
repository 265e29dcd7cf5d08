package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// IdleState is where an IdleMonitor is in its lifecycle.
type IdleState int32

const (
	IdleActive IdleState = iota
	IdleWarning
	IdleExpired
)

func (s IdleState) String() string {
	switch s {
	case IdleActive:
		return "active"
	case IdleWarning:
		return "warning"
	default:
		return "expired"
	}
}

// IdleConfig configures an IdleMonitor.
type IdleConfig struct {
	// IdleTime without activity before the warning starts.
	IdleTime time.Duration
	// WarningTime after the warning starts before the session expires.
	WarningTime time.Duration

	// Activity is an optional external source of activity events, for
	// example fed by a UI input handler.
	Activity <-chan struct{}

	// OnWarning runs on the monitor goroutine when the warning starts. It
	// must not call Stop.
	OnWarning func(deadline time.Time)
	// OnExpired runs exactly once, after the monitor goroutine has finished.
	// It may call Stop.
	OnExpired func()
}

// IdleMonitor ends a session after a period of inactivity, with a warning
// period in between during which the user can extend it.
//
// A monitor serves one session. Once expired or stopped it stays that way;
// build a new one for the next session.
type IdleMonitor struct {
	cfg IdleConfig

	touchCh  chan struct{}
	extendCh chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	state    atomic.Int32
	deadline atomic.Int64 // unix nanos of the warning deadline
}

// NewIdleMonitor creates a stopped monitor; call Start to begin timing.
func NewIdleMonitor(cfg IdleConfig) *IdleMonitor {
	return &IdleMonitor{
		cfg:      cfg,
		touchCh:  make(chan struct{}, 1),
		extendCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins timing from now. Calling it again has no effect.
func (m *IdleMonitor) Start() {
	m.startOnce.Do(func() { go m.run() })
}

// Touch records user activity. Ignored during the warning period; use
// Extend there.
func (m *IdleMonitor) Touch() {
	select {
	case m.touchCh <- struct{}{}:
	default:
	}
}

// Extend leaves the warning period and restarts the idle timer.
func (m *IdleMonitor) Extend() {
	select {
	case m.extendCh <- struct{}{}:
	default:
	}
}

// Stop cancels the monitor without firing OnExpired and waits for its
// goroutine to exit. It is safe to call more than once, before Start, and
// from inside OnExpired.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.startOnce.Do(func() { close(m.doneCh) })
	<-m.doneCh
}

// State returns the current state.
func (m *IdleMonitor) State() IdleState {
	return IdleState(m.state.Load())
}

// Deadline is when the session expires if not extended. Only meaningful
// in IdleWarning.
func (m *IdleMonitor) Deadline() time.Time {
	n := m.deadline.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Done is closed when the monitor goroutine exits.
func (m *IdleMonitor) Done() <-chan struct{} {
	return m.doneCh
}

func (m *IdleMonitor) run() {
	timer := time.NewTimer(m.cfg.IdleTime)
	expired := false

	defer func() {
		timer.Stop()
		close(m.doneCh)
		if expired && m.cfg.OnExpired != nil {
			m.cfg.OnExpired()
		}
	}()

	activity := m.cfg.Activity
	for {
		select {
		case <-m.stopCh:
			return

		case _, ok := <-activity:
			if !ok {
				activity = nil
				continue
			}
			m.active(timer)

		case <-m.touchCh:
			m.active(timer)

		case <-m.extendCh:
			m.deadline.Store(0)
			m.state.Store(int32(IdleActive))
			timer.Reset(m.cfg.IdleTime)

		case now := <-timer.C:
			if m.State() == IdleActive {
				deadline := now.Add(m.cfg.WarningTime)
				m.deadline.Store(deadline.UnixNano())
				m.state.Store(int32(IdleWarning))
				timer.Reset(m.cfg.WarningTime)
				if m.cfg.OnWarning != nil {
					m.cfg.OnWarning(deadline)
				}
				continue
			}
			m.state.Store(int32(IdleExpired))
			expired = true
			return
		}
	}
}

// active restarts the idle timer unless the warning is showing.
func (m *IdleMonitor) active(timer *time.Timer) {
	if m.State() == IdleActive {
		timer.Reset(m.cfg.IdleTime)
	}
}
