package device

import (
	"context"
	"sync"
	"time"
)

// Default liveness parameters.
const (
	DefaultProbeInterval     = 5 * time.Second
	DefaultProbeTimeout      = 3 * time.Second
	DefaultMaxRetries        = 2
	DefaultKeepaliveInterval = 90 * time.Second
)

// MonitorConfig controls probing and keepalive.
type MonitorConfig struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	// MaxRetries is how many consecutive failed probes an active device
	// survives. The next failure marks it inactive.
	MaxRetries int

	// KeepaliveInterval is the period of keepalive traffic. Zero disables it.
	KeepaliveInterval time.Duration
}

// DefaultMonitorConfig returns the default liveness parameters.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ProbeInterval:     DefaultProbeInterval,
		ProbeTimeout:      DefaultProbeTimeout,
		MaxRetries:        DefaultMaxRetries,
		KeepaliveInterval: DefaultKeepaliveInterval,
	}
}

// Event classifies a liveness transition.
type Event int

const (
	// EventActive is the first successful probe of a device (unknown → active).
	EventActive Event = iota
	// EventUnreachable is active → inactive after MaxRetries+1 misses.
	EventUnreachable
	// EventRediscovered is inactive → active.
	EventRediscovered
)

func (e Event) String() string {
	switch e {
	case EventUnreachable:
		return "unreachable"
	case EventRediscovered:
		return "rediscovered"
	default:
		return "active"
	}
}

// Transition describes a liveness state change.
type Transition struct {
	Handle *Handle
	From   State
	To     State
	Event  Event
	At     time.Time
}

// Monitor runs one probe loop per watched device.
//
// Loops started before Start are queued and launched when Start is called.
// Stop cancels every loop and waits for them to exit.
type Monitor struct {
	cfg    MonitorConfig
	prober Prober
	logger Logger

	interest     func(h *Handle) bool
	onTransition func(t Transition)

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	watched map[*Handle]struct{}
	pending []*Handle
	running bool
	wg      sync.WaitGroup
}

// NewMonitor creates a monitor probing through prober.
func NewMonitor(cfg MonitorConfig, prober Prober) *Monitor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Monitor{
		cfg:     cfg,
		prober:  prober,
		logger:  noopLogger{},
		watched: make(map[*Handle]struct{}),
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// SetInterest sets the predicate selecting which devices are probed.
// Devices it rejects stay registered but generate no network traffic.
// A nil predicate (the default) selects every device.
func (m *Monitor) SetInterest(pred func(h *Handle) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interest = pred
}

// OnTransition sets the callback invoked for every state change.
// It runs on the device's probe goroutine and must not block.
func (m *Monitor) OnTransition(fn func(t Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Watch starts probing h if it is of interest. Watching a handle twice is
// a no-op.
func (m *Monitor) Watch(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interest != nil && !m.interest(h) {
		m.logger.Debug("device not of interest, not probing", "device", h.id.String())
		return
	}
	if _, ok := m.watched[h]; ok {
		return
	}
	m.watched[h] = struct{}{}

	if !m.running {
		m.pending = append(m.pending, h)
		return
	}
	m.launch(h)
}

// launch must be called with m.mu held.
func (m *Monitor) launch(h *Handle) {
	ctx := m.ctx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, h)
	}()
}

// Start launches probe loops for every watched device.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrMonitorRunning
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	for _, h := range m.pending {
		m.launch(h)
	}
	m.pending = nil

	m.logger.Info("liveness monitor started",
		"devices", len(m.watched),
		"probe_interval", m.cfg.ProbeInterval,
		"max_retries", m.cfg.MaxRetries,
	)
	return nil
}

// Stop cancels all probe loops and waits for them to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()

	// Loops are gone; next Start relaunches every watched device. A Watch
	// during the wait already queued its handle, so rebuild from watched.
	m.mu.Lock()
	m.pending = make([]*Handle, 0, len(m.watched))
	for h := range m.watched {
		m.pending = append(m.pending, h)
	}
	m.mu.Unlock()
}

// run is the per-device loop: probe now, then on every tick.
func (m *Monitor) run(ctx context.Context, h *Handle) {
	probeTicker := time.NewTicker(m.cfg.ProbeInterval)
	defer probeTicker.Stop()

	var keepaliveC <-chan time.Time
	ka, canKeepalive := h.transport.(Keepaliver)
	if canKeepalive && m.cfg.KeepaliveInterval > 0 {
		keepaliveTicker := time.NewTicker(m.cfg.KeepaliveInterval)
		defer keepaliveTicker.Stop()
		keepaliveC = keepaliveTicker.C
	}

	m.probe(ctx, h)

	for {
		select {
		case <-ctx.Done():
			return
		case <-probeTicker.C:
			m.probe(ctx, h)
		case <-keepaliveC:
			m.keepalive(ctx, h, ka)
		}
	}
}

func (m *Monitor) probe(ctx context.Context, h *Handle) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	reachable, err := m.prober.Probe(probeCtx, h.id.Address, m.cfg.ProbeTimeout)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.getLogger().Debug("probe failed", "device", h.id.String(), "error", err)
		reachable = false
	}

	if tr, changed := m.observe(h, reachable, time.Now()); changed {
		m.report(tr)
	}
}

// observe applies one probe result to h and returns the transition, if any.
//
//   - unreachable, active, retries exhausted: inactive, retry reset
//   - unreachable, active: retry count incremented
//   - unreachable, not active: unchanged
//   - reachable, not active: active, retry reset
//   - reachable, active: retry reset
func (m *Monitor) observe(h *Handle, reachable bool, now time.Time) (Transition, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.state

	if !reachable {
		if prev != StateActive {
			return Transition{}, false
		}
		if h.retryCount >= m.cfg.MaxRetries {
			h.state = StateInactive
			h.retryCount = 0
			return Transition{Handle: h, From: prev, To: StateInactive, Event: EventUnreachable, At: now}, true
		}
		h.retryCount++
		return Transition{}, false
	}

	h.lastSeen = now
	h.retryCount = 0
	if prev == StateActive {
		return Transition{}, false
	}

	h.state = StateActive
	event := EventActive
	if prev == StateInactive {
		event = EventRediscovered
	}
	return Transition{Handle: h, From: prev, To: StateActive, Event: event, At: now}, true
}

func (m *Monitor) report(tr Transition) {
	m.mu.Lock()
	logger := m.logger
	callback := m.onTransition
	m.mu.Unlock()

	switch tr.Event {
	case EventUnreachable:
		logger.Warn("device became unreachable", "device", tr.Handle.id.String())
	case EventRediscovered:
		logger.Info("device rediscovered", "device", tr.Handle.id.String())
	default:
		logger.Debug("device active", "device", tr.Handle.id.String())
	}

	if callback != nil {
		callback(tr)
	}
}

// keepalive sends keepalive traffic unless a command or learning session
// holds the device; those keep the session alive on their own.
func (m *Monitor) keepalive(ctx context.Context, h *Handle, ka Keepaliver) {
	if !h.TryLock() {
		return
	}
	defer h.Unlock()

	if err := ka.Keepalive(ctx); err != nil {
		m.getLogger().Debug("keepalive failed", "device", h.id.String(), "error", err)
	}
}

func (m *Monitor) getLogger() Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logger
}
