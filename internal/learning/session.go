package learning

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-broadlink/internal/device"
	"github.com/nerrad567/gray-logic-broadlink/internal/ircode"
)

// cleanupTimeout bounds the disarm call made after a timeout or cancel.
const cleanupTimeout = 5 * time.Second

// Session is one learning attempt.
type Session struct {
	id     string
	kind   Kind
	handle *device.Handle
	req    Request
	cfg    Config
	logger Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	state  State
	result Result
	once   sync.Once
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Kind returns the session kind.
func (s *Session) Kind() Kind { return s.kind }

// Device returns the target device address.
func (s *Session) Device() string { return s.handle.Identity().Address }

// Done is closed after OnFinished has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Cancel ends the session. Safe to call repeatedly and after completion.
func (s *Session) Cancel() { s.cancel() }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the terminal result once the session is done.
func (s *Session) Result() (Result, bool) {
	select {
	case <-s.done:
	default:
		return Result{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, true
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) progress(st State, freq float64, locked bool) {
	s.setState(st)
	if s.req.OnProgress == nil {
		return
	}
	s.req.OnProgress(Progress{
		SessionID: s.id,
		Kind:      s.kind,
		Device:    s.Device(),
		State:     st,
		Frequency: freq,
		Locked:    locked,
	})
}

// run executes the session and reports its result.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	start := time.Now()
	res := s.execute(ctx)
	res.SessionID = s.id
	res.Kind = s.kind
	res.Device = s.Device()
	res.Elapsed = time.Since(start)

	s.finish(res)
}

func (s *Session) finish(res Result) {
	s.once.Do(func() {
		s.mu.Lock()
		s.state = res.State
		s.result = res
		s.mu.Unlock()

		s.logger.Info("learning finished",
			"kind", s.kind,
			"session", s.id,
			"device", res.Device,
			"state", res.State,
			"elapsed", res.Elapsed,
		)

		if s.req.OnFinished != nil {
			s.req.OnFinished(res)
		}
	})
}

func (s *Session) execute(ctx context.Context) Result {
	if err := s.handle.Lock(ctx); err != nil {
		return Result{State: StateCanceled, Err: ErrCanceled}
	}
	defer s.handle.Unlock()

	t := s.handle.Transport()

	if s.cfg.Debug {
		if dbg, ok := t.(device.Debugger); ok {
			saved := dbg.Debug()
			dbg.SetDebug(true)
			defer dbg.SetDebug(saved)
		}
	}

	if s.kind == KindRF {
		return s.learnRF(ctx, t)
	}
	return s.learnIR(ctx, t)
}

func (s *Session) learnIR(ctx context.Context, t device.Transport) Result {
	s.progress(StateArmed, 0, false)
	if err := t.EnterLearning(ctx); err != nil {
		if ctx.Err() != nil {
			return s.canceled(t.CancelLearning)
		}
		return Result{State: StateFailed, Err: err}
	}

	s.progress(StatePolling, 0, false)
	return s.capture(ctx, t, s.cfg.IRTimeout, 0)
}

func (s *Session) learnRF(ctx context.Context, t device.Transport) Result {
	freq := s.req.Frequency

	if freq <= 0 {
		s.progress(StateSweeping, 0, false)
		if err := t.SweepFrequency(ctx); err != nil {
			if ctx.Err() != nil {
				return s.canceled(t.CancelSweepFrequency)
			}
			return Result{State: StateFailed, Err: err}
		}

		locked, err := s.sweep(ctx, t)
		switch {
		case ctx.Err() != nil:
			return s.canceled(t.CancelSweepFrequency)
		case err != nil:
			s.disarm(t.CancelSweepFrequency)
			return Result{State: StateSweepTimedOut, Err: err}
		}
		freq = locked

		s.progress(StateLocked, freq, true)
		if err := sleep(ctx, s.cfg.LockPause); err != nil {
			return s.canceled(t.CancelSweepFrequency)
		}
	}

	s.progress(StateArmed, freq, true)
	if err := t.FindRFPacket(ctx, freq); err != nil {
		if ctx.Err() != nil {
			return s.canceled(t.CancelLearning)
		}
		return Result{State: StateFailed, Frequency: freq, Err: err}
	}

	s.progress(StatePolling, freq, true)
	return s.capture(ctx, t, s.cfg.CaptureTimeout, freq)
}

// sweep polls for a frequency lock until SweepTimeout.
func (s *Session) sweep(ctx context.Context, t device.Transport) (float64, error) {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.SweepTimeout)
	defer cancel()

	for {
		if err := sleep(pctx, s.cfg.PollInterval); err != nil {
			return 0, ErrNoFrequency
		}

		lock, err := t.CheckFrequency(pctx)
		if err != nil {
			if pctx.Err() != nil {
				return 0, ErrNoFrequency
			}
			s.logger.Debug("frequency check failed", "session", s.id, "error", err)
			continue
		}
		if lock.Locked {
			return lock.Frequency, nil
		}
		s.progress(StateSweeping, lock.Frequency, false)
	}
}

// capture polls for captured data until timeout.
func (s *Session) capture(ctx context.Context, t device.Transport, timeout time.Duration, freq float64) Result {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if err := sleep(pctx, s.cfg.PollInterval); err != nil {
			break
		}

		data, err := t.CheckData(pctx)
		if err != nil {
			if pctx.Err() != nil {
				break
			}
			s.logger.Debug("data check failed", "session", s.id, "error", err)
			continue
		}
		if len(data) > 0 {
			return Result{State: StateCaptured, Data: ircode.Encode(data), Frequency: freq}
		}
	}

	if ctx.Err() != nil {
		return s.canceled(t.CancelLearning)
	}
	s.disarm(t.CancelLearning)
	return Result{State: StateTimedOut, Frequency: freq, Err: ErrTimeout}
}

func (s *Session) canceled(disarm func(context.Context) error) Result {
	s.disarm(disarm)
	return Result{State: StateCanceled, Err: ErrCanceled}
}

// disarm runs a device cleanup call detached from the session context.
func (s *Session) disarm(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := fn(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("disarming device failed", "session", s.id, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
