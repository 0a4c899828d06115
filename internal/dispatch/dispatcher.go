package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-broadlink/internal/device"
	"github.com/nerrad567/gray-logic-broadlink/internal/ircode"
)

// DefaultTimeout bounds a dispatch when neither the caller nor the first
// step supplies a timeout.
const DefaultTimeout = 60 * time.Second

// Resolver maps a selector to a device handle. *device.Registry implements it.
type Resolver interface {
	Resolve(selector string, want device.Capabilities) (*device.Handle, error)
}

// Fallback performs a best-effort send when no registered device matches
// the selector. It runs without any device lock.
type Fallback interface {
	SendBestEffort(ctx context.Context, selector string, data []byte) error
}

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Report is passed to the outcome hook after every dispatch.
type Report struct {
	Selector string
	// Device is the resolved device address, empty when none resolved.
	Device  string
	Outcome Outcome
	Elapsed time.Duration
}

// Stats are cumulative dispatch counters.
type Stats struct {
	Commands int64
	Sends    int64
	Failures int64
	TimedOut int64
}

// Dispatcher runs commands against devices from a Resolver.
//
// Thread Safety:
//   - Dispatch may be called concurrently. Calls for the same device are
//     serialised by the device lock.
type Dispatcher struct {
	resolver       Resolver
	defaultTimeout time.Duration

	mu        sync.RWMutex
	fallback  Fallback
	logger    Logger
	onOutcome func(Report)

	commands atomic.Int64
	sends    atomic.Int64
	failures atomic.Int64
	timedOut atomic.Int64
}

// New creates a Dispatcher. defaultTimeout <= 0 selects DefaultTimeout.
func New(resolver Resolver, defaultTimeout time.Duration) *Dispatcher {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Dispatcher{
		resolver:       resolver,
		defaultTimeout: defaultTimeout,
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = logger
}

// SetFallback sets the best-effort sender used for unresolved selectors.
func (d *Dispatcher) SetFallback(f Fallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = f
}

// OnOutcome sets a hook invoked after every dispatch (telemetry).
func (d *Dispatcher) OnOutcome(fn func(Report)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onOutcome = fn
}

// Stats returns cumulative counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Commands: d.commands.Load(),
		Sends:    d.sends.Load(),
		Failures: d.failures.Load(),
		TimedOut: d.timedOut.Load(),
	}
}

func (d *Dispatcher) getLogger() Logger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.logger
}

// Dispatch executes cmd against the device selected by selector.
//
// The device lock is acquired first (waiting on ctx), then the deadline
// starts. If no device resolves, a best-effort send of the first payload
// is attempted without a lock and the degraded Outcome
// {Attempted: 0, Failed: -1} is returned with a nil error.
//
// Parameters:
//   - ctx: Cancels the dispatch, including the wait for the device lock
//   - selector: Device address or MAC; "" or "_" selects the first device
//   - cmd: Command to run
//   - timeout: Overall deadline; zero uses the first step's Timeout, then
//     the dispatcher default
//
// Returns:
//   - Outcome: Tally of attempted and failed sends
//   - error: ErrInvalidCommand for malformed commands, or the ctx error if
//     the lock could not be acquired
func (d *Dispatcher) Dispatch(ctx context.Context, selector string, cmd Command, timeout time.Duration) (Outcome, error) {
	if err := cmd.Validate(); err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	logger := d.getLogger()

	h, err := d.resolver.Resolve(selector, device.CapSend)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			return Outcome{}, fmt.Errorf("resolving %q: %w", selector, err)
		}
		logger.Warn("no device for command, sending best effort", "selector", selector)
		d.bestEffort(ctx, selector, cmd)
		d.finish(Report{Selector: selector, Outcome: notFoundOutcome, Elapsed: time.Since(start)})
		return notFoundOutcome, nil
	}

	if err := h.Lock(ctx); err != nil {
		out := Outcome{Canceled: true}
		d.finish(Report{Selector: selector, Device: h.Identity().Address, Outcome: out, Elapsed: time.Since(start)})
		return out, fmt.Errorf("waiting for device %s: %w", h.Identity().Address, err)
	}
	defer h.Unlock()

	deadline := d.timeoutFor(cmd, timeout)
	dctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	out := d.run(dctx, ctx, h, cmd)

	logger.Info("command dispatched",
		"device", h.Identity().Address,
		"attempted", out.Attempted,
		"failed", out.Failed,
		"timed_out", out.TimedOut,
		"canceled", out.Canceled,
	)
	d.finish(Report{Selector: selector, Device: h.Identity().Address, Outcome: out, Elapsed: time.Since(start)})
	return out, nil
}

// timeoutFor picks the deadline: caller, then first step, then default.
func (d *Dispatcher) timeoutFor(cmd Command, timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if len(cmd.Sequence) > 0 && cmd.Sequence[0].Timeout > 0 {
		return cmd.Sequence[0].Timeout
	}
	return d.defaultTimeout
}

// run walks the steps under dctx. parent distinguishes caller
// cancellation from deadline expiry.
func (d *Dispatcher) run(dctx, parent context.Context, h *device.Handle, cmd Command) Outcome {
	var out Outcome
	t := h.Transport()
	logger := d.getLogger()

	stop := func(err error) Outcome {
		if parent.Err() != nil {
			out.Canceled = true
		} else if errors.Is(err, context.DeadlineExceeded) {
			out.TimedOut = true
		}
		return out
	}

	steps := cmd.steps()
	for i, step := range steps {
		n := step.repeats()
		if n > 0 {
			data, err := ircode.Decode(step.Data)
			if err != nil {
				if ctxErr := dctx.Err(); ctxErr != nil {
					return stop(ctxErr)
				}
				logger.Warn("payload conversion failed, step skipped", "step", i, "error", err)
				out.Attempted++
				out.Failed++
				n = 0
			}

			for rep := 0; rep < n; rep++ {
				if err := dctx.Err(); err != nil {
					return stop(err)
				}
				out.Attempted++
				if err := t.SendData(dctx, data); err != nil {
					out.Failed++
					logger.Debug("send failed", "device", h.Identity().Address, "step", i, "repeat", rep, "error", err)
				}
				if rep < n-1 {
					if err := sleep(dctx, step.Interval); err != nil {
						return stop(err)
					}
				}
			}
		}

		if err := sleep(dctx, step.Pause); err != nil {
			// Every send went out; a deadline or cancel during the
			// trailing pause only shortens the spacing.
			if i == len(steps)-1 {
				return out
			}
			return stop(err)
		}
	}

	return out
}

func (d *Dispatcher) bestEffort(ctx context.Context, selector string, cmd Command) {
	d.mu.RLock()
	fallback := d.fallback
	d.mu.RUnlock()

	logger := d.getLogger()
	if fallback == nil {
		logger.Debug("no fallback sender configured", "selector", selector)
		return
	}

	steps := cmd.steps()
	var payload string
	for _, s := range steps {
		if s.Data != "" {
			payload = s.Data
			break
		}
	}

	data, err := ircode.Decode(payload)
	if err != nil {
		logger.Warn("best-effort payload conversion failed", "selector", selector, "error", err)
		return
	}
	if err := fallback.SendBestEffort(ctx, selector, data); err != nil {
		logger.Warn("best-effort send failed", "selector", selector, "error", err)
	}
}

func (d *Dispatcher) finish(r Report) {
	d.commands.Add(1)
	if r.Outcome.Attempted > 0 {
		d.sends.Add(int64(r.Outcome.Attempted))
	}
	if r.Outcome.Failed > 0 {
		d.failures.Add(int64(r.Outcome.Failed))
	}
	if r.Outcome.TimedOut {
		d.timedOut.Add(1)
	}

	d.mu.RLock()
	hook := d.onOutcome
	d.mu.RUnlock()
	if hook != nil {
		hook(r)
	}
}

// sleep waits d or until ctx ends. A non-positive d still reports an
// already-expired ctx.
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
