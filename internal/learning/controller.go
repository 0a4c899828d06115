package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-broadlink/internal/device"
)

// Resolver maps a selector to a device handle. *device.Registry implements it.
type Resolver interface {
	Resolve(selector string, want device.Capabilities) (*device.Handle, error)
	LookupFirst(pred func(h *device.Handle) bool) (*device.Handle, bool)
}

// Controller runs learning sessions of one Kind, one at a time.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Controller struct {
	kind     Kind
	resolver Resolver
	cfg      Config

	mu     sync.Mutex
	logger Logger
	active *Session
	wg     sync.WaitGroup
}

// NewIR creates an IR learning controller.
func NewIR(resolver Resolver, cfg Config) *Controller {
	return newController(KindIR, resolver, cfg)
}

// NewRF creates an RF learning controller.
func NewRF(resolver Resolver, cfg Config) *Controller {
	return newController(KindRF, resolver, cfg)
}

func newController(kind Kind, resolver Resolver, cfg Config) *Controller {
	return &Controller{
		kind:     kind,
		resolver: resolver,
		cfg:      cfg.withDefaults(),
		logger:   noopLogger{},
	}
}

// Kind returns the controller's session kind.
func (c *Controller) Kind() Kind { return c.kind }

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

func (c *Controller) getLogger() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// Start begins a session for req.
//
// The device is resolved before Start returns. On failure no session is
// created, no transport call is made and OnFinished is not invoked. A
// session already active on this controller is canceled first.
//
// Parameters:
//   - ctx: Parent of the session context; canceling it cancels the session
//   - req: Target selector, optional RF frequency and callbacks
//
// Returns:
//   - *Session: Handle used to cancel or await the session
//   - error: device.ErrDeviceNotFound or device.ErrUnsupported
func (c *Controller) Start(ctx context.Context, req Request) (*Session, error) {
	h, err := c.resolve(req.Selector)
	if err != nil {
		c.getLogger().Warn("learning not started", "kind", c.kind, "selector", req.Selector, "error", err)
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     uuid.NewString(),
		kind:   c.kind,
		handle: h,
		req:    req,
		cfg:    c.cfg,
		logger: c.getLogger(),
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateIdle,
	}

	c.mu.Lock()
	prev := c.active
	c.active = s
	c.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	s.logger.Info("learning started",
		"kind", c.kind,
		"session", s.id,
		"device", h.Identity().Address,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		s.run(sctx)
		c.release(s)
	}()

	return s, nil
}

// resolve finds a capable device. A first-device selector that matches
// nothing capable, while devices exist, reports ErrUnsupported.
func (c *Controller) resolve(selector string) (*device.Handle, error) {
	want := c.kind.required()

	h, err := c.resolver.Resolve(selector, want)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) && (selector == "" || selector == device.FirstDevice) {
			if _, exists := c.resolver.LookupFirst(nil); exists {
				return nil, fmt.Errorf("%w: no device supports %s learning", device.ErrUnsupported, c.kind)
			}
		}
		return nil, err
	}

	if !h.Supports(want) {
		return nil, fmt.Errorf("%w: %s has %s, needs %s",
			device.ErrUnsupported, h.Identity().Address, h.Capabilities(), want)
	}
	return h, nil
}

func (c *Controller) release(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == s {
		c.active = nil
	}
}

// Active returns the running session, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Stop cancels the active session. It is a no-op when none is active.
func (c *Controller) Stop() {
	if s := c.Active(); s != nil {
		s.Cancel()
	}
}

// Close cancels any active session and waits for session goroutines.
func (c *Controller) Close() {
	c.Stop()
	c.wg.Wait()
}
