package device

import (
	"context"
	"sync"
	"time"
)

// Handle is a registered device: its identity, its Transport and the
// exclusive lock serialising access to that Transport.
//
// Liveness fields are written only by the Monitor.
type Handle struct {
	id        Identity
	transport Transport

	// lock is a one-slot semaphore so waiters can give up on ctx.
	lock chan struct{}

	mu         sync.RWMutex
	state      State
	retryCount int
	lastSeen   time.Time
	firmware   int
}

func newHandle(id Identity, t Transport) *Handle {
	return &Handle{
		id:        id,
		transport: t,
		lock:      make(chan struct{}, 1),
	}
}

// Identity returns the device's network identity.
func (h *Handle) Identity() Identity { return h.id }

// Transport returns the device transport. Callers must hold the lock.
func (h *Handle) Transport() Transport { return h.transport }

// Capabilities reports what the device supports.
func (h *Handle) Capabilities() Capabilities { return h.transport.Capabilities() }

// Supports reports whether the device has every capability in want.
func (h *Handle) Supports(want Capabilities) bool {
	return h.Capabilities().Has(want)
}

// Lock acquires the device's exclusive command lock, waiting until it is
// free or ctx is done. The lock is not reentrant.
func (h *Handle) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case h.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock acquires the lock only if it is free.
func (h *Handle) TryLock() bool {
	select {
	case h.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the lock. Unlocking an unlocked handle panics.
func (h *Handle) Unlock() {
	select {
	case <-h.lock:
	default:
		panic("device: unlock of unlocked handle")
	}
}

// QueryFirmware reads the firmware version under the device lock and
// remembers it for Firmware.
func (h *Handle) QueryFirmware(ctx context.Context) (int, error) {
	if err := h.Lock(ctx); err != nil {
		return 0, err
	}
	v, err := h.transport.FirmwareVersion(ctx)
	h.Unlock()
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	h.firmware = v
	h.mu.Unlock()
	return v, nil
}

// Firmware returns the last queried firmware version, or 0 if unknown.
func (h *Handle) Firmware() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.firmware
}

// State returns the current liveness state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// RetryCount returns the number of consecutive soft probe failures.
func (h *Handle) RetryCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.retryCount
}

// LastSeen returns when the device last answered a probe.
func (h *Handle) LastSeen() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastSeen
}

// placeholderTransport backs manual registrations made without a
// transport factory. Every operation fails with ErrNoTransport.
type placeholderTransport struct{}

func (placeholderTransport) Capabilities() Capabilities                  { return CapSend | CapLearn }
func (placeholderTransport) SendData(context.Context, []byte) error      { return ErrNoTransport }
func (placeholderTransport) EnterLearning(context.Context) error         { return ErrNoTransport }
func (placeholderTransport) CancelLearning(context.Context) error        { return ErrNoTransport }
func (placeholderTransport) CheckData(context.Context) ([]byte, error)   { return nil, ErrNoTransport }
func (placeholderTransport) SweepFrequency(context.Context) error        { return ErrNoTransport }
func (placeholderTransport) CancelSweepFrequency(context.Context) error  { return ErrNoTransport }
func (placeholderTransport) FindRFPacket(context.Context, float64) error { return ErrNoTransport }
func (placeholderTransport) FirmwareVersion(context.Context) (int, error) {
	return 0, ErrNoTransport
}
func (placeholderTransport) CheckFrequency(context.Context) (FrequencyLock, error) {
	return FrequencyLock{}, ErrNoTransport
}
