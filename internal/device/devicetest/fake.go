// Package devicetest provides in-memory fakes of device.Transport and
// device.Prober for tests.
package devicetest

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-broadlink/internal/device"
)

// Call records one transport invocation.
type Call struct {
	Op        string
	Data      []byte
	Frequency float64
	At        time.Time
}

// Transport is a scriptable fake device.Transport. It records every call
// and tracks overlapping calls so tests can assert mutual exclusion.
type Transport struct {
	mu sync.Mutex

	Caps device.Capabilities

	// SendErr, when set, is returned by SendData for payloads it maps.
	SendErr func(data []byte) error
	// SendDelay is slept inside SendData.
	SendDelay time.Duration

	// CheckDataAfter makes CheckData return Captured on the Nth call (1-based).
	// Zero never captures.
	CheckDataAfter int
	Captured       []byte

	// FrequencyLockAfter makes CheckFrequency lock on the Nth call.
	// Zero never locks.
	FrequencyLockAfter int
	LockedFrequency    float64

	// Err, when set, is returned by every learning primitive.
	Err error

	debug bool

	calls          []Call
	checkDataCalls int
	checkFreqCalls int
	inFlight       int
	maxInFlight    int
}

// NewTransport returns a fake with send, learn and RF capabilities.
func NewTransport() *Transport {
	return &Transport{Caps: device.CapSend | device.CapLearn | device.CapRF}
}

func (t *Transport) enter(op string, data []byte, freq float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight++
	if t.inFlight > t.maxInFlight {
		t.maxInFlight = t.inFlight
	}
	var copied []byte
	if data != nil {
		copied = append([]byte(nil), data...)
	}
	t.calls = append(t.calls, Call{Op: op, Data: copied, Frequency: freq, At: time.Now()})
}

func (t *Transport) leave() {
	t.mu.Lock()
	t.inFlight--
	t.mu.Unlock()
}

// Capabilities implements device.Transport.
func (t *Transport) Capabilities() device.Capabilities {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Caps
}

// SendData implements device.Transport.
func (t *Transport) SendData(ctx context.Context, data []byte) error {
	t.enter("send", data, 0)
	defer t.leave()

	if t.SendDelay > 0 {
		select {
		case <-time.After(t.SendDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if t.SendErr != nil {
		return t.SendErr(data)
	}
	return nil
}

// EnterLearning implements device.Transport.
func (t *Transport) EnterLearning(context.Context) error {
	t.enter("enter_learning", nil, 0)
	defer t.leave()
	return t.Err
}

// CancelLearning implements device.Transport.
func (t *Transport) CancelLearning(context.Context) error {
	t.enter("cancel_learning", nil, 0)
	defer t.leave()
	return nil
}

// CheckData implements device.Transport.
func (t *Transport) CheckData(context.Context) ([]byte, error) {
	t.enter("check_data", nil, 0)
	defer t.leave()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	t.checkDataCalls++
	if t.CheckDataAfter > 0 && t.checkDataCalls >= t.CheckDataAfter {
		return t.Captured, nil
	}
	return nil, nil
}

// SweepFrequency implements device.Transport.
func (t *Transport) SweepFrequency(context.Context) error {
	t.enter("sweep", nil, 0)
	defer t.leave()
	return t.Err
}

// CancelSweepFrequency implements device.Transport.
func (t *Transport) CancelSweepFrequency(context.Context) error {
	t.enter("cancel_sweep", nil, 0)
	defer t.leave()
	return nil
}

// CheckFrequency implements device.Transport.
func (t *Transport) CheckFrequency(context.Context) (device.FrequencyLock, error) {
	t.enter("check_frequency", nil, 0)
	defer t.leave()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return device.FrequencyLock{}, t.Err
	}
	t.checkFreqCalls++
	if t.FrequencyLockAfter > 0 && t.checkFreqCalls >= t.FrequencyLockAfter {
		return device.FrequencyLock{Locked: true, Frequency: t.LockedFrequency}, nil
	}
	return device.FrequencyLock{Frequency: 300 + float64(t.checkFreqCalls)}, nil
}

// FindRFPacket implements device.Transport.
func (t *Transport) FindRFPacket(_ context.Context, frequency float64) error {
	t.enter("find_rf_packet", nil, frequency)
	defer t.leave()
	return t.Err
}

// FirmwareVersion implements device.Transport.
func (t *Transport) FirmwareVersion(context.Context) (int, error) {
	t.enter("firmware", nil, 0)
	defer t.leave()
	return 55, nil
}

// Keepalive implements device.Keepaliver.
func (t *Transport) Keepalive(context.Context) error {
	t.enter("keepalive", nil, 0)
	defer t.leave()
	return nil
}

// Debug implements device.Debugger.
func (t *Transport) Debug() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.debug
}

// SetDebug implements device.Debugger.
func (t *Transport) SetDebug(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.debug = enabled
}

// Calls returns a copy of the recorded calls.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// CallsOf returns the recorded calls with the given op.
func (t *Transport) CallsOf(op string) []Call {
	var out []Call
	for _, c := range t.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times op was called.
func (t *Transport) Count(op string) int {
	return len(t.CallsOf(op))
}

// MaxInFlight returns the highest number of concurrently running calls.
func (t *Transport) MaxInFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxInFlight
}

// Prober is a fake device.Prober returning scripted results per address.
type Prober struct {
	mu      sync.Mutex
	results map[string][]ProbeResult
	calls   map[string]int
}

// ProbeResult is one scripted probe answer.
type ProbeResult struct {
	Reachable bool
	Err       error
}

// NewProber creates a prober that reports every address unreachable
// until scripted.
func NewProber() *Prober {
	return &Prober{
		results: make(map[string][]ProbeResult),
		calls:   make(map[string]int),
	}
}

// Script queues results for address. The last result repeats.
func (p *Prober) Script(address string, results ...ProbeResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[address] = append(p.results[address], results...)
}

// Probe implements device.Prober.
func (p *Prober) Probe(_ context.Context, address string, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.calls[address]
	p.calls[address] = n + 1

	queue := p.results[address]
	if len(queue) == 0 {
		return false, nil
	}
	if n >= len(queue) {
		n = len(queue) - 1
	}
	return queue[n].Reachable, queue[n].Err
}

// Calls returns how many probes address received.
func (p *Prober) Calls(address string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[address]
}
