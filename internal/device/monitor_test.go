package device_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-broadlink/internal/device"
	"github.com/nerrad567/gray-logic-broadlink/internal/device/devicetest"
)

type transitionRecorder struct {
	mu  sync.Mutex
	got []device.Transition
}

func (r *transitionRecorder) record(tr device.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, tr)
}

func (r *transitionRecorder) events() []device.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]device.Event, len(r.got))
	for i, tr := range r.got {
		out[i] = tr.Event
	}
	return out
}

func newWatchedHandle(t *testing.T, address string) *device.Handle {
	t.Helper()
	r := device.NewRegistry(nil)
	h, _ := r.Register(device.Identity{Address: address}, devicetest.NewTransport())
	return h
}

func TestMonitor_HysteresisThreeMisses(t *testing.T) {
	m := device.NewMonitor(device.DefaultMonitorConfig(), devicetest.NewProber())
	h := newWatchedHandle(t, "10.0.0.1")

	tr, changed := m.Observe(h, true)
	require.True(t, changed)
	assert.Equal(t, device.EventActive, tr.Event)
	assert.Equal(t, device.StateUnknown, tr.From)

	// Two soft misses are tolerated.
	for i := 1; i <= 2; i++ {
		_, changed = m.Observe(h, false)
		assert.False(t, changed)
		assert.Equal(t, device.StateActive, h.State())
		assert.Equal(t, i, h.RetryCount())
	}

	// The third miss transitions exactly once.
	tr, changed = m.Observe(h, false)
	require.True(t, changed)
	assert.Equal(t, device.EventUnreachable, tr.Event)
	assert.Equal(t, device.StateInactive, h.State())
	assert.Equal(t, 0, h.RetryCount())

	// Further misses emit nothing.
	for i := 0; i < 5; i++ {
		_, changed = m.Observe(h, false)
		assert.False(t, changed)
	}
	assert.Equal(t, device.StateInactive, h.State())

	tr, changed = m.Observe(h, true)
	require.True(t, changed)
	assert.Equal(t, device.EventRediscovered, tr.Event)
	assert.Equal(t, device.StateActive, h.State())
}

func TestMonitor_SingleMissDoesNotFlap(t *testing.T) {
	m := device.NewMonitor(device.DefaultMonitorConfig(), devicetest.NewProber())
	h := newWatchedHandle(t, "10.0.0.1")

	m.Observe(h, true)

	_, changed := m.Observe(h, false)
	assert.False(t, changed)
	assert.Equal(t, 1, h.RetryCount())

	_, changed = m.Observe(h, true)
	assert.False(t, changed)
	assert.Equal(t, device.StateActive, h.State())
	assert.Equal(t, 0, h.RetryCount(), "success resets the retry counter")
	assert.False(t, h.LastSeen().IsZero())
}

func TestMonitor_UnknownStaysUnknownWhenUnreachable(t *testing.T) {
	m := device.NewMonitor(device.DefaultMonitorConfig(), devicetest.NewProber())
	h := newWatchedHandle(t, "10.0.0.1")

	for i := 0; i < 5; i++ {
		_, changed := m.Observe(h, false)
		assert.False(t, changed)
	}
	assert.Equal(t, device.StateUnknown, h.State())
	assert.Equal(t, 0, h.RetryCount())
}

func TestMonitor_ConfigurableRetries(t *testing.T) {
	cfg := device.DefaultMonitorConfig()
	cfg.MaxRetries = 0
	m := device.NewMonitor(cfg, devicetest.NewProber())
	h := newWatchedHandle(t, "10.0.0.1")

	m.Observe(h, true)
	tr, changed := m.Observe(h, false)
	require.True(t, changed)
	assert.Equal(t, device.EventUnreachable, tr.Event)
}

func fastConfig() device.MonitorConfig {
	return device.MonitorConfig{
		ProbeInterval:     10 * time.Millisecond,
		ProbeTimeout:      5 * time.Millisecond,
		MaxRetries:        2,
		KeepaliveInterval: 0,
	}
}

func TestMonitor_ProbeLoop(t *testing.T) {
	prober := devicetest.NewProber()
	prober.Script("10.0.0.1",
		devicetest.ProbeResult{Reachable: true},
		devicetest.ProbeResult{Err: errors.New("icmp: permission denied")},
		devicetest.ProbeResult{Reachable: false},
		devicetest.ProbeResult{Reachable: false},
	)

	m := device.NewMonitor(fastConfig(), prober)
	rec := &transitionRecorder{}
	m.OnTransition(rec.record)

	r := device.NewRegistry(nil)
	r.SetWatcher(m)
	h, _ := r.Register(device.Identity{Address: "10.0.0.1"}, devicetest.NewTransport())

	require.NoError(t, m.Start(t.Context()))
	defer m.Stop()

	require.Eventually(t, func() bool { return h.State() == device.StateInactive }, 2*time.Second, 5*time.Millisecond)

	// Let a few more failing probes run; the unreachable event must not repeat.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []device.Event{device.EventActive, device.EventUnreachable}, rec.events())
}

func TestMonitor_InterestPredicate(t *testing.T) {
	prober := devicetest.NewProber()
	m := device.NewMonitor(fastConfig(), prober)
	m.SetInterest(func(h *device.Handle) bool { return h.Identity().Address == "10.0.0.1" })

	r := device.NewRegistry(nil)
	r.SetWatcher(m)
	r.Register(device.Identity{Address: "10.0.0.1"}, devicetest.NewTransport())
	r.Register(device.Identity{Address: "10.0.0.2"}, devicetest.NewTransport())

	require.NoError(t, m.Start(t.Context()))
	require.Eventually(t, func() bool { return prober.Calls("10.0.0.1") > 0 }, time.Second, 5*time.Millisecond)
	m.Stop()

	assert.Equal(t, 0, prober.Calls("10.0.0.2"), "devices outside the allow-list are never probed")
}

func TestMonitor_StartTwice(t *testing.T) {
	m := device.NewMonitor(fastConfig(), devicetest.NewProber())
	require.NoError(t, m.Start(t.Context()))
	defer m.Stop()

	assert.ErrorIs(t, m.Start(t.Context()), device.ErrMonitorRunning)
}

func TestMonitor_StopIsClean(t *testing.T) {
	prober := devicetest.NewProber()
	prober.Script("10.0.0.1", devicetest.ProbeResult{Reachable: true})
	m := device.NewMonitor(fastConfig(), prober)

	r := device.NewRegistry(nil)
	r.SetWatcher(m)
	r.Register(device.Identity{Address: "10.0.0.1"}, devicetest.NewTransport())

	require.NoError(t, m.Start(t.Context()))
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	calls := prober.Calls("10.0.0.1")
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, calls, prober.Calls("10.0.0.1"), "no probes after Stop")

	m.Stop()
}

func TestMonitor_KeepaliveSkipsBusyDevice(t *testing.T) {
	cfg := fastConfig()
	cfg.ProbeInterval = time.Hour
	cfg.KeepaliveInterval = 10 * time.Millisecond

	m := device.NewMonitor(cfg, devicetest.NewProber())
	r := device.NewRegistry(nil)
	r.SetWatcher(m)
	tr := devicetest.NewTransport()
	h, _ := r.Register(device.Identity{Address: "10.0.0.1"}, tr)

	require.NoError(t, h.Lock(t.Context()))
	require.NoError(t, m.Start(t.Context()))
	defer m.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, tr.Count("keepalive"), "keepalive never interleaves with a held lock")

	h.Unlock()
	require.Eventually(t, func() bool { return tr.Count("keepalive") > 0 }, time.Second, 5*time.Millisecond)
}

// gatedProber blocks the first probe until released, holding Stop in its
// wait for probe loops.
type gatedProber struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *gatedProber) Probe(_ context.Context, _ string, _ time.Duration) (bool, error) {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	return true, nil
}

func TestMonitor_WatchDuringStopQueuesOnce(t *testing.T) {
	prober := &gatedProber{entered: make(chan struct{}), release: make(chan struct{})}
	m := device.NewMonitor(fastConfig(), prober)

	r := device.NewRegistry(nil)
	r.SetWatcher(m)
	require.NoError(t, m.Start(t.Context()))
	r.Register(device.Identity{Address: "10.0.0.1"}, devicetest.NewTransport())
	<-prober.entered

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	require.Eventually(t, func() bool { return !m.Running() }, time.Second, time.Millisecond)

	// Registered while Stop waits for the blocked probe loop.
	r.Register(device.Identity{Address: "10.0.0.2"}, devicetest.NewTransport())
	close(prober.release)
	<-stopped

	assert.Equal(t, 2, m.Pending(), "each watched device is queued exactly once")
}
