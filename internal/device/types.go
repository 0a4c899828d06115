package device

import (
	"context"
	"strings"
	"time"
)

// Identity is a device's network identity. It does not change once the
// device has been discovered.
type Identity struct {
	Address string `json:"address"`
	MAC     string `json:"mac,omitempty"`
}

// Key returns the preferred stable key: the MAC when known, else the address.
func (id Identity) Key() string {
	if mac := NormalizeMAC(id.MAC); mac != "" {
		return mac
	}
	return normalizeKey(id.Address)
}

func (id Identity) String() string {
	if id.MAC == "" {
		return id.Address
	}
	return id.Address + " (" + NormalizeMAC(id.MAC) + ")"
}

// NormalizeMAC lowercases a MAC and uses colons as separators.
func NormalizeMAC(mac string) string {
	return strings.ReplaceAll(normalizeKey(mac), "-", ":")
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Capabilities is the set of operations a device model supports.
type Capabilities uint8

const (
	// CapSend covers plain IR/RF transmission.
	CapSend Capabilities = 1 << iota
	// CapLearn covers IR learning.
	CapLearn
	// CapRF covers RF frequency sweep and RF packet capture.
	CapRF
)

// Has reports whether every capability in want is present.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

func (c Capabilities) String() string {
	var parts []string
	if c.Has(CapSend) {
		parts = append(parts, "send")
	}
	if c.Has(CapLearn) {
		parts = append(parts, "learn")
	}
	if c.Has(CapRF) {
		parts = append(parts, "rf")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// State is a device's liveness state.
type State int

const (
	StateUnknown State = iota
	StateActive
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// FrequencyLock is the result of an RF frequency check.
type FrequencyLock struct {
	Locked bool
	// Frequency in MHz. Meaningful while sweeping even when not locked.
	Frequency float64
}

// Transport performs radio I/O for one device.
//
// Implementations are stateful and cannot interleave requests; callers
// hold the owning Handle's lock around every call.
type Transport interface {
	// Capabilities reports what the device model supports.
	Capabilities() Capabilities

	// SendData transmits one native-format IR/RF payload.
	SendData(ctx context.Context, data []byte) error

	// EnterLearning arms IR capture.
	EnterLearning(ctx context.Context) error

	// CancelLearning disarms IR or RF capture.
	CancelLearning(ctx context.Context) error

	// CheckData returns a captured payload, or nil when nothing has been
	// captured yet.
	CheckData(ctx context.Context) ([]byte, error)

	// SweepFrequency starts an RF frequency sweep.
	SweepFrequency(ctx context.Context) error

	// CancelSweepFrequency stops a running sweep.
	CancelSweepFrequency(ctx context.Context) error

	// CheckFrequency reports whether the sweep has locked on a frequency.
	CheckFrequency(ctx context.Context) (FrequencyLock, error)

	// FindRFPacket arms RF packet capture at frequency MHz. Zero lets the
	// device use the frequency found by the last sweep.
	FindRFPacket(ctx context.Context, frequency float64) error

	// FirmwareVersion returns the device firmware version.
	FirmwareVersion(ctx context.Context) (int, error)
}

// Keepaliver is implemented by transports that need periodic traffic to
// keep the device's session alive.
type Keepaliver interface {
	Keepalive(ctx context.Context) error
}

// Debugger is implemented by transports with switchable packet logging.
type Debugger interface {
	Debug() bool
	SetDebug(enabled bool)
}

// Prober checks whether an address is reachable without touching the
// device's command channel.
type Prober interface {
	Probe(ctx context.Context, address string, timeout time.Duration) (bool, error)
}

// Logger defines the logging interface used by this package.
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
