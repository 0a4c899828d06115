package learning

import (
	"time"

	"github.com/nerrad567/gray-logic-broadlink/internal/device"
)

// Kind distinguishes IR and RF sessions.
type Kind string

const (
	KindIR Kind = "ir"
	KindRF Kind = "rf"
)

// required returns the capabilities a kind needs.
func (k Kind) required() device.Capabilities {
	if k == KindRF {
		return device.CapLearn | device.CapRF
	}
	return device.CapLearn
}

// State is a session state.
type State string

const (
	StateIdle          State = "idle"
	StateArmed         State = "armed"
	StatePolling       State = "polling"
	StateSweeping      State = "sweeping"
	StateLocked        State = "locked"
	StateCaptured      State = "captured"
	StateTimedOut      State = "timed_out"
	StateSweepTimedOut State = "sweep_timed_out"
	StateFailed        State = "failed"
	StateCanceled      State = "canceled"
)

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	switch s {
	case StateCaptured, StateTimedOut, StateSweepTimedOut, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Config holds timing parameters. Zero values take the defaults.
type Config struct {
	// PollInterval separates capture and frequency polls. Default: 1s
	PollInterval time.Duration
	// IRTimeout bounds IR polling. Default: 10s
	IRTimeout time.Duration
	// SweepTimeout bounds the RF frequency sweep. Default: 30s
	SweepTimeout time.Duration
	// CaptureTimeout bounds RF packet polling. Default: 30s
	CaptureTimeout time.Duration
	// LockPause is the operator changeover time after a frequency lock.
	// Default: 3s. Negative disables the pause.
	LockPause time.Duration
	// Debug turns on transport packet logging for the session.
	Debug bool
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:   time.Second,
		IRTimeout:      10 * time.Second,
		SweepTimeout:   30 * time.Second,
		CaptureTimeout: 30 * time.Second,
		LockPause:      3 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.IRTimeout <= 0 {
		c.IRTimeout = d.IRTimeout
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = d.SweepTimeout
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = d.CaptureTimeout
	}
	if c.LockPause == 0 {
		c.LockPause = d.LockPause
	}
	return c
}

// Request starts a session.
type Request struct {
	// Selector picks the device; "" or "_" selects the first capable one.
	Selector string

	// Frequency in MHz skips the RF sweep when positive. Ignored for IR.
	Frequency float64

	// OnFinished is called exactly once when the session ends.
	OnFinished func(Result)

	// OnProgress is called on state changes and sweep updates.
	OnProgress func(Progress)
}

// Progress reports a non-terminal session update.
type Progress struct {
	SessionID string  `json:"session_id"`
	Kind      Kind    `json:"kind"`
	Device    string  `json:"device"`
	State     State   `json:"state"`
	Frequency float64 `json:"frequency,omitempty"`
	Locked    bool    `json:"locked,omitempty"`
}

// Result is the terminal report of a session.
type Result struct {
	SessionID string        `json:"session_id"`
	Kind      Kind          `json:"kind"`
	Device    string        `json:"device"`
	State     State         `json:"state"`
	Data      string        `json:"data,omitempty"`
	Frequency float64       `json:"frequency,omitempty"`
	Elapsed   time.Duration `json:"-"`
	Err       error         `json:"-"`
}

// Captured reports whether a code was captured.
func (r Result) Captured() bool {
	return r.State == StateCaptured
}

// Logger defines the logging interface used by the controllers.
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
