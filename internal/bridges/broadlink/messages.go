package broadlink

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-broadlink/internal/device"
	"github.com/nerrad567/gray-logic-broadlink/internal/dispatch"
	"github.com/nerrad567/gray-logic-broadlink/internal/learning"
)

// ProtocolName identifies this bridge in acks and health messages.
const ProtocolName = "broadlink"

// Command names accepted on the command topic.
const (
	CommandSend      = "send"
	CommandLearnIR   = "learn_ir"
	CommandLearnRF   = "learn_rf"
	CommandLearnStop = "learn_stop"
)

// CommandMessage is sent from Core to Bridge.
// Topic: graylogic/command/broadlink/{selector}
type CommandMessage struct {
	// ID correlates the command with its ack. Generated if empty.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// Command is one of send, learn_ir, learn_rf, learn_stop.
	Command string `json:"command"`

	// Data is a single hex or Pronto payload (send).
	Data string `json:"data,omitempty"`

	// Sequence is a multi-step send. Mutually exclusive with Data.
	Sequence []StepMessage `json:"sequence,omitempty"`

	// Timeout in seconds bounds a send. Zero uses the configured default.
	Timeout float64 `json:"timeout,omitempty"`

	// Frequency in MHz skips the RF sweep (learn_rf).
	Frequency float64 `json:"frequency,omitempty"`

	// Kind selects which session learn_stop cancels: "ir", "rf" or both
	// when empty.
	Kind string `json:"kind,omitempty"`

	Source string `json:"source,omitempty"`
}

// StepMessage is one step of a sequence. Durations are in seconds.
type StepMessage struct {
	Data      string  `json:"data,omitempty"`
	SendCount int     `json:"send_count,omitempty"`
	Interval  float64 `json:"interval,omitempty"`
	Pause     float64 `json:"pause,omitempty"`
	Timeout   float64 `json:"timeout,omitempty"`
}

// ToCommand converts the wire form into a dispatch command.
func (m CommandMessage) ToCommand() dispatch.Command {
	if len(m.Sequence) == 0 {
		return dispatch.Command{Data: m.Data}
	}

	steps := make([]dispatch.Step, len(m.Sequence))
	for i, s := range m.Sequence {
		steps[i] = dispatch.Step{
			Data:      s.Data,
			SendCount: s.SendCount,
			Interval:  seconds(s.Interval),
			Pause:     seconds(s.Pause),
			Timeout:   seconds(s.Timeout),
		}
	}
	return dispatch.Command{Data: m.Data, Sequence: steps}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted means the command ran to completion or the session started.
	AckAccepted AckStatus = "accepted"
	// AckFailed means the command could not be executed, fully or partly.
	AckFailed AckStatus = "failed"
	// AckTimeout means the deadline cut the sequence short.
	AckTimeout AckStatus = "timeout"
)

// Error codes for command failures.
const (
	ErrCodeDeviceNotFound    = "DEVICE_NOT_FOUND"
	ErrCodeUnsupported       = "UNSUPPORTED"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeSendFailed        = "SEND_FAILED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage is sent from Bridge to Core for every command.
// Topic: graylogic/ack/broadlink/{selector}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// Selector is the topic suffix the command arrived on.
	Selector string `json:"selector"`

	// Device is the resolved device address, when one resolved.
	Device string `json:"device,omitempty"`

	// Outcome is set for send commands.
	Outcome *dispatch.Outcome `json:"outcome,omitempty"`

	// SessionID is set for learn_ir and learn_rf.
	SessionID string `json:"session_id,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage creates an ack for cmd.
func NewAckMessage(cmd CommandMessage, selector string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Command:   cmd.Command,
		Status:    status,
		Protocol:  ProtocolName,
		Selector:  selector,
	}
}

// NewAckError creates a failed ack for cmd.
func NewAckError(cmd CommandMessage, selector, code, message string) AckMessage {
	ack := NewAckMessage(cmd, selector, AckFailed)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// outcomeAck builds the ack for a finished send.
func outcomeAck(cmd CommandMessage, selector, dev string, out dispatch.Outcome) AckMessage {
	var ack AckMessage
	switch {
	case out.Failed < 0:
		ack = NewAckError(cmd, selector, ErrCodeDeviceNotFound,
			fmt.Sprintf("no device for %q, sent best effort", selector))
	case out.TimedOut:
		ack = NewAckMessage(cmd, selector, AckTimeout)
		ack.Error = &AckError{Code: ErrCodeTimeout,
			Message: fmt.Sprintf("deadline reached after %d sends", out.Attempted)}
	case out.Canceled:
		ack = NewAckError(cmd, selector, ErrCodeBridgeError, "bridge shutting down")
	case out.Failed > 0:
		ack = NewAckError(cmd, selector, ErrCodeSendFailed,
			fmt.Sprintf("%d of %d sends failed", out.Failed, out.Attempted))
	default:
		ack = NewAckMessage(cmd, selector, AckAccepted)
	}
	ack.Device = dev
	ack.Outcome = &out
	return ack
}

// LearnMessage reports learning progress and results.
// Topic: graylogic/learn/broadlink/{selector}
type LearnMessage struct {
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      learning.Kind  `json:"kind"`
	Device    string         `json:"device"`
	State     learning.State `json:"state"`
	Final     bool           `json:"final"`

	// Data is the captured code as lowercase hex.
	Data string `json:"data,omitempty"`

	// Frequency is the scanned or locked RF frequency in MHz.
	Frequency float64 `json:"frequency,omitempty"`
	Locked    bool    `json:"locked,omitempty"`

	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

func progressMessage(p learning.Progress) LearnMessage {
	return LearnMessage{
		SessionID: p.SessionID,
		Timestamp: time.Now().UTC(),
		Kind:      p.Kind,
		Device:    p.Device,
		State:     p.State,
		Frequency: p.Frequency,
		Locked:    p.Locked,
	}
}

func resultMessage(r learning.Result) LearnMessage {
	msg := LearnMessage{
		SessionID: r.SessionID,
		Timestamp: time.Now().UTC(),
		Kind:      r.Kind,
		Device:    r.Device,
		State:     r.State,
		Final:     true,
		Data:      r.Data,
		Frequency: r.Frequency,
		ElapsedMS: r.Elapsed.Milliseconds(),
	}
	if r.Err != nil {
		msg.Error = r.Err.Error()
	}
	return msg
}

// StateMessage reports a liveness transition.
// Topic: graylogic/state/broadlink/{mac}
// QoS: 1, Retained: Yes
type StateMessage struct {
	Address   string    `json:"address"`
	MAC       string    `json:"mac,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
	Previous  string    `json:"previous"`
	Event     string    `json:"event"`
	Protocol  string    `json:"protocol"`
}

func stateMessage(tr device.Transition) StateMessage {
	id := tr.Handle.Identity()
	return StateMessage{
		Address:   id.Address,
		MAC:       id.MAC,
		Timestamp: tr.At.UTC(),
		State:     tr.To.String(),
		Previous:  tr.From.String(),
		Event:     tr.Event.String(),
		Protocol:  ProtocolName,
	}
}

// DiscoveryMessage announces a newly registered device.
// Topic: graylogic/discovery/broadlink
type DiscoveryMessage struct {
	Address      string    `json:"address"`
	MAC          string    `json:"mac,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model,omitempty"`
	Type         string    `json:"type,omitempty"`
	Capabilities []string  `json:"capabilities"`
	Protocol     string    `json:"protocol"`

	// Firmware is zero until the post-registration query answers.
	Firmware int `json:"firmware,omitempty"`
}

// DispatchMessage reports a finished dispatch to event subscribers.
type DispatchMessage struct {
	Selector  string           `json:"selector"`
	Device    string           `json:"device,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Outcome   dispatch.Outcome `json:"outcome"`
	ElapsedMS int64            `json:"elapsed_ms"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/broadlink
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	DevicesManaged int               `json:"devices_managed"`
	DevicesActive  int               `json:"devices_active"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	Reason         string            `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	CommandsDispatched int64 `json:"commands_dispatched"`
	SendsAttempted     int64 `json:"sends_attempted"`
	SendsFailed        int64 `json:"sends_failed"`
	SequencesTimedOut  int64 `json:"sequences_timed_out"`
	LearningSessions   int64 `json:"learning_sessions"`
	CodesCaptured      int64 `json:"codes_captured"`
}
