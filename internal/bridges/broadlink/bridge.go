package broadlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	rm "github.com/nerrad567/gray-logic-broadlink/internal/broadlink"
	"github.com/nerrad567/gray-logic-broadlink/internal/device"
	"github.com/nerrad567/gray-logic-broadlink/internal/dispatch"
	"github.com/nerrad567/gray-logic-broadlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-broadlink/internal/learning"
)

// MQTTClient is the subset of the MQTT client used by the bridge.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Telemetry receives dispatch, liveness and learning measurements.
// The InfluxDB client implements it.
type Telemetry interface {
	WriteDispatch(device string, attempted, failed int, timedOut bool, elapsed time.Duration)
	WriteLiveness(device, state string, reachable bool)
	WriteLearning(device, kind, outcome string, frequency float64, elapsed time.Duration)
}

// EventSink receives bridge events for local subscribers such as the
// WebSocket hub.
type EventSink interface {
	Broadcast(channel string, payload any)
}

// firmwareTimeout bounds the firmware query after registration.
const firmwareTimeout = 10 * time.Second

// Event channels passed to EventSink.Broadcast.
const (
	EventDeviceDiscovered = "device.discovered"
	EventDeviceState      = "device.state_changed"
	EventLearning         = "learning.progress"
	EventDispatch         = "dispatch.completed"
)

// Logger defines the logging interface used by the bridge.
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

// Options configures a Bridge.
type Options struct {
	// BridgeID identifies this bridge in health messages.
	BridgeID string

	// Version is reported in health messages.
	Version string

	// HealthInterval is how often health is published. Default: 30s.
	HealthInterval time.Duration

	// QoS for acks and learning messages. State and health always use 1.
	QoS byte

	MQTT       MQTTClient
	Registry   *device.Registry
	Dispatcher *dispatch.Dispatcher

	// Monitor is optional. When set, liveness transitions are published.
	Monitor *device.Monitor

	// IRLearner and RFLearner are optional. Learn commands for a missing
	// controller are rejected with UNSUPPORTED.
	IRLearner *learning.Controller
	RFLearner *learning.Controller

	// Telemetry is optional.
	Telemetry Telemetry

	// Events is optional. Discovery, state, learning and dispatch events
	// are mirrored to it.
	Events EventSink

	Logger Logger
}

// Bridge translates MQTT commands into dispatches and learning sessions.
//
// Thread Safety:
//   - handleMessage may run concurrently for different topics.
//   - Sends run on their own goroutines, tracked by wg.
type Bridge struct {
	opts   Options
	topics mqtt.Topics
	logger Logger
	health *HealthReporter

	ctx       context.Context
	ctxCancel context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
	trackMu   sync.Mutex // orders wg.Add against close(done)
	stopOnce  sync.Once
	started   atomic.Bool

	learningSessions atomic.Int64
	codesCaptured    atomic.Int64
}

// NewBridge creates a bridge from opts.
//
// Parameters:
//   - opts: Components to wire; MQTT, Registry and Dispatcher are required
//
// Returns:
//   - *Bridge: Ready to start
//   - error: If a required component is missing
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, ErrMissingMQTT
	}
	if opts.Registry == nil {
		return nil, ErrMissingRegistry
	}
	if opts.Dispatcher == nil {
		return nil, ErrMissingDispatcher
	}
	if opts.BridgeID == "" {
		opts.BridgeID = ProtocolName
	}
	if opts.QoS > 2 {
		opts.QoS = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	b := &Bridge{
		opts:   opts,
		logger: logger,
		done:   make(chan struct{}),
	}
	b.ctx, b.ctxCancel = context.WithCancel(context.Background())

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Devices:   b.deviceCounts,
		Stats:     b.Statistics,
	})
	b.health.SetLogger(logger)

	return b, nil
}

// Start wires component callbacks, subscribes to command topics and begins
// health reporting.
//
// Parameters:
//   - ctx: Stops health reporting when canceled
//
// Returns:
//   - error: If already started or the subscription fails
func (b *Bridge) Start(ctx context.Context) error {
	if b.started.Swap(true) {
		return ErrAlreadyStarted
	}

	//nolint:errcheck // Health is advisory; the periodic loop retries
	b.health.PublishStarting()

	b.opts.Registry.OnRegister(b.announce)
	if b.opts.Monitor != nil {
		b.opts.Monitor.OnTransition(b.publishState)
	}
	b.opts.Dispatcher.OnOutcome(b.recordDispatch)

	if err := b.opts.MQTT.Subscribe(b.topics.AllCommands(), 1, b.handleMessage); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	b.health.Start(ctx)

	b.logger.Info("broadlink bridge started",
		"bridge_id", b.opts.BridgeID,
		"devices", b.opts.Registry.Len(),
	)
	return nil
}

// Stop cancels in-flight sends and learning sessions, waits for them, and
// publishes a final stopping status. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.trackMu.Lock()
		close(b.done)
		b.trackMu.Unlock()
		b.ctxCancel()

		if b.opts.IRLearner != nil {
			b.opts.IRLearner.Close()
		}
		if b.opts.RFLearner != nil {
			b.opts.RFLearner.Close()
		}

		b.wg.Wait()
		b.health.Stop()

		b.logger.Info("broadlink bridge stopped")
	})
}

// Statistics returns the bridge counters.
func (b *Bridge) Statistics() BridgeStatistics {
	ds := b.opts.Dispatcher.Stats()
	return BridgeStatistics{
		CommandsDispatched: ds.Commands,
		SendsAttempted:     ds.Sends,
		SendsFailed:        ds.Failures,
		SequencesTimedOut:  ds.TimedOut,
		LearningSessions:   b.learningSessions.Load(),
		CodesCaptured:      b.codesCaptured.Load(),
	}
}

func (b *Bridge) deviceCounts() (managed, active int) {
	for _, h := range b.opts.Registry.Devices() {
		managed++
		if h.State() == device.StateActive {
			active++
		}
	}
	return managed, active
}

// handleMessage processes a command from MQTT.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	select {
	case <-b.done:
		return nil
	default:
	}

	selector, ok := b.topics.SelectorFromCommand(topic)
	if !ok {
		b.logger.Warn("ignoring message on unexpected topic", "topic", topic)
		return nil
	}

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("invalid command payload", "topic", topic, "error", err)
		b.publishAck(NewAckError(msg, selector, ErrCodeInvalidCommand,
			fmt.Sprintf("invalid JSON: %v", err)))
		return nil
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	b.logger.Debug("command received",
		"command_id", msg.ID,
		"command", msg.Command,
		"selector", selector,
		"source", msg.Source,
	)

	switch msg.Command {
	case CommandSend:
		b.handleSend(msg, selector)
	case CommandLearnIR:
		b.handleLearn(msg, selector, learning.KindIR)
	case CommandLearnRF:
		b.handleLearn(msg, selector, learning.KindRF)
	case CommandLearnStop:
		b.handleLearnStop(msg, selector)
	default:
		b.publishAck(NewAckError(msg, selector, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command %q", msg.Command)))
	}
	return nil
}

// handleSend validates the payload and dispatches it on a new goroutine.
func (b *Bridge) handleSend(msg CommandMessage, selector string) {
	cmd := msg.ToCommand()
	if err := cmd.Validate(); err != nil {
		b.publishAck(NewAckError(msg, selector, ErrCodeInvalidParameters, err.Error()))
		return
	}
	if msg.Timeout < 0 {
		b.publishAck(NewAckError(msg, selector, ErrCodeInvalidParameters, "timeout must not be negative"))
		return
	}

	if !b.track() {
		b.logger.Debug("bridge stopping, command dropped", "command_id", msg.ID)
		return
	}
	go func() {
		defer b.wg.Done()
		b.publishAck(b.send(msg, selector, cmd))
	}()
}

// track registers a goroutine with wg unless Stop has begun. The caller
// must call wg.Done when it returns true.
func (b *Bridge) track() bool {
	b.trackMu.Lock()
	defer b.trackMu.Unlock()
	select {
	case <-b.done:
		return false
	default:
	}
	b.wg.Add(1)
	return true
}

func (b *Bridge) send(msg CommandMessage, selector string, cmd dispatch.Command) AckMessage {
	var dev string
	if h, err := b.opts.Registry.Resolve(selector, device.CapSend); err == nil {
		dev = h.Identity().Address
	}

	out, err := b.opts.Dispatcher.Dispatch(b.ctx, selector, cmd, seconds(msg.Timeout))
	if err != nil {
		code := ErrCodeBridgeError
		switch {
		case errors.Is(err, device.ErrUnsupported):
			code = ErrCodeUnsupported
		case errors.Is(err, dispatch.ErrInvalidCommand):
			code = ErrCodeInvalidParameters
		}
		b.logger.Warn("send failed", "command_id", msg.ID, "selector", selector, "error", err)
		ack := NewAckError(msg, selector, code, err.Error())
		ack.Device = dev
		ack.Outcome = &out
		return ack
	}
	return outcomeAck(msg, selector, dev, out)
}

// handleLearn starts a learning session and acks with its ID. Progress and
// the final result go to the learn topic.
func (b *Bridge) handleLearn(msg CommandMessage, selector string, kind learning.Kind) {
	if msg.Frequency < 0 {
		b.publishAck(NewAckError(msg, selector, ErrCodeInvalidParameters, "frequency must not be negative"))
		return
	}

	s, err := b.Learn(kind, selector, msg.Frequency)
	if err != nil {
		code := ErrCodeBridgeError
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			code = ErrCodeDeviceNotFound
		case errors.Is(err, device.ErrUnsupported), errors.Is(err, ErrLearningDisabled):
			code = ErrCodeUnsupported
		}
		b.publishAck(NewAckError(msg, selector, code, err.Error()))
		return
	}

	ack := NewAckMessage(msg, selector, AckAccepted)
	ack.SessionID = s.ID()
	ack.Device = s.Device()
	b.publishAck(ack)
}

// Learn starts a learning session of the given kind on the selected
// device. Progress and the result are published on the selector's learn
// topic. The session ends when it completes, is stopped, or the bridge
// stops.
//
// Returns:
//   - *learning.Session: The running session
//   - error: ErrLearningDisabled, ErrStopped, or a controller error
//     (device.ErrDeviceNotFound, device.ErrUnsupported)
func (b *Bridge) Learn(kind learning.Kind, selector string, frequency float64) (*learning.Session, error) {
	ctrl := b.learner(kind)
	if ctrl == nil {
		return nil, fmt.Errorf("%w: %s", ErrLearningDisabled, kind)
	}
	select {
	case <-b.done:
		return nil, ErrStopped
	default:
	}

	s, err := ctrl.Start(b.ctx, learning.Request{
		Selector:  selector,
		Frequency: frequency,
		OnProgress: func(p learning.Progress) {
			b.publishLearn(selector, progressMessage(p))
		},
		OnFinished: func(r learning.Result) {
			b.learningFinished(selector, r)
		},
	})
	if err != nil {
		return nil, err
	}

	b.learningSessions.Add(1)
	return s, nil
}

// StopLearning cancels the active session of the given kind, or of both
// kinds when kind is empty.
func (b *Bridge) StopLearning(kind learning.Kind) error {
	switch kind {
	case learning.KindIR, learning.KindRF:
		stopLearner(b.learner(kind))
	case "":
		stopLearner(b.opts.IRLearner)
		stopLearner(b.opts.RFLearner)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return nil
}

func (b *Bridge) learner(kind learning.Kind) *learning.Controller {
	switch kind {
	case learning.KindIR:
		return b.opts.IRLearner
	case learning.KindRF:
		return b.opts.RFLearner
	}
	return nil
}

func (b *Bridge) learningFinished(selector string, r learning.Result) {
	if r.Captured() {
		b.codesCaptured.Add(1)
	}
	b.publishLearn(selector, resultMessage(r))

	if b.opts.Telemetry != nil {
		b.opts.Telemetry.WriteLearning(r.Device, string(r.Kind), string(r.State), r.Frequency, r.Elapsed)
	}
}

// handleLearnStop cancels the active session of the requested kind, or of
// both kinds when none is given.
func (b *Bridge) handleLearnStop(msg CommandMessage, selector string) {
	if err := b.StopLearning(learning.Kind(msg.Kind)); err != nil {
		b.publishAck(NewAckError(msg, selector, ErrCodeInvalidParameters,
			fmt.Sprintf("unknown learning kind %q", msg.Kind)))
		return
	}
	b.publishAck(NewAckMessage(msg, selector, AckAccepted))
}

func stopLearner(c *learning.Controller) {
	if c != nil {
		c.Stop()
	}
}

// announce publishes a discovery message for a newly registered device.
func (b *Bridge) announce(h *device.Handle) {
	msg := Describe(h)
	b.publishJSON(b.topics.Discovery(), msg, b.opts.QoS, false)
	b.emit(EventDeviceDiscovered, msg)

	b.logger.Info("device registered",
		"address", msg.Address,
		"mac", msg.MAC,
		"capabilities", h.Capabilities().String(),
	)

	if !b.track() {
		return
	}
	go func() {
		defer b.wg.Done()
		b.queryFirmware(h)
	}()
}

// queryFirmware records the firmware version of a newly registered device.
// Failures are logged; the device stays usable.
func (b *Bridge) queryFirmware(h *device.Handle) {
	ctx, cancel := context.WithTimeout(b.ctx, firmwareTimeout)
	defer cancel()

	addr := h.Identity().Address
	v, err := h.QueryFirmware(ctx)
	if err != nil {
		b.logger.Debug("firmware query failed", "address", addr, "error", err)
		return
	}
	b.logger.Info("device firmware", "address", addr, "firmware", v)
}

// Describe builds the discovery record for a registered device. Model
// details are filled in for Broadlink transports.
func Describe(h *device.Handle) DiscoveryMessage {
	id := h.Identity()
	msg := DiscoveryMessage{
		Address:      id.Address,
		MAC:          device.NormalizeMAC(id.MAC),
		Timestamp:    time.Now().UTC(),
		Capabilities: capabilityList(h.Capabilities()),
		Protocol:     ProtocolName,
		Firmware:     h.Firmware(),
	}
	if d, ok := h.Transport().(*rm.Device); ok {
		msg.Model = d.Model().Name
		msg.Type = fmt.Sprintf("0x%04x", d.Model().Type)
	}
	return msg
}

func capabilityList(c device.Capabilities) []string {
	list := []string{}
	if c.Has(device.CapSend) {
		list = append(list, "send")
	}
	if c.Has(device.CapLearn) {
		list = append(list, "learn")
	}
	if c.Has(device.CapRF) {
		list = append(list, "rf")
	}
	return list
}

// publishState publishes a retained liveness state message.
func (b *Bridge) publishState(tr device.Transition) {
	msg := stateMessage(tr)
	b.publishJSON(b.topics.State(tr.Handle.Identity().Key()), msg, 1, true)
	b.emit(EventDeviceState, msg)

	if b.opts.Telemetry != nil {
		b.opts.Telemetry.WriteLiveness(msg.Address, msg.State, tr.To == device.StateActive)
	}
}

func (b *Bridge) recordDispatch(r dispatch.Report) {
	b.emit(EventDispatch, DispatchMessage{
		Selector:  r.Selector,
		Device:    r.Device,
		Timestamp: time.Now().UTC(),
		Outcome:   r.Outcome,
		ElapsedMS: r.Elapsed.Milliseconds(),
	})

	if b.opts.Telemetry == nil {
		return
	}
	dev := r.Device
	if dev == "" {
		dev = r.Selector
	}
	b.opts.Telemetry.WriteDispatch(dev, r.Outcome.Attempted, r.Outcome.Failed, r.Outcome.TimedOut, r.Elapsed)
}

func healthTopic() string {
	return mqtt.Topics{}.BridgeStatus()
}

func (b *Bridge) publishAck(ack AckMessage) {
	b.publishJSON(b.topics.Ack(ack.Selector), ack, b.opts.QoS, false)
}

func (b *Bridge) publishLearn(selector string, msg LearnMessage) {
	b.publishJSON(b.topics.Learn(selector), msg, b.opts.QoS, false)
	b.emit(EventLearning, msg)
}

func (b *Bridge) emit(channel string, payload any) {
	if b.opts.Events != nil {
		b.opts.Events.Broadcast(channel, payload)
	}
}

func (b *Bridge) publishJSON(topic string, v any, qos byte, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("failed to marshal message", "topic", topic, "error", err)
		return
	}
	if err := b.opts.MQTT.Publish(topic, payload, qos, retained); err != nil {
		b.logger.Error("failed to publish", "topic", topic, "error", err)
	}
}
