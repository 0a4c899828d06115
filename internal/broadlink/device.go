package broadlink

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-broadlink/internal/device"
)

// DefaultTimeout bounds one request/response exchange.
const DefaultTimeout = 10 * time.Second

// readBufferSize fits the largest learned code plus header.
const readBufferSize = 2048

// RM subcommands carried inside cmdControl.
const (
	subSendData       uint32 = 0x02
	subEnterLearning  uint32 = 0x03
	subCheckData      uint32 = 0x04
	subSweepFrequency uint32 = 0x19
	subCheckFrequency uint32 = 0x1a
	subFindRFPacket   uint32 = 0x1b
	subCancelLearning uint32 = 0x1e
)

// firmwareQuery is the raw control payload asking for the firmware version.
const firmwareQuery = 0x68

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configure a Device.
type Options struct {
	// Timeout bounds a single exchange. Default: 10s.
	Timeout time.Duration

	// Port overrides the device UDP port. Default: 80.
	Port int

	Logger Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Port == 0 {
		o.Port = Port
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// Ensure Device implements the device transport interfaces.
var (
	_ device.Transport  = (*Device)(nil)
	_ device.Keepaliver = (*Device)(nil)
	_ device.Debugger   = (*Device)(nil)
)

// Device is a connection-less client for one RM-series device.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Exchanges with the same
//     device are serialised internally so the packet counter and session
//     key stay consistent.
//
// Authentication happens lazily on the first command and again whenever
// the device reports an expired control key.
type Device struct {
	host   string
	addr   string
	mac    net.HardwareAddr
	model  Model
	opts   Options
	logger Logger
	debug  atomic.Bool

	mu     sync.Mutex
	count  uint16
	id     uint32
	key    []byte
	authed bool
}

// New creates a client for the device described by info. No packets are
// sent until the first command.
func New(info Info, opts Options) *Device {
	opts = opts.withDefaults()
	return &Device{
		host:   info.Host,
		addr:   net.JoinHostPort(info.Host, strconv.Itoa(opts.Port)),
		mac:    info.MAC,
		model:  LookupModel(info.Type),
		opts:   opts,
		logger: opts.Logger,
		count:  uint16(0x8000 | rand.IntN(0x8000)),
		key:    defaultKey,
	}
}

// Host returns the device IP address.
func (d *Device) Host() string { return d.host }

// Model returns the device model.
func (d *Device) Model() Model { return d.model }

// Identity returns the registry identity of the device.
func (d *Device) Identity() device.Identity {
	id := device.Identity{Address: d.host}
	if len(d.mac) > 0 {
		id.MAC = d.mac.String()
	}
	return id
}

// Capabilities implements device.Transport.
func (d *Device) Capabilities() device.Capabilities {
	return d.model.Capabilities()
}

// Debug implements device.Debugger.
func (d *Device) Debug() bool { return d.debug.Load() }

// SetDebug implements device.Debugger. When enabled every packet is logged
// as hex at debug level.
func (d *Device) SetDebug(enabled bool) { d.debug.Store(enabled) }

// Auth performs the auth handshake, replacing any existing session.
func (d *Device) Auth(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authLocked(ctx)
}

func (d *Device) authLocked(ctx context.Context) error {
	d.id = 0
	d.key = defaultKey
	d.authed = false

	payload, err := d.roundTrip(ctx, cmdAuth, authPayload())
	if err != nil {
		if errors.Is(err, ErrDeviceError) || errors.Is(err, ErrChecksum) || errors.Is(err, ErrInvalidPacket) {
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return err
	}
	if len(payload) < 0x14 {
		return fmt.Errorf("%w: auth payload of %d bytes", ErrAuthFailed, len(payload))
	}

	d.id = binary.LittleEndian.Uint32(payload[0x00:0x04])
	d.key = append([]byte(nil), payload[0x04:0x14]...)
	d.authed = true

	d.logger.Debug("broadlink device authenticated", "host", d.host, "model", d.model.Name)
	return nil
}

// sendPacket sends a top-level command, authenticating first if needed
// and retrying once after an expired-key error.
func (d *Device) sendPacket(ctx context.Context, command uint16, payload []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.authed {
		if err := d.authLocked(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := d.roundTrip(ctx, command, payload)

	var derr *DeviceError
	if errors.As(err, &derr) && derr.KeyExpired() {
		d.logger.Info("broadlink control key expired, re-authenticating", "host", d.host)
		if err := d.authLocked(ctx); err != nil {
			return nil, err
		}
		resp, err = d.roundTrip(ctx, command, payload)
	}
	return resp, err
}

// roundTrip encodes, exchanges and decodes one packet. Caller holds d.mu.
func (d *Device) roundTrip(ctx context.Context, command uint16, payload []byte) ([]byte, error) {
	d.count = (d.count + 1) | 0x8000
	key := d.key

	pkt, err := encodePacket(header{
		devType: d.model.Type,
		command: command,
		count:   d.count,
		mac:     d.mac,
		id:      d.id,
	}, key, payload)
	if err != nil {
		return nil, err
	}

	resp, err := d.exchange(ctx, pkt)
	if err != nil {
		return nil, err
	}
	return decodeResponse(key, resp)
}

// exchange writes pkt and waits for one datagram in reply.
func (d *Device) exchange(ctx context.Context, pkt []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp4", d.addr)
	if err != nil {
		return nil, d.exchangeErr(ctx, fmt.Errorf("dialing %s: %w", d.addr, err))
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	d.trace("broadlink packet sent", pkt)
	if _, err := conn.Write(pkt); err != nil {
		return nil, d.exchangeErr(ctx, fmt.Errorf("writing to %s: %w", d.addr, err))
	}

	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, d.exchangeErr(ctx, fmt.Errorf("reading from %s: %w", d.addr, err))
	}
	d.trace("broadlink packet received", buf[:n])
	return buf[:n], nil
}

func (d *Device) exchangeErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", ErrTimeout, d.addr)
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return err
}

func (d *Device) trace(msg string, pkt []byte) {
	if d.debug.Load() {
		d.logger.Debug(msg, "host", d.host, "packet", hex.EncodeToString(pkt))
	}
}

// command sends an RM subcommand using the model's framing and returns
// the unframed response data.
func (d *Device) command(ctx context.Context, sub uint32, data []byte) ([]byte, error) {
	var pkt []byte
	if d.model.Family == FamilyRM4 {
		pkt = make([]byte, 6, 6+len(data))
		binary.LittleEndian.PutUint16(pkt[0:], uint16(len(data)+4))
		binary.LittleEndian.PutUint32(pkt[2:], sub)
	} else {
		pkt = make([]byte, 4, 4+len(data))
		binary.LittleEndian.PutUint32(pkt, sub)
	}
	pkt = append(pkt, data...)

	resp, err := d.sendPacket(ctx, cmdControl, pkt)
	if err != nil {
		return nil, err
	}
	return d.unframe(resp)
}

func (d *Device) unframe(resp []byte) ([]byte, error) {
	if d.model.Family != FamilyRM4 {
		if len(resp) < 4 {
			return nil, fmt.Errorf("%w: rm response of %d bytes", ErrInvalidPacket, len(resp))
		}
		return resp[4:], nil
	}

	if len(resp) < 6 {
		return nil, fmt.Errorf("%w: rm4 response of %d bytes", ErrInvalidPacket, len(resp))
	}
	end := int(binary.LittleEndian.Uint16(resp[0:2])) + 2
	if end > len(resp) {
		end = len(resp)
	}
	if end <= 6 {
		return nil, nil
	}
	return resp[6:end], nil
}

// SendData implements device.Transport.
func (d *Device) SendData(ctx context.Context, data []byte) error {
	_, err := d.command(ctx, subSendData, data)
	return err
}

// EnterLearning implements device.Transport.
func (d *Device) EnterLearning(ctx context.Context) error {
	_, err := d.command(ctx, subEnterLearning, nil)
	return err
}

// CancelLearning implements device.Transport.
func (d *Device) CancelLearning(ctx context.Context) error {
	_, err := d.command(ctx, subCancelLearning, nil)
	return err
}

// CheckData implements device.Transport. A device error means nothing has
// been captured yet and yields (nil, nil).
func (d *Device) CheckData(ctx context.Context) ([]byte, error) {
	data, err := d.command(ctx, subCheckData, nil)
	if errors.Is(err, ErrDeviceError) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// SweepFrequency implements device.Transport.
func (d *Device) SweepFrequency(ctx context.Context) error {
	_, err := d.command(ctx, subSweepFrequency, nil)
	return err
}

// CancelSweepFrequency implements device.Transport.
func (d *Device) CancelSweepFrequency(ctx context.Context) error {
	_, err := d.command(ctx, subCancelLearning, nil)
	return err
}

// CheckFrequency implements device.Transport. Frequencies are in MHz.
func (d *Device) CheckFrequency(ctx context.Context) (device.FrequencyLock, error) {
	data, err := d.command(ctx, subCheckFrequency, nil)
	if errors.Is(err, ErrDeviceError) {
		return device.FrequencyLock{}, nil
	}
	if err != nil {
		return device.FrequencyLock{}, err
	}
	if len(data) < 1 {
		return device.FrequencyLock{}, fmt.Errorf("%w: empty frequency response", ErrInvalidPacket)
	}

	lock := device.FrequencyLock{Locked: data[0] == 1}
	if len(data) >= 5 {
		lock.Frequency = float64(binary.LittleEndian.Uint32(data[1:5])) / 1000
	}
	return lock, nil
}

// FindRFPacket implements device.Transport. A non-positive frequency lets
// the device use the last swept one.
func (d *Device) FindRFPacket(ctx context.Context, frequency float64) error {
	var data []byte
	if frequency > 0 {
		data = binary.LittleEndian.AppendUint32(nil, uint32(math.Round(frequency*1000)))
	}
	_, err := d.command(ctx, subFindRFPacket, data)
	return err
}

// FirmwareVersion implements device.Transport.
func (d *Device) FirmwareVersion(ctx context.Context) (int, error) {
	resp, err := d.sendPacket(ctx, cmdControl, []byte{firmwareQuery})
	if err != nil {
		return 0, err
	}
	if len(resp) < 6 {
		return 0, fmt.Errorf("%w: firmware response of %d bytes", ErrInvalidPacket, len(resp))
	}
	return int(binary.LittleEndian.Uint16(resp[4:6])), nil
}

// Keepalive implements device.Keepaliver. It sends one heartbeat and does
// not wait for a reply.
func (d *Device) Keepalive(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp4", d.addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", d.addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(keepalivePacket()); err != nil {
		return fmt.Errorf("keepalive to %s: %w", d.addr, err)
	}
	return nil
}

// DirectSender sends payloads to bare IP addresses that are not in the
// registry. It satisfies the dispatcher's best-effort fallback.
type DirectSender struct {
	opts Options
}

// NewDirectSender creates a DirectSender.
func NewDirectSender(opts Options) *DirectSender {
	return &DirectSender{opts: opts}
}

// SendBestEffort authenticates against selector and sends data once using
// RM framing.
func (s *DirectSender) SendBestEffort(ctx context.Context, selector string, data []byte) error {
	ip := net.ParseIP(selector)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, selector)
	}
	return New(Info{Host: ip.String()}, s.opts).SendData(ctx, data)
}

// Factory returns a device.TransportFactory for statically configured
// hosts. devType is looked up by address; unknown hosts get RM framing.
func Factory(opts Options, types map[string]uint16) device.TransportFactory {
	return func(id device.Identity) device.Transport {
		mac, _ := net.ParseMAC(id.MAC)
		return New(Info{Host: id.Address, MAC: mac, Type: types[id.Address]}, opts)
	}
}
