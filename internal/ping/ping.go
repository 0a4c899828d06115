package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// protocolICMP is the IANA protocol number for ICMPv4.
const protocolICMP = 1

// payload marks our echo requests.
var payload = []byte("graylogic-broadlink")

// ErrInvalidAddress is returned when a probe target cannot be resolved.
var ErrInvalidAddress = errors.New("ping: invalid address")

// Prober sends ICMP echo requests. It satisfies device.Prober.
//
// Thread Safety:
//   - Probe may be called concurrently; each call uses its own socket.
type Prober struct {
	privileged bool
	id         int
	seq        atomic.Uint32
}

// New creates a Prober. privileged selects raw sockets.
func New(privileged bool) *Prober {
	return &Prober{
		privileged: privileged,
		id:         os.Getpid() & 0xffff,
	}
}

// Probe sends one echo request to address and waits up to timeout for the
// matching reply.
//
// Parameters:
//   - ctx: Cancels the wait
//   - address: IPv4 address or hostname
//   - timeout: Maximum wait for the reply
//
// Returns:
//   - bool: true if a matching echo reply arrived
//   - error: Local failures only; a lost reply is (false, nil)
func (p *Prober) Probe(ctx context.Context, address string, timeout time.Duration) (bool, error) {
	ip, err := net.ResolveIPAddr("ip4", address)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrInvalidAddress, address, err)
	}

	network := "udp4"
	var dst net.Addr = &net.UDPAddr{IP: ip.IP}
	if p.privileged {
		network = "ip4:icmp"
		dst = ip
	}

	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return false, fmt.Errorf("opening %s socket: %w", network, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return false, fmt.Errorf("setting deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	seq := int(p.seq.Add(1) & 0xffff)
	req, err := echoRequest(p.id, seq)
	if err != nil {
		return false, err
	}
	if _, err := conn.WriteTo(req, dst); err != nil {
		return false, fmt.Errorf("sending echo to %s: %w", ip, err)
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return false, nil
			}
			return false, fmt.Errorf("reading echo reply: %w", err)
		}

		if !sameHost(peer, ip.IP) {
			continue
		}
		// ping sockets rewrite the echo id, so only raw sockets check it
		if isReply(buf[:n], p.id, seq, p.privileged) {
			return true, nil
		}
	}
}

func echoRequest(id, seq int) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: payload},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("encoding echo request: %w", err)
	}
	return b, nil
}

// isReply reports whether b is the echo reply for seq (and id, if checkID).
func isReply(b []byte, id, seq int, checkID bool) bool {
	msg, err := icmp.ParseMessage(protocolICMP, b)
	if err != nil || msg.Type != ipv4.ICMPTypeEchoReply {
		return false
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok || echo.Seq != seq {
		return false
	}
	return !checkID || echo.ID == id
}

func sameHost(peer net.Addr, ip net.IP) bool {
	switch a := peer.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	}
	return false
}
