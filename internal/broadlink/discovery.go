package broadlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Discovery defaults.
const (
	defaultDiscoverTimeout = 5 * time.Second
	defaultBroadcast       = "255.255.255.255"
	helloRepeatInterval    = time.Second
)

// DiscoverOptions configure a discovery round.
type DiscoverOptions struct {
	// LocalIP is announced in the hello packet and bound for replies.
	// Empty selects the outbound interface address.
	LocalIP string

	// Broadcast is the hello destination. Default: 255.255.255.255.
	Broadcast string

	// Port is the hello destination port. Default: 80.
	Port int

	// Timeout is how long replies are collected. Default: 5s.
	Timeout time.Duration

	Logger Logger
}

func (o DiscoverOptions) withDefaults() DiscoverOptions {
	if o.Broadcast == "" {
		o.Broadcast = defaultBroadcast
	}
	if o.Port == 0 {
		o.Port = Port
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultDiscoverTimeout
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// Discover broadcasts hello packets and returns every distinct device
// (by MAC) that answers before the timeout. The hello is repeated every second
// until the round ends. Devices are reported in reply order.
//
// Parameters:
//   - ctx: Ends the round early when canceled
//   - opts: Local address, broadcast target and collection timeout
//
// Returns:
//   - []Info: Devices that replied, possibly empty
//   - error: If the socket cannot be opened or the hello cannot be sent
func Discover(ctx context.Context, opts DiscoverOptions) ([]Info, error) {
	opts = opts.withDefaults()

	local, err := resolveLocalIP(opts.LocalIP)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: local})
	if err != nil {
		return nil, fmt.Errorf("opening discovery socket: %w", err)
	}
	defer conn.Close()

	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(opts.Broadcast, strconv.Itoa(opts.Port)))
	if err != nil {
		return nil, fmt.Errorf("%w: broadcast %q: %w", ErrInvalidAddress, opts.Broadcast, err)
	}

	port := conn.LocalAddr().(*net.UDPAddr).Port //nolint:forcetypeassert // ListenUDP always yields *UDPAddr
	hello := helloPacket(time.Now(), local, port)

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var (
		mu    sync.Mutex
		found []Info
		seen  = make(map[string]struct{})
	)

	g.Go(func() error {
		ticker := time.NewTicker(helloRepeatInterval)
		defer ticker.Stop()
		for {
			if _, err := conn.WriteToUDP(hello, dst); err != nil {
				return fmt.Errorf("sending hello to %s: %w", dst, err)
			}
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		buf := make([]byte, readBufferSize)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("reading discovery replies: %w", err)
			}

			info, err := parseHelloResponse(from.IP.String(), buf[:n])
			if err != nil {
				opts.Logger.Debug("ignoring discovery datagram", "from", from.String(), "error", err)
				continue
			}

			key := info.Host
			if len(info.MAC) > 0 {
				key = info.MAC.String()
			}

			mu.Lock()
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				found = append(found, info)
				opts.Logger.Debug("broadlink device discovered",
					"host", info.Host,
					"mac", info.MAC.String(),
					"model", info.Model().String(),
				)
			}
			mu.Unlock()
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return found, err
	}
	return found, nil
}

// resolveLocalIP parses ip or, when empty, picks the address of the
// interface holding the default route. No packet is sent.
func resolveLocalIP(ip string) (net.IP, error) {
	if ip != "" {
		parsed := net.ParseIP(ip)
		if parsed == nil || parsed.To4() == nil {
			return nil, fmt.Errorf("%w: local ip %q", ErrInvalidAddress, ip)
		}
		return parsed.To4(), nil
	}

	conn, err := net.Dial("udp4", "8.8.8.8:53")
	if err != nil {
		return net.IPv4zero.To4(), nil
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.To4(), nil //nolint:forcetypeassert // udp4 dial yields *UDPAddr
}
