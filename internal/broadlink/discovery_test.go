package broadlink

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"
)

// recordingLogger counts messages by text.
type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *recordingLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.msgs {
		if m == msg {
			n++
		}
	}
	return n
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.log(msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.log(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.log(msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.log(msg) }

// startResponder answers every hello on loopback with a discovery reply.
func startResponder(t *testing.T, devType uint16, name string) int {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 256)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if n != helloSize || buf[offCommand] != byte(cmdHello) {
				continue
			}

			resp := make([]byte, 0x80)
			copy(resp, magic)
			binary.LittleEndian.PutUint16(resp[0x34:], devType)
			copy(resp[0x3a:], []byte{0xcc, 0xbb, 0xaa, 0x34, 0xea, 0x34})
			copy(resp[0x40:], name)
			_, _ = conn.WriteToUDP(resp, from)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).Port //nolint:forcetypeassert // test helper
}

func TestDiscover(t *testing.T) {
	port := startResponder(t, 0x2737, "Bedroom")

	start := time.Now()
	found, err := Discover(context.Background(), DiscoverOptions{
		LocalIP:   "127.0.0.1",
		Broadcast: "127.0.0.1",
		Port:      port,
		Timeout:   300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if len(found) != 1 {
		t.Fatalf("Discover() found %d devices, want 1", len(found))
	}
	info := found[0]
	if info.Host != "127.0.0.1" || info.Type != 0x2737 || info.Name != "Bedroom" {
		t.Errorf("info = %+v", info)
	}
	if info.MAC.String() != "34:ea:34:aa:bb:cc" {
		t.Errorf("mac = %s", info.MAC)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("Discover() returned after %v, before its timeout", elapsed)
	}
}

func TestDiscover_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	found, err := Discover(ctx, DiscoverOptions{
		LocalIP:   "127.0.0.1",
		Broadcast: "127.0.0.1",
		Port:      9,
		Timeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 0 {
		t.Errorf("Discover() = %v, want none", found)
	}
}

func TestDiscover_InvalidLocalIP(t *testing.T) {
	if _, err := Discover(context.Background(), DiscoverOptions{LocalIP: "not-an-ip"}); err == nil {
		t.Error("Discover() expected error for invalid local ip")
	}
}
