package broadlink

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
)

// fakeReply scripts the response to one subcommand.
type fakeReply struct {
	data []byte
	code int16
}

// fakeRM is an in-process RM device on a loopback UDP port.
type fakeRM struct {
	t      *testing.T
	conn   *net.UDPConn
	family Family
	key    []byte
	id     uint32

	mu         sync.Mutex
	auths      int
	subs       []uint32
	data       [][]byte
	replies    map[uint32]fakeReply
	expireNext bool
	silent     bool
}

func newFakeRM(t *testing.T, family Family) *fakeRM {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	f := &fakeRM{
		t:       t,
		conn:    conn,
		family:  family,
		key:     []byte("0123456789abcdef"),
		id:      0x01020304,
		replies: make(map[uint32]fakeReply),
	}
	go f.serve()
	t.Cleanup(func() { conn.Close() })
	return f
}

func (f *fakeRM) port() int {
	return f.conn.LocalAddr().(*net.UDPAddr).Port //nolint:forcetypeassert // test helper
}

func (f *fakeRM) reply(sub uint32, r fakeReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[sub] = r
}

func (f *fakeRM) setSilent() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent = true
}

func (f *fakeRM) authCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auths
}

func (f *fakeRM) received() ([]uint32, [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.subs...), append([][]byte(nil), f.data...)
}

func (f *fakeRM) serve() {
	buf := make([]byte, readBufferSize)
	for {
		n, from, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		f.handle(from, append([]byte(nil), buf[:n]...))
	}
}

func (f *fakeRM) handle(from *net.UDPAddr, pkt []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.silent || len(pkt) < headerSize {
		return
	}

	switch binary.LittleEndian.Uint16(pkt[offCommand:]) {
	case cmdAuth:
		f.auths++
		body := binary.LittleEndian.AppendUint32(nil, f.id)
		body = append(body, f.key...)
		f.send(from, 0, defaultKey, body)

	case cmdControl:
		if f.expireNext {
			f.expireNext = false
			f.send(from, codeKeyExpired, nil, nil)
			return
		}

		payload, err := decrypt(f.key, pkt[headerSize:])
		if err != nil {
			return
		}

		if f.family == FamilyRM && payload[0] == firmwareQuery {
			body := make([]byte, 16)
			binary.LittleEndian.PutUint16(body[4:], 55)
			f.send(from, 0, f.key, body)
			return
		}

		var sub uint32
		var data []byte
		if f.family == FamilyRM4 {
			size := int(binary.LittleEndian.Uint16(payload[0:2]))
			sub = binary.LittleEndian.Uint32(payload[2:6])
			data = payload[6 : size+2]
		} else {
			sub = binary.LittleEndian.Uint32(payload[0:4])
			data = payload[4:]
		}
		f.subs = append(f.subs, sub)
		f.data = append(f.data, data)

		r := f.replies[sub]
		if r.code != 0 {
			f.send(from, r.code, nil, nil)
			return
		}

		var body []byte
		if f.family == FamilyRM4 {
			body = binary.LittleEndian.AppendUint16(nil, uint16(len(r.data)+4))
			body = binary.LittleEndian.AppendUint32(body, sub)
		} else {
			body = binary.LittleEndian.AppendUint32(nil, sub)
		}
		body = append(body, r.data...)
		f.send(from, 0, f.key, body)
	}
}

func (f *fakeRM) send(to *net.UDPAddr, code int16, key, body []byte) {
	pkt := make([]byte, headerSize)
	copy(pkt, magic)
	if body != nil {
		enc, err := encrypt(key, body)
		if err != nil {
			f.t.Errorf("encrypting reply: %v", err)
			return
		}
		pkt = append(pkt, enc...)
	}
	binary.LittleEndian.PutUint16(pkt[offError:], uint16(code))
	binary.LittleEndian.PutUint16(pkt[offChecksum:], checksum(pkt))
	_, _ = f.conn.WriteToUDP(pkt, to)
}
