package broadlink

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// Port is the UDP port devices listen on.
const Port = 80

// Header layout.
const (
	headerSize = 0x38

	offChecksum       = 0x20
	offError          = 0x22
	offDevType        = 0x24
	offCommand        = 0x26
	offCount          = 0x28
	offMAC            = 0x2a
	offID             = 0x30
	offPayloadSum     = 0x34
	checksumSeed      = 0xbeaf
	helloSize         = 0x30
	minResponseLength = 0x30
)

// Top-level commands.
const (
	cmdHello     uint16 = 0x06
	cmdAuth      uint16 = 0x65
	cmdControl   uint16 = 0x6a
	cmdKeepalive uint16 = 0x01
)

var magic = []byte{0x5a, 0xa5, 0xaa, 0x55, 0x5a, 0xa5, 0xaa, 0x55}

// checksum is the 16-bit sum of b seeded with 0xbeaf.
func checksum(b []byte) uint16 {
	sum := uint32(checksumSeed)
	for _, v := range b {
		sum += uint32(v)
	}
	return uint16(sum & 0xffff)
}

// header carries the per-request fields of a command packet.
type header struct {
	devType uint16
	command uint16
	count   uint16
	mac     net.HardwareAddr
	id      uint32
}

// encodePacket builds a full command packet, encrypting payload with key.
func encodePacket(h header, key, payload []byte) ([]byte, error) {
	pkt := make([]byte, headerSize)
	copy(pkt, magic)
	binary.LittleEndian.PutUint16(pkt[offDevType:], h.devType)
	binary.LittleEndian.PutUint16(pkt[offCommand:], h.command)
	binary.LittleEndian.PutUint16(pkt[offCount:], h.count)
	putReversed(pkt[offMAC:offMAC+6], h.mac)
	binary.LittleEndian.PutUint32(pkt[offID:], h.id)
	binary.LittleEndian.PutUint16(pkt[offPayloadSum:], checksum(payload))

	enc, err := encrypt(key, payload)
	if err != nil {
		return nil, err
	}
	pkt = append(pkt, enc...)

	binary.LittleEndian.PutUint16(pkt[offChecksum:], checksum(pkt))
	return pkt, nil
}

// decodeResponse validates a response and returns its decrypted payload.
// A non-zero device error code is returned as *DeviceError.
func decodeResponse(key, resp []byte) ([]byte, error) {
	if len(resp) < minResponseLength {
		return nil, fmt.Errorf("%w: response of %d bytes", ErrInvalidPacket, len(resp))
	}

	want := binary.LittleEndian.Uint16(resp[offChecksum:])
	got := checksum(resp) - uint16(resp[offChecksum]) - uint16(resp[offChecksum+1])
	if want != got {
		return nil, fmt.Errorf("%w: header %#04x, computed %#04x", ErrChecksum, want, got)
	}

	if code := int16(binary.LittleEndian.Uint16(resp[offError:])); code != 0 {
		return nil, &DeviceError{Code: code}
	}

	if len(resp) <= headerSize {
		return nil, nil
	}
	return decrypt(key, resp[headerSize:])
}

// putReversed copies src into dst in reverse byte order.
func putReversed(dst, src []byte) {
	n := len(src)
	for i := 0; i < n && i < len(dst); i++ {
		dst[i] = src[n-1-i]
	}
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	putReversed(out, b)
	return out
}

// authPayload is the fixed body of the auth request.
func authPayload() []byte {
	p := make([]byte, 0x50)
	for i := 0x04; i < 0x14; i++ {
		p[i] = 0x31
	}
	p[0x1e] = 0x01
	p[0x2d] = 0x01
	copy(p[0x30:], "Test 1")
	return p
}

// helloPacket builds the discovery broadcast.
func helloPacket(now time.Time, localIP net.IP, port int) []byte {
	pkt := make([]byte, helloSize)

	_, offset := now.Zone()
	binary.LittleEndian.PutUint32(pkt[0x08:], uint32(int32(offset/3600)))
	binary.LittleEndian.PutUint16(pkt[0x0c:], uint16(now.Year()))
	pkt[0x0e] = byte(now.Minute())
	pkt[0x0f] = byte(now.Hour())
	pkt[0x10] = byte(now.Year() % 100)
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	pkt[0x11] = byte(weekday)
	pkt[0x12] = byte(now.Day())
	pkt[0x13] = byte(now.Month())

	if ip4 := localIP.To4(); ip4 != nil {
		putReversed(pkt[0x18:0x1c], ip4)
	}
	binary.LittleEndian.PutUint16(pkt[0x1c:], uint16(port))
	pkt[offCommand] = byte(cmdHello)

	binary.LittleEndian.PutUint16(pkt[offChecksum:], checksum(pkt))
	return pkt
}

// keepalivePacket is the unencrypted heartbeat some firmware expects.
func keepalivePacket() []byte {
	pkt := make([]byte, helloSize)
	pkt[offCommand] = byte(cmdKeepalive)
	return pkt
}

// Info describes a device found by discovery.
type Info struct {
	Host   string           `json:"host"`
	MAC    net.HardwareAddr `json:"-"`
	Type   uint16           `json:"type"`
	Name   string           `json:"name"`
	Locked bool             `json:"locked"`
}

// Model returns the model entry for the device type.
func (i Info) Model() Model {
	return LookupModel(i.Type)
}

// parseHelloResponse decodes a discovery reply received from host.
func parseHelloResponse(host string, resp []byte) (Info, error) {
	if len(resp) < 0x40 {
		return Info{}, fmt.Errorf("%w: hello response of %d bytes", ErrInvalidPacket, len(resp))
	}

	info := Info{
		Host: host,
		Type: binary.LittleEndian.Uint16(resp[0x34:]),
		MAC:  net.HardwareAddr(reversed(resp[0x3a:0x40])),
	}

	name := resp[0x40:]
	for i, b := range name {
		if b == 0 {
			name = name[:i]
			break
		}
	}
	info.Name = string(name)

	if len(resp) > 0x7f {
		info.Locked = resp[0x7f] != 0
	}
	return info, nil
}
