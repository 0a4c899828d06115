package ircode

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

const (
	// prontoPrefix marks a learned Pronto code.
	prontoPrefix = "0000"

	// prontoClock is the Pronto carrier period unit in microseconds.
	prontoClock = 0.241246

	// tick is the Broadlink pulse unit in microseconds.
	tick = 32.84

	irMarker = 0x26
)

var trailer = []byte{0x0d, 0x05}

// IsPronto reports whether s is a Pronto code.
func IsPronto(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), prontoPrefix)
}

// Decode converts a wire payload into native bytes ready to send.
//
// Parameters:
//   - s: Hex string, case-insensitive; whitespace is ignored. A "0000"
//     prefix selects Pronto conversion.
//
// Returns:
//   - []byte: Native payload
//   - error: ErrEmpty, ErrInvalidHex or ErrInvalidPronto
func Decode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmpty
	}
	if IsPronto(s) {
		return FromPronto(s)
	}

	b, err := hex.DecodeString(stripSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHex, err)
	}
	return b, nil
}

// Encode renders native bytes as lowercase hex, the form learned codes are
// reported in.
func Encode(b []byte) string {
	return hex.EncodeToString(b)
}

// FromPronto converts a Pronto hex code into a native IR payload. Both the
// once and repeat burst sequences are included, once first.
func FromPronto(s string) ([]byte, error) {
	words, err := prontoWords(s)
	if err != nil {
		return nil, err
	}
	if len(words) < 4 {
		return nil, fmt.Errorf("%w: need at least 4 words, got %d", ErrInvalidPronto, len(words))
	}
	if words[0] != 0 {
		return nil, fmt.Errorf("%w: unsupported format %04x", ErrInvalidPronto, words[0])
	}
	if words[1] == 0 {
		return nil, fmt.Errorf("%w: zero carrier frequency", ErrInvalidPronto)
	}

	pairs := int(words[2]) + int(words[3])
	if pairs == 0 {
		return nil, fmt.Errorf("%w: no burst pairs", ErrInvalidPronto)
	}
	if len(words) != 4+2*pairs {
		return nil, fmt.Errorf("%w: expected %d words, got %d", ErrInvalidPronto, 4+2*pairs, len(words))
	}

	period := float64(words[1]) * prontoClock

	pulses := make([]byte, 0, 2*pairs+len(trailer))
	for _, w := range words[4:] {
		pulses = appendPulse(pulses, float64(w)*period)
	}
	pulses = append(pulses, trailer...)

	if len(pulses) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: code too long", ErrInvalidPronto)
	}

	out := make([]byte, 4, 4+len(pulses))
	out[0] = irMarker
	out[1] = 0x00 // no repeats
	binary.LittleEndian.PutUint16(out[2:], uint16(len(pulses)))
	return append(out, pulses...), nil
}

// appendPulse appends one pulse of us microseconds in Broadlink ticks.
func appendPulse(dst []byte, us float64) []byte {
	ticks := int(math.Round(us / tick))
	if ticks < 256 {
		return append(dst, byte(ticks))
	}
	if ticks > math.MaxUint16 {
		ticks = math.MaxUint16
	}
	return append(dst, 0x00, byte(ticks>>8), byte(ticks))
}

// prontoWords splits a Pronto code into 16-bit words. Words may be
// separated by whitespace or packed as one continuous string.
func prontoWords(s string) ([]uint16, error) {
	fields := strings.Fields(s)
	if len(fields) == 1 {
		packed := fields[0]
		if len(packed)%4 != 0 {
			return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrInvalidPronto, len(packed))
		}
		fields = fields[:0]
		for i := 0; i < len(packed); i += 4 {
			fields = append(fields, packed[i:i+4])
		}
	}

	words := make([]uint16, len(fields))
	for i, f := range fields {
		if len(f) != 4 {
			return nil, fmt.Errorf("%w: word %q", ErrInvalidPronto, f)
		}
		v, err := strconv.ParseUint(f, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: word %q", ErrInvalidPronto, f)
		}
		words[i] = uint16(v)
	}
	return words, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
