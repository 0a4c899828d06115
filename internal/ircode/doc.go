// Package ircode converts between wire payload strings and the native
// Broadlink pulse format.
//
// Payloads arrive as hex strings (any case). A payload starting with
// "0000" is a Pronto hex code and is converted before transmission:
//
//	0000 006D 0022 0002  0157 00AC  0015 0016 ...
//	 │    │    │    │     └── burst pairs, in carrier periods
//	 │    │    │    └── repeat sequence pair count
//	 │    │    └── once sequence pair count
//	 │    └── carrier frequency word (period = word × 0.241246 µs)
//	 └── learned-code marker
//
// Native IR payloads are 0x26 0x00, a little-endian length, one byte per
// pulse in 32.84 µs ticks (0x00 + two big-endian bytes for long pulses),
// and the 0x0d 0x05 trailer.
package ircode
