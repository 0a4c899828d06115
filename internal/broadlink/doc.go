// Package broadlink speaks the Broadlink local UDP protocol to RM-series
// IR/RF blasters.
//
// Every exchange is a single UDP request/response on port 80. Requests
// carry a fixed 0x38-byte header followed by an AES-128-CBC encrypted
// payload. A fresh device only accepts the auth command (0x65) under the
// shared default key; the auth response carries the session id and the
// per-device key used for everything after.
//
//	┌────────┬──────────┬─────────┬───────┬─────┬────────┬──────────┬─────────────────────┐
//	│ magic  │ checksum │ error   │ type  │ cmd │ count  │ mac, id  │ encrypted payload   │
//	│ 0x00   │ 0x20     │ 0x22    │ 0x24  │0x26 │ 0x28   │ 0x2a-35  │ 0x38...             │
//	└────────┴──────────┴─────────┴───────┴─────┴────────┴──────────┴─────────────────────┘
//
// RM devices wrap learning and send subcommands in a 4-byte little-endian
// prefix. RM4 devices add a 2-byte length in front of it. Device implements
// device.Transport over either framing, picked from the model table.
//
// Discovery broadcasts a hello packet and collects replies until a
// deadline; see Discover.
package broadlink
