package broadlink

import (
	"fmt"

	"github.com/nerrad567/gray-logic-broadlink/internal/device"
)

// Family selects the command framing.
type Family int

const (
	// FamilyRM frames subcommands as u32 command + data.
	FamilyRM Family = iota
	// FamilyRM4 prefixes RM framing with a u16 length.
	FamilyRM4
)

func (f Family) String() string {
	if f == FamilyRM4 {
		return "rm4"
	}
	return "rm"
}

// Model is a known device type.
type Model struct {
	Type   uint16
	Name   string
	Family Family
	RF     bool
	Known  bool
}

// Capabilities maps the model onto device capabilities.
func (m Model) Capabilities() device.Capabilities {
	caps := device.CapSend | device.CapLearn
	if m.RF {
		caps |= device.CapRF
	}
	return caps
}

func (m Model) String() string {
	if !m.Known {
		return fmt.Sprintf("unknown (%#04x)", m.Type)
	}
	return fmt.Sprintf("%s (%#04x)", m.Name, m.Type)
}

var models = map[uint16]Model{
	0x2712: {Name: "RM pro", Family: FamilyRM, RF: true},
	0x272a: {Name: "RM pro", Family: FamilyRM, RF: true},
	0x2737: {Name: "RM mini 3", Family: FamilyRM},
	0x273d: {Name: "RM pro", Family: FamilyRM, RF: true},
	0x277c: {Name: "RM home", Family: FamilyRM},
	0x2783: {Name: "RM home", Family: FamilyRM},
	0x2787: {Name: "RM pro", Family: FamilyRM, RF: true},
	0x278b: {Name: "RM plus", Family: FamilyRM, RF: true},
	0x278f: {Name: "RM mini", Family: FamilyRM},
	0x2797: {Name: "RM pro+", Family: FamilyRM, RF: true},
	0x279d: {Name: "RM pro+", Family: FamilyRM, RF: true},
	0x27a1: {Name: "RM plus", Family: FamilyRM, RF: true},
	0x27a6: {Name: "RM plus", Family: FamilyRM, RF: true},
	0x27a9: {Name: "RM pro+", Family: FamilyRM, RF: true},
	0x27c2: {Name: "RM mini 3", Family: FamilyRM},
	0x27c3: {Name: "RM pro+", Family: FamilyRM, RF: true},
	0x27c7: {Name: "RM mini 3", Family: FamilyRM},
	0x27cc: {Name: "RM mini 3", Family: FamilyRM},
	0x27cd: {Name: "RM mini 3", Family: FamilyRM},
	0x27d0: {Name: "RM mini 3", Family: FamilyRM},
	0x27d1: {Name: "RM mini 3", Family: FamilyRM},
	0x27d3: {Name: "RM mini 3", Family: FamilyRM},
	0x27de: {Name: "RM mini 3", Family: FamilyRM},

	0x5209: {Name: "RM4 TV mate", Family: FamilyRM4},
	0x520b: {Name: "RM4 pro", Family: FamilyRM4, RF: true},
	0x520c: {Name: "RM4 mini", Family: FamilyRM4},
	0x520d: {Name: "RM4c mini", Family: FamilyRM4},
	0x5212: {Name: "RM4 TV mate", Family: FamilyRM4},
	0x5213: {Name: "RM4 pro", Family: FamilyRM4, RF: true},
	0x5216: {Name: "RM4 mini", Family: FamilyRM4},
	0x5218: {Name: "RM4c pro", Family: FamilyRM4, RF: true},
	0x51da: {Name: "RM4 mini", Family: FamilyRM4},
	0x5f36: {Name: "RM mini 3", Family: FamilyRM4},
	0x6026: {Name: "RM4 pro", Family: FamilyRM4, RF: true},
	0x6070: {Name: "RM4c mini", Family: FamilyRM4},
	0x610e: {Name: "RM4 mini", Family: FamilyRM4},
	0x610f: {Name: "RM4c mini", Family: FamilyRM4},
	0x61a2: {Name: "RM4 pro", Family: FamilyRM4, RF: true},
	0x62bc: {Name: "RM4 mini", Family: FamilyRM4},
	0x62be: {Name: "RM4c mini", Family: FamilyRM4},
	0x6364: {Name: "RM4s", Family: FamilyRM4},
	0x648d: {Name: "RM4 mini", Family: FamilyRM4},
	0x649b: {Name: "RM4 pro", Family: FamilyRM4, RF: true},
	0x6508: {Name: "RM mini 3", Family: FamilyRM4},
	0x6539: {Name: "RM4c mini", Family: FamilyRM4},
	0x653a: {Name: "RM4 mini", Family: FamilyRM4},
	0x653c: {Name: "RM4 pro", Family: FamilyRM4, RF: true},
}

// LookupModel returns the model for a device type. Unknown types get RM
// framing and no RF support.
func LookupModel(devType uint16) Model {
	m, ok := models[devType]
	if !ok {
		return Model{Type: devType, Name: "unknown", Family: FamilyRM}
	}
	m.Type = devType
	m.Known = true
	return m
}

// Supported reports whether devType is a known RM-series type.
func Supported(devType uint16) bool {
	_, ok := models[devType]
	return ok
}
