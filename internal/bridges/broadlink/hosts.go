package broadlink

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-broadlink/internal/device"
	"github.com/nerrad567/gray-logic-broadlink/internal/infrastructure/config"
)

// RegisterHosts registers statically configured devices.
//
// Parameters:
//   - reg: Registry whose factory builds the transports
//   - hosts: Configured hosts; Address is required
//
// Returns:
//   - int: Number of handles newly created
//   - error: If a host has no address
func RegisterHosts(reg *device.Registry, hosts []config.HostConfig) (int, error) {
	before := reg.Len()
	for i, h := range hosts {
		_, err := reg.RegisterManual(h.Address, device.Identity{Address: h.Address, MAC: h.MAC})
		if err != nil {
			return reg.Len() - before, fmt.Errorf("host %d: %w", i, err)
		}
	}
	return reg.Len() - before, nil
}

// HostTypes maps configured addresses to device type codes.
func HostTypes(hosts []config.HostConfig) map[string]uint16 {
	types := make(map[string]uint16, len(hosts))
	for _, h := range hosts {
		if h.Type > 0 && h.Type <= 0xffff {
			types[h.Address] = uint16(h.Type)
		}
	}
	return types
}

// InterestFilter returns a liveness predicate that accepts devices whose
// address or MAC is in allowed. An empty set accepts every device.
func InterestFilter(allowed map[string]struct{}) func(h *device.Handle) bool {
	if len(allowed) == 0 {
		return func(*device.Handle) bool { return true }
	}
	normalized := make(map[string]struct{}, len(allowed))
	for k := range allowed {
		normalized[strings.ToLower(device.NormalizeMAC(k))] = struct{}{}
	}
	return func(h *device.Handle) bool {
		id := h.Identity()
		if _, ok := normalized[strings.ToLower(id.Address)]; ok {
			return true
		}
		if id.MAC == "" {
			return false
		}
		_, ok := normalized[device.NormalizeMAC(id.MAC)]
		return ok
	}
}
