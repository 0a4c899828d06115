package device

import (
	"fmt"
	"sync"
)

// FirstDevice is the selector meaning "first registered device that fits".
const FirstDevice = "_"

// TransportFactory builds a Transport for a statically configured device.
type TransportFactory func(id Identity) Transport

// Watcher is notified of every newly registered handle. The Monitor
// implements it.
type Watcher interface {
	Watch(h *Handle)
}

// Registry maps device addresses and MACs to Handles.
//
// The first registration for an address or MAC wins; later registrations
// that reuse either key are ignored, so repeated discovery responses never
// create duplicate handles.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	byKey  map[string]*Handle
	order  []*Handle
	logger Logger

	factory    TransportFactory
	watcher    Watcher
	onRegister func(h *Handle)
}

// NewRegistry creates an empty registry. factory may be nil, in which case
// manual registrations get a placeholder transport that fails every call.
func NewRegistry(factory TransportFactory) *Registry {
	return &Registry{
		byKey:   make(map[string]*Handle),
		logger:  noopLogger{},
		factory: factory,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// SetWatcher sets the watcher started for every new handle.
func (r *Registry) SetWatcher(w Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watcher = w
}

// OnRegister sets a callback invoked after each new registration.
func (r *Registry) OnRegister(fn func(h *Handle)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRegister = fn
}

// Register binds id's address and MAC to a new Handle wrapping t.
//
// If either key is already bound, nothing changes and the existing handle
// is returned with added=false. Re-registering the same transport is
// therefore a no-op, and a different transport for a known address is
// dropped.
//
// On success the watcher (liveness monitor) is told about the new handle.
//
// Parameters:
//   - id: Identity; Address is required, MAC is optional
//   - t: Transport for the device
//
// Returns:
//   - *Handle: The handle now bound to id (new or existing)
//   - bool: true if a new handle was created
func (r *Registry) Register(id Identity, t Transport) (*Handle, bool) {
	addrKey := normalizeKey(id.Address)
	macKey := NormalizeMAC(id.MAC)

	r.mu.Lock()
	existing := r.byKey[addrKey]
	if existing == nil && macKey != "" {
		existing = r.byKey[macKey]
	}
	if existing != nil {
		logger := r.logger
		r.mu.Unlock()
		if existing.transport != t {
			logger.Debug("duplicate device registration ignored",
				"address", id.Address,
				"mac", macKey,
				"bound_to", existing.id.String(),
			)
		}
		return existing, false
	}

	h := newHandle(Identity{Address: id.Address, MAC: macKey}, t)
	r.byKey[addrKey] = h
	if macKey != "" {
		r.byKey[macKey] = h
	}
	r.order = append(r.order, h)

	watcher := r.watcher
	onRegister := r.onRegister
	logger := r.logger
	r.mu.Unlock()

	logger.Info("device registered",
		"address", id.Address,
		"mac", macKey,
		"capabilities", t.Capabilities().String(),
	)

	if watcher != nil {
		watcher.Watch(h)
	}
	if onRegister != nil {
		onRegister(h)
	}

	return h, true
}

// RegisterManual registers a statically configured device before any
// discovery response has been seen. The transport comes from the factory;
// it may not answer yet, in which case sends fail until it does.
func (r *Registry) RegisterManual(address string, id Identity) (*Handle, error) {
	if address == "" {
		address = id.Address
	}
	if address == "" {
		return nil, ErrInvalidIdentity
	}
	id.Address = address

	var t Transport = placeholderTransport{}
	if r.factory != nil {
		t = r.factory(id)
	}

	h, _ := r.Register(id, t)
	return h, nil
}

// Lookup returns the handle bound to an address or MAC. Exact key match
// only (case-insensitive).
func (r *Registry) Lookup(key string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.byKey[normalizeKey(key)]; ok {
		return h, true
	}
	h, ok := r.byKey[NormalizeMAC(key)]
	return h, ok
}

// LookupFirst returns the first handle, in registration order, that
// satisfies pred. A nil pred matches any handle.
func (r *Registry) LookupFirst(pred func(h *Handle) bool) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.order {
		if pred == nil || pred(h) {
			return h, true
		}
	}
	return nil, false
}

// Resolve maps a selector to a handle. An empty selector or FirstDevice
// selects the first device having want; otherwise the selector must match
// an address or MAC exactly.
//
// Returns ErrDeviceNotFound if nothing matches. Capability checks for an
// explicit selector are left to the caller.
func (r *Registry) Resolve(selector string, want Capabilities) (*Handle, error) {
	if selector == "" || selector == FirstDevice {
		h, ok := r.LookupFirst(func(h *Handle) bool { return h.Supports(want) })
		if !ok {
			return nil, fmt.Errorf("%w: no device supports %s", ErrDeviceNotFound, want)
		}
		return h, nil
	}

	h, ok := r.Lookup(selector)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, selector)
	}
	return h, nil
}

// Devices returns all handles in registration order.
func (r *Registry) Devices() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Handle, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
