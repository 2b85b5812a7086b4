// Package device holds the set of bound actuator devices and resolves them
// by index or by name.
package device

import (
	"fmt"
	"sync"

	"github.com/nasa-jpl/stepperctl/stepper"
)

// Registry is an ordered set of bound devices.  Ordering is the order of Add
// and is stable for the life of the process.  It is concurrent safe.
type Registry struct {
	mu      sync.RWMutex
	devices []stepper.Device
}

// NewRegistry returns a registry holding devs, in order
func NewRegistry(devs ...stepper.Device) (*Registry, error) {
	r := &Registry{}
	for _, d := range devs {
		if err := r.Add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add binds a device.  Names must be unique and non-empty.
func (r *Registry) Add(d stepper.Device) error {
	name := d.Name()
	if name == "" {
		return fmt.Errorf("device has no name: %w", stepper.ErrInvalid)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.devices {
		if other.Name() == name {
			return fmt.Errorf("device %s already bound: %w", name, stepper.ErrBusy)
		}
	}
	r.devices = append(r.devices, d)
	return nil
}

// Lookup returns the idx-th bound device, or false past the end
func (r *Registry) Lookup(idx int) (stepper.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.devices) {
		return nil, false
	}
	return r.devices[idx], true
}

// Get returns the device whose name is exactly name
func (r *Registry) Get(name string) (stepper.Device, error) {
	for i := 0; ; i++ {
		d, ok := r.Lookup(i)
		if !ok {
			return nil, fmt.Errorf("device %s: %w", name, stepper.ErrNoDevice)
		}
		if d.Name() == name {
			return d, nil
		}
	}
}

// Names lists the names of the bound devices in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.devices))
	for i, d := range r.devices {
		names[i] = d.Name()
	}
	return names
}

// Len returns the number of bound devices
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
