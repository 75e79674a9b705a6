package instrument

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Drivers maps driver names to transports. One Drivers instance serves the
// whole engine; per-run state lives in Registry.
type Drivers struct {
	mu sync.RWMutex
	m  map[string]Transport
}

// NewDrivers creates an empty driver table.
func NewDrivers() *Drivers {
	return &Drivers{m: map[string]Transport{}}
}

// Register adds a transport under a driver name. Registering the same name
// twice is a wiring mistake in the hosting application, so it panics.
func (d *Drivers) Register(name string, t Transport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.m[name]; exists {
		panic(fmt.Sprintf("instrument driver %q already registered", name))
	}
	slog.Debug("Registering instrument driver.", "name", name)
	d.m[name] = t
}

// Lookup returns the transport registered under name.
func (d *Drivers) Lookup(name string) (Transport, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.m[name]
	return t, ok
}

// Names returns the registered driver names, sorted.
func (d *Drivers) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.m))
	for name := range d.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
