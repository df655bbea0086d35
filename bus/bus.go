// Package bus implements the physical-address router that dispatches hart
// memory accesses to DRAM or to an attached MMIO device, and drives the
// per-step tick of time-keeping devices.
package bus

import "fmt"

// AccessKind distinguishes loads from stores for fault classification.
type AccessKind uint8

// Access kinds.
const (
	Load AccessKind = iota
	Store
)

// Fault is a bus-level access fault (unmapped address, or a store to a
// read-only region). It carries enough information for the hart to raise
// the matching architectural exception.
type Fault struct {
	Addr  uint64
	Kind  AccessKind
	Cause string
}

func (f *Fault) Error() string {
	verb := "load from"
	if f.Kind == Store {
		verb = "store to"
	}
	return fmt.Sprintf("bus: %s %s 0x%x", verb, f.Cause, f.Addr)
}

// Device is the uniform contract every MMIO peripheral implements.
type Device interface {
	// ReadAt loads size bits (8/16/32/64) from the device-relative offset.
	ReadAt(offset uint64, size uint8) (uint64, error)
	// WriteAt stores the low size bits of value at the device-relative offset.
	WriteAt(offset uint64, size uint8, value uint64) error
	// Tick advances the device's internal clock by one hart step.
	Tick()
}

// region is one entry in the bus's static address-range table.
type region struct {
	name string
	base uint64
	size uint64
	dev  Device
}

// Bus routes physical accesses to the component owning each address range.
type Bus struct {
	regions []region
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithDevice maps dev into [base, base+size) under name (used in
// diagnostics and fault messages).
func WithDevice(name string, base, size uint64, dev Device) Option {
	return func(b *Bus) {
		b.regions = append(b.regions, region{name: name, base: base, size: size, dev: dev})
	}
}

// New creates a Bus with the given device mappings.
func New(opts ...Option) *Bus {
	b := &Bus{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// find returns the region containing addr, or nil.
func (b *Bus) find(addr uint64) *region {
	for i := range b.regions {
		r := &b.regions[i]
		if addr >= r.base && addr < r.base+r.size {
			return r
		}
	}
	return nil
}

// Read performs a size-bit load (8/16/32/64) at a physical address.
func (b *Bus) Read(addr uint64, size uint8) (uint64, error) {
	r := b.find(addr)
	if r == nil {
		return 0, &Fault{Addr: addr, Kind: Load, Cause: "unmapped address"}
	}
	v, err := r.dev.ReadAt(addr-r.base, size)
	if err != nil {
		return 0, &Fault{Addr: addr, Kind: Load, Cause: err.Error()}
	}
	return v, nil
}

// Write performs a size-bit store (8/16/32/64) at a physical address.
func (b *Bus) Write(addr uint64, size uint8, value uint64) error {
	r := b.find(addr)
	if r == nil {
		return &Fault{Addr: addr, Kind: Store, Cause: "unmapped address"}
	}
	if err := r.dev.WriteAt(addr-r.base, size, value); err != nil {
		return &Fault{Addr: addr, Kind: Store, Cause: err.Error()}
	}
	return nil
}

// Tick advances every mapped device's clock by one hart step: CLINT
// increments mtime, and UART and VirtIO refresh their PLIC interrupt lines.
// VirtIO processes its request queue on a QueueNotify write, not here.
func (b *Bus) Tick() {
	for i := range b.regions {
		b.regions[i].dev.Tick()
	}
}

// closer is implemented by devices that own a background goroutine (the
// UART's host-input reader) and need an explicit shutdown signal.
type closer interface {
	Close()
}

// Close shuts down every mapped device that owns background state, so a
// hart's Run loop can return without leaking goroutines.
func (b *Bus) Close() {
	for i := range b.regions {
		if c, ok := b.regions[i].dev.(closer); ok {
			c.Close()
		}
	}
}

// Device returns the device mapped under name, or nil. Used by callers that
// need the concrete device type (e.g. the CLI wiring CSR-visible interrupt
// lines, or tests asserting on device-internal state).
func (b *Bus) Device(name string) Device {
	for i := range b.regions {
		if b.regions[i].name == name {
			return b.regions[i].dev
		}
	}
	return nil
}
