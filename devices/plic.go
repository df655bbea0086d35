package devices

import "github.com/sarchlab/rv64emu/csr"

// PLIC register layout (platform-level interrupt controller), QEMU virt
// convention: per-source priority words, a pending bitmap, a per-context
// enable bitmap, and a claim/complete register in the context's threshold
// page. This emulator models a single context (the one hart, machine mode).
const (
	plicPriorityBase = 0x0000
	plicPendingBase  = 0x1000
	plicEnableBase   = 0x2000
	plicThreshold    = 0x20_0000
	plicClaim        = 0x20_0004

	// NumIRQs bounds the source-id range; sources 1..10 cover this
	// platform's VirtIO (1) and UART0 (10).
	NumIRQs = 32
)

// PLIC is the platform-level interrupt controller: external devices (UART,
// VirtIO) assert a source line via SetPending; the hart observes a pending,
// enabled, above-threshold source as MIP.SEIP/MIP.MEIP and resolves which
// one via Claim.
type PLIC struct {
	regs *csr.File

	priority  [NumIRQs]uint32
	pending   [NumIRQs]bool
	enabled   [NumIRQs]bool
	threshold uint32
	claimed   uint32 // source currently claimed and not yet completed, 0 if none
}

// NewPLIC creates a PLIC that raises MIP.SEIP and MIP.MEIP in regs.
func NewPLIC(regs *csr.File) *PLIC {
	return &PLIC{regs: regs}
}

// SetPending asserts or clears source irq's pending bit (called by UART/
// VirtIO when their own interrupt condition changes).
func (p *PLIC) SetPending(irq uint32, pending bool) {
	if irq == 0 || int(irq) >= NumIRQs {
		return
	}
	p.pending[irq] = pending
}

// ReadAt implements bus.Device.
func (p *PLIC) ReadAt(offset uint64, size uint8) (uint64, error) {
	switch {
	case offset >= plicPriorityBase && offset < plicPriorityBase+4*NumIRQs && size == 32:
		return uint64(p.priority[offset/4]), nil
	case offset == plicPendingBase && size == 32:
		return uint64(p.pendingBits()), nil
	case offset == plicEnableBase && size == 32:
		return uint64(p.enableBits()), nil
	case offset == plicThreshold && size == 32:
		return uint64(p.threshold), nil
	case offset == plicClaim && size == 32:
		return uint64(p.claim()), nil
	default:
		return 0, nil
	}
}

// WriteAt implements bus.Device.
func (p *PLIC) WriteAt(offset uint64, size uint8, value uint64) error {
	switch {
	case offset >= plicPriorityBase && offset < plicPriorityBase+4*NumIRQs && size == 32:
		p.priority[offset/4] = uint32(value)
	case offset == plicEnableBase && size == 32:
		for i := 0; i < NumIRQs; i++ {
			p.enabled[i] = value&(1<<uint(i)) != 0
		}
	case offset == plicThreshold && size == 32:
		p.threshold = uint32(value)
	case offset == plicClaim && size == 32:
		if uint32(value) == p.claimed {
			p.claimed = 0
		}
	}
	return nil
}

func (p *PLIC) pendingBits() uint32 {
	var bits uint32
	for i, set := range p.pending {
		if set {
			bits |= 1 << uint(i)
		}
	}
	return bits
}

func (p *PLIC) enableBits() uint32 {
	var bits uint32
	for i, on := range p.enabled {
		if on {
			bits |= 1 << uint(i)
		}
	}
	return bits
}

// claim returns the highest-priority pending, enabled, above-threshold
// source and marks it claimed (clearing pending until Complete), or 0.
func (p *PLIC) claim() uint32 {
	if p.claimed != 0 {
		return 0
	}
	best := uint32(0)
	bestPrio := p.threshold
	for i := 1; i < NumIRQs; i++ {
		if !p.pending[i] || !p.enabled[i] {
			continue
		}
		if p.priority[i] > bestPrio {
			bestPrio = p.priority[i]
			best = uint32(i)
		}
	}
	if best != 0 {
		p.pending[best] = false
		p.claimed = best
	}
	return best
}

// Tick re-derives MIP.SEIP and MIP.MEIP from whether any source is pending,
// enabled and above threshold. Both bits are asserted together: MEIP cannot
// be delegated to supervisor mode, so an S-mode kernel waiting on an
// external interrupt needs SEIP asserted directly rather than through
// delegation.
func (p *PLIC) Tick() {
	for i := 1; i < NumIRQs; i++ {
		if p.pending[i] && p.enabled[i] && p.priority[i] > p.threshold {
			p.regs.SetBits(csr.Mip, csr.MipSEIP|csr.MipMEIP)
			return
		}
	}
	p.regs.ClearBits(csr.Mip, csr.MipSEIP|csr.MipMEIP)
}
