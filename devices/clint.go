// Package devices implements the platform's MMIO peripherals: the CLINT
// timer/software-interrupt controller, the PLIC external-interrupt
// controller, a 16550 UART, a legacy VirtIO-MMIO block device, and the
// boot ROM reset stub.
package devices

import "github.com/sarchlab/rv64emu/csr"

// CLINT register offsets (core-local interruptor).
const (
	clintMSIP     = 0x0000
	clintMTimecmp = 0x4000
	clintMTime    = 0xBFF8
)

// CLINT is the core-local interruptor: a free-running 64-bit mtime counter,
// a per-hart mtimecmp comparator, and a per-hart software-interrupt flag
// (msip). Every bus Tick advances mtime by one and re-derives MIP.MTIP/MSIP
// from the comparator and msip state.
type CLINT struct {
	regs *csr.File

	mtime    uint64
	mtimecmp uint64
	msip     uint32
}

// NewCLINT creates a CLINT that raises MTIP/MSIP in regs's MIP register.
func NewCLINT(regs *csr.File) *CLINT {
	return &CLINT{regs: regs, mtimecmp: ^uint64(0)}
}

// ReadAt implements bus.Device.
func (c *CLINT) ReadAt(offset uint64, size uint8) (uint64, error) {
	switch {
	case offset == clintMSIP && size == 32:
		return uint64(c.msip), nil
	case offset == clintMTimecmp && size == 64:
		return c.mtimecmp, nil
	case offset == clintMTime && size == 64:
		return c.mtime, nil
	default:
		return 0, nil
	}
}

// WriteAt implements bus.Device.
func (c *CLINT) WriteAt(offset uint64, size uint8, value uint64) error {
	switch {
	case offset == clintMSIP && size == 32:
		c.msip = uint32(value) & 1
	case offset == clintMTimecmp && size == 64:
		c.mtimecmp = value
	case offset == clintMTime && size == 64:
		c.mtime = value
	}
	return nil
}

// Tick advances mtime by one and updates the hart's MIP.MTIP/MSIP bits.
func (c *CLINT) Tick() {
	c.mtime++
	if c.mtime >= c.mtimecmp {
		c.regs.SetBits(csr.Mip, csr.MipMTIP)
	} else {
		c.regs.ClearBits(csr.Mip, csr.MipMTIP)
	}
	if c.msip != 0 {
		c.regs.SetBits(csr.Mip, csr.MipMSIP)
	} else {
		c.regs.ClearBits(csr.Mip, csr.MipMSIP)
	}
}

// Mtime returns the current timer value, for diagnostics and tests.
func (c *CLINT) Mtime() uint64 { return c.mtime }
