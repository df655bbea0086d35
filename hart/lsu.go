package hart

import (
	"github.com/sarchlab/rv64emu/bus"
	"github.com/sarchlab/rv64emu/csr"
	"github.com/sarchlab/rv64emu/mmu"
)

// LoadStoreUnit performs width- and sign-extension-aware memory accesses.
// Every access is first translated through the MMU, since RV64 interposes
// Sv39 paging between the hart and the physical bus.
type LoadStoreUnit struct {
	mmu *mmu.Translator
	bus *bus.Bus
}

// NewLoadStoreUnit creates a LoadStoreUnit backed by the given translator
// and physical bus.
func NewLoadStoreUnit(t *mmu.Translator, b *bus.Bus) *LoadStoreUnit {
	return &LoadStoreUnit{mmu: t, bus: b}
}

func (l *LoadStoreUnit) translate(vaddr uint64, access mmu.Access, mode csr.PrivMode) (uint64, error) {
	return l.mmu.Translate(vaddr, access, mode)
}

// LB loads a sign-extended byte from vaddr.
func (l *LoadStoreUnit) LB(vaddr uint64, mode csr.PrivMode) (uint64, error) {
	return l.load(vaddr, 8, true, mode)
}

// LH loads a sign-extended halfword from vaddr.
func (l *LoadStoreUnit) LH(vaddr uint64, mode csr.PrivMode) (uint64, error) {
	return l.load(vaddr, 16, true, mode)
}

// LW loads a sign-extended word from vaddr.
func (l *LoadStoreUnit) LW(vaddr uint64, mode csr.PrivMode) (uint64, error) {
	return l.load(vaddr, 32, true, mode)
}

// LD loads a doubleword from vaddr.
func (l *LoadStoreUnit) LD(vaddr uint64, mode csr.PrivMode) (uint64, error) {
	return l.load(vaddr, 64, true, mode)
}

// LBU loads a zero-extended byte from vaddr.
func (l *LoadStoreUnit) LBU(vaddr uint64, mode csr.PrivMode) (uint64, error) {
	return l.load(vaddr, 8, false, mode)
}

// LHU loads a zero-extended halfword from vaddr.
func (l *LoadStoreUnit) LHU(vaddr uint64, mode csr.PrivMode) (uint64, error) {
	return l.load(vaddr, 16, false, mode)
}

// LWU loads a zero-extended word from vaddr.
func (l *LoadStoreUnit) LWU(vaddr uint64, mode csr.PrivMode) (uint64, error) {
	return l.load(vaddr, 32, false, mode)
}

func (l *LoadStoreUnit) load(vaddr uint64, size uint8, signed bool, mode csr.PrivMode) (uint64, error) {
	paddr, err := l.translate(vaddr, mmu.AccessLoad, mode)
	if err != nil {
		return 0, err
	}
	v, err := l.bus.Read(paddr, size)
	if err != nil {
		return 0, err
	}
	if signed {
		return signExtend(v, uint(size)), nil
	}
	return v, nil
}

// SB stores the low byte of value at vaddr.
func (l *LoadStoreUnit) SB(vaddr, value uint64, mode csr.PrivMode) error {
	return l.store(vaddr, 8, value, mode)
}

// SH stores the low halfword of value at vaddr.
func (l *LoadStoreUnit) SH(vaddr, value uint64, mode csr.PrivMode) error {
	return l.store(vaddr, 16, value, mode)
}

// SW stores the low word of value at vaddr.
func (l *LoadStoreUnit) SW(vaddr, value uint64, mode csr.PrivMode) error {
	return l.store(vaddr, 32, value, mode)
}

// SD stores the doubleword value at vaddr.
func (l *LoadStoreUnit) SD(vaddr, value uint64, mode csr.PrivMode) error {
	return l.store(vaddr, 64, value, mode)
}

func (l *LoadStoreUnit) store(vaddr uint64, size uint8, value uint64, mode csr.PrivMode) error {
	paddr, err := l.translate(vaddr, mmu.AccessStore, mode)
	if err != nil {
		return err
	}
	return l.bus.Write(paddr, size, value)
}

// signExtend sign-extends the low bits-width field of v (read from the bus
// as a zero-extended uint64) to a full 64-bit value.
func signExtend(v uint64, bits uint) uint64 {
	shift := 64 - bits
	return uint64(int64(v<<shift) >> shift)
}

// amo performs the atomic read-modify-write shared by every AMO* op: it
// loads the current value, computes modify(old), writes the result back,
// and returns the pre-modification value, which rd receives.
func (l *LoadStoreUnit) amo(vaddr uint64, size uint8, mode csr.PrivMode, modify func(old uint64) uint64) (uint64, error) {
	paddr, err := l.translate(vaddr, mmu.AccessStore, mode)
	if err != nil {
		return 0, err
	}
	old, err := l.bus.Read(paddr, size)
	if err != nil {
		return 0, err
	}
	if err := l.bus.Write(paddr, size, modify(old)); err != nil {
		return 0, err
	}
	return old, nil
}

// AMOW performs a 32-bit atomic memory operation, returning the
// sign-extended pre-modification value.
func (l *LoadStoreUnit) AMOW(vaddr uint64, mode csr.PrivMode, modify func(old uint32) uint32) (uint64, error) {
	old, err := l.amo(vaddr, 32, mode, func(old uint64) uint64 {
		return uint64(modify(uint32(old)))
	})
	if err != nil {
		return 0, err
	}
	return signExtend(old, 32), nil
}

// AMOD performs a 64-bit atomic memory operation, returning the
// pre-modification value.
func (l *LoadStoreUnit) AMOD(vaddr uint64, mode csr.PrivMode, modify func(old uint64) uint64) (uint64, error) {
	return l.amo(vaddr, 64, mode, modify)
}
