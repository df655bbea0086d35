package mmu_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv64emu/bus"
	"github.com/sarchlab/rv64emu/csr"
	"github.com/sarchlab/rv64emu/mem"
	"github.com/sarchlab/rv64emu/mmu"
)

const dramBase = 0x8000_0000

// writePTE stores a little-endian Sv39 PTE word at a DRAM-relative address.
func writePTE(dram *mem.Memory, addr uint64, ppn uint64, flags uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], ppn<<10|flags)
	dram.LoadBytes(dramBase+addr, b[:])
}

var _ = Describe("Translator", func() {
	const (
		pteV = 1
		pteR = 2
		pteW = 4
		pteX = 8
	)

	var (
		dram *mem.Memory
		regs *csr.File
		tr   *mmu.Translator
	)

	BeforeEach(func() {
		dram = mem.New(dramBase, 0x10000)
		b := bus.New(bus.WithDevice("dram", dramBase, 0x10000, dram))
		regs = csr.New()
		regs.Write(csr.Satp, uint64(8)<<60|dramBase>>12)
		tr = mmu.New(regs, b, nil)

		// three-level walk for vaddr 0x1000 (vpn2=0, vpn1=0, vpn0=1):
		// root @ +0x0000 -> non-leaf @ DRAM+0x1000
		writePTE(dram, 0x0000, (dramBase+0x1000)>>12, pteV)
		// level1 @ +0x1000 -> non-leaf @ DRAM+0x2000
		writePTE(dram, 0x1000, (dramBase+0x2000)>>12, pteV)
		// leaf @ +0x2000, entry 1 (offset 8): readable+writable+executable page at DRAM+0x3000
		writePTE(dram, 0x2008, (dramBase+0x3000)>>12, pteV|pteR|pteW|pteX)
	})

	It("walks a three-level Sv39 page table to a leaf physical address", func() {
		pa, err := tr.Translate(0x1000, mmu.AccessLoad, csr.Supervisor)
		Expect(err).NotTo(HaveOccurred())
		Expect(pa).To(Equal(uint64(dramBase + 0x3000)))
	})

	It("preserves the page offset through translation", func() {
		pa, err := tr.Translate(0x1042, mmu.AccessLoad, csr.Supervisor)
		Expect(err).NotTo(HaveOccurred())
		Expect(pa).To(Equal(uint64(dramBase + 0x3042)))
	})

	It("bypasses translation when SATP.MODE is Bare", func() {
		regs.Write(csr.Satp, 0)
		pa, err := tr.Translate(0xDEAD, mmu.AccessLoad, csr.Supervisor)
		Expect(err).NotTo(HaveOccurred())
		Expect(pa).To(Equal(uint64(0xDEAD)))
	})

	It("raises LoadPageFault when the leaf PTE has R=0", func() {
		writePTE(dram, 0x2008, (dramBase+0x3000)>>12, pteV|pteX) // execute-only page
		_, err := tr.Translate(0x1000, mmu.AccessLoad, csr.Supervisor)
		Expect(err).To(HaveOccurred())
		var f *mmu.Fault
		Expect(err).To(BeAssignableToTypeOf(f))
		pf := err.(*mmu.Fault)
		Expect(pf.Cause).To(Equal(uint64(csr.LoadPageFault)))
		Expect(pf.Vaddr).To(Equal(uint64(0x1000)))
	})

	It("bypasses translation in Machine mode for data accesses without MPRV", func() {
		pa, err := tr.Translate(0x1000, mmu.AccessLoad, csr.Machine)
		Expect(err).NotTo(HaveOccurred())
		Expect(pa).To(Equal(uint64(0x1000)))
	})

	It("caches a translation in the optional TLB and still enforces faults", func() {
		cached := mmu.New(regs, bus.New(bus.WithDevice("dram", dramBase, 0x10000, dram)), mmu.NewTLB(4, 2))
		pa1, err := cached.Translate(0x1000, mmu.AccessLoad, csr.Supervisor)
		Expect(err).NotTo(HaveOccurred())
		pa2, err := cached.Translate(0x1000, mmu.AccessLoad, csr.Supervisor)
		Expect(err).NotTo(HaveOccurred())
		Expect(pa2).To(Equal(pa1))
	})
})
