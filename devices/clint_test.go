package devices_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv64emu/csr"
	"github.com/sarchlab/rv64emu/devices"
)

var _ = Describe("CLINT", func() {
	var (
		regs *csr.File
		c    *devices.CLINT
	)

	BeforeEach(func() {
		regs = csr.New()
		c = devices.NewCLINT(regs)
	})

	It("raises MTIP once mtime reaches mtimecmp", func() {
		Expect(c.WriteAt(0x4000, 64, 3)).To(Succeed())

		c.Tick()
		c.Tick()
		Expect(regs.CheckBit(csr.Mip, csr.MipMTIP)).To(BeFalse())

		c.Tick()
		Expect(regs.CheckBit(csr.Mip, csr.MipMTIP)).To(BeTrue())
		Expect(c.Mtime()).To(Equal(uint64(3)))
	})

	It("raises MSIP while msip is set via the software-interrupt register", func() {
		Expect(c.WriteAt(0x0000, 32, 1)).To(Succeed())
		c.Tick()
		Expect(regs.CheckBit(csr.Mip, csr.MipMSIP)).To(BeTrue())

		Expect(c.WriteAt(0x0000, 32, 0)).To(Succeed())
		c.Tick()
		Expect(regs.CheckBit(csr.Mip, csr.MipMSIP)).To(BeFalse())
	})

	It("reads back mtime and mtimecmp", func() {
		Expect(c.WriteAt(0x4000, 64, 42)).To(Succeed())
		v, err := c.ReadAt(0x4000, 64)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(42)))
	})
})
