package mem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv64emu/mem"
)

var _ = Describe("Memory", func() {
	var m *mem.Memory

	BeforeEach(func() {
		m = mem.New(0x8000_0000, 4096)
	})

	It("reports its base and size", func() {
		Expect(m.Base()).To(Equal(uint64(0x8000_0000)))
		Expect(m.Size()).To(Equal(uint64(4096)))
	})

	It("round-trips byte-width accesses", func() {
		m.Write8(0x8000_0010, 0xAB)
		Expect(m.Read8(0x8000_0010)).To(Equal(uint8(0xAB)))
	})

	It("round-trips 64-bit accesses little-endian", func() {
		m.Write64(0x8000_0020, 0x0102030405060708)
		Expect(m.Read8(0x8000_0020)).To(Equal(uint8(0x08)))
		Expect(m.Read8(0x8000_0027)).To(Equal(uint8(0x01)))
		Expect(m.Read64(0x8000_0020)).To(Equal(uint64(0x0102030405060708)))
	})

	It("allows misaligned accesses", func() {
		m.Write32(0x8000_0001, 0xDEADBEEF)
		Expect(m.Read32(0x8000_0001)).To(Equal(uint32(0xDEADBEEF)))
	})

	DescribeTable("ReadAt/WriteAt dispatch by size",
		func(size uint8, value uint64) {
			m.WriteAt(0x40, size, value)
			mask := uint64(1)<<size - 1
			if size == 64 {
				mask = ^uint64(0)
			}
			Expect(m.ReadAt(0x40, size)).To(Equal(value & mask))
		},
		Entry("8-bit", uint8(8), uint64(0xFF)),
		Entry("16-bit", uint8(16), uint64(0xBEEF)),
		Entry("32-bit", uint8(32), uint64(0xDEADBEEF)),
		Entry("64-bit", uint8(64), uint64(0x0123456789ABCDEF)),
	)

	It("contains reports accesses within range", func() {
		Expect(m.Contains(0x8000_0000, 8)).To(BeTrue())
		Expect(m.Contains(0x8000_0FF8, 8)).To(BeTrue())
		Expect(m.Contains(0x8000_0FF9, 8)).To(BeFalse())
		Expect(m.Contains(0x7FFF_FFFF, 8)).To(BeFalse())
	})

	It("loads bytes and exposes a DMA view", func() {
		m.LoadBytes(0x8000_0100, []byte{1, 2, 3, 4})
		Expect(m.Bytes(0x8000_0100, 4)).To(Equal([]byte{1, 2, 3, 4}))
	})
})
