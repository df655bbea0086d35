package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv64emu/insts"
)

var _ = Describe("Instruction", func() {
	It("is a plain value with no executor reference", func() {
		a := insts.Instruction{Op: insts.OpADDI, Rd: 1, Rs1: 2, Imm: 5, Width: 4}
		b := a
		b.Imm = 9

		Expect(a.Imm).To(Equal(int64(5)))
		Expect(b.Imm).To(Equal(int64(9)))
	})

	It("defaults to OpUnknown for the zero value", func() {
		var i insts.Instruction
		Expect(i.Op).To(Equal(insts.OpUnknown))
	})

	It("exposes a usable Decoder", func() {
		decoder := insts.NewDecoder()
		Expect(decoder).ToNot(BeNil())
	})
})
