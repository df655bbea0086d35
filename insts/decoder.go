package insts

// Decoder decodes RV64GC machine code into Instruction values.
type Decoder struct{}

// NewDecoder creates a new RV64GC instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes one instruction starting at a 32-bit-aligned fetch window.
// word's low 16 bits are always valid; the high 16 bits are only consulted
// when the low two bits mark a full-width (non-compressed) encoding, so
// callers may pass a 4-byte fetch even when only 2 bytes are mapped at the
// tail of a page.
func (d *Decoder) Decode(word uint32) Instruction {
	if !d.isCompressed(word) {
		return d.decodeFull(word)
	}
	return d.decodeCompressed(uint16(word))
}

// isCompressed reports whether word encodes a 16-bit C-extension
// instruction: its low two bits are not both set.
func (d *Decoder) isCompressed(word uint32) bool {
	return word&0x3 != 0x3
}

// --- full-width (32-bit) decode ---

func signExtend(v uint64, bits uint) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

func (d *Decoder) decodeFull(word uint32) Instruction {
	inst := Instruction{Width: 4}
	opcode := word & 0x7f
	funct3 := (word >> 12) & 0x7
	rd := uint8((word >> 7) & 0x1f)
	rs1 := uint8((word >> 15) & 0x1f)
	rs2 := uint8((word >> 20) & 0x1f)
	funct7 := (word >> 25) & 0x7f

	inst.Rd, inst.Rs1, inst.Rs2 = rd, rs1, rs2

	switch opcode {
	case 0x03: // LOAD
		inst.Imm = signExtend(uint64(word)>>20, 12)
		inst.Op = [...]Op{OpLB, OpLH, OpLW, OpLD, OpLBU, OpLHU, OpLWU, OpUnknown}[funct3]
	case 0x07: // LOAD-FP (opaque FLD placeholder, funct3==3 only)
		inst.Imm = signExtend(uint64(word)>>20, 12)
		if funct3 == 3 {
			inst.Op = OpFLD
		} else {
			inst.Op = OpUnknown
		}
	case 0x0f: // MISC-MEM
		if funct3 == 1 {
			inst.Op = OpFENCEI
		} else {
			inst.Op = OpFENCE
		}
	case 0x13: // OP-IMM
		inst.Imm = signExtend(uint64(word)>>20, 12)
		d.decodeOpImm(word, funct3, &inst)
	case 0x17: // AUIPC
		inst.Op = OpAUIPC
		inst.Imm = int64(int32(word & 0xfffff000))
	case 0x1b: // OP-IMM-32
		d.decodeOpImm32(word, funct3, &inst)
	case 0x23: // STORE
		imm := ((word >> 25) << 5) | ((word >> 7) & 0x1f)
		inst.Imm = signExtend(uint64(imm), 12)
		inst.Op = [...]Op{OpSB, OpSH, OpSW, OpSD, OpUnknown, OpUnknown, OpUnknown, OpUnknown}[funct3]
	case 0x27: // STORE-FP (opaque FSD placeholder, funct3==3 only)
		imm := ((word >> 25) << 5) | ((word >> 7) & 0x1f)
		inst.Imm = signExtend(uint64(imm), 12)
		if funct3 == 3 {
			inst.Op = OpFSD
		} else {
			inst.Op = OpUnknown
		}
	case 0x2f: // AMO
		d.decodeAMO(word, funct3, &inst)
	case 0x33: // OP
		d.decodeOp(funct3, funct7, &inst)
	case 0x37: // LUI
		inst.Op = OpLUI
		inst.Imm = int64(int32(word & 0xfffff000))
	case 0x3b: // OP-32
		d.decodeOp32(funct3, funct7, &inst)
	case 0x63: // BRANCH
		imm := ((word>>31)&1)<<12 | ((word>>7)&1)<<11 | ((word>>25)&0x3f)<<5 | ((word>>8)&0xf)<<1
		inst.Imm = signExtend(uint64(imm), 13)
		inst.Op = [...]Op{OpBEQ, OpBNE, OpUnknown, OpUnknown, OpBLT, OpBGE, OpBLTU, OpBGEU}[funct3]
	case 0x67: // JALR
		inst.Op = OpJALR
		inst.Imm = signExtend(uint64(word)>>20, 12)
	case 0x6f: // JAL
		inst.Op = OpJAL
		imm := ((word>>31)&1)<<20 | ((word>>12)&0xff)<<12 | ((word>>20)&1)<<11 | ((word>>21)&0x3ff)<<1
		inst.Imm = signExtend(uint64(imm), 21)
	case 0x73: // SYSTEM
		d.decodeSystem(word, funct3, &inst)
	default:
		inst.Op = OpUnknown
	}

	return inst
}

func (d *Decoder) decodeOpImm(word uint32, funct3 uint32, inst *Instruction) {
	switch funct3 {
	case 0:
		inst.Op = OpADDI
	case 1:
		inst.Op = OpSLLI
		inst.Shamt = uint8((word >> 20) & 0x3f)
	case 2:
		inst.Op = OpSLTI
	case 3:
		inst.Op = OpSLTIU
	case 4:
		inst.Op = OpXORI
	case 5:
		inst.Shamt = uint8((word >> 20) & 0x3f)
		if (word>>26)&0x3f == 0x10 {
			inst.Op = OpSRAI
		} else {
			inst.Op = OpSRLI
		}
	case 6:
		inst.Op = OpORI
	case 7:
		inst.Op = OpANDI
	}
}

func (d *Decoder) decodeOpImm32(word uint32, funct3 uint32, inst *Instruction) {
	switch funct3 {
	case 0:
		inst.Op = OpADDIW
		inst.Imm = signExtend(uint64(word)>>20, 12)
	case 1:
		inst.Op = OpSLLIW
		inst.Shamt = uint8((word >> 20) & 0x1f)
	case 5:
		inst.Shamt = uint8((word >> 20) & 0x1f)
		if (word>>25)&0x7f == 0x20 {
			inst.Op = OpSRAIW
		} else {
			inst.Op = OpSRLIW
		}
	default:
		inst.Op = OpUnknown
	}
}

func (d *Decoder) decodeOp(funct3, funct7 uint32, inst *Instruction) {
	tables := [8][3]Op{
		{OpADD, OpMUL, OpSUB},
		{OpSLL, OpMULH, OpUnknown},
		{OpSLT, OpMULHSU, OpUnknown},
		{OpSLTU, OpMULHU, OpUnknown},
		{OpXOR, OpDIV, OpUnknown},
		{OpSRL, OpDIVU, OpSRA},
		{OpOR, OpREM, OpUnknown},
		{OpAND, OpREMU, OpUnknown},
	}
	inst.Op = selectByFunct7(tables[funct3], funct7)
}

func (d *Decoder) decodeOp32(funct3, funct7 uint32, inst *Instruction) {
	tables := [8][3]Op{
		{OpADDW, OpMULW, OpSUBW},
		{OpSLLW, OpUnknown, OpUnknown},
		{OpUnknown, OpUnknown, OpUnknown},
		{OpUnknown, OpUnknown, OpUnknown},
		{OpUnknown, OpDIVW, OpUnknown},
		{OpSRLW, OpDIVUW, OpSRAW},
		{OpUnknown, OpREMW, OpUnknown},
		{OpUnknown, OpREMUW, OpUnknown},
	}
	inst.Op = selectByFunct7(tables[funct3], funct7)
}

// selectByFunct7 resolves the base/M-extension/SUB-or-SRA variant sharing a
// funct3 slot, keyed by funct7's value (0x00, 0x01, 0x20).
func selectByFunct7(variants [3]Op, funct7 uint32) Op {
	switch funct7 {
	case 0x00:
		return variants[0]
	case 0x01:
		return variants[1]
	case 0x20:
		return variants[2]
	default:
		return OpUnknown
	}
}

func (d *Decoder) decodeAMO(word uint32, funct3 uint32, inst *Instruction) {
	funct5 := (word >> 27) & 0x1f
	inst.Aq = (word>>26)&1 != 0
	inst.Rl = (word>>25)&1 != 0

	wordOps := map[uint32]Op{
		0x00: OpAMOADDW, 0x01: OpAMOSWAPW, 0x02: OpLRW, 0x03: OpSCW,
		0x04: OpAMOXORW, 0x08: OpAMOORW, 0x0c: OpAMOANDW,
	}
	dwordOps := map[uint32]Op{
		0x00: OpAMOADDD, 0x01: OpAMOSWAPD, 0x02: OpLRD, 0x03: OpSCD,
		0x04: OpAMOXORD, 0x08: OpAMOORD, 0x0c: OpAMOANDD,
	}

	var ok bool
	switch funct3 {
	case 2:
		inst.Op, ok = wordOps[funct5]
	case 3:
		inst.Op, ok = dwordOps[funct5]
	}
	if !ok {
		inst.Op = OpUnknown
	}
}

func (d *Decoder) decodeSystem(word uint32, funct3 uint32, inst *Instruction) {
	switch funct3 {
	case 0:
		funct12 := word >> 20
		switch funct12 {
		case 0x000:
			inst.Op = OpECALL
		case 0x001:
			inst.Op = OpEBREAK
		case 0x102:
			inst.Op = OpSRET
		case 0x105:
			inst.Op = OpWFI
		case 0x302:
			inst.Op = OpMRET
		default:
			if (word>>25)&0x7f == 0x09 {
				inst.Op = OpSFENCEVMA
			} else {
				inst.Op = OpUnknown
			}
		}
	case 1:
		inst.Op = OpCSRRW
		inst.Csr = uint16(word >> 20)
	case 2:
		inst.Op = OpCSRRS
		inst.Csr = uint16(word >> 20)
	case 3:
		inst.Op = OpCSRRC
		inst.Csr = uint16(word >> 20)
	case 5:
		inst.Op = OpCSRRWI
		inst.Csr = uint16(word >> 20)
		inst.Imm = int64(inst.Rs1) // rs1 field carries the 5-bit zimm
	case 6:
		inst.Op = OpCSRRSI
		inst.Csr = uint16(word >> 20)
		inst.Imm = int64(inst.Rs1)
	case 7:
		inst.Op = OpCSRRCI
		inst.Csr = uint16(word >> 20)
		inst.Imm = int64(inst.Rs1)
	default:
		inst.Op = OpUnknown
	}
}

// --- compressed (16-bit, C-extension) decode ---

// cReg expands a 3-bit compressed register field to its x8-x15 register
// number (the "popular registers" compressed encodings favor).
func cReg(field uint16) uint8 {
	return uint8(field&0x7) + 8
}

func (d *Decoder) decodeCompressed(word uint16) Instruction {
	inst := Instruction{Width: 2}
	quadrant := word & 0x3
	funct3 := (word >> 13) & 0x7

	switch quadrant {
	case 0x0:
		d.decodeQuadrant0(word, funct3, &inst)
	case 0x1:
		d.decodeQuadrant1(word, funct3, &inst)
	case 0x2:
		d.decodeQuadrant2(word, funct3, &inst)
	default:
		inst.Op = OpUnknown
	}
	return inst
}

func (d *Decoder) decodeQuadrant0(word uint16, funct3 uint16, inst *Instruction) {
	rdp := cReg(word >> 2)
	rs1p := cReg(word >> 7)

	switch funct3 {
	case 0x0: // c.addi4spn: ADDI rd', x2, nzuimm
		nzuimm := (word>>1)&0x3c0 | (word>>7)&0x30 | (word>>2)&0x8 | (word>>4)&0x4
		if nzuimm == 0 {
			inst.Op = OpUnknown
			return
		}
		inst.Op = OpADDI
		inst.Rd = rdp
		inst.Rs1 = 2
		inst.Imm = int64(nzuimm)
	case 0x2: // c.lw
		imm := (word>>4)&0x4 | (word>>7)&0x38 | (word<<1)&0x40
		inst.Op = OpLW
		inst.Rd = rdp
		inst.Rs1 = rs1p
		inst.Imm = int64(imm)
	case 0x3: // c.ld
		imm := (word>>7)&0x38 | (word<<1)&0xc0
		inst.Op = OpLD
		inst.Rd = rdp
		inst.Rs1 = rs1p
		inst.Imm = int64(imm)
	case 0x6: // c.sw
		imm := (word>>4)&0x4 | (word>>7)&0x38 | (word<<1)&0x40
		inst.Op = OpSW
		inst.Rs1 = rs1p
		inst.Rs2 = cReg(word >> 2)
		inst.Imm = int64(imm)
	case 0x7: // c.sd
		imm := (word>>7)&0x38 | (word<<1)&0xc0
		inst.Op = OpSD
		inst.Rs1 = rs1p
		inst.Rs2 = cReg(word >> 2)
		inst.Imm = int64(imm)
	default:
		inst.Op = OpUnknown
	}
}

// cImm6 extracts and sign-extends a CI-format 6-bit immediate (bit 12 is
// the sign bit, bits [6:2] the low 5 bits).
func cImm6(word uint16) int64 {
	raw := (word>>7)&0x20 | (word>>2)&0x1f
	return signExtend(uint64(raw), 6)
}

func (d *Decoder) decodeQuadrant1(word uint16, funct3 uint16, inst *Instruction) {
	rd := uint8((word >> 7) & 0x1f)

	switch funct3 {
	case 0x0: // c.addi / c.nop
		inst.Op = OpADDI
		inst.Rd, inst.Rs1 = rd, rd
		inst.Imm = cImm6(word)
	case 0x1: // c.addiw
		inst.Op = OpADDIW
		inst.Rd, inst.Rs1 = rd, rd
		inst.Imm = cImm6(word)
	case 0x2: // c.li
		inst.Op = OpADDI
		inst.Rd, inst.Rs1 = rd, 0
		inst.Imm = cImm6(word)
	case 0x3:
		if rd == 2 { // c.addi16sp
			imm := (word>>3)&0x200 | (word>>2)&0x10 | (word<<1)&0x40 | (word<<4)&0x180 | (word<<3)&0x20
			inst.Op = OpADDI
			inst.Rd, inst.Rs1 = 2, 2
			inst.Imm = signExtend(uint64(imm), 10)
		} else { // c.lui
			raw := uint64(word>>2)&0x1f | uint64(word>>7)&0x20
			inst.Op = OpLUI
			inst.Rd = rd
			inst.Imm = signExtend(raw<<12, 18)
		}
	case 0x4:
		d.decodeQuadrant1Group4(word, inst)
	case 0x5: // c.j
		inst.Op = OpJAL
		inst.Rd = 0
		inst.Imm = cjImm(word)
	case 0x6: // c.beqz
		inst.Op = OpBEQ
		inst.Rs1 = cReg(word >> 7)
		inst.Rs2 = 0
		inst.Imm = cbImm(word)
	case 0x7: // c.bnez
		inst.Op = OpBNE
		inst.Rs1 = cReg(word >> 7)
		inst.Rs2 = 0
		inst.Imm = cbImm(word)
	}
}

// cjImm decodes the CJ-format 11-bit scrambled jump offset (c.j/c.jal).
func cjImm(word uint16) int64 {
	var v uint32
	w := uint32(word)
	v |= (w >> 1) & 0x800  // imm[11]
	v |= (w << 2) & 0x400  // imm[10]
	v |= (w >> 1) & 0x300  // imm[9:8]
	v |= (w << 1) & 0x80   // imm[7]
	v |= (w >> 1) & 0x40   // imm[6]
	v |= (w << 3) & 0x20   // imm[5]
	v |= (w >> 7) & 0x10   // imm[4]
	v |= (w >> 2) & 0xe    // imm[3:1]
	return signExtend(uint64(v), 12)
}

// cbImm decodes the CB-format 8-bit scrambled branch offset (c.beqz/c.bnez).
func cbImm(word uint16) int64 {
	var v uint32
	w := uint32(word)
	v |= (w >> 4) & 0x100 // imm[8]
	v |= (w << 1) & 0xc0  // imm[7:6]
	v |= (w << 3) & 0x20  // imm[5]
	v |= (w >> 7) & 0x18  // imm[4:3]
	v |= (w >> 2) & 0x6   // imm[2:1]
	return signExtend(uint64(v), 9)
}

// decodeQuadrant1Group4 handles c.srli/c.srai/c.andi/c.sub/c.xor/c.or/c.and
// /c.subw/c.addw, all sharing funct3==0x4 (the CB/CA block).
func (d *Decoder) decodeQuadrant1Group4(word uint16, inst *Instruction) {
	rdp := cReg(word >> 7)
	selector := (word >> 10) & 0x3

	switch selector {
	case 0x0: // c.srli
		inst.Op = OpSRLI
		inst.Rd, inst.Rs1 = rdp, rdp
		inst.Shamt = uint8((word>>7)&0x20 | (word>>2)&0x1f)
	case 0x1: // c.srai
		inst.Op = OpSRAI
		inst.Rd, inst.Rs1 = rdp, rdp
		inst.Shamt = uint8((word>>7)&0x20 | (word>>2)&0x1f)
	case 0x2: // c.andi
		inst.Op = OpANDI
		inst.Rd, inst.Rs1 = rdp, rdp
		inst.Imm = cImm6(word)
	case 0x3:
		rs2p := cReg(word >> 2)
		wide := (word>>12)&1 != 0
		switch (word >> 5) & 0x3 {
		case 0x0:
			inst.Op = OpSUB
			if wide {
				inst.Op = OpSUBW
			}
		case 0x1:
			inst.Op = OpXOR
			if wide {
				inst.Op = OpADDW
			}
		case 0x2:
			inst.Op = OpOR
			if wide {
				inst.Op = OpUnknown
			}
		case 0x3:
			inst.Op = OpAND
			if wide {
				inst.Op = OpUnknown
			}
		}
		inst.Rd, inst.Rs1, inst.Rs2 = rdp, rdp, rs2p
	}
}

func (d *Decoder) decodeQuadrant2(word uint16, funct3 uint16, inst *Instruction) {
	rd := uint8((word >> 7) & 0x1f)
	rs2 := uint8((word >> 2) & 0x1f)

	switch funct3 {
	case 0x0: // c.slli
		inst.Op = OpSLLI
		inst.Rd, inst.Rs1 = rd, rd
		inst.Shamt = uint8((word>>7)&0x20 | (word>>2)&0x1f)
	case 0x2: // c.lwsp
		imm := (word>>7)&0x20 | (word>>2)&0x1c | (word<<4)&0xc0
		inst.Op = OpLW
		inst.Rd, inst.Rs1 = rd, 2
		inst.Imm = int64(imm)
	case 0x3: // c.ldsp
		imm := (word>>7)&0x20 | (word>>2)&0x18 | (word<<4)&0x1c0
		inst.Op = OpLD
		inst.Rd, inst.Rs1 = rd, 2
		inst.Imm = int64(imm)
	case 0x4:
		funct1 := (word >> 12) & 1
		switch {
		case funct1 == 0 && rs2 == 0: // c.jr
			inst.Op = OpJALR
			inst.Rd, inst.Rs1 = 0, rd
		case funct1 == 0: // c.mv
			inst.Op = OpADD
			inst.Rd, inst.Rs1, inst.Rs2 = rd, 0, rs2
		case funct1 == 1 && rd == 0 && rs2 == 0: // c.ebreak
			inst.Op = OpEBREAK
		case funct1 == 1 && rs2 == 0: // c.jalr
			inst.Op = OpJALR
			inst.Rd, inst.Rs1 = 1, rd
		default: // c.add
			inst.Op = OpADD
			inst.Rd, inst.Rs1, inst.Rs2 = rd, rd, rs2
		}
	case 0x6: // c.swsp
		imm := (word>>7)&0x3c | (word>>1)&0xc0
		inst.Op = OpSW
		inst.Rs1 = 2
		inst.Rs2 = rs2
		inst.Imm = int64(imm)
	case 0x7: // c.sdsp
		imm := (word>>7)&0x38 | (word>>1)&0x1c0
		inst.Op = OpSD
		inst.Rs1 = 2
		inst.Rs2 = rs2
		inst.Imm = int64(imm)
	default:
		inst.Op = OpUnknown
	}
}
