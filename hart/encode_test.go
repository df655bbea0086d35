package hart_test

// Minimal RV64I/M/A instruction encoders, used to build machine code for the
// hart integration tests below without depending on an external assembler.
// Field layouts follow the RISC-V base spec's R/I/S/B/U/J formats, mirroring
// insts.Decoder's own bit extraction in reverse.

const (
	opLoad    = 0x03
	opMiscMem = 0x0f
	opOpImm   = 0x13
	opAuipc   = 0x17
	opOpImm32 = 0x1b
	opStore   = 0x23
	opAmo     = 0x2f
	opOp      = 0x33
	opLui     = 0x37
	opOp32    = 0x3b
	opBranch  = 0x63
	opJalr    = 0x67
	opJal     = 0x6f
	opSystem  = 0x73
)

func rType(opcode, funct3, funct7 uint32, rd, rs1, rs2 uint8) uint32 {
	return funct7<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

func iType(opcode, funct3 uint32, rd, rs1 uint8, imm int32) uint32 {
	return uint32(imm)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

// shiftType encodes an RV64 shift-immediate (SLLI/SRLI/SRAI): a 6-bit shamt
// at bits[25:20] and a 6-bit funct6 at bits[31:26] (distinct from the
// 7-bit funct7 field other I-type/R-type instructions use, since bit 25
// here is the shamt's top bit, not a funct7 bit).
func shiftType(opcode, funct3, funct6 uint32, rd, rs1, shamt uint8) uint32 {
	return funct6<<26 | uint32(shamt)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

func sType(opcode, funct3 uint32, rs1, rs2 uint8, imm int32) uint32 {
	im := uint32(imm)
	return (im>>5)&0x7f<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | (im&0x1f)<<7 | opcode
}

func bType(opcode, funct3 uint32, rs1, rs2 uint8, imm int32) uint32 {
	im := uint32(imm)
	return (im>>12)&1<<31 | (im>>5)&0x3f<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 |
		funct3<<12 | (im>>1)&0xf<<8 | (im>>11)&1<<7 | opcode
}

func uType(opcode uint32, rd uint8, imm int32) uint32 {
	return uint32(imm)&0xfffff000 | uint32(rd)<<7 | opcode
}

func jType(opcode uint32, rd uint8, imm int32) uint32 {
	im := uint32(imm)
	return (im>>20)&1<<31 | (im>>1)&0x3ff<<21 | (im>>11)&1<<20 | (im>>12)&0xff<<12 | uint32(rd)<<7 | opcode
}

func amoType(funct3, funct5 uint32, rd, rs1, rs2 uint8, aq, rl bool) uint32 {
	var aqb, rlb uint32
	if aq {
		aqb = 1
	}
	if rl {
		rlb = 1
	}
	return funct5<<27 | aqb<<26 | rlb<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opAmo
}

func csrType(funct3 uint32, rd uint8, csr uint16, rs1OrZimm uint8) uint32 {
	return uint32(csr)<<20 | uint32(rs1OrZimm)<<15 | funct3<<12 | uint32(rd)<<7 | opSystem
}

func sysType(funct12 uint32) uint32 { return funct12<<20 | opSystem }

// --- named encoders for the instructions the tests actually use ---

func encADDI(rd, rs1 uint8, imm int32) uint32  { return iType(opOpImm, 0, rd, rs1, imm) }
func encSLTI(rd, rs1 uint8, imm int32) uint32  { return iType(opOpImm, 2, rd, rs1, imm) }
func encSLTIU(rd, rs1 uint8, imm int32) uint32 { return iType(opOpImm, 3, rd, rs1, imm) }
func encXORI(rd, rs1 uint8, imm int32) uint32  { return iType(opOpImm, 4, rd, rs1, imm) }
func encORI(rd, rs1 uint8, imm int32) uint32   { return iType(opOpImm, 6, rd, rs1, imm) }
func encANDI(rd, rs1 uint8, imm int32) uint32  { return iType(opOpImm, 7, rd, rs1, imm) }
func encSLLI(rd, rs1, shamt uint8) uint32      { return shiftType(opOpImm, 1, 0x00, rd, rs1, shamt) }
func encSRLI(rd, rs1, shamt uint8) uint32      { return shiftType(opOpImm, 5, 0x00, rd, rs1, shamt) }
func encSRAI(rd, rs1, shamt uint8) uint32      { return shiftType(opOpImm, 5, 0x10, rd, rs1, shamt) }
func encADDIW(rd, rs1 uint8, imm int32) uint32 { return iType(opOpImm32, 0, rd, rs1, imm) }

func encADD(rd, rs1, rs2 uint8) uint32  { return rType(opOp, 0, 0x00, rd, rs1, rs2) }
func encSUB(rd, rs1, rs2 uint8) uint32  { return rType(opOp, 0, 0x20, rd, rs1, rs2) }
func encSLL(rd, rs1, rs2 uint8) uint32  { return rType(opOp, 1, 0x00, rd, rs1, rs2) }
func encSLT(rd, rs1, rs2 uint8) uint32  { return rType(opOp, 2, 0x00, rd, rs1, rs2) }
func encSLTU(rd, rs1, rs2 uint8) uint32 { return rType(opOp, 3, 0x00, rd, rs1, rs2) }
func encXOR(rd, rs1, rs2 uint8) uint32  { return rType(opOp, 4, 0x00, rd, rs1, rs2) }
func encSRL(rd, rs1, rs2 uint8) uint32  { return rType(opOp, 5, 0x00, rd, rs1, rs2) }
func encSRA(rd, rs1, rs2 uint8) uint32  { return rType(opOp, 5, 0x20, rd, rs1, rs2) }
func encOR(rd, rs1, rs2 uint8) uint32   { return rType(opOp, 6, 0x00, rd, rs1, rs2) }
func encAND(rd, rs1, rs2 uint8) uint32  { return rType(opOp, 7, 0x00, rd, rs1, rs2) }

func encMUL(rd, rs1, rs2 uint8) uint32 { return rType(opOp, 0, 0x01, rd, rs1, rs2) }
func encDIV(rd, rs1, rs2 uint8) uint32 { return rType(opOp, 4, 0x01, rd, rs1, rs2) }
func encREM(rd, rs1, rs2 uint8) uint32 { return rType(opOp, 6, 0x01, rd, rs1, rs2) }

func encLUI(rd uint8, imm int32) uint32   { return uType(opLui, rd, imm) }
func encAUIPC(rd uint8, imm int32) uint32 { return uType(opAuipc, rd, imm) }

func encJAL(rd uint8, imm int32) uint32          { return jType(opJal, rd, imm) }
func encJALR(rd, rs1 uint8, imm int32) uint32    { return iType(opJalr, 0, rd, rs1, imm) }
func encBEQ(rs1, rs2 uint8, imm int32) uint32    { return bType(opBranch, 0, rs1, rs2, imm) }
func encBNE(rs1, rs2 uint8, imm int32) uint32    { return bType(opBranch, 1, rs1, rs2, imm) }
func encBLT(rs1, rs2 uint8, imm int32) uint32    { return bType(opBranch, 4, rs1, rs2, imm) }
func encBGE(rs1, rs2 uint8, imm int32) uint32    { return bType(opBranch, 5, rs1, rs2, imm) }

func encLB(rd, rs1 uint8, imm int32) uint32  { return iType(opLoad, 0, rd, rs1, imm) }
func encLH(rd, rs1 uint8, imm int32) uint32  { return iType(opLoad, 1, rd, rs1, imm) }
func encLW(rd, rs1 uint8, imm int32) uint32  { return iType(opLoad, 2, rd, rs1, imm) }
func encLD(rd, rs1 uint8, imm int32) uint32  { return iType(opLoad, 3, rd, rs1, imm) }
func encLBU(rd, rs1 uint8, imm int32) uint32 { return iType(opLoad, 4, rd, rs1, imm) }

func encSB(rs1, rs2 uint8, imm int32) uint32 { return sType(opStore, 0, rs1, rs2, imm) }
func encSW(rs1, rs2 uint8, imm int32) uint32 { return sType(opStore, 2, rs1, rs2, imm) }
func encSD(rs1, rs2 uint8, imm int32) uint32 { return sType(opStore, 3, rs1, rs2, imm) }

func encFLD(rd, rs1 uint8, imm int32) uint32 { return iType(0x07, 3, rd, rs1, imm) }
func encFSD(rs1, rs2 uint8, imm int32) uint32 { return sType(0x27, 3, rs1, rs2, imm) }

func encFENCE() uint32  { return iType(opMiscMem, 0, 0, 0, 0) }
func encFENCEI() uint32 { return iType(opMiscMem, 1, 0, 0, 0) }

func encECALL() uint32  { return sysType(0x000) }
func encEBREAK() uint32 { return sysType(0x001) }
func encMRET() uint32   { return sysType(0x302) }
func encSRET() uint32   { return sysType(0x102) }
func encWFI() uint32    { return sysType(0x105) }

func encCSRRW(rd uint8, csr uint16, rs1 uint8) uint32  { return csrType(1, rd, csr, rs1) }
func encCSRRS(rd uint8, csr uint16, rs1 uint8) uint32  { return csrType(2, rd, csr, rs1) }
func encCSRRC(rd uint8, csr uint16, rs1 uint8) uint32  { return csrType(3, rd, csr, rs1) }
func encCSRRWI(rd uint8, csr uint16, imm uint8) uint32 { return csrType(5, rd, csr, imm) }

func encLRW(rd, rs1 uint8) uint32     { return amoType(2, 0x02, rd, rs1, 0, false, false) }
func encSCW(rd, rs1, rs2 uint8) uint32 { return amoType(2, 0x03, rd, rs1, rs2, false, false) }
func encLRD(rd, rs1 uint8) uint32     { return amoType(3, 0x02, rd, rs1, 0, false, false) }
func encSCD(rd, rs1, rs2 uint8) uint32 { return amoType(3, 0x03, rd, rs1, rs2, false, false) }
func encAMOADDW(rd, rs1, rs2 uint8) uint32 { return amoType(2, 0x00, rd, rs1, rs2, false, false) }
func encAMOSWAPD(rd, rs1, rs2 uint8) uint32 { return amoType(3, 0x01, rd, rs1, rs2, false, false) }

// leBytes returns the little-endian byte encoding of a 32-bit instruction
// word, ready to load into DRAM.
func leBytes(word uint32) []byte {
	return []byte{
		byte(word),
		byte(word >> 8),
		byte(word >> 16),
		byte(word >> 24),
	}
}
