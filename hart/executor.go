package hart

import (
	"github.com/sarchlab/rv64emu/csr"
	"github.com/sarchlab/rv64emu/insts"
)

// ecallCause maps the current privilege mode to the matching
// EnvironmentCallFromXMode exception cause.
var ecallCause = map[csr.PrivMode]uint64{
	csr.User:       uint64(csr.EnvironmentCallFromUMode),
	csr.Supervisor: uint64(csr.EnvironmentCallFromSMode),
	csr.Machine:    uint64(csr.EnvironmentCallFromMMode),
}

// aluRegOps dispatches every two-operand register ALU and M-extension
// operation to its ALU method. Built from method expressions so the
// executor's register-ALU case is a single map lookup instead of a
// thirty-way switch.
var aluRegOps = map[insts.Op]func(*ALU, uint64, uint64) uint64{
	insts.OpADD:  (*ALU).ADD,
	insts.OpSUB:  (*ALU).SUB,
	insts.OpSLL:  (*ALU).SLL,
	insts.OpSLT:  (*ALU).SLT,
	insts.OpSLTU: (*ALU).SLTU,
	insts.OpXOR:  (*ALU).XOR,
	insts.OpSRL:  (*ALU).SRL,
	insts.OpSRA:  (*ALU).SRA,
	insts.OpOR:   (*ALU).OR,
	insts.OpAND:  (*ALU).AND,

	insts.OpADDW: (*ALU).ADDW,
	insts.OpSUBW: (*ALU).SUBW,
	insts.OpSLLW: (*ALU).SLLW,
	insts.OpSRLW: (*ALU).SRLW,
	insts.OpSRAW: (*ALU).SRAW,

	insts.OpMUL:    (*ALU).MUL,
	insts.OpMULH:   (*ALU).MULH,
	insts.OpMULHSU: (*ALU).MULHSU,
	insts.OpMULHU:  (*ALU).MULHU,
	insts.OpDIV:    (*ALU).DIV,
	insts.OpDIVU:   (*ALU).DIVU,
	insts.OpREM:    (*ALU).REM,
	insts.OpREMU:   (*ALU).REMU,

	insts.OpMULW:  (*ALU).MULW,
	insts.OpDIVW:  (*ALU).DIVW,
	insts.OpDIVUW: (*ALU).DIVUW,
	insts.OpREMW:  (*ALU).REMW,
	insts.OpREMUW: (*ALU).REMUW,
}

// execute mutates hart state for one decoded instruction. pcOfInstr is the
// fetch address; nextPC is the default fall-through (pcOfInstr +
// inst.Width). Control-flow operations compute and assign PC themselves and
// return early; every other path falls through to the nextPC assignment at
// the bottom.
func (h *Hart) execute(inst *insts.Instruction, pcOfInstr, nextPC uint64) {
	switch inst.Op {
	case insts.OpJAL:
		h.Reg.WriteReg(inst.Rd, nextPC)
		h.Reg.PC = h.branch.Target(pcOfInstr, inst.Imm)
		return
	case insts.OpJALR:
		target := h.branch.JALRTarget(h.Reg.ReadReg(inst.Rs1), inst.Imm)
		h.Reg.WriteReg(inst.Rd, nextPC)
		h.Reg.PC = target
		return
	case insts.OpBEQ, insts.OpBNE, insts.OpBLT, insts.OpBGE, insts.OpBLTU, insts.OpBGEU:
		h.executeBranch(inst, pcOfInstr, nextPC)
		return
	case insts.OpLUI:
		h.Reg.WriteReg(inst.Rd, uint64(inst.Imm))
	case insts.OpAUIPC:
		h.Reg.WriteReg(inst.Rd, uint64(int64(pcOfInstr)+inst.Imm))

	case insts.OpLB, insts.OpLH, insts.OpLW, insts.OpLD, insts.OpLBU, insts.OpLHU, insts.OpLWU:
		h.executeLoad(inst)
	case insts.OpSB, insts.OpSH, insts.OpSW, insts.OpSD:
		h.executeStore(inst)
	case insts.OpFLD:
		h.executeFLoad(inst)
	case insts.OpFSD:
		h.executeFStore(inst)
		if h.exc != nil || h.exited {
			return
		}

	case insts.OpADDI, insts.OpSLTI, insts.OpSLTIU, insts.OpXORI, insts.OpORI, insts.OpANDI:
		h.executeALUImm(inst)
	case insts.OpSLLI:
		h.Reg.WriteReg(inst.Rd, h.alu.SLL(h.Reg.ReadReg(inst.Rs1), uint64(inst.Shamt)))
	case insts.OpSRLI:
		h.Reg.WriteReg(inst.Rd, h.alu.SRL(h.Reg.ReadReg(inst.Rs1), uint64(inst.Shamt)))
	case insts.OpSRAI:
		h.Reg.WriteReg(inst.Rd, h.alu.SRA(h.Reg.ReadReg(inst.Rs1), uint64(inst.Shamt)))
	case insts.OpADDIW:
		h.Reg.WriteReg(inst.Rd, h.alu.ADDW(h.Reg.ReadReg(inst.Rs1), uint64(inst.Imm)))
	case insts.OpSLLIW:
		h.Reg.WriteReg(inst.Rd, h.alu.SLLW(h.Reg.ReadReg(inst.Rs1), uint64(inst.Shamt)))
	case insts.OpSRLIW:
		h.Reg.WriteReg(inst.Rd, h.alu.SRLW(h.Reg.ReadReg(inst.Rs1), uint64(inst.Shamt)))
	case insts.OpSRAIW:
		h.Reg.WriteReg(inst.Rd, h.alu.SRAW(h.Reg.ReadReg(inst.Rs1), uint64(inst.Shamt)))

	case insts.OpFENCE:
		// single-hart: no-op.
	case insts.OpFENCEI:
		if h.icache != nil {
			h.icache.Flush()
		}
	case insts.OpSFENCEVMA:
		h.mmuT.Flush()
		if h.icache != nil {
			h.icache.Flush()
		}
	case insts.OpECALL:
		h.exc = &Exception{Cause: ecallCause[h.Mode]}
		return
	case insts.OpEBREAK:
		h.exc = &Exception{Cause: uint64(csr.Breakpoint), Value: pcOfInstr}
		return
	case insts.OpWFI:
		// no sleep state modeled: treated as a no-op.
	case insts.OpMRET:
		if h.Mode != csr.Machine {
			h.exc = &Exception{Cause: uint64(csr.IllegalInstruction)}
			return
		}
		h.doMRET()
		return
	case insts.OpSRET:
		if h.Mode == csr.User {
			h.exc = &Exception{Cause: uint64(csr.IllegalInstruction)}
			return
		}
		h.doSRET()
		return

	case insts.OpCSRRW, insts.OpCSRRS, insts.OpCSRRC, insts.OpCSRRWI, insts.OpCSRRSI, insts.OpCSRRCI:
		h.executeCSR(inst)
		if h.exc != nil {
			return
		}

	case insts.OpLRW, insts.OpLRD, insts.OpSCW, insts.OpSCD,
		insts.OpAMOSWAPW, insts.OpAMOADDW, insts.OpAMOXORW, insts.OpAMOANDW, insts.OpAMOORW,
		insts.OpAMOSWAPD, insts.OpAMOADDD, insts.OpAMOXORD, insts.OpAMOANDD, insts.OpAMOORD:
		h.executeAMO(inst)
		if h.exc != nil {
			return
		}

	default:
		if fn, ok := aluRegOps[inst.Op]; ok {
			rs1v, rs2v := h.Reg.ReadReg(inst.Rs1), h.Reg.ReadReg(inst.Rs2)
			h.Reg.WriteReg(inst.Rd, fn(h.alu, rs1v, rs2v))
			break
		}
		h.exc = &Exception{Cause: uint64(csr.IllegalInstruction)}
		return
	}

	h.Reg.PC = nextPC
}

func (h *Hart) executeBranch(inst *insts.Instruction, pcOfInstr, nextPC uint64) {
	rs1v, rs2v := h.Reg.ReadReg(inst.Rs1), h.Reg.ReadReg(inst.Rs2)
	var taken bool
	switch inst.Op {
	case insts.OpBEQ:
		taken = h.branch.BEQ(rs1v, rs2v)
	case insts.OpBNE:
		taken = h.branch.BNE(rs1v, rs2v)
	case insts.OpBLT:
		taken = h.branch.BLT(rs1v, rs2v)
	case insts.OpBGE:
		taken = h.branch.BGE(rs1v, rs2v)
	case insts.OpBLTU:
		taken = h.branch.BLTU(rs1v, rs2v)
	case insts.OpBGEU:
		taken = h.branch.BGEU(rs1v, rs2v)
	}
	if taken {
		h.Reg.PC = h.branch.Target(pcOfInstr, inst.Imm)
	} else {
		h.Reg.PC = nextPC
	}
}

func (h *Hart) executeALUImm(inst *insts.Instruction) {
	rs1v := h.Reg.ReadReg(inst.Rs1)
	imm := uint64(inst.Imm)
	var result uint64
	switch inst.Op {
	case insts.OpADDI:
		result = h.alu.ADD(rs1v, imm)
	case insts.OpSLTI:
		result = h.alu.SLT(rs1v, imm)
	case insts.OpSLTIU:
		result = h.alu.SLTU(rs1v, imm)
	case insts.OpXORI:
		result = h.alu.XOR(rs1v, imm)
	case insts.OpORI:
		result = h.alu.OR(rs1v, imm)
	case insts.OpANDI:
		result = h.alu.AND(rs1v, imm)
	}
	h.Reg.WriteReg(inst.Rd, result)
}

func (h *Hart) loadAddr(inst *insts.Instruction) uint64 {
	return uint64(int64(h.Reg.ReadReg(inst.Rs1)) + inst.Imm)
}

func (h *Hart) executeLoad(inst *insts.Instruction) {
	addr := h.loadAddr(inst)
	var v uint64
	var err error
	switch inst.Op {
	case insts.OpLB:
		v, err = h.lsu.LB(addr, h.Mode)
	case insts.OpLH:
		v, err = h.lsu.LH(addr, h.Mode)
	case insts.OpLW:
		v, err = h.lsu.LW(addr, h.Mode)
	case insts.OpLD:
		v, err = h.lsu.LD(addr, h.Mode)
	case insts.OpLBU:
		v, err = h.lsu.LBU(addr, h.Mode)
	case insts.OpLHU:
		v, err = h.lsu.LHU(addr, h.Mode)
	case insts.OpLWU:
		v, err = h.lsu.LWU(addr, h.Mode)
	}
	if err != nil {
		h.exc = asException(err, uint64(csr.LoadAccessFault))
		return
	}
	h.Reg.WriteReg(inst.Rd, v)
}

// executeFLoad moves a doubleword from memory into freg, with no
// interpretation of its bit pattern as a floating-point value.
func (h *Hart) executeFLoad(inst *insts.Instruction) {
	addr := h.loadAddr(inst)
	v, err := h.lsu.LD(addr, h.Mode)
	if err != nil {
		h.exc = asException(err, uint64(csr.LoadAccessFault))
		return
	}
	h.Reg.Freg[inst.Rd] = v
}

// executeFStore moves a doubleword from freg to memory, opaque as above.
func (h *Hart) executeFStore(inst *insts.Instruction) {
	addr := h.loadAddr(inst)
	val := h.Reg.Freg[inst.Rs2]
	if err := h.lsu.SD(addr, val, h.Mode); err != nil {
		h.exc = asException(err, uint64(csr.StoreAMOAccessFault))
	}
}

func (h *Hart) executeStore(inst *insts.Instruction) {
	addr := h.loadAddr(inst)
	val := h.Reg.ReadReg(inst.Rs2)

	if h.riscvTest && addr == h.tohostAddr {
		h.handleTohost(val)
		return
	}

	h.invalidateReservationIfMatch(addr)

	var err error
	switch inst.Op {
	case insts.OpSB:
		err = h.lsu.SB(addr, val, h.Mode)
	case insts.OpSH:
		err = h.lsu.SH(addr, val, h.Mode)
	case insts.OpSW:
		err = h.lsu.SW(addr, val, h.Mode)
	case insts.OpSD:
		err = h.lsu.SD(addr, val, h.Mode)
	}
	if err != nil {
		h.exc = asException(err, uint64(csr.StoreAMOAccessFault))
	}
}

// handleTohost interprets a riscv-tests tohost write: the low bit marks
// termination, and value>>1 is the reported test number (0 on success,
// nonzero identifying the first failing test).
func (h *Hart) handleTohost(value uint64) {
	h.exited = true
	h.exitCode = int64(value >> 1)
}

func (h *Hart) invalidateReservationIfMatch(addr uint64) {
	if h.reservationValid && h.reservationAddr == addr {
		h.reservationValid = false
	}
}

func (h *Hart) executeCSR(inst *insts.Instruction) {
	if h.Mode < csrPrivRequired(inst.Csr) {
		h.exc = &Exception{Cause: uint64(csr.IllegalInstruction)}
		return
	}

	old := h.CSR.Read(inst.Csr)
	var newVal uint64
	writes := true

	switch inst.Op {
	case insts.OpCSRRW:
		newVal = h.Reg.ReadReg(inst.Rs1)
	case insts.OpCSRRS:
		newVal = old | h.Reg.ReadReg(inst.Rs1)
		writes = inst.Rs1 != 0
	case insts.OpCSRRC:
		newVal = old &^ h.Reg.ReadReg(inst.Rs1)
		writes = inst.Rs1 != 0
	case insts.OpCSRRWI:
		newVal = uint64(inst.Imm)
	case insts.OpCSRRSI:
		newVal = old | uint64(inst.Imm)
		writes = inst.Imm != 0
	case insts.OpCSRRCI:
		newVal = old &^ uint64(inst.Imm)
		writes = inst.Imm != 0
	}

	if writes {
		if csrReadOnly(inst.Csr) {
			h.exc = &Exception{Cause: uint64(csr.IllegalInstruction)}
			return
		}
		h.CSR.Write(inst.Csr, newVal)
	}
	h.Reg.WriteReg(inst.Rd, old)
}

// csrPrivRequired extracts the minimum privilege a CSR address requires,
// encoded in address bits [9:8].
func csrPrivRequired(addr uint16) csr.PrivMode {
	return csr.PrivMode((addr >> 8) & 0x3)
}

// csrReadOnly reports whether addr's top two bits (11:10) mark it
// read-only.
func csrReadOnly(addr uint16) bool {
	return (addr>>10)&0x3 == 0x3
}

func (h *Hart) executeAMO(inst *insts.Instruction) {
	addr := h.Reg.ReadReg(inst.Rs1)

	switch inst.Op {
	case insts.OpLRW:
		v, err := h.lsu.LW(addr, h.Mode)
		if err != nil {
			h.exc = asException(err, uint64(csr.LoadAccessFault))
			return
		}
		h.reservationValid, h.reservationAddr = true, addr
		h.Reg.WriteReg(inst.Rd, v)
	case insts.OpLRD:
		v, err := h.lsu.LD(addr, h.Mode)
		if err != nil {
			h.exc = asException(err, uint64(csr.LoadAccessFault))
			return
		}
		h.reservationValid, h.reservationAddr = true, addr
		h.Reg.WriteReg(inst.Rd, v)
	case insts.OpSCW:
		h.executeSC(inst, addr, func() error { return h.lsu.SW(addr, h.Reg.ReadReg(inst.Rs2), h.Mode) })
	case insts.OpSCD:
		h.executeSC(inst, addr, func() error { return h.lsu.SD(addr, h.Reg.ReadReg(inst.Rs2), h.Mode) })
	default:
		h.executeAMOArith(inst, addr)
	}
}

// executeSC implements SC.W/D: on a matching reservation, perform the
// store and report success (rd=0); otherwise report failure (rd=1). The
// reservation is always cleared afterward.
func (h *Hart) executeSC(inst *insts.Instruction, addr uint64, store func() error) {
	if h.reservationValid && h.reservationAddr == addr {
		if err := store(); err != nil {
			h.exc = asException(err, uint64(csr.StoreAMOAccessFault))
			h.reservationValid = false
			return
		}
		h.Reg.WriteReg(inst.Rd, 0)
	} else {
		h.Reg.WriteReg(inst.Rd, 1)
	}
	h.reservationValid = false
}

func (h *Hart) executeAMOArith(inst *insts.Instruction, addr uint64) {
	h.invalidateReservationIfMatch(addr)
	rs2v := h.Reg.ReadReg(inst.Rs2)

	var old uint64
	var err error
	switch inst.Op {
	case insts.OpAMOSWAPW:
		old, err = h.lsu.AMOW(addr, h.Mode, func(uint32) uint32 { return uint32(rs2v) })
	case insts.OpAMOADDW:
		old, err = h.lsu.AMOW(addr, h.Mode, func(o uint32) uint32 { return o + uint32(rs2v) })
	case insts.OpAMOXORW:
		old, err = h.lsu.AMOW(addr, h.Mode, func(o uint32) uint32 { return o ^ uint32(rs2v) })
	case insts.OpAMOANDW:
		old, err = h.lsu.AMOW(addr, h.Mode, func(o uint32) uint32 { return o & uint32(rs2v) })
	case insts.OpAMOORW:
		old, err = h.lsu.AMOW(addr, h.Mode, func(o uint32) uint32 { return o | uint32(rs2v) })
	case insts.OpAMOSWAPD:
		old, err = h.lsu.AMOD(addr, h.Mode, func(uint64) uint64 { return rs2v })
	case insts.OpAMOADDD:
		old, err = h.lsu.AMOD(addr, h.Mode, func(o uint64) uint64 { return o + rs2v })
	case insts.OpAMOXORD:
		old, err = h.lsu.AMOD(addr, h.Mode, func(o uint64) uint64 { return o ^ rs2v })
	case insts.OpAMOANDD:
		old, err = h.lsu.AMOD(addr, h.Mode, func(o uint64) uint64 { return o & rs2v })
	case insts.OpAMOORD:
		old, err = h.lsu.AMOD(addr, h.Mode, func(o uint64) uint64 { return o | rs2v })
	}
	if err != nil {
		h.exc = asException(err, uint64(csr.StoreAMOAccessFault))
		return
	}
	h.Reg.WriteReg(inst.Rd, old)
}
