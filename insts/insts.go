// Package insts decodes RV64GC machine code (RV64I base plus the M, A and
// C extensions) into a flat, copyable Instruction value.
package insts

// Op identifies a decoded RISC-V operation. Compressed (C-extension)
// encodings decode directly to the equivalent base Op: e.g. c.addi and
// addi both produce OpADDI, so the executor only ever switches on the
// base operation set.
type Op uint16

// Operations.
const (
	OpUnknown Op = iota

	// Upper-immediate and jump.
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR

	// Branches.
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU

	// Loads.
	OpLB
	OpLH
	OpLW
	OpLD
	OpLBU
	OpLHU
	OpLWU

	// Stores.
	OpSB
	OpSH
	OpSW
	OpSD

	// Immediate ALU.
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI

	// Register ALU.
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND

	// 32-bit-result immediate ALU (RV64 *W forms).
	OpADDIW
	OpSLLIW
	OpSRLIW
	OpSRAIW

	// 32-bit-result register ALU.
	OpADDW
	OpSUBW
	OpSLLW
	OpSRLW
	OpSRAW

	// Fence / system.
	OpFENCE
	OpFENCEI
	OpECALL
	OpEBREAK
	OpMRET
	OpSRET
	OpWFI
	OpSFENCEVMA

	// CSR.
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI

	// M extension.
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU
	OpMULW
	OpDIVW
	OpDIVUW
	OpREMW
	OpREMUW

	// A extension (W = 32-bit operand, D = 64-bit operand).
	OpLRW
	OpSCW
	OpAMOSWAPW
	OpAMOADDW
	OpAMOXORW
	OpAMOANDW
	OpAMOORW
	OpLRD
	OpSCD
	OpAMOSWAPD
	OpAMOADDD
	OpAMOXORD
	OpAMOANDD
	OpAMOORD

	// F/D placeholder load/store: opaque 64-bit transfers into freg, with
	// no floating-point ALU semantics.
	OpFLD
	OpFSD
)

// Instruction is a decoded instruction: a plain value, never a live
// reference to an executor, so it is trivially copyable into a
// decoded-instruction cache.
type Instruction struct {
	Op    Op
	Rd    uint8
	Rs1   uint8
	Rs2   uint8
	Imm   int64
	Shamt uint8
	Csr   uint16
	Aq    bool
	Rl    bool
	// Width is the encoded instruction length in bytes: 2 for a compressed
	// instruction, 4 otherwise. The fetch/execute loop advances pc by Width.
	Width uint8
}
