package hart

import (
	"errors"
	"io"
	"os"

	"github.com/sarchlab/rv64emu/bus"
	"github.com/sarchlab/rv64emu/csr"
	"github.com/sarchlab/rv64emu/insts"
	"github.com/sarchlab/rv64emu/mmu"
)

// StepResult reports the outcome of one Step call: a host-fatal Err is
// distinct from guest-visible termination (Exited), which here is reached
// only through the riscv-tests tohost convention rather than an exit
// syscall.
type StepResult struct {
	Exited   bool
	ExitCode int64
	Err      error
}

// Stats accumulates execution counters: the two fields this non-pipelined
// hart can actually produce.
type Stats struct {
	Cycles       uint64
	Instructions uint64
}

// CPI returns cycles per instruction. Every Step counts one cycle, but only
// a Step that fetches an instruction counts one instruction: a Step that
// takes an interrupt or a fetch fault instead adds a cycle alone, so CPI is
// 1.0 when no such Step occurred and above 1.0 otherwise.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// Hart drives the fetch/decode/execute/trap loop for a single RV64GC hart:
// register file, execution units (ALU/LoadStoreUnit/BranchUnit), and the
// privilege mode and CSR/trap state a full-system emulator needs beyond a
// plain user-mode interpreter.
type Hart struct {
	Reg  *RegFile
	CSR  *csr.File
	Mode csr.PrivMode

	bus     *bus.Bus
	mmuT    *mmu.Translator
	tlb     *mmu.TLB
	decoder *insts.Decoder
	icache  *ICache

	alu    *ALU
	lsu    *LoadStoreUnit
	branch *BranchUnit

	reservationValid bool
	reservationAddr  uint64

	exc *Exception

	stdout io.Writer

	riscvTest  bool
	tohostAddr uint64
	exited     bool
	exitCode   int64

	stats Stats
}

// HartOption is a functional option for configuring a Hart at construction.
type HartOption func(*Hart)

// WithTLB attaches a translation cache to the hart's MMU. Without this
// option every address is walked from SATP on every access.
func WithTLB(tlb *mmu.TLB) HartOption {
	return func(h *Hart) { h.tlb = tlb }
}

// WithICache attaches a decoded-instruction cache.
func WithICache(ic *ICache) HartOption {
	return func(h *Hart) { h.icache = ic }
}

// WithStdout sets a custom writer for diagnostics.
func WithStdout(w io.Writer) HartOption {
	return func(h *Hart) { h.stdout = w }
}

// WithRiscvTest enables the riscv-tests compliance-test termination
// convention: a store to tohostAddr exits the hart with the reported test
// number, rather than being forwarded to the bus.
func WithRiscvTest(tohostAddr uint64) HartOption {
	return func(h *Hart) { h.riscvTest = true; h.tohostAddr = tohostAddr }
}

// NewHart creates a Hart wired to the given physical bus. Reset() must be
// called (or PC/Reg set directly) before Step: the zero-value register
// file has PC == 0, which is almost never the intended entry point.
func NewHart(b *bus.Bus, opts ...HartOption) *Hart {
	h := &Hart{
		Reg:     &RegFile{},
		CSR:     csr.New(),
		Mode:    csr.Machine,
		bus:     b,
		decoder: insts.NewDecoder(),
		stdout:  os.Stdout,
	}

	for _, opt := range opts {
		opt(h)
	}

	h.mmuT = mmu.New(h.CSR, b, h.tlb)
	h.alu = NewALU(h.Reg)
	h.lsu = NewLoadStoreUnit(h.mmuT, b)
	h.branch = NewBranchUnit()

	return h
}

// Reset restores the boot contract: pc at entry, x2 (the stack pointer, by
// convention only) at sp, machine mode, every other register zero.
func (h *Hart) Reset(entry, sp uint64) {
	h.Reg.X = [32]uint64{}
	h.Reg.Freg = [32]uint64{}
	h.Reg.X[2] = sp
	h.Reg.PC = entry
	h.Mode = csr.Machine
	h.reservationValid = false
	h.exited = false
}

// Stats returns the hart's accumulated execution counters.
func (h *Hart) Stats() Stats { return h.stats }

// Run steps the hart until it exits (guest termination) or a fatal error
// occurs.
func (h *Hart) Run() StepResult {
	for {
		res := h.Step()
		if res.Exited || res.Err != nil {
			return res
		}
	}
}

// Step advances the hart by one trap-or-instruction: it polls for a
// pending, enabled interrupt first, delivered at the top of the hart loop
// before fetch; if none is taken, it fetches, decodes, and executes one
// instruction, delivering any exception the execute phase raised.
func (h *Hart) Step() StepResult {
	h.stats.Cycles++
	h.bus.Tick()

	if taken, err := h.pollInterrupt(); taken || err != nil {
		return StepResult{Err: err}
	}

	pc := h.Reg.PC
	inst, exc := h.fetch(pc)
	if exc != nil {
		if err := h.deliverException(exc, pc); err != nil {
			return StepResult{Err: err}
		}
		return StepResult{}
	}

	h.stats.Instructions++
	h.exc = nil
	h.execute(&inst, pc, pc+uint64(inst.Width))

	if h.exited {
		return StepResult{Exited: true, ExitCode: h.exitCode}
	}
	if h.exc != nil {
		if err := h.deliverException(h.exc, pc); err != nil {
			return StepResult{Err: err}
		}
	}
	return StepResult{}
}

// fetch reads one instruction at the physical-or-virtual address pc
// (translated through the MMU), consulting and populating the I-cache when
// one is attached. A 4-byte window is always read: insts.Decoder only
// consults the high 16 bits when the low two bits mark a full-width
// encoding.
func (h *Hart) fetch(pc uint64) (insts.Instruction, *Exception) {
	paddr, err := h.mmuT.Translate(pc, mmu.AccessInstr, h.Mode)
	if err != nil {
		return insts.Instruction{}, asException(err, uint64(csr.InstructionAccessFault))
	}

	if h.icache != nil {
		if inst, ok := h.icache.Lookup(paddr); ok {
			return inst, nil
		}
	}

	word, err := h.bus.Read(paddr, 32)
	if err != nil {
		return insts.Instruction{}, asException(err, uint64(csr.InstructionAccessFault))
	}

	inst := h.decoder.Decode(uint32(word))
	if inst.Op == insts.OpUnknown {
		return inst, &Exception{Cause: uint64(csr.IllegalInstruction), Value: word}
	}

	if h.icache != nil {
		h.icache.Insert(paddr, inst)
	}
	return inst, nil
}

// asException classifies a bus/mmu-level error into the architectural
// exception the executor should raise. defaultCause covers a plain bus
// fault (unmapped address); an *mmu.Fault always carries its own
// page-fault cause.
func asException(err error, defaultCause uint64) *Exception {
	var mf *mmu.Fault
	if errors.As(err, &mf) {
		return &Exception{Cause: mf.Cause, Value: mf.Vaddr}
	}
	var bf *bus.Fault
	if errors.As(err, &bf) {
		return &Exception{Cause: defaultCause, Value: bf.Addr}
	}
	return &Exception{Cause: defaultCause}
}
