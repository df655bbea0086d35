package hart

import "github.com/sarchlab/rv64emu/csr"

// interruptOrder is the fixed polling order: machine
// external/software/timer, then the supervisor equivalents.
var interruptOrder = []struct {
	cause uint64
	mip   uint64
}{
	{csr.MachineExternalInterrupt, csr.MipMEIP},
	{csr.MachineSoftwareInterrupt, csr.MipMSIP},
	{csr.MachineTimerInterrupt, csr.MipMTIP},
	{csr.SupervisorExternalInterrupt, csr.MipSEIP},
	{csr.SupervisorSoftwareInterrupt, csr.MipSSIP},
	{csr.SupervisorTimerInterrupt, csr.MipSTIP},
}

// pollInterrupt checks for a pending, individually-enabled (MIE-register),
// mode-gated interrupt and delivers the highest-priority one found, per the
// fixed polling order above. It returns taken=true if a trap was delivered
// this step (the instruction at the current pc has not yet been fetched).
func (h *Hart) pollInterrupt() (bool, error) {
	mip := h.CSR.Read(csr.Mip)
	mie := h.CSR.Read(csr.Mie)
	pending := mip & mie

	for _, cand := range interruptOrder {
		if pending&cand.mip == 0 {
			continue
		}
		if !h.interruptEnabled(cand.cause) {
			continue
		}
		h.CSR.ClearBits(csr.Mip, cand.mip)
		return true, h.deliverTrap(cand.cause, 0, h.Reg.PC, true)
	}
	return false, nil
}

// interruptEnabled reports whether an interrupt with the given cause may be
// taken: the target mode is derived from delegation; a lower or equal
// target than the current mode is refused unless equal and the matching
// global enable (MIE/SIE) is set.
func (h *Hart) interruptEnabled(cause uint64) bool {
	target := h.targetMode(cause, true)
	if target < h.Mode {
		return false
	}
	if target == h.Mode {
		status := h.CSR.Read(csr.Mstatus)
		switch h.Mode {
		case csr.Machine:
			return status&csr.StatusMIE != 0
		case csr.Supervisor:
			return status&csr.StatusSIE != 0
		default:
			return false
		}
	}
	return true
}

// targetMode selects the privilege level that will handle cause: exceptions
// consult medeleg/sedeleg, interrupts consult mideleg/sideleg. User-mode
// targets are unsupported, and the caller treats them as fatal.
func (h *Hart) targetMode(cause uint64, isInterrupt bool) csr.PrivMode {
	edeleg, ideleg := csr.Medeleg, csr.Sedeleg
	if isInterrupt {
		edeleg, ideleg = csr.Mideleg, csr.Sideleg
	}
	if (h.CSR.Read(edeleg)>>cause)&1 == 0 {
		return csr.Machine
	}
	if (h.CSR.Read(ideleg)>>cause)&1 == 0 {
		return csr.Supervisor
	}
	return csr.User
}

// deliverException delivers a synchronous exception raised by fetch,
// translate, decode, or execute.
func (h *Hart) deliverException(exc *Exception, pc uint64) error {
	return h.deliverTrap(exc.Cause, exc.Value, pc, false)
}

// deliverTrap implements the trap-delivery sequence shared by exceptions
// and interrupts: it saves the faulting/resume pc and cause into
// the target mode's epc/cause/tval CSRs, shuffles that mode's
// enable/prior-enable/prior-privilege bits, switches Mode, and sets pc from
// the target *tvec (vectored only for interrupts).
func (h *Hart) deliverTrap(cause, value, pc uint64, isInterrupt bool) error {
	target := h.targetMode(cause, isInterrupt)
	if target == csr.User {
		return &userTrapError{cause: cause}
	}

	rawCause := cause
	if isInterrupt {
		rawCause |= csr.InterruptCauseBit
	}

	if target == csr.Machine {
		h.CSR.Write(csr.Mepc, pc&^uint64(1))
		h.CSR.Write(csr.Mcause, rawCause)
		h.CSR.Write(csr.Mtval, value)

		status := h.CSR.Read(csr.Mstatus)
		mie := status&csr.StatusMIE != 0
		status &^= csr.StatusMPIE
		if mie {
			status |= csr.StatusMPIE
		}
		status &^= csr.StatusMIE
		status &^= uint64(csr.StatusMPP)
		status |= uint64(h.Mode) << 11
		h.CSR.Write(csr.Mstatus, status)

		h.Mode = csr.Machine
		mtvec := h.CSR.Read(csr.Mtvec)
		base := mtvec &^ uint64(0x3)
		if isInterrupt && mtvec&0x3 == 1 {
			h.Reg.PC = base + 4*cause
		} else {
			h.Reg.PC = base
		}
	} else {
		h.CSR.Write(csr.Sepc, pc&^uint64(1))
		h.CSR.Write(csr.Scause, rawCause)
		h.CSR.Write(csr.Stval, value)

		status := h.CSR.Read(csr.Sstatus)
		sie := status&csr.StatusSIE != 0
		status &^= csr.StatusSPIE
		if sie {
			status |= csr.StatusSPIE
		}
		status &^= csr.StatusSIE
		status &^= uint64(csr.StatusSPP)
		if h.Mode == csr.Supervisor {
			status |= csr.StatusSPP
		}
		h.CSR.Write(csr.Sstatus, status)

		h.Mode = csr.Supervisor
		stvec := h.CSR.Read(csr.Stvec)
		base := stvec &^ uint64(0x3)
		if isInterrupt && stvec&0x3 == 1 {
			h.Reg.PC = base + 4*cause
		} else {
			h.Reg.PC = base
		}
	}

	if h.icache != nil {
		h.icache.Flush()
	}
	return nil
}

// userTrapError reports a trap whose delegation chain bottoms out in User
// mode, which this hart does not support.
type userTrapError struct {
	cause uint64
}

func (e *userTrapError) Error() string {
	return "hart: trap delegated to unsupported user mode"
}

// doMRET implements the MRET instruction.
func (h *Hart) doMRET() {
	status := h.CSR.Read(csr.Mstatus)
	mpie := status&csr.StatusMPIE != 0
	mpp := csr.PrivMode((status & uint64(csr.StatusMPP)) >> 11)

	if mpie {
		status |= csr.StatusMIE
	} else {
		status &^= csr.StatusMIE
	}
	status |= csr.StatusMPIE
	status &^= uint64(csr.StatusMPP)
	h.CSR.Write(csr.Mstatus, status)

	h.Mode = mpp
	h.Reg.PC = h.CSR.Read(csr.Mepc)
	if h.icache != nil {
		h.icache.Flush()
	}
}

// doSRET implements the SRET instruction.
func (h *Hart) doSRET() {
	status := h.CSR.Read(csr.Sstatus)
	spie := status&csr.StatusSPIE != 0
	spp := csr.User
	if status&csr.StatusSPP != 0 {
		spp = csr.Supervisor
	}

	if spie {
		status |= csr.StatusSIE
	} else {
		status &^= csr.StatusSIE
	}
	status |= csr.StatusSPIE
	status &^= uint64(csr.StatusSPP)
	h.CSR.Write(csr.Sstatus, status)

	h.Mode = spp
	h.Reg.PC = h.CSR.Read(csr.Sepc)
	if h.icache != nil {
		h.icache.Flush()
	}
}
