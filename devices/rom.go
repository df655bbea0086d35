package devices

import (
	"encoding/binary"
	"errors"
)

// DefaultROMSize is the boot ROM's mapped size.
const DefaultROMSize = 0x1000

// dtbOffset is where the ROM exposes its (minimal) flattened device tree,
// placed after the reset stub within the same ROM image, the convention
// real firmware uses.
const dtbOffset = 0x800

// fdtMagic is the flattened-device-tree blob magic number, used here only
// so a guest can locate the DTB; this emulator does not need to interpret
// it.
const fdtMagic = 0xd00dfeed

// errROMReadOnly is returned by WriteAt for every store, so the bus turns
// it into a StoreAMOAccessFault rather than letting it succeed silently.
var errROMReadOnly = errors.New("rom: write to read-only region")

// ROM is the read-only boot ROM: a reset stub that jumps to DRAM_BASE, and a
// device-tree blob describing the memory map. Modeled as a small preloaded
// byte array, the same shape as mem.Memory but rejecting every write (a
// real ROM is unwritable, not absent).
type ROM struct {
	data []byte
}

// NewROM builds a boot ROM of size bytes whose reset stub jumps to dramBase.
func NewROM(size, dramBase uint64) *ROM {
	r := &ROM{data: make([]byte, size)}
	r.writeResetStub(dramBase)
	r.writeDTBStub(dramBase)
	return r
}

// writeResetStub emits: auipc t0,0 ; ld t1,24(t0) ; jr t1 ; nop*3 ; <entry:8>.
// Loading the jump target from a data word (rather than a PC-relative jal)
// lets the stub reach any 64-bit DRAM_BASE, matching the indirection real
// firmware reset vectors use.
func (r *ROM) writeResetStub(entry uint64) {
	const (
		auipcT0  = 0x00000297 // auipc t0, 0
		ldT1T0   = 0x0182b303 // ld t1, 24(t0)
		jrT1     = 0x00030067 // jalr x0, 0(t1)
		nop      = 0x00000013 // addi x0, x0, 0
		entryOff = 24
	)
	binary.LittleEndian.PutUint32(r.data[0:4], auipcT0)
	binary.LittleEndian.PutUint32(r.data[4:8], ldT1T0)
	binary.LittleEndian.PutUint32(r.data[8:12], jrT1)
	binary.LittleEndian.PutUint32(r.data[12:16], nop)
	binary.LittleEndian.PutUint32(r.data[16:20], nop)
	binary.LittleEndian.PutUint32(r.data[20:24], nop)
	binary.LittleEndian.PutUint64(r.data[entryOff:entryOff+8], entry)
}

// writeDTBStub writes a minimal FDT header (magic + total size) at
// dtbOffset: enough for a guest to recognize the blob's presence and
// location, not a full device tree.
func (r *ROM) writeDTBStub(dramBase uint64) {
	if int(dtbOffset)+16 > len(r.data) {
		return
	}
	binary.BigEndian.PutUint32(r.data[dtbOffset:dtbOffset+4], fdtMagic)
	binary.BigEndian.PutUint32(r.data[dtbOffset+4:dtbOffset+8], uint32(len(r.data)-dtbOffset))
	binary.BigEndian.PutUint64(r.data[dtbOffset+8:dtbOffset+16], dramBase)
}

// ReadAt implements bus.Device.
func (r *ROM) ReadAt(offset uint64, size uint8) (uint64, error) {
	n := uint64(size) / 8
	if offset+n > uint64(len(r.data)) {
		return 0, nil
	}
	switch size {
	case 8:
		return uint64(r.data[offset]), nil
	case 16:
		return uint64(binary.LittleEndian.Uint16(r.data[offset : offset+2])), nil
	case 32:
		return uint64(binary.LittleEndian.Uint32(r.data[offset : offset+4])), nil
	case 64:
		return binary.LittleEndian.Uint64(r.data[offset : offset+8]), nil
	default:
		return 0, nil
	}
}

// WriteAt implements bus.Device; every store to ROM faults.
func (r *ROM) WriteAt(offset uint64, size uint8, value uint64) error {
	return errROMReadOnly
}

// Tick implements bus.Device; the ROM has no internal state to advance.
func (r *ROM) Tick() {}
