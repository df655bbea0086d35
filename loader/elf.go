// Package loader loads a guest image, an RV64 ELF executable or a raw
// binary, into DRAM ahead of hart reset.
package loader

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/rv64emu/mem"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// elfMagic is the four-byte prefix debug/elf also checks; used here only to
// decide ELF vs. raw binary before handing the file to debug/elf.
var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// Segment represents a loadable segment, in either ELF or raw-binary form.
type Segment struct {
	// VirtAddr is the address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded guest image ready for execution.
type Program struct {
	// EntryPoint is the virtual address where execution should begin.
	EntryPoint uint64
	// Segments contains all loadable segments from the image.
	Segments []Segment
	// InitialSP is the initial stack pointer value: x2 = DRAM_BASE +
	// DRAM_SIZE at reset.
	InitialSP uint64
	// TohostAddr is the address of the ELF symbol "tohost", if present.
	// The riscv-tests compliance-test termination convention writes its
	// exit code there. Raw binaries never set HasTohost.
	TohostAddr uint64
	HasTohost  bool
}

// Load reads path and returns a Program ready for LoadInto. It detects an
// ELF image by its four-byte magic; anything else is treated as a raw
// RV64 binary loaded at dramBase with entry at dramBase.
func Load(path string, dramBase, dramSize uint64) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	if bytes.HasPrefix(data, elfMagic) {
		return loadELF(path, dramBase, dramSize)
	}
	return loadRaw(data, dramBase, dramSize), nil
}

// loadRaw wraps a flat binary image as a single RWX segment starting at
// dramBase, the convention xv6-style images and riscv-tests binaries use
// when built without relocation metadata.
func loadRaw(data []byte, dramBase, dramSize uint64) *Program {
	return &Program{
		EntryPoint: dramBase,
		InitialSP:  dramBase + dramSize,
		Segments: []Segment{{
			VirtAddr: dramBase,
			Data:     data,
			MemSize:  uint64(len(data)),
			Flags:    SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
		}},
	}
}

// loadELF parses an RV64 ELF executable and returns its PT_LOAD segments.
func loadELF(path string, dramBase, dramSize uint64) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("not a 64-bit ELF file")
	}
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("not a RISC-V ELF file (machine type: %v)", f.Machine)
	}

	prog := &Program{
		EntryPoint: f.Entry,
		InitialSP:  dramBase + dramSize,
	}

	if syms, err := f.Symbols(); err == nil {
		for _, s := range syms {
			if s.Name == "tohost" {
				prog.TohostAddr = s.Value
				prog.HasTohost = true
				break
			}
		}
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Flags:    flags,
		})
	}

	return prog, nil
}

// LoadInto copies every segment's file contents into dram at its virtual
// address. BSS tail bytes (MemSize > len(Data)) are left as dram's
// zero-initialized default; no segment here is expected to straddle
// dram's bounds since DRAM is the only writable physical region a guest
// image targets.
func (p *Program) LoadInto(dram *mem.Memory) error {
	for _, seg := range p.Segments {
		if len(seg.Data) == 0 {
			continue
		}
		if !dram.Contains(seg.VirtAddr, seg.MemSize) {
			return fmt.Errorf("segment at 0x%x (size 0x%x) falls outside DRAM", seg.VirtAddr, seg.MemSize)
		}
		dram.LoadBytes(seg.VirtAddr, seg.Data)
	}
	return nil
}
