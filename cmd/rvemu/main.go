// Package main provides the entry point for rvemu, an RV64GC full-system
// emulator.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/rv64emu/bus"
	"github.com/sarchlab/rv64emu/csr"
	"github.com/sarchlab/rv64emu/devices"
	"github.com/sarchlab/rv64emu/hart"
	"github.com/sarchlab/rv64emu/loader"
	"github.com/sarchlab/rv64emu/mem"
	"github.com/sarchlab/rv64emu/mmu"
)

// Memory map.
const (
	romBase    = 0x0000_1000
	romSize    = devices.DefaultROMSize
	clintBase  = 0x0200_0000
	clintSize  = 0x10000
	plicBase   = 0x0c00_0000
	plicSize   = 0x400000
	uartBase   = 0x1000_0000
	uartSize   = 0x100
	virtioBase = 0x1000_1000
	virtioSize = 0x1000
	dramBase   = 0x8000_0000
	dramSize   = 128 * 1024 * 1024
)

var (
	binaryPath = flag.String("binary", "", "path to the guest image (raw RV64 binary or ELF)")
	rfsimgPath = flag.String("rfsimg", "", "path to a VirtIO block device backing file")
	riscvTest  = flag.Bool("riscv-test", false, "enable the riscv-tests tohost termination convention")
	verbose    = flag.Bool("v", false, "verbose output")
	showStats  = flag.Bool("stats", false, "print instruction/cycle statistics on exit")
)

func main() {
	flag.Parse()

	if *binaryPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: rvemu --binary <path> [options]\n\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	os.Exit(run())
}

// run wires loader -> bus (DRAM + CLINT/PLIC/UART/VirtIO/ROM) -> hart and
// drives it to completion.
func run() int {
	prog, err := loader.Load(*binaryPath, dramBase, dramSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading image: %v\n", err)
		return 1
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", *binaryPath)
		fmt.Printf("Entry point: 0x%x\n", prog.EntryPoint)
		fmt.Printf("Segments: %d\n", len(prog.Segments))
	}

	dram := mem.New(dramBase, dramSize)
	if err := prog.LoadInto(dram); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading image into DRAM: %v\n", err)
		return 1
	}

	regs := csr.New()
	plic := devices.NewPLIC(regs)
	clint := devices.NewCLINT(regs)
	uart := devices.NewUART(os.Stdin, os.Stdout, plic)
	rom := devices.NewROM(romSize, prog.EntryPoint)

	opts := []bus.Option{
		bus.WithDevice("rom", romBase, romSize, rom),
		bus.WithDevice("clint", clintBase, clintSize, clint),
		bus.WithDevice("plic", plicBase, plicSize, plic),
		bus.WithDevice("uart0", uartBase, uartSize, uart),
		bus.WithDevice("dram", dramBase, dramSize, dram),
	}

	if *rfsimgPath != "" {
		img, err := os.OpenFile(*rfsimgPath, os.O_RDWR, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening rfsimg: %v\n", err)
			return 1
		}
		defer func() { _ = img.Close() }()

		info, err := img.Stat()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading rfsimg: %v\n", err)
			return 1
		}
		virtio := devices.NewVirtIOBlk(dram, plic, img, uint64(info.Size()))
		opts = append(opts, bus.WithDevice("virtio0", virtioBase, virtioSize, virtio))
	}

	b := bus.New(opts...)
	defer b.Close()

	hartOpts := []hart.HartOption{
		hart.WithTLB(mmu.NewTLB(64, 4)),
		hart.WithICache(hart.NewICache(64, 4)),
	}
	if *riscvTest && prog.HasTohost {
		hartOpts = append(hartOpts, hart.WithRiscvTest(prog.TohostAddr))
	}

	h := hart.NewHart(b, hartOpts...)
	h.Reset(romBase, prog.InitialSP)

	res := h.Run()

	if *showStats {
		stats := h.Stats()
		fmt.Printf("Instructions: %d\n", stats.Instructions)
		fmt.Printf("Cycles:       %d\n", stats.Cycles)
		fmt.Printf("CPI:          %.2f\n", stats.CPI())
	}

	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", res.Err)
		dumpRegisters(h)
		return 1
	}

	if *verbose {
		fmt.Printf("Exit code: %d\n", res.ExitCode)
	}
	return int(res.ExitCode)
}

// dumpRegisters prints integer registers and the primary trap CSRs to
// stderr on a fatal error, followed by a note on the Sv39 A/D-bit
// approximation.
func dumpRegisters(h *hart.Hart) {
	fmt.Fprintf(os.Stderr, "pc = 0x%016x  mode = %d\n", h.Reg.PC, h.Mode)
	for i := 0; i < 32; i += 4 {
		fmt.Fprintf(os.Stderr, "x%-2d=0x%016x x%-2d=0x%016x x%-2d=0x%016x x%-2d=0x%016x\n",
			i, h.Reg.X[i], i+1, h.Reg.X[i+1], i+2, h.Reg.X[i+2], i+3, h.Reg.X[i+3])
	}
	fmt.Fprintf(os.Stderr, "mcause=0x%x mepc=0x%x mtval=0x%x mstatus=0x%x\n",
		h.CSR.Read(csr.Mcause), h.CSR.Read(csr.Mepc), h.CSR.Read(csr.Mtval), h.CSR.Read(csr.Mstatus))
	fmt.Fprintln(os.Stderr, "note: Sv39 page-table A/D bits are never written back by this emulator")
}
