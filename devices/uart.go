package devices

import (
	"bufio"
	"io"
	"sync"
)

// UART register offsets (16550 subset, reference: http://byterunner.com/16550.html).
const (
	uartRHR = 0 // receive holding register (read)
	uartTHR = 0 // transmit holding register (write)
	uartIER = 1 // interrupt enable register
	uartISR = 2 // interrupt status register (read)
	uartFCR = 2 // FIFO control register (write)
	uartLCR = 3 // line control register
	uartLSR = 5 // line status register

	uartLSRRX = 0x1  // bit 0: receive holding register has data
	uartLSRTX = 0x20 // bit 5: transmit holding register is empty

	uartIERThrEmptyInt = 0x2 // bit 1: enable transmitter-empty interrupt

	// UART0IRQ is this platform's PLIC source id for the UART.
	UART0IRQ = 10
)

// UART is a 16550-subset serial port backed by host stdin/stdout. A
// background goroutine blocks reading host input and signals the condition
// variable when a byte is ready, so ReadAt never blocks the hart on host
// I/O.
type UART struct {
	mu      sync.Mutex
	cond    *sync.Cond
	in      *bufio.Reader
	out     io.Writer
	plic    *PLIC
	reg     [8]uint8
	rxValid bool
	rxByte  uint8
	closed  bool
}

// NewUART creates a UART reading from in and writing to out, raising
// interrupts on plic at source UART0IRQ.
func NewUART(in io.Reader, out io.Writer, plic *PLIC) *UART {
	u := &UART{in: bufio.NewReader(in), out: out, plic: plic}
	u.cond = sync.NewCond(&u.mu)
	u.reg[uartLSR] = uartLSRTX
	go u.readLoop()
	return u
}

// readLoop blocks on host input and stages each byte for the guest.
func (u *UART) readLoop() {
	for {
		b, err := u.in.ReadByte()
		if err != nil {
			return
		}
		u.mu.Lock()
		for u.rxValid && !u.closed {
			u.cond.Wait()
		}
		if u.closed {
			u.mu.Unlock()
			return
		}
		u.rxByte = b
		u.rxValid = true
		u.cond.Signal()
		u.mu.Unlock()
	}
}

// Close unblocks readLoop so it can exit, for orderly shutdown of a hart
// run. It does not interrupt a pending blocking host read; readLoop exits
// on that read's next return (including at host EOF).
func (u *UART) Close() {
	u.mu.Lock()
	u.closed = true
	u.cond.Broadcast()
	u.mu.Unlock()
}

// ReadAt implements bus.Device.
func (u *UART) ReadAt(offset uint64, size uint8) (uint64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch offset {
	case uartRHR:
		if u.rxValid {
			v := u.rxByte
			u.rxValid = false
			u.cond.Signal()
			return uint64(v), nil
		}
		return 0, nil
	case uartLSR:
		lsr := uint8(uartLSRTX)
		if u.rxValid {
			lsr |= uartLSRRX
		}
		return uint64(lsr), nil
	default:
		return uint64(u.reg[offset]), nil
	}
}

// WriteAt implements bus.Device.
func (u *UART) WriteAt(offset uint64, size uint8, value uint64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch offset {
	case uartTHR:
		_, _ = u.out.Write([]byte{byte(value)})
	default:
		if offset < uint64(len(u.reg)) {
			u.reg[offset] = uint8(value)
		}
	}
	return nil
}

// Tick re-derives the PLIC pending bit for this UART's interrupt source:
// asserted when RX data is waiting, or when the guest has armed the
// transmitter-empty interrupt (the transmitter is always immediately ready
// in this emulator).
func (u *UART) Tick() {
	u.mu.Lock()
	pending := u.rxValid || u.reg[uartIER]&uartIERThrEmptyInt != 0
	u.mu.Unlock()
	u.plic.SetPending(UART0IRQ, pending)
}
