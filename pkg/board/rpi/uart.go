//go:build arm64

package rpi

// PL011-shaped UART register layout, matching uart.c's UART0_BASE and
// register offsets (data, flag, control). Only the console UART's
// blocking transmit path is needed here — board.UART's entire contract
// is PutcBlocking.
const (
	mmioBase  = 0xFE000000
	uart0Base = mmioBase + 0x201000

	uartDR = 0x00
	uartFR = 0x18

	uartFRTxFF = 0x20 // transmit FIFO full
)

// UART drives the PL011-compatible console UART used for panic output
// and klog's direct sink.
type UART struct{}

func NewUART() *UART { return &UART{} }

// PutcBlocking spins on the transmit-FIFO-full flag before writing b,
// the same busy-wait uart.c's blocking putc path uses so that a dying
// kernel's last words are never dropped to a full FIFO.
func (UART) PutcBlocking(b byte) {
	for mmioRead32(uart0Base+uartFR)&uartFRTxFF != 0 {
	}
	mmioWrite32(uart0Base+uartDR, uint32(b))
}

// Write implements klog.Sink by writing line's bytes followed by a
// carriage return and newline, PL011 convention for a plain-text
// console stream.
func (u UART) Write(line string) {
	for i := 0; i < len(line); i++ {
		u.PutcBlocking(line[i])
	}
	u.PutcBlocking('\r')
	u.PutcBlocking('\n')
}
