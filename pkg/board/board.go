// Package board describes the hardware boundary the kernel core
// depends on: a monotonic microsecond clock, a generic interrupt
// controller, and a pair of UARTs. Spec section 6 treats the real
// drivers for these as opaque external collaborators; this package is
// only the contract, grounded on the register-level shape seen in
// gic_qemu.go and pic.go from the example pack. Concrete
// implementations live in board/sim (for tests and the CLI harness)
// and board/rpi (for real hardware, gated by build tags).
package board

// Clock is the free-running microsecond counter spec section 6
// requires ("a monotonic microsecond counter (free-running 64-bit,
// read via a paired high/low 32-bit read with wrap detection)"). The
// high/low split is an rpi implementation detail; callers only ever
// need the combined value.
type Clock interface {
	NowMicros() uint64
}

// IRQHandler is invoked by an InterruptController when its interrupt
// fires. It must acknowledge the hardware source itself before
// returning, so that a spurious re-trigger cannot storm (spec section
// 4.4's Event service contract).
type IRQHandler func()

// InterruptController is the generic interrupt distributor contract
// (GIC-shaped, but intentionally reduced to what the kernel core
// needs): register a handler, enable/disable a line, signal end of
// interrupt, and pick edge- vs level-triggered delivery.
type InterruptController interface {
	RegisterHandler(irq int, fn IRQHandler)
	Enable(irq int)
	Disable(irq int)
	End(irq int)
	SetType(irq int, levelTriggered bool)
}

// UART is reduced to the one operation the kernel's own panic path
// needs directly: a blocking putc so that the last words out of a
// dying kernel are never lost to a full transmit FIFO.
type UART interface {
	PutcBlocking(b byte)
}

// SpuriousIRQ is the sentinel interrupt ID real GIC hardware returns
// from an acknowledge-interrupt read when no interrupt is actually
// pending — spec section 6's "spurious-interrupt sentinel". Boards
// must never invoke an IRQHandler for it.
const SpuriousIRQ = 1023
