//go:build arm64

// Package rpi is the real-hardware implementation of the board
// contracts for a single-core ARMv8-A target, MMIO-addressed the way
// arch/gic.h and arch/rpi.h lay the registers out in the original
// kernel and the way gic_qemu.go reads/writes them in Go. It is only
// ever compiled for arm64 — on any other GOARCH, pkg/board/sim is the
// only available board.
package rpi

import (
	"unsafe"

	"github.com/ElioCheng/choochoo/pkg/board"
)

// GIC distributor/CPU-interface base addresses and register offsets,
// matching arch/gic.h's GICD_BASE/GICC_BASE split (offset from a
// shared GIC_BASE rather than gic_qemu.go's flat QEMU-virt addresses,
// since this rewrite targets the same SoC the original kernel does).
const (
	gicBase  = 0xFF840000
	gicdBase = gicBase + 0x1000
	giccBase = gicBase + 0x2000

	gicdCTLR       = 0x000
	gicdISENABLERn = 0x100
	gicdICENABLERn = 0x180
	gicdICPENDRn   = 0x280
	gicdIPRIORITYRn = 0x400
	gicdICFGRn     = 0xC00

	giccCTLR = 0x000
	giccPMR  = 0x004
	giccBPR  = 0x008
	giccIAR  = 0x00C
	giccEOIR = 0x010
)

const gicSpuriousIntID = 1023

func mmioRead32(addr uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(addr))
}

func mmioWrite32(addr uintptr, v uint32) {
	*(*uint32)(unsafe.Pointer(addr)) = v
}

// GIC drives a GICv2-shaped distributor and CPU interface, implementing
// board.InterruptController. RegisterHandler only records the Go
// callback; NewGIC runs init, the one-time distributor/CPU-interface
// bring-up modeled on gic_qemu.go's gicInit (mask priorities open,
// clear pending, level-triggered by default). init does not write the
// interrupt target registers, so routing is left at the distributor's
// reset value.
type GIC struct {
	handlers [1024]board.IRQHandler
}

func NewGIC() *GIC {
	g := &GIC{}
	g.init()
	return g
}

func (g *GIC) init() {
	mmioWrite32(gicdBase+gicdCTLR, 0)
	mmioWrite32(giccBase+giccCTLR, 0)
	mmioWrite32(giccBase+giccPMR, 0xFF)
	mmioWrite32(giccBase+giccBPR, 0)
	for i := 0; i < 32; i++ {
		mmioWrite32(gicdBase+gicdICPENDRn+uintptr(i*4), 0xFFFFFFFF)
	}
	for i := 0; i < 256; i++ {
		mmioWrite32(gicdBase+gicdIPRIORITYRn+uintptr(i*4), 0x80808080)
	}
	for i := 0; i < 64; i++ {
		mmioWrite32(gicdBase+gicdICFGRn+uintptr(i*4), 0)
	}
	mmioWrite32(gicdBase+gicdCTLR, 0x03)
	mmioWrite32(giccBase+giccCTLR, 0x03)
}

func (g *GIC) RegisterHandler(irq int, fn board.IRQHandler) {
	if irq < 0 || irq >= len(g.handlers) {
		return
	}
	g.handlers[irq] = fn
}

func (g *GIC) Enable(irq int) {
	regIndex := uintptr(irq / 32)
	bit := uint32(1) << uint(irq%32)
	mmioWrite32(gicdBase+gicdISENABLERn+regIndex*4, bit)
}

func (g *GIC) Disable(irq int) {
	regIndex := uintptr(irq / 32)
	bit := uint32(1) << uint(irq%32)
	mmioWrite32(gicdBase+gicdICENABLERn+regIndex*4, bit)
}

func (g *GIC) End(irq int) {
	mmioWrite32(giccBase+giccEOIR, uint32(irq))
}

func (g *GIC) SetType(irq int, levelTriggered bool) {
	regIndex := uintptr(irq / 16)
	shift := uint((irq % 16) * 2)
	cur := mmioRead32(gicdBase + gicdICFGRn + regIndex*4)
	if levelTriggered {
		cur &^= 2 << shift
	} else {
		cur |= 2 << shift
	}
	mmioWrite32(gicdBase+gicdICFGRn+regIndex*4, cur)
}

// HandleInterrupt acknowledges the pending interrupt from the CPU
// interface, dispatches to its registered handler if any, and signals
// end-of-interrupt — called from the exception vector's IRQ entry.
// A spurious read (no interrupt actually pending) is silently ignored,
// per board.SpuriousIRQ.
func (g *GIC) HandleInterrupt() {
	iar := mmioRead32(giccBase + giccIAR)
	irq := int(iar & 0x3FF)
	if irq >= gicSpuriousIntID {
		return
	}
	if fn := g.handlers[irq]; fn != nil {
		fn()
	}
	g.End(irq)
}
