// Package sim provides an in-memory implementation of the board
// package's hardware contracts, for host tests and the CLI simulation
// harness that never touch real MMIO. It is the host-side stand-in
// spec section 6's "the specification treats them as opaque" clause
// implicitly allows for: same interfaces, no real interrupt
// controller or UART underneath.
package sim

import (
	"fmt"
	"sort"

	gvsync "gvisor.dev/gvisor/pkg/sync"

	"github.com/ElioCheng/choochoo/pkg/board"
)

// Clock is a manually advanced monotonic microsecond counter. Tests
// drive it directly with Advance instead of sleeping real wall-clock
// time, keeping scheduling and idle-accounting tests deterministic.
type Clock struct {
	mu  gvsync.Mutex
	now uint64
}

func NewClock() *Clock { return &Clock{} }

func (c *Clock) NowMicros() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by deltaMicros and returns the new
// reading.
func (c *Clock) Advance(deltaMicros uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += deltaMicros
	return c.now
}

// InterruptController is a software model of a GIC-shaped distributor:
// handlers are registered per IRQ line and Fire invokes the registered
// handler directly, synchronously, from the caller's goroutine — there
// is no real asynchronous delivery to simulate on a host.
type InterruptController struct {
	mu       gvsync.Mutex
	handlers map[int]board.IRQHandler
	enabled  map[int]bool
	level    map[int]bool
}

func NewInterruptController() *InterruptController {
	return &InterruptController{
		handlers: make(map[int]board.IRQHandler),
		enabled:  make(map[int]bool),
		level:    make(map[int]bool),
	}
}

func (ic *InterruptController) RegisterHandler(irq int, fn board.IRQHandler) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.handlers[irq] = fn
}

func (ic *InterruptController) Enable(irq int) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.enabled[irq] = true
}

func (ic *InterruptController) Disable(irq int) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.enabled[irq] = false
}

func (ic *InterruptController) End(irq int) {
	// No hardware EOI register to ack on a simulated distributor.
}

func (ic *InterruptController) SetType(irq int, levelTriggered bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.level[irq] = levelTriggered
}

// Fire invokes irq's registered handler if the line is currently
// enabled, mirroring board.SpuriousIRQ for any other case: an unknown
// or disabled line simply does nothing, the same as a real GIC
// returning the spurious-interrupt sentinel for a line with nothing
// pending.
func (ic *InterruptController) Fire(irq int) {
	ic.mu.Lock()
	fn, enabled := ic.handlers[irq], ic.enabled[irq]
	ic.mu.Unlock()
	if enabled && fn != nil {
		fn()
	}
}

// UART is a blocking, in-memory transcript of every byte written to
// it, used both as board.UART and as a klog.Sink for the CLI harness
// and panic-path tests.
type UART struct {
	mu  gvsync.Mutex
	buf []byte
}

func NewUART() *UART { return &UART{} }

func (u *UART) PutcBlocking(b byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.buf = append(u.buf, b)
}

// Write implements klog.Sink by writing line and a trailing newline
// byte-by-byte through PutcBlocking, the same path a real panic would
// take to drain the last log lines to a physical console.
func (u *UART) Write(line string) {
	for i := 0; i < len(line); i++ {
		u.PutcBlocking(line[i])
	}
	u.PutcBlocking('\n')
}

// String returns everything written to the UART so far, for test
// assertions.
func (u *UART) String() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return string(u.buf)
}

// GPIO is a trivial simulated indicator bank standing in for the real
// board's debug LEDs, driven by Kernel.OnSchedule the same way
// update_gpio_indicator drives real GPIO pins in the original kernel.
type GPIO struct {
	mu  gvsync.Mutex
	set map[int]bool
}

func NewGPIO() *GPIO {
	return &GPIO{set: make(map[int]bool)}
}

func (g *GPIO) SetTaskIndicator(tid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.set {
		g.set[k] = false
	}
	g.set[tid] = true
}

// String renders the currently lit indicator for debugging/CLI output.
func (g *GPIO) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	lit := make([]int, 0, 1)
	for k, on := range g.set {
		if on {
			lit = append(lit, k)
		}
	}
	sort.Ints(lit)
	return fmt.Sprintf("%v", lit)
}
