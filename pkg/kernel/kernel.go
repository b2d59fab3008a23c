// Package kernel is the hardware-independent core of the ChooChoo
// microkernel: task table, priority scheduler, synchronous IPC,
// interrupt-derived events, idle accounting, and the syscall
// dispatcher that glues them together. It is deliberately free of any
// board or architecture dependency so it can be exercised by ordinary
// Go tests exactly the way spec section 8's scenarios describe them —
// as a sequence of syscalls issued by named tasks.
package kernel

import (
	"github.com/ElioCheng/choochoo/pkg/board"
	"github.com/ElioCheng/choochoo/pkg/klog"
)

// Kernel is the single controlled instance of all kernel-private
// state: the task table, the scheduler, idle accounting, the kernel
// log, and a handle to the board clock. Spec section 9 ("Global
// mutable state") calls for exactly this: one container instantiated
// once at boot rather than a scattering of package-level globals.
type Kernel struct {
	table *table
	sched *scheduler
	idle  *idleAccounting

	Log   *klog.Ring
	clock board.Clock

	// panicSink is the Sink klog is switched to the moment Panic fires.
	// Left nil by New; set via SetPanicSink once a board UART is
	// available (the simulated and rpi boards both provide one).
	panicSink klog.Sink
}

// New creates a Kernel bound to clock (the hardware boundary's
// monotonic microsecond counter). log may be nil, in which case a
// discarding ring is used.
func New(clock board.Clock, log *klog.Ring) *Kernel {
	if log == nil {
		log = klog.NewRing(klog.LevelNone)
	}
	k := &Kernel{
		table: newTable(),
		sched: newScheduler(),
		idle:  newIdleAccounting(),
		Log:   log,
		clock: clock,
	}
	k.Log.Emitf(klog.LevelInfo, "kernel initialized: %d task slots, %d priority levels", MaxTasks, MaxPriorities)
	return k
}

// OnSchedule installs a hook invoked with the TID of every task that
// becomes Active, once per Schedule call that actually switches
// tasks (re-picking the outgoing task does not invoke it). Grounded on sched.c's context_switch_to calling
// update_gpio_indicator(tid); board packages use this to drive a
// debug LED or similar without the core depending on board code.
func (k *Kernel) OnSchedule(fn func(tid int)) {
	k.sched.onSchedule = fn
}

// Task returns a read-only snapshot of tid's task record, or ok=false
// if tid is not a live task. The returned value is a copy: spec
// section 3's "pointers to the task must not survive Destroy"
// invariant is enforced by never handing out the live pointer itself.
func (k *Kernel) Task(tid int) (Task, bool) {
	t := k.table.get(tid)
	if t == nil {
		return Task{}, false
	}
	return *t, true
}

// IdlePercentage returns the most recently computed idle-CPU
// percentage for the current measurement window.
func (k *Kernel) IdlePercentage() uint32 {
	return k.idle.Percentage()
}
