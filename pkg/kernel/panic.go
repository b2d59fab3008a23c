package kernel

import (
	"fmt"
	"runtime"

	"github.com/ElioCheng/choochoo/pkg/klog"
)

// Panic is the kernel's single fatal-error path, grounded on kernel_panic
// in the original C kernel: switch the log to a direct console sink,
// flush whatever was already buffered, dump the currently Active task
// and a Go-side backtrace in place of the original's register/call-stack
// dump, then stop the world via the runtime's own panic.
//
// Panic never returns. Call it for conditions that indicate a kernel
// bug (an invariant violated, an internal table corrupted) — never for
// a user-reported error, which belongs in kerr.Errno instead.
func (k *Kernel) Panic(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	if k.panicSink != nil {
		k.Log.SetSink(k.panicSink)
	}
	k.Log.Emitf(klog.LevelPanic, "KERNEL PANIC: %s", msg)

	if cur := k.sched.current; cur != NoTask {
		if t := k.table.get(cur); t != nil {
			k.Log.Emitf(klog.LevelPanic, "active task: tid=%d priority=%d state=%s reason=%s pc=%#x sp=%#x",
				t.TID, t.Priority, t.State, t.Reason, t.Context.PC, t.Context.SP)
		}
	}

	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		k.Log.Emitf(klog.LevelPanic, "  at %s (%s:%d)", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}

	k.Log.Flush()
	panic(msg)
}

// BugOn panics with the given message if cond is true, mirroring the
// original kernel's BUG_ON(cond, msg) macro used throughout task.c and
// sched.c to assert internal invariants.
func (k *Kernel) BugOn(cond bool, format string, args ...any) {
	if cond {
		k.Panic(format, args...)
	}
}

// SetPanicSink installs the Sink klog switches to once Panic fires —
// normally a direct, blocking UART write, so the last diagnostic lines
// reach the console even though the ring buffer itself is about to
// become unreachable. A nil sink leaves klog's existing Sink in place.
func (k *Kernel) SetPanicSink(s klog.Sink) {
	k.panicSink = s
}
