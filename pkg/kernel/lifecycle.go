package kernel

import (
	"github.com/ElioCheng/choochoo/pkg/arch/arm64"
	"github.com/ElioCheng/choochoo/pkg/kernel/kerr"
	"github.com/ElioCheng/choochoo/pkg/klog"
)

// Create allocates a TID and stack, seeds the new task's register
// frame so that, once scheduled, it starts executing at entry with SP
// at the top of its stack, and enqueues it Ready. The parent of the
// new task is callerTid (0 if callerTid itself is 0, i.e. the very
// first task created during boot).
func (k *Kernel) Create(callerTid int, priority int, entry uint64) (int, error) {
	if priority < 0 || priority >= MaxPriorities {
		k.Log.Emitf(klog.LevelError, "Create: invalid priority %d", priority)
		return 0, kerr.EInvalid
	}

	t, err := k.table.allocate()
	if err != nil {
		k.Log.Emitf(klog.LevelError, "Create: no free task slot")
		return 0, kerr.EState
	}

	t.ParentTID = callerTid
	t.Priority = priority
	t.Entry = entry
	stackTop := t.StackBase + t.StackSize
	t.Context = arm64.ResetForEntry(stackTop, entry)

	k.addTask(t)

	k.Log.Emitf(klog.LevelDebug, "Create: tid=%d parent=%d priority=%d entry=%#x", t.TID, callerTid, priority, entry)
	return t.TID, nil
}

// MyTid returns callerTid itself — it exists as a kernel entry point
// only because spec.md specifies it as a syscall a task issues to
// learn its own identity rather than one a caller in this package
// would already know.
func (k *Kernel) MyTid(callerTid int) int {
	return callerTid
}

// MyParentTid returns the parent of callerTid, or 0 if callerTid is
// not a live task (should not happen — callerTid is always the
// currently Active task).
func (k *Kernel) MyParentTid(callerTid int) int {
	t := k.table.get(callerTid)
	if t == nil {
		return NoTask
	}
	return t.ParentTID
}

// Exit terminates callerTid: every task WaitTid-blocked on it is woken
// with return value 0 before the task's slot is freed, matching spec
// section 5's "WaitTid wakes all waiters atomically with Exit" clause.
func (k *Kernel) Exit(callerTid int) {
	t := k.table.get(callerTid)
	if t == nil {
		return
	}
	k.wakeWaiters(callerTid)
	k.destroyTask(t)
}

// wakeWaiters unblocks every task WaitTid-blocked on exitedTid with
// return value 0, mirroring sched_unblock_waiting_tasks.
func (k *Kernel) wakeWaiters(exitedTid int) {
	for tid := k.sched.blockedHead; tid != NoTask; {
		t := k.table.get(tid)
		next := t.blockedNext
		if t.Reason == BlockWaitTid && t.WaitTarget == exitedTid {
			t.Context.SetResult(0)
			k.unblockLocked(t)
		}
		tid = next
	}
}

// destroyTask unlinks t from the scheduler and any IPC sender queue
// it participates in (either as the queue owner or as a queued
// sender), then frees its TID/stack slot. Destroy is the only path
// that returns a TID and stack to the pool.
func (k *Kernel) destroyTask(t *Task) {
	tid := t.TID
	k.unlinkSender(t)
	// If t was a receiver with senders still queued on it, those
	// senders are left blocked on IpcReply forever — the original
	// kernel has the same behavior (killing a receiver does not wake
	// its pending senders), since there is no other task that could
	// correctly reply on the dead receiver's behalf.
	k.removeFromScheduler(t)
	k.table.free(tid)
}

// WaitTid blocks callerTid until tid exits. Self-wait is rejected, and
// a tid that is not live (never allocated or already destroyed)
// reports EInvalid without blocking.
func (k *Kernel) WaitTid(callerTid, tid int) (int64, error) {
	caller := k.table.get(callerTid)
	if caller == nil {
		return 0, kerr.EInvalid
	}
	if tid == callerTid {
		return 0, kerr.EState
	}
	if k.table.get(tid) == nil {
		// task.c's task_destroy frees the TID slot immediately
		// (task_free_tid), so task_get_by_id returns NULL for a
		// terminated task exactly as it does for one that never
		// existed — the "already terminated" fast path in
		// syscall_wait_tid is therefore unreachable in the original
		// kernel too. A caller racing Exit (WaitTid issued the
		// instant after the target freed its slot) sees EInvalid,
		// same as the original.
		return 0, kerr.EInvalid
	}

	caller.WaitTarget = tid
	k.blockLocked(caller, BlockWaitTid)
	return 0, nil
}

// Kill terminates tid. If killChildren is set, every live descendant
// of tid (transitively) is destroyed first, in post-order — children
// of children before children, children before the named target —
// matching __syscall_kill_children's recursion order. Self-kill is
// rejected; an unknown or already-terminated TID reports EInvalid,
// matching syscall_kill's own task_get_by_id(tid)==NULL branch.
func (k *Kernel) Kill(callerTid, tid int, killChildren bool) error {
	if k.table.get(callerTid) == nil {
		return kerr.EInvalid
	}
	target := k.table.get(tid)
	if target == nil {
		return kerr.EInvalid
	}
	if tid == callerTid {
		return kerr.EState
	}

	if killChildren {
		k.killChildren(tid)
	}

	k.wakeWaiters(tid)
	k.destroyTask(target)
	return nil
}

// killChildren destroys every live task whose ParentTID is parentTid,
// recursing into each child's own children first. Cycles are
// impossible because ParentTID is fixed at Create and never mutated,
// so this recursion is bounded by MaxTasks and always terminates.
func (k *Kernel) killChildren(parentTid int) {
	for i := 1; i < MaxTasks; i++ {
		child := k.table.get(i)
		if child == nil || child.ParentTID != parentTid {
			continue
		}
		k.killChildren(i)
		k.wakeWaiters(i)
		k.destroyTask(child)
	}
}
