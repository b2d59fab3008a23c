package kernel

import "math/bits"

// scheduler is the priority run-to-completion scheduler described in
// spec section 4.1. Ready queues are FIFOs implemented as
// (head, tail) TID pairs into the owning Kernel's task table, with
// per-task readyNext/readyPrev linkage — the arena-and-indices scheme
// the design notes call for instead of an intrusive pointer list.
type scheduler struct {
	readyHead [MaxPriorities]int
	readyTail [MaxPriorities]int
	bitmap    [priorityBitmapWords]uint32

	blockedHead, blockedTail int

	current int // TID of the Active task, or NoTask

	// onSchedule is invoked with the TID about to become Active, once
	// per Schedule call that actually switches tasks. It is the
	// board-agnostic hook SPEC_FULL.md grounds on sched.c's
	// update_gpio_indicator call — nil by default.
	onSchedule func(tid int)
}

func newScheduler() *scheduler {
	s := &scheduler{}
	for p := range s.readyHead {
		s.readyHead[p] = NoTask
		s.readyTail[p] = NoTask
	}
	return s
}

func (s *scheduler) bitSet(p int)   { s.bitmap[p/32] |= 1 << uint(p%32) }
func (s *scheduler) bitClear(p int) { s.bitmap[p/32] &^= 1 << uint(p%32) }

// inReadyQueue reports whether t is currently linked into its
// priority's ready queue. A task is "linked" if it is the queue head,
// or its prev/next are non-zero — checked against the queue itself
// for t sitting alone (head==tail==t.TID).
func (k *Kernel) inReadyQueue(t *Task) bool {
	p := t.Priority
	return k.sched.readyHead[p] == t.TID || t.readyPrev != NoTask || t.readyNext != NoTask
}

// enqueueReadyLocked appends t to the tail of its priority's ready
// queue. It is idempotent: calling it on a task already linked into
// its queue is a no-op, satisfying the round-trip law
// "enqueue_ready(t); enqueue_ready(t) == enqueue_ready(t)".
func (k *Kernel) enqueueReadyLocked(t *Task) {
	if k.inReadyQueue(t) {
		return
	}

	t.readyPrev = NoTask
	t.readyNext = NoTask
	tail := k.sched.readyTail[t.Priority]
	if tail == NoTask {
		k.sched.readyHead[t.Priority] = t.TID
		k.sched.readyTail[t.Priority] = t.TID
	} else {
		tailTask := k.table.get(tail)
		tailTask.readyNext = t.TID
		t.readyPrev = tail
		k.sched.readyTail[t.Priority] = t.TID
	}
	k.sched.bitSet(t.Priority)
	t.State = Ready
}

// unlinkReadyLocked removes t from its priority's ready queue,
// clearing the priority bitmap bit if the queue becomes empty.
func (k *Kernel) unlinkReadyLocked(t *Task) {
	p := t.Priority
	if k.sched.readyHead[p] == t.TID {
		k.sched.readyHead[p] = t.readyNext
	} else if t.readyPrev != NoTask {
		k.table.get(t.readyPrev).readyNext = t.readyNext
	}
	if k.sched.readyTail[p] == t.TID {
		k.sched.readyTail[p] = t.readyPrev
	} else if t.readyNext != NoTask {
		k.table.get(t.readyNext).readyPrev = t.readyPrev
	}
	t.readyNext = NoTask
	t.readyPrev = NoTask
	if k.sched.readyHead[p] == NoTask {
		k.sched.bitClear(p)
	}
}

func (k *Kernel) linkBlockedLocked(t *Task) {
	t.blockedNext = NoTask
	t.blockedPrev = k.sched.blockedTail
	if k.sched.blockedTail == NoTask {
		k.sched.blockedHead = t.TID
	} else {
		k.table.get(k.sched.blockedTail).blockedNext = t.TID
	}
	k.sched.blockedTail = t.TID
}

func (k *Kernel) unlinkBlockedLocked(t *Task) {
	if t.blockedPrev != NoTask {
		k.table.get(t.blockedPrev).blockedNext = t.blockedNext
	} else if k.sched.blockedHead == t.TID {
		k.sched.blockedHead = t.blockedNext
	}
	if t.blockedNext != NoTask {
		k.table.get(t.blockedNext).blockedPrev = t.blockedPrev
	} else if k.sched.blockedTail == t.TID {
		k.sched.blockedTail = t.blockedPrev
	}
	t.blockedNext = NoTask
	t.blockedPrev = NoTask
}

// addTask makes a freshly created task Ready and enqueues it. It must
// not be called twice for the same task without an intervening
// Destroy.
func (k *Kernel) addTask(t *Task) {
	t.State = Ready
	k.enqueueReadyLocked(t)
}

// removeFromScheduler unlinks t from whichever list currently holds
// it (ready or blocked), used by Destroy. It never touches the
// sender-queue linkage — callers are responsible for unlinking IPC
// state first (see lifecycle.go's destroyTask/Kill path).
func (k *Kernel) removeFromScheduler(t *Task) {
	switch t.State {
	case Ready:
		k.unlinkReadyLocked(t)
	case Blocked:
		k.unlinkBlockedLocked(t)
	}
	if k.sched.current == t.TID {
		k.sched.current = NoTask
	}
}

// blockLocked moves t (Active or Ready) to the blocked list with the
// given reason. Spec section 4.1: "must only be called on the Active
// task or a Ready task."
func (k *Kernel) blockLocked(t *Task, reason BlockReason) {
	if t.State == Ready {
		k.unlinkReadyLocked(t)
	}
	t.State = Blocked
	t.Reason = reason
	k.linkBlockedLocked(t)
}

// unblockLocked transitions a Blocked task back to Ready and
// re-enqueues it. Valid only on Blocked tasks.
func (k *Kernel) unblockLocked(t *Task) {
	if t.State != Blocked {
		return
	}
	k.unlinkBlockedLocked(t)
	t.Reason = BlockNone
	t.WaitTarget = 0
	k.enqueueReadyLocked(t)
}

// findHighestPriority returns the lowest-numbered (highest-priority)
// non-empty ready queue, or -1 if every queue is empty. O(1) in the
// number of priority levels via a find-first-set over the bitmap,
// exactly as spec section 3 specifies.
func (k *Kernel) findHighestPriority() int {
	for word, bm := range k.sched.bitmap {
		if bm == 0 {
			continue
		}
		return word*32 + bits.TrailingZeros32(bm)
	}
	return -1
}

// pickNext dequeues the head of the highest-priority non-empty ready
// queue. It returns NoTask only when no task is ready at all, which a
// correctly configured kernel never allows to happen (the idle task
// invariant) — Schedule treats that as a panic.
func (k *Kernel) pickNext() int {
	p := k.findHighestPriority()
	if p < 0 {
		return NoTask
	}
	tid := k.sched.readyHead[p]
	t := k.table.get(tid)
	k.unlinkReadyLocked(t)
	return tid
}

// Schedule is the scheduler's single entry point, invoked at exactly
// the three points spec section 4.1 names: return-from-syscall,
// return-from-IRQ, and Yield. It re-enqueues the outgoing task exactly
// once — see SPEC_FULL.md's note on the original's double re-enqueue,
// which this rewrite intentionally does not reproduce — then picks
// and activates a successor.
//
// Schedule panics if no task is ready; that can only happen if no
// idle task was ever installed, which is always a configuration bug.
func (k *Kernel) Schedule() {
	prev := k.sched.current
	if outgoing := k.sched.current; outgoing != NoTask {
		t := k.table.get(outgoing)
		wasIdle := k.idle.isIdleTask(outgoing)
		if wasIdle {
			k.idle.stopAccounting(k.clock.NowMicros())
		}
		if t.State == Active || t.State == Ready {
			t.State = Ready
			k.enqueueReadyLocked(t)
		}
		k.sched.current = NoTask
	}

	next := k.pickNext()
	if next == NoTask {
		k.Panic("scheduler found no ready tasks")
	}

	if k.idle.isIdleTask(next) {
		k.idle.startAccounting(k.clock.NowMicros())
	}

	nt := k.table.get(next)
	nt.State = Active
	k.sched.current = next

	if k.sched.onSchedule != nil && next != prev {
		k.sched.onSchedule(next)
	}
}

// Yield re-enqueues the current task at the tail of its own priority
// level (classic round-robin within a level) and reschedules.
func (k *Kernel) Yield() {
	k.Schedule()
}

// CurrentTID returns the Active task's TID, or NoTask if none (only
// possible before boot installs the first task).
func (k *Kernel) CurrentTID() int {
	return k.sched.current
}
