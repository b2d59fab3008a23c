package kernel

import "github.com/ElioCheng/choochoo/pkg/kernel/kerr"

// EventID identifies an IRQ-derived event a task can AwaitEvent on,
// numbered the same way as include/event.h's EVENT_* constants.
type EventID int

const (
	EventTimerTick       EventID = 1
	EventUARTRx          EventID = 2
	EventUARTTx          EventID = 3
	EventUARTModemStatus EventID = 4
	eventMax             EventID = EventUARTModemStatus
)

func validEvent(id EventID) bool {
	return id >= EventTimerTick && id <= eventMax
}

// AwaitEvent blocks the caller on event id until DeliverEvent fires
// for it (spec section 4.4). It does not write a return value — the
// delivering interrupt handler does, at unblock time.
func (k *Kernel) AwaitEvent(callerTid int, id EventID) error {
	caller := k.table.get(callerTid)
	if caller == nil {
		return kerr.EInvalid
	}
	if !validEvent(id) {
		return kerr.EInvalid
	}
	caller.EventID = int(id)
	k.blockLocked(caller, BlockAwaitEvent)
	return nil
}

// DeliverEvent is called by an interrupt handler once it has
// acknowledged its hardware source and decided event id occurred with
// the given payload (e.g. the running tick count for a timer IRQ).
// Every task currently AwaitEvent-blocked on id is woken with payload
// as its return value; this is all-or-nothing per spec section 4.4 —
// a single call wakes every current waiter or none, and a task that
// calls AwaitEvent after this returns must wait for the next
// delivery.
func (k *Kernel) DeliverEvent(id EventID, payload int64) {
	for tid := k.sched.blockedHead; tid != NoTask; {
		t := k.table.get(tid)
		next := t.blockedNext
		if t.Reason == BlockAwaitEvent && EventID(t.EventID) == id {
			t.Context.SetResult(payload)
			k.unblockLocked(t)
		}
		tid = next
	}
}
