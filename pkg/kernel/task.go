package kernel

import "github.com/ElioCheng/choochoo/pkg/arch/arm64"

// State is a task's lifecycle state (spec section 3).
type State int

const (
	// Terminated is State's zero value so a freshly zeroed Task slot
	// reads as "not a live task" without any extra bookkeeping.
	Terminated State = iota
	Active
	Ready
	Blocked
)

func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Ready:
		return "READY"
	case Blocked:
		return "BLOCKED"
	default:
		return "TERMINATED"
	}
}

// BlockReason explains why a Blocked task is blocked, and therefore
// who is allowed to unblock it (spec section 3).
type BlockReason int

const (
	BlockNone BlockReason = iota
	BlockTimer
	BlockIPCReceive
	BlockIPCReply
	BlockWaitTid
	BlockAwaitEvent
)

func (r BlockReason) String() string {
	switch r {
	case BlockTimer:
		return "TIMER"
	case BlockIPCReceive:
		return "IPC_RECEIVE"
	case BlockIPCReply:
		return "IPC_REPLY"
	case BlockWaitTid:
		return "WAIT_TID"
	case BlockAwaitEvent:
		return "AWAIT_EVENT"
	default:
		return "NONE"
	}
}

// Task is one task-table record. Every cross-task reference below
// (ready/blocked/sender-queue linkage, WaitTid targets, the IPC
// sender queue a receiver owns) is a TID, never a pointer — see the
// design note "Intrusive linkage in a safe language". The task table
// is the arena; TIDs are the handles.
type Task struct {
	TID       int
	ParentTID int
	Priority  int
	State     State
	Reason    BlockReason

	// IPC scratch fields. Ownership follows spec section 3: the
	// blocked task owns these until it is unblocked, and the
	// unblocker reads them on the assumption the owner is not
	// running.
	sendBuf   []byte // sender's message source, valid while blocked on reply
	replyBuf  []byte // sender's reply destination, valid while blocked on reply
	recvBuf   []byte // receiver's message destination, valid while blocked on receive
	recvTIDPtr *int  // receiver's out-pointer for the sender's TID

	WaitTarget int // TID this task is WaitTid-blocked on
	EventID    int // event id this task is AwaitEvent-blocked on

	Context arm64.Frame

	StackBase uint64
	StackSize uint64
	Entry     uint64

	valid bool // false for a free/terminated slot

	// Ready-queue intrusive linkage (one of MaxPriorities FIFOs).
	readyNext, readyPrev int

	// Blocked-list intrusive linkage (a single flat list).
	blockedNext, blockedPrev int

	// ipc_sender_node equivalent: this task's link in whichever
	// receiver's sender queue it is currently queued on, plus which
	// receiver that is (so Kill can unlink it without a scan).
	senderNext, senderPrev int
	queuedOnReceiver       int

	// ipc_sender_queue equivalent: the FIFO of senders waiting to be
	// Received by this task, used only when this task acts as a
	// receiver.
	senderQueueHead, senderQueueTail int
}

func freshTask(tid int) Task {
	return Task{
		TID:              tid,
		readyNext:        NoTask,
		readyPrev:        NoTask,
		blockedNext:      NoTask,
		blockedPrev:      NoTask,
		senderNext:       NoTask,
		senderPrev:       NoTask,
		queuedOnReceiver: NoTask,
		senderQueueHead:  NoTask,
		senderQueueTail:  NoTask,
	}
}
