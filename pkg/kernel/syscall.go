package kernel

import (
	"github.com/ElioCheng/choochoo/pkg/kernel/kerr"
	"github.com/ElioCheng/choochoo/pkg/klog"
)

// SyscallNumber is the dense, source-level numbering for the syscalls
// spec section 6 tables; it is what the original kernel decodes out of
// X8 in handle_syscall and what arm64.Frame.SyscallNumber returns.
type SyscallNumber int

const (
	SysCreate SyscallNumber = iota
	SysMyTid
	SysMyParentTid
	SysYield
	SysExit
	SysSend
	SysReceive
	SysReceiveNonBlock
	SysReply
	SysWaitTid
	SysKill
	SysAwaitEvent
	SysSetupIdleTask
	SysKlog
	SysPanic
	SysReboot
	SysGetUnreadKlogs
	SysGetTaskInfo
	SysToggleIdleDisplay
)

// Request is the sum type of every syscall's decoded arguments, per the
// design note preferring a closed interface plus concrete variants over
// a single wide argument struct switched on a number. Dispatch type-
// switches over the concrete type rather than re-reading a syscall
// number, so a caller that already knows which syscall it wants never
// has to round-trip through SyscallNumber at all.
type Request interface {
	isRequest()
}

type CreateReq struct {
	Priority int
	Entry    uint64
}

type MyTidReq struct{}

type MyParentTidReq struct{}

type YieldReq struct{}

type ExitReq struct{}

type SendReq struct {
	Tid   int
	Msg   []byte
	Reply []byte
}

type ReceiveReq struct {
	TidOut *int
	Buf    []byte
}

type ReceiveNonBlockReq struct {
	TidOut *int
	Buf    []byte
}

type ReplyReq struct {
	Tid   int
	Reply []byte
}

type WaitTidReq struct {
	Tid int
}

type KillReq struct {
	Tid          int
	KillChildren bool
}

type AwaitEventReq struct {
	EventID EventID
}

type SetupIdleTaskReq struct {
	WindowMicros uint64
}

type KlogReq struct {
	Level klog.Level
	Msg   string
}

type PanicReq struct {
	Msg string
}

type RebootReq struct{}

type GetUnreadKlogsReq struct {
	Buf     []byte
	Entries *int // out-pointer: entries consumed, the syscall's second out-value
}

type GetTaskInfoReq struct {
	Buf []byte
}

type ToggleIdleDisplayReq struct{}

func (CreateReq) isRequest()           {}
func (MyTidReq) isRequest()            {}
func (MyParentTidReq) isRequest()      {}
func (YieldReq) isRequest()            {}
func (ExitReq) isRequest()             {}
func (SendReq) isRequest()             {}
func (ReceiveReq) isRequest()          {}
func (ReceiveNonBlockReq) isRequest()  {}
func (ReplyReq) isRequest()            {}
func (WaitTidReq) isRequest()          {}
func (KillReq) isRequest()             {}
func (AwaitEventReq) isRequest()       {}
func (SetupIdleTaskReq) isRequest()    {}
func (KlogReq) isRequest()             {}
func (PanicReq) isRequest()            {}
func (RebootReq) isRequest()           {}
func (GetUnreadKlogsReq) isRequest()   {}
func (GetTaskInfoReq) isRequest()      {}
func (ToggleIdleDisplayReq) isRequest() {}

// Dispatch decodes and executes req on behalf of callerTid, writing a
// result into callerTid's register frame for every syscall that does
// not block, and always ends by invoking Schedule — spec section 4.1's
// "the scheduler runs at exactly three points: return-from-syscall,
// return-from-IRQ, and Yield." Blocking syscalls (Send, Receive with no
// sender queued, WaitTid, AwaitEvent, Exit) leave the result register
// untouched; whichever call eventually unblocks the caller writes it
// instead.
func (k *Kernel) Dispatch(callerTid int, req Request) {
	switch r := req.(type) {
	case CreateReq:
		tid, err := k.Create(callerTid, r.Priority, r.Entry)
		k.setResult(callerTid, int64(tid), err)

	case MyTidReq:
		k.setResult(callerTid, int64(k.MyTid(callerTid)), nil)

	case MyParentTidReq:
		k.setResult(callerTid, int64(k.MyParentTid(callerTid)), nil)

	case YieldReq:
		k.Yield()
		return

	case ExitReq:
		k.Exit(callerTid)
		k.Schedule()
		return

	case SendReq:
		err := k.Send(callerTid, r.Tid, r.Msg, r.Reply)
		if err != nil {
			k.setResult(callerTid, 0, err)
		}
		// On success the result is written later, by Reply.

	case ReceiveReq:
		n, blocked, err := k.Receive(callerTid, r.TidOut, r.Buf)
		if !blocked {
			k.setResult(callerTid, n, err)
		}
		// blocked means no sender was queued: the caller is now
		// Blocked on IpcReceive and Send's direct-delivery path will
		// write the result later. A genuine zero-length message
		// already queued returns blocked=false here and is written
		// immediately, same as any other length.

	case ReceiveNonBlockReq:
		n, err := k.ReceiveNonBlock(callerTid, r.TidOut, r.Buf)
		k.setResult(callerTid, n, err)

	case ReplyReq:
		n, err := k.Reply(callerTid, r.Tid, r.Reply)
		k.setResult(callerTid, n, err)

	case WaitTidReq:
		n, err := k.WaitTid(callerTid, r.Tid)
		if err != nil {
			k.setResult(callerTid, n, err)
		}

	case KillReq:
		err := k.Kill(callerTid, r.Tid, r.KillChildren)
		k.setResult(callerTid, 0, err)

	case AwaitEventReq:
		err := k.AwaitEvent(callerTid, r.EventID)
		if err != nil {
			k.setResult(callerTid, 0, err)
		}

	case SetupIdleTaskReq:
		err := k.SetupIdleTask(callerTid, r.WindowMicros)
		k.setResult(callerTid, 0, err)

	case KlogReq:
		k.Log.Emitf(r.Level, "%s", r.Msg)
		k.setResult(callerTid, 0, nil)

	case PanicReq:
		k.Panic("%s", r.Msg)
		return // unreachable: Panic never returns

	case RebootReq:
		k.Panic("reboot requested")
		return // unreachable: no restart path in this rewrite

	case GetUnreadKlogsReq:
		n, entries := k.GetUnreadKlogs(r.Buf)
		if r.Entries != nil {
			*r.Entries = entries
		}
		k.setResult(callerTid, n, nil)

	case GetTaskInfoReq:
		n := k.GetTaskInfo(r.Buf)
		k.setResult(callerTid, n, nil)

	case ToggleIdleDisplayReq:
		enabled := k.ToggleIdleDisplay()
		result := int64(0)
		if enabled {
			result = 1
		}
		k.setResult(callerTid, result, nil)

	default:
		k.Panic("Dispatch: unknown request type %T", req)
		return
	}

	k.Schedule()
}

// setResult writes either err's errno or v into callerTid's result
// register. It is a no-op if callerTid is not a live task, which can
// only happen if the caller just Exited as part of handling its own
// syscall. An error that is not a kerr.Errno is a kernel bug and
// panics.
func (k *Kernel) setResult(callerTid int, v int64, err error) {
	t := k.table.get(callerTid)
	if t == nil {
		return
	}
	if err != nil {
		if errno, ok := err.(kerr.Errno); ok {
			t.Context.SetResult(errno.Int64())
			return
		}
		k.Panic("setResult: non-errno error from syscall handler: %v", err)
		return
	}
	t.Context.SetResult(v)
}
