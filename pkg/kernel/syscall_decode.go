package kernel

import (
	"encoding/binary"

	"github.com/ElioCheng/choochoo/pkg/arch/arm64"
	"github.com/ElioCheng/choochoo/pkg/klog"
)

// HandleSyscall is the decode step the exception-entry path performs
// once a task's saved context (an arm64.Frame, already copied onto the
// task by the SVC vector) is known to hold a syscall: read the number
// out of X8, build the matching Request out of X0-X5 and mem, Dispatch
// it, then copy any out-parameters (a receiver's sender-TID word, an
// unread-klog count) back into mem. This is the glue spec.md §9's
// sum-type design note assumes exists but leaves to the entry path —
// without it Request/Dispatch has no caller outside tests that build a
// Request by hand.
func (k *Kernel) HandleSyscall(callerTid int, mem Memory) {
	t := k.table.get(callerTid)
	if t == nil {
		return
	}
	req, postDispatch := decodeRequest(&t.Context, mem)
	k.Dispatch(callerTid, req)
	if postDispatch != nil {
		postDispatch()
	}
}

// decodeRequest reads f's syscall number and argument registers,
// building the Request variant SysCreate..SysToggleIdleDisplay names.
// Pointer-valued arguments (a message buffer, a reply buffer, a
// sender-TID out-word) are resolved through mem rather than dereferenced
// directly, since this is host-simulated Go code with no raw address
// space of its own — mem stands in for the single flat physical address
// space the real kernel and its tasks already share with no MMU between
// them. The returned func, when non-nil, must run after Dispatch to
// flush any out-parameter Dispatch wrote into a Go-side local back into
// mem at the address the syscall's caller actually passed.
func decodeRequest(f *arm64.Frame, mem Memory) (Request, func()) {
	switch SyscallNumber(f.SyscallNumber()) {
	case SysCreate:
		return CreateReq{Priority: int(int32(f.Arg(0))), Entry: f.Arg(1)}, nil

	case SysMyTid:
		return MyTidReq{}, nil

	case SysMyParentTid:
		return MyParentTidReq{}, nil

	case SysYield:
		return YieldReq{}, nil

	case SysExit:
		return ExitReq{}, nil

	case SysSend:
		tid := int(int32(f.Arg(0)))
		msg := mem.Bytes(f.Arg(1), int(f.Arg(2)))
		reply := mem.Bytes(f.Arg(3), int(f.Arg(4)))
		return SendReq{Tid: tid, Msg: msg, Reply: reply}, nil

	case SysReceive:
		tidAddr := f.Arg(0)
		buf := mem.Bytes(f.Arg(1), int(f.Arg(2)))
		var tidOut int
		return ReceiveReq{TidOut: &tidOut, Buf: buf}, func() { writeWord(mem, tidAddr, tidOut) }

	case SysReceiveNonBlock:
		tidAddr := f.Arg(0)
		buf := mem.Bytes(f.Arg(1), int(f.Arg(2)))
		var tidOut int
		return ReceiveNonBlockReq{TidOut: &tidOut, Buf: buf}, func() {
			// No sender queued leaves tidOut at NoTask; the caller's
			// out-word is then left untouched.
			if tidOut != NoTask {
				writeWord(mem, tidAddr, tidOut)
			}
		}

	case SysReply:
		tid := int(int32(f.Arg(0)))
		reply := mem.Bytes(f.Arg(1), int(f.Arg(2)))
		return ReplyReq{Tid: tid, Reply: reply}, nil

	case SysWaitTid:
		return WaitTidReq{Tid: int(int32(f.Arg(0)))}, nil

	case SysKill:
		return KillReq{Tid: int(int32(f.Arg(0))), KillChildren: f.Arg(1) != 0}, nil

	case SysAwaitEvent:
		return AwaitEventReq{EventID: EventID(f.Arg(0))}, nil

	case SysSetupIdleTask:
		return SetupIdleTaskReq{WindowMicros: f.Arg(0)}, nil

	case SysKlog:
		msg := mem.Bytes(f.Arg(1), int(f.Arg(2)))
		return KlogReq{Level: klog.Level(f.Arg(0)), Msg: string(msg)}, nil

	case SysPanic:
		msg := mem.Bytes(f.Arg(0), int(f.Arg(1)))
		return PanicReq{Msg: string(msg)}, nil

	case SysReboot:
		return RebootReq{}, nil

	case SysGetUnreadKlogs:
		buf := mem.Bytes(f.Arg(0), int(f.Arg(1)))
		entriesAddr := f.Arg(2)
		var entries int
		return GetUnreadKlogsReq{Buf: buf, Entries: &entries}, func() { writeWord(mem, entriesAddr, entries) }

	case SysGetTaskInfo:
		buf := mem.Bytes(f.Arg(0), int(f.Arg(1)))
		return GetTaskInfoReq{Buf: buf}, nil

	case SysToggleIdleDisplay:
		return ToggleIdleDisplayReq{}, nil

	default:
		// An unrecognized syscall number decodes to no Request at all;
		// Dispatch's own default case turns that into a panic, the same
		// place an unrecognized SYS_* would land in the original kernel.
		return nil, nil
	}
}

// writeWord stores v as a little-endian 32-bit word at addr, the
// out-parameter convention decodeRequest uses for every pointer the
// kernel writes through rather than reads. A zero address (the caller
// passed no out-pointer) or an out-of-range one is silently skipped,
// matching how these out-pointers are genuinely optional in spec
// section 6's syscall tables.
func writeWord(mem Memory, addr uint64, v int) {
	if addr == 0 {
		return
	}
	b := mem.Bytes(addr, 4)
	if len(b) < 4 {
		return
	}
	binary.LittleEndian.PutUint32(b, uint32(v))
}
