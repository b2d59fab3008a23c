package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElioCheng/choochoo/pkg/board/sim"
	"github.com/ElioCheng/choochoo/pkg/kernel/kerr"
	"github.com/ElioCheng/choochoo/pkg/klog"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	clock := sim.NewClock()
	k := New(clock, klog.NewRing(klog.LevelDebug))
	idleTid, err := k.Create(0, MaxPriorities-1, 0)
	require.NoError(t, err)
	require.NoError(t, k.SetupIdleTask(idleTid, 0))
	return k
}

// countReady sums every priority level's ready-queue length by
// walking the linkage directly, for the Σ(ready)+Σ(blocked)+Active ==
// Σ(live) invariant spec section 8 names.
func countReady(k *Kernel) int {
	n := 0
	for p := 0; p < MaxPriorities; p++ {
		for tid := k.sched.readyHead[p]; tid != NoTask; {
			n++
			tid = k.table.get(tid).readyNext
		}
	}
	return n
}

func countBlocked(k *Kernel) int {
	n := 0
	for tid := k.sched.blockedHead; tid != NoTask; {
		n++
		tid = k.table.get(tid).blockedNext
	}
	return n
}

func countLive(k *Kernel) int {
	n := 0
	for tid := 1; tid < MaxTasks; tid++ {
		if k.table.get(tid) != nil {
			n++
		}
	}
	return n
}

func assertTaskCountInvariant(t *testing.T, k *Kernel) {
	t.Helper()
	active := 0
	if k.sched.current != NoTask {
		active = 1
	}
	assert.Equal(t, countLive(k), countReady(k)+countBlocked(k)+active)
}

// assertBitmapInvariant checks priority_bitmap[p] is set iff
// ready_queues[p] is non-empty, for every priority level.
func assertBitmapInvariant(t *testing.T, k *Kernel) {
	t.Helper()
	for p := 0; p < MaxPriorities; p++ {
		bitSet := k.sched.bitmap[p/32]&(1<<uint(p%32)) != 0
		nonEmpty := k.sched.readyHead[p] != NoTask
		assert.Equalf(t, nonEmpty, bitSet, "priority %d: ready head present=%v bitmap bit=%v", p, nonEmpty, bitSet)
	}
}

func TestEnqueueReadyIdempotent(t *testing.T) {
	k := newTestKernel(t)
	tid, err := k.Create(0, 5, 0)
	require.NoError(t, err)
	task := k.table.get(tid)

	k.enqueueReadyLocked(task)
	head, tail := k.sched.readyHead[5], k.sched.readyTail[5]

	k.enqueueReadyLocked(task)
	assert.Equal(t, head, k.sched.readyHead[5])
	assert.Equal(t, tail, k.sched.readyTail[5])
}

func TestBlockUnblockRoundTrip(t *testing.T) {
	k := newTestKernel(t)
	a, err := k.Create(0, 5, 0)
	require.NoError(t, err)
	b, err := k.Create(0, 5, 0)
	require.NoError(t, err)

	taskA := k.table.get(a)
	k.blockLocked(taskA, BlockAwaitEvent)
	k.unblockLocked(taskA)

	assert.Equal(t, k.sched.readyTail[5], a, "a should be re-enqueued at the tail behind b")
	assert.Equal(t, b, k.sched.readyHead[5])
}

func TestFIFOWithinPriority(t *testing.T) {
	k := newTestKernel(t)
	a, _ := k.Create(0, 5, 0)
	b, _ := k.Create(0, 5, 0)
	c, _ := k.Create(0, 5, 0)

	// One Schedule picks the first task; each Yield then makes exactly
	// one further pick, so every recorded TID is a single scheduling pick.
	var picks []int
	k.Schedule()
	for i := 0; i < 4; i++ {
		picks = append(picks, k.CurrentTID())
		k.Yield()
	}

	assert.Equal(t, []int{a, b, c, a}, picks)
}

func TestPriorityPreemptionViaIPC(t *testing.T) {
	k := newTestKernel(t)
	h, _ := k.Create(0, 0, 0)
	l, _ := k.Create(0, 5, 0)

	var senderTid int
	recvBuf := make([]byte, 4)
	n, blocked, err := k.Receive(h, &senderTid, recvBuf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, blocked, "no sender queued yet, so the receiver actually blocked")

	replyBuf := make([]byte, 4)
	err = k.Send(l, h, []byte("x"), replyBuf)
	require.NoError(t, err)
	k.Schedule() // Send's caller returns through the scheduler, same as Dispatch would do

	hTask := k.table.get(h)
	lTask := k.table.get(l)
	assert.Equal(t, Active, hTask.State, "h is the highest-priority Ready task once unblocked, so Schedule activates it")
	assert.Equal(t, Blocked, lTask.State)
	assert.Equal(t, BlockIPCReply, lTask.Reason)
	assert.Equal(t, l, senderTid)
	assert.Equal(t, "x", string(recvBuf[:1]))

	copied, err := k.Reply(h, l, []byte("yyyy"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), copied)
	assert.Equal(t, Ready, lTask.State)
	assert.Equal(t, int64(4), lTask.Context.Result())
	assert.Equal(t, "yyyy", string(replyBuf))
}

func TestSenderQueueOrder(t *testing.T) {
	k := newTestKernel(t)
	r, _ := k.Create(0, 5, 0)
	s1, _ := k.Create(0, 5, 0)
	s2, _ := k.Create(0, 5, 0)
	s3, _ := k.Create(0, 5, 0)

	require.NoError(t, k.Send(s1, r, []byte("1"), make([]byte, 1)))
	require.NoError(t, k.Send(s2, r, []byte("2"), make([]byte, 1)))
	require.NoError(t, k.Send(s3, r, []byte("3"), make([]byte, 1)))

	var order []int
	for i := 0; i < 3; i++ {
		var tidOut int
		buf := make([]byte, 1)
		_, blocked, err := k.Receive(r, &tidOut, buf)
		require.NoError(t, err)
		require.False(t, blocked, "a sender was already queued")
		order = append(order, tidOut)
	}

	assert.Equal(t, []int{s1, s2, s3}, order)
}

func TestWaitTidAllWake(t *testing.T) {
	k := newTestKernel(t)
	c, _ := k.Create(0, 5, 0)
	w1, _ := k.Create(0, 5, 0)
	w2, _ := k.Create(0, 5, 0)

	_, err := k.WaitTid(w1, c)
	require.NoError(t, err)
	_, err = k.WaitTid(w2, c)
	require.NoError(t, err)

	w1Task, w2Task := k.table.get(w1), k.table.get(w2)
	assert.Equal(t, Blocked, w1Task.State)
	assert.Equal(t, Blocked, w2Task.State)

	k.Exit(c)

	assert.Equal(t, Ready, w1Task.State)
	assert.Equal(t, Ready, w2Task.State)
	assert.Equal(t, int64(0), w1Task.Context.Result())
	assert.Equal(t, int64(0), w2Task.Context.Result())
	assert.Nil(t, k.table.get(c), "c's slot is freed by Exit")
}

func TestAwaitEventFanOut(t *testing.T) {
	k := newTestKernel(t)
	tids := make([]int, 4)
	for i := range tids {
		tids[i], _ = k.Create(0, 5, 0)
		require.NoError(t, k.AwaitEvent(tids[i], EventTimerTick))
	}

	k.DeliverEvent(EventTimerTick, 42)

	for _, tid := range tids {
		task := k.table.get(tid)
		assert.Equal(t, Ready, task.State)
		assert.Equal(t, int64(42), task.Context.Result())
	}

	// A waiter registered after delivery must wait for the next IRQ.
	late, _ := k.Create(0, 5, 0)
	require.NoError(t, k.AwaitEvent(late, EventTimerTick))
	assert.Equal(t, Blocked, k.table.get(late).State)
}

func TestTruncationReporting(t *testing.T) {
	k := newTestKernel(t)
	sender, _ := k.Create(0, 5, 0)
	receiver, _ := k.Create(0, 5, 0)

	var tidOut int
	recvBuf := make([]byte, 4)
	_, blocked, err := k.Receive(receiver, &tidOut, recvBuf)
	require.NoError(t, err)
	require.True(t, blocked)

	replyBuf := make([]byte, 2)
	require.NoError(t, k.Send(sender, receiver, []byte("0123456789"), replyBuf))

	recvTask := k.table.get(receiver)
	assert.Equal(t, int64(10), recvTask.Context.Result(), "receiver's return value is the source length")
	assert.Equal(t, "0123", string(recvBuf))

	copied, err := k.Reply(receiver, sender, []byte("01234567"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), copied, "replier observes the copied length")

	senderTask := k.table.get(sender)
	assert.Equal(t, int64(8), senderTask.Context.Result(), "sender observes the reply source length")
	assert.Equal(t, "01", string(replyBuf))
}

func TestCreateRejectsInvalidPriority(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.Create(0, MaxPriorities, 0)
	assert.Equal(t, kerr.EInvalid, err)
	_, err = k.Create(0, -1, 0)
	assert.Equal(t, kerr.EInvalid, err)
}

func TestCreateExhaustsTaskTable(t *testing.T) {
	k := newTestKernel(t) // one slot already used by the idle task
	for i := 0; i < MaxTasks-2; i++ {
		_, err := k.Create(0, 5, 0)
		require.NoError(t, err)
	}
	_, err := k.Create(0, 5, 0)
	assert.Equal(t, kerr.EState, err)
}

func TestWaitTidRejectsSelfWait(t *testing.T) {
	k := newTestKernel(t)
	a, _ := k.Create(0, 5, 0)
	_, err := k.WaitTid(a, a)
	assert.Equal(t, kerr.EState, err)
}

func TestKillRejectsSelfKill(t *testing.T) {
	k := newTestKernel(t)
	a, _ := k.Create(0, 5, 0)
	err := k.Kill(a, a, false)
	assert.Equal(t, kerr.EState, err)
}

func TestWaitTidOnDestroyedTidIsEInvalid(t *testing.T) {
	k := newTestKernel(t)
	caller, _ := k.Create(0, 5, 0)
	_, err := k.WaitTid(caller, MaxTasks-1) // never allocated
	assert.Equal(t, kerr.EInvalid, err)

	target, _ := k.Create(0, 5, 0)
	k.Exit(target) // destroyed
	_, err = k.WaitTid(caller, target)
	assert.Equal(t, kerr.EInvalid, err)
}

func TestKillChildrenRecursive(t *testing.T) {
	k := newTestKernel(t)
	parent, _ := k.Create(0, 5, 0)
	child, _ := k.Create(parent, 5, 0)
	grandchild, _ := k.Create(child, 5, 0)

	root, _ := k.Create(0, 5, 0)
	require.NoError(t, k.Kill(root, parent, true))

	assert.Nil(t, k.table.get(parent))
	assert.Nil(t, k.table.get(child))
	assert.Nil(t, k.table.get(grandchild))
}

func TestReceiveNonBlockReturnsEInvalidWhenEmpty(t *testing.T) {
	k := newTestKernel(t)
	r, _ := k.Create(0, 5, 0)
	var tidOut int
	_, err := k.ReceiveNonBlock(r, &tidOut, make([]byte, 4))
	assert.Equal(t, kerr.EInvalid, err)
}

func TestReplyRejectsWrongState(t *testing.T) {
	k := newTestKernel(t)
	a, _ := k.Create(0, 5, 0)
	b, _ := k.Create(0, 5, 0)
	_, err := k.Reply(a, b, []byte("x"))
	assert.Equal(t, kerr.EState, err)
}

func TestIdleAccounting(t *testing.T) {
	k := newTestKernel(t)
	clock := k.clock.(*sim.Clock)

	worker, _ := k.Create(0, 5, 0)
	k.Schedule() // activates worker (higher priority than idle)

	// First idle span: 500ms -> 1s. updatePercentage's first call only
	// primes the measurement window (idle.c's behavior on the first
	// window boundary it ever sees), so no percentage is published yet.
	clock.Advance(500_000)
	k.blockLocked(k.table.get(worker), BlockAwaitEvent)
	k.Schedule() // switches to idle, starts accounting
	clock.Advance(500_000)
	k.unblockLocked(k.table.get(worker))
	k.Schedule() // switches back to worker, stops accounting
	assert.Zero(t, k.IdlePercentage())

	// Second idle span: 1.5s -> 2s. Total elapsed since the primed
	// window (1s) reaches the 1s window size, so this stopAccounting
	// call publishes idleInWindow(500ms) / elapsed(1s) == 50%.
	clock.Advance(500_000)
	k.blockLocked(k.table.get(worker), BlockAwaitEvent)
	k.Schedule()
	clock.Advance(500_000)
	k.unblockLocked(k.table.get(worker))
	k.Schedule()

	assert.Equal(t, uint32(50), k.IdlePercentage())
}

func TestToggleIdleDisplay(t *testing.T) {
	k := newTestKernel(t)
	assert.True(t, k.idle.DisplayEnabled())
	assert.False(t, k.ToggleIdleDisplay())
	assert.True(t, k.ToggleIdleDisplay())
}

func TestGetTaskInfoReportsLiveTasks(t *testing.T) {
	k := newTestKernel(t)
	tid, _ := k.Create(0, 7, 0)
	buf := make([]byte, 4096)
	n := k.GetTaskInfo(buf)
	require.Greater(t, n, int64(0))
	dump := string(buf[:n])
	assert.Contains(t, dump, "TASK TABLE DUMP")
	assert.Contains(t, dump, "priority=7")
	_ = tid
}

func TestGetUnreadKlogsConsumesOnce(t *testing.T) {
	k := newTestKernel(t)
	k.Log.Emitf(klog.LevelInfo, "hello")
	buf := make([]byte, 256)
	n, entries := k.GetUnreadKlogs(buf)
	require.Greater(t, entries, 0)
	require.Greater(t, n, int64(0))

	n2, entries2 := k.GetUnreadKlogs(buf)
	assert.Zero(t, entries2)
	assert.Zero(t, n2)
}

func TestInvariantsHoldAcrossFIFOSchedulingRun(t *testing.T) {
	k := newTestKernel(t)
	k.Create(0, 5, 0)
	k.Create(0, 5, 0)
	k.Create(0, 5, 0)

	for i := 0; i < 10; i++ {
		k.Schedule()
		assertBitmapInvariant(t, k)
		assertTaskCountInvariant(t, k)
		k.Yield()
	}
}

func TestSchedulePanicsWithNoReadyTasks(t *testing.T) {
	clock := sim.NewClock()
	k := New(clock, klog.NewRing(klog.LevelNone))
	assert.Panics(t, func() { k.Schedule() })
}

func TestKillOnUnknownTidIsEInvalid(t *testing.T) {
	k := newTestKernel(t)
	a, _ := k.Create(0, 5, 0)
	err := k.Kill(a, 999, false)
	assert.ErrorIs(t, err, kerr.EInvalid)
}

// TestHandleSyscallCreateViaFrame drives Create through the full
// decode-then-Dispatch path instead of calling the Kernel method
// directly, exercising the Request/Dispatch machinery spec.md §9's
// sum-type design note names — a caller's register frame, not a
// hand-built Req struct, is what produces the Request here.
func TestHandleSyscallCreateViaFrame(t *testing.T) {
	k := newTestKernel(t)
	caller, _ := k.Create(0, 5, 0)

	mem := make(FlatMemory, 64)
	frame := &k.table.get(caller).Context
	frame.R[8] = uint64(SysCreate)
	frame.R[0] = uint64(3) // priority
	frame.R[1] = 0x1000    // entry

	k.HandleSyscall(caller, mem)

	newTid := int(frame.Result())
	require.Greater(t, newTid, 0)
	child := k.table.get(newTid)
	require.NotNil(t, child)
	assert.Equal(t, 3, child.Priority)
	assert.Equal(t, caller, child.ParentTID)
}

// TestHandleSyscallSendReceiveViaFrame runs a full Send/Receive/Reply
// round trip with every buffer and out-pointer resolved through a
// shared FlatMemory rather than Go slices a test built by hand,
// confirming the frame-decode glue wires pointer arguments to the same
// memory a real syscall's caller and callee would share.
func TestHandleSyscallSendReceiveViaFrame(t *testing.T) {
	k := newTestKernel(t)
	sender, _ := k.Create(0, 5, 0)
	receiver, _ := k.Create(0, 5, 0)

	mem := make(FlatMemory, 256)
	copy(mem[0:5], "hello")

	// Receiver issues ReceiveNonBlock first; no sender queued yet, so
	// it must report EInvalid without touching the tid-out word.
	rf := &k.table.get(receiver).Context
	rf.R[8] = uint64(SysReceiveNonBlock)
	rf.R[0] = 100 // tidOut address
	rf.R[1] = 128 // buf address
	rf.R[2] = 16  // buf length
	binary.LittleEndian.PutUint32(mem[100:104], 0xDEADBEEF)
	k.HandleSyscall(receiver, mem)
	assert.Equal(t, kerr.EInvalid.Int64(), rf.Result())

	// Sender issues Send with msg at [0:5) and a reply buffer at
	// [64:80); it blocks on IpcReply so its result register is
	// untouched by Dispatch itself.
	sf := &k.table.get(sender).Context
	sf.R[8] = uint64(SysSend)
	sf.R[0] = uint64(receiver)
	sf.R[1] = 0  // msg address
	sf.R[2] = 5  // msg length
	sf.R[3] = 64 // reply address
	sf.R[4] = 16 // reply length
	k.HandleSyscall(sender, mem)

	// Receiver issues Receive; a sender is now queued so it must not
	// block, and the tid-out word at address 100 must be flushed back
	// into mem by HandleSyscall's post-dispatch step.
	rf.R[8] = uint64(SysReceive)
	rf.R[0] = 100
	rf.R[1] = 128
	rf.R[2] = 16
	k.HandleSyscall(receiver, mem)
	assert.Equal(t, int64(5), rf.Result())
	assert.Equal(t, "hello", string(mem[128:133]))
	assert.Equal(t, uint32(sender), binary.LittleEndian.Uint32(mem[100:104]))

	// Receiver replies; sender's result is the reply's source length,
	// receiver's own result is the copied length — the asymmetry
	// ipc.go's Reply preserves.
	copy(mem[144:150], "world!")
	rf.R[8] = uint64(SysReply)
	rf.R[0] = uint64(sender)
	rf.R[1] = 144
	rf.R[2] = 6
	k.HandleSyscall(receiver, mem)
	assert.Equal(t, int64(6), rf.Result())
	assert.Equal(t, int64(6), sf.Result())
	assert.Equal(t, "world!", string(mem[64:70]))
}
