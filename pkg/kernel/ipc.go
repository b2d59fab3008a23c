package kernel

import "github.com/ElioCheng/choochoo/pkg/kernel/kerr"

// Send implements the sender side of the SRR rendezvous (spec section
// 4.3). If the receiver is already blocked on Receive, the message is
// delivered immediately and the receiver is woken with the message
// length; otherwise the sender is queued on the receiver's sender
// list. Either way the sender itself blocks on IpcReply — Send never
// writes a return value, per the blocking-syscall contract.
func (k *Kernel) Send(senderTid, tid int, msg, reply []byte) error {
	sender := k.table.get(senderTid)
	if sender == nil {
		return kerr.EInvalid
	}
	receiver := k.table.get(tid)
	if receiver == nil {
		return kerr.EInvalid
	}

	sender.sendBuf = msg
	sender.replyBuf = reply

	if receiver.State == Blocked && receiver.Reason == BlockIPCReceive {
		k.deliverMessage(receiver, sender)
	} else {
		k.enqueueSender(receiver, sender)
	}

	k.blockLocked(sender, BlockIPCReply)
	return nil
}

// deliverMessage copies sender's message into receiver's buffer
// (truncated to min(len(msg), len(buf))), writes the sender's TID into
// the receiver's out-pointer, and wakes the receiver with the
// original (untruncated) message length as its return value — the
// truncation-detection asymmetry spec section 4.3 requires.
func (k *Kernel) deliverMessage(receiver, sender *Task) {
	copy(receiver.recvBuf, sender.sendBuf)
	if receiver.recvTIDPtr != nil {
		*receiver.recvTIDPtr = sender.TID
	}
	receiver.recvBuf = nil
	receiver.recvTIDPtr = nil
	receiver.Context.SetResult(int64(len(sender.sendBuf)))
	k.unblockLocked(receiver)
}

// enqueueSender appends sender to the tail of receiver's sender
// queue (receiver's ipc_sender_queue equivalent).
func (k *Kernel) enqueueSender(receiver, sender *Task) {
	sender.senderNext = NoTask
	sender.senderPrev = receiver.senderQueueTail
	sender.queuedOnReceiver = receiver.TID
	if receiver.senderQueueTail == NoTask {
		receiver.senderQueueHead = sender.TID
	} else {
		k.table.get(receiver.senderQueueTail).senderNext = sender.TID
	}
	receiver.senderQueueTail = sender.TID
}

// unlinkSender removes sender from whichever receiver's queue it is
// currently on, if any. Used by Kill so a killed sender doesn't leave
// a dangling entry behind.
func (k *Kernel) unlinkSender(sender *Task) {
	if sender.queuedOnReceiver == NoTask {
		return
	}
	receiver := k.table.get(sender.queuedOnReceiver)
	if sender.senderPrev != NoTask {
		k.table.get(sender.senderPrev).senderNext = sender.senderNext
	} else if receiver != nil && receiver.senderQueueHead == sender.TID {
		receiver.senderQueueHead = sender.senderNext
	}
	if sender.senderNext != NoTask {
		k.table.get(sender.senderNext).senderPrev = sender.senderPrev
	} else if receiver != nil && receiver.senderQueueTail == sender.TID {
		receiver.senderQueueTail = sender.senderPrev
	}
	sender.senderNext = NoTask
	sender.senderPrev = NoTask
	sender.queuedOnReceiver = NoTask
}

// receiveFromQueue dequeues the oldest sender on caller's sender
// queue (if any), copies its message into buf (truncated), and
// returns the original message length. The sender itself stays
// blocked on IpcReply until Reply is called.
func (k *Kernel) receiveFromQueue(caller *Task, tidOut *int, buf []byte) (int64, bool) {
	head := caller.senderQueueHead
	if head == NoTask {
		return 0, false
	}
	sender := k.table.get(head)
	k.unlinkSender(sender)

	if tidOut != nil {
		*tidOut = sender.TID
	}
	copy(buf, sender.sendBuf)
	return int64(len(sender.sendBuf)), true
}

// Receive implements the receiver side. If a sender is already
// queued, the message is consumed and the length returned
// immediately — the receiver never blocks in that case. Otherwise the
// receiver blocks on IpcReceive and Send's direct-delivery path will
// wake it later. The blocked return value distinguishes these two
// outcomes for a caller (Dispatch) that cannot otherwise tell a
// genuine zero-length delivered message (n==0, blocked==false) apart
// from "no sender yet, caller is now blocked" (n==0, blocked==true) —
// the exact collision spec.md §9's ReceiveNonBlock open question
// warns about, here on the blocking path instead.
func (k *Kernel) Receive(callerTid int, tidOut *int, buf []byte) (n int64, blocked bool, err error) {
	caller := k.table.get(callerTid)
	if caller == nil {
		return 0, false, kerr.EInvalid
	}
	if n, ok := k.receiveFromQueue(caller, tidOut, buf); ok {
		return n, false, nil
	}
	caller.recvBuf = buf
	caller.recvTIDPtr = tidOut
	k.blockLocked(caller, BlockIPCReceive)
	return 0, true, nil
}

// ReceiveNonBlock never blocks: it returns EInvalid immediately if no
// sender is queued, per spec section 6's table.
func (k *Kernel) ReceiveNonBlock(callerTid int, tidOut *int, buf []byte) (int64, error) {
	caller := k.table.get(callerTid)
	if caller == nil {
		return 0, kerr.EInvalid
	}
	if n, ok := k.receiveFromQueue(caller, tidOut, buf); ok {
		return n, nil
	}
	return 0, kerr.EInvalid
}

// Reply unblocks the sender named by tid, provided it is currently
// blocked on IpcReply from an outstanding Send. It copies
// min(len(reply), len(sender's reply buffer)) bytes and returns that
// actually-copied length to the replier, while the sender itself
// observes len(reply) (the source length) as its own return value —
// the deliberate asymmetry spec section 4.3 calls out for truncation
// detection on both sides.
func (k *Kernel) Reply(callerTid, tid int, reply []byte) (int64, error) {
	if k.table.get(callerTid) == nil {
		return 0, kerr.EInvalid
	}
	sender := k.table.get(tid)
	if sender == nil {
		return 0, kerr.EInvalid
	}
	if sender.State != Blocked || sender.Reason != BlockIPCReply {
		return 0, kerr.EState
	}

	copied := copy(sender.replyBuf, reply)

	sender.replyBuf = nil
	sender.sendBuf = nil
	sender.Context.SetResult(int64(len(reply)))
	k.unblockLocked(sender)

	return int64(copied), nil
}
