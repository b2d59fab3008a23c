package kernel

import (
	"fmt"
	"strings"
)

// GetTaskInfo formats a snapshot of every live task into buf, truncated
// to len(buf), and returns the number of bytes written — mirroring
// task_format_info/syscall_get_task_info's "best-effort, truncates into
// the caller's buffer, returns bytes written" contract. Unlike the
// original's fixed-size scratch buffer, a table dump that would not fit
// is simply cut short rather than rejected outright.
func (k *Kernel) GetTaskInfo(buf []byte) int64 {
	var b strings.Builder
	fmt.Fprintf(&b, "=== TASK TABLE DUMP ===\n")
	fmt.Fprintf(&b, "Current Task: %d\n", k.sched.current)

	for tid := 1; tid < MaxTasks; tid++ {
		t := k.table.get(tid)
		if t == nil {
			continue
		}
		if t.State == Blocked {
			fmt.Fprintf(&b, "tid=%d priority=%d state=%s reason=%s\n", t.TID, t.Priority, t.State, t.Reason)
		} else {
			fmt.Fprintf(&b, "tid=%d priority=%d state=%s\n", t.TID, t.Priority, t.State)
		}
	}

	return int64(copy(buf, b.String()))
}

// GetUnreadKlogs copies every log entry the caller has not yet consumed
// into buf, truncated to len(buf). It returns the bytes written and the
// number of whole entries consumed, the same two values
// syscall_get_unread_klogs reports via its return value and its
// num_entries out-parameter.
func (k *Kernel) GetUnreadKlogs(buf []byte) (int64, int) {
	n, entries := k.Log.ReadUnread(buf)
	return int64(n), entries
}

// ToggleIdleDisplay flips whether the idle-CPU percentage is shown and
// returns the new value, matching syscall_toggle_idle_display.
func (k *Kernel) ToggleIdleDisplay() bool {
	return k.idle.ToggleDisplay()
}
