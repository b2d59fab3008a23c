package kernel

import "github.com/ElioCheng/choochoo/pkg/kernel/kerr"

// table is the fixed-size task array plus its TID allocator and stack
// slab, grounded on task.c's task_table/task_id_used/stack_allocated
// triple. TIDs are allocated linearly from 1 upward (index == TID);
// TID 0 is never assigned to a task.
type table struct {
	tasks          [MaxTasks]Task
	used           [MaxTasks]bool
	stackAllocated [MaxTasks]bool
	lastAllocated  int
}

func newTable() *table {
	t := &table{}
	for i := range t.tasks {
		t.tasks[i] = freshTask(i)
	}
	return t
}

// get returns the task record for tid, or nil if tid is out of range
// or not a live task. The returned pointer must not be retained past
// the next Destroy of the same tid (spec section 3: "pointers to the
// task must not survive Destroy").
func (t *table) get(tid int) *Task {
	if tid <= NoTask || tid >= MaxTasks || !t.used[tid] {
		return nil
	}
	return &t.tasks[tid]
}

// allocate finds a free TID/stack pair, marks both in use, and
// returns a zeroed task record for it. Matches task_alloc_tid's
// linear scan starting just after the last allocated id.
func (t *table) allocate() (*Task, error) {
	const space = MaxTasks - 1 // valid TIDs are [1, MaxTasks)
	for offset := 1; offset <= space; offset++ {
		candidate := (t.lastAllocated-1+offset)%space + 1
		if !t.used[candidate] {
			t.used[candidate] = true
			t.stackAllocated[candidate] = true
			t.lastAllocated = candidate
			t.tasks[candidate] = freshTask(candidate)
			t.tasks[candidate].valid = true
			t.tasks[candidate].StackBase = uint64(candidate) * TaskStackSize
			t.tasks[candidate].StackSize = TaskStackSize
			return &t.tasks[candidate], nil
		}
	}
	return nil, kerr.EState
}

// free returns tid's slot and stack to the pool. The task record is
// left zeroed so no stale pointer content (send/receive buffers,
// context) can leak to the next occupant of the slot.
func (t *table) free(tid int) {
	if tid <= NoTask || tid >= MaxTasks {
		return
	}
	t.used[tid] = false
	t.stackAllocated[tid] = false
	t.tasks[tid] = freshTask(tid)
}
