package kernel

// Static sizing for the kernel's fixed-size tables. Spec section 1
// rules out dynamic allocation in the kernel; every table below is a
// fixed-size Go array, sized at compile time, never grown.
const (
	// MaxTasks bounds the task table (and, one-to-one, the stack
	// slab). TID 0 is reserved, so valid TIDs run [1, MaxTasks).
	MaxTasks = 64

	// MaxPriorities bounds ready-queue levels; 0 is highest priority.
	MaxPriorities = 32

	// priorityBitmapWords is ceil(MaxPriorities/32), per spec section
	// 3's Priority bitmap.
	priorityBitmapWords = (MaxPriorities + 31) / 32

	// TaskStackSize is the fixed per-task stack slab slice size.
	TaskStackSize = 16 * 1024

	// NoTask is the sentinel TID meaning "no task": the ParentTID of
	// the first task, and the value every intrusive-linkage field
	// (ready/blocked/sender queue next/prev) holds when it names no
	// task. TID 0 is reserved and never allocated, so it is safe to
	// reuse as the "no link" sentinel for index fields too.
	NoTask = 0
)
