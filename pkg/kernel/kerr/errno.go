// Package kerr defines the small negative return codes that are the
// only error surface user tasks ever observe (spec section "User-
// reported errors"). Kernel-bug conditions never produce a kerr.Errno
// — they go through Kernel.Panic instead.
package kerr

import "fmt"

// Errno is a syscall-layer error code. Its numeric value is exactly
// what ends up in the caller's result register, so Errno values are
// small and negative by convention, the same as the original C
// kernel's syscall_* functions returning -1/-2.
type Errno int64

func (e Errno) Error() string {
	return fmt.Sprintf("choochoo: errno %d", int64(e))
}

// Int64 returns the value to write into a syscall result register.
func (e Errno) Int64() int64 { return int64(e) }

const (
	// EInvalid covers a bad TID, an out-of-range priority, or an
	// unrecognized event id — whatever the first positional argument
	// to the call identifies as invalid.
	EInvalid Errno = -1

	// EState covers "right TID, wrong state": no free task slot, a
	// Reply target not blocked on us, or waiting/killing oneself.
	EState Errno = -2
)
