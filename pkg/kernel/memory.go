package kernel

// Memory is the flat, unprotected address space a "pointer" syscall
// argument indexes into. The original kernel runs AArch64 EL0 and EL1
// in one physical address space with no MMU, so a pointer argument in
// X0-X5 is simply an address the kernel can already read and write
// directly — no copy-in/copy-out boundary to cross. Memory models that
// for a host-simulated board: FlatMemory is the one implementation this
// rewrite ships, a single contiguous byte slice addressed from zero.
type Memory interface {
	// Bytes returns a mutable view of length bytes starting at addr.
	// Writes to the returned slice are visible to later Bytes calls
	// over the same range. An out-of-range request returns nil.
	Bytes(addr uint64, length int) []byte
}

// FlatMemory is a Memory backed by a single contiguous byte slice,
// addressed from zero — the simplest possible stand-in for the
// original's single flat physical address space.
type FlatMemory []byte

func (m FlatMemory) Bytes(addr uint64, length int) []byte {
	if length <= 0 {
		return nil
	}
	if addr > uint64(len(m)) || int64(length) > int64(len(m))-int64(addr) {
		return nil
	}
	return m[addr : addr+uint64(length)]
}
