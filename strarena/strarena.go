// Package strarena implements a bump arena and string utilities for
// short-lived build-up allocation: statement construction and filter
// compilation, a growable string builder with a hard ceiling, and a
// secure-wipe helper for strings that have ever held a password.
//
// Built as small structs with explicit error returns and no interfaces
// where a struct suffices, since nothing pools allocations this way
// elsewhere in the module.
package strarena

import (
	"fmt"
)

// DefaultBlockSize is a new arena block's size absent an override.
const DefaultBlockSize = 64 * 1024

// block is one linked allocation unit; Arena bumps off forward within buf
// until it no longer fits, then links a new block.
type block struct {
	buf []byte
	off int
}

// Arena is a bump allocator over a chain of blocks. Zero value is not
// usable; construct with New.
type Arena struct {
	blockSize int
	blocks    []*block
}

// New returns an Arena whose blocks are sized blockSize, or DefaultBlockSize
// if blockSize <= 0.
func New(blockSize int) *Arena {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Arena{blockSize: blockSize}
}

// alignUp rounds off up to the next multiple of align (a power of two),
// returning an error instead of silently wrapping if the rounding would
// overflow int.
func alignUp(off, align int) (int, error) {
	if align <= 0 {
		align = 1
	}
	mask := align - 1
	if off > int(^uint(0)>>1)-mask {
		return 0, fmt.Errorf("strarena: align_up overflow (off=%d align=%d)", off, align)
	}
	return (off + mask) &^ mask, nil
}

// Alloc returns n bytes aligned to align (a power of two; 1 or 0 for no
// alignment requirement) from the arena, allocating a new block if the
// current one doesn't have room. The returned slice's contents are
// zeroed.
func (a *Arena) Alloc(n, align int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("strarena: negative allocation size %d", n)
	}

	if len(a.blocks) > 0 {
		b := a.blocks[len(a.blocks)-1]
		start, err := alignUp(b.off, align)
		if err == nil && start+n <= len(b.buf) {
			b.off = start + n
			s := b.buf[start : start+n]
			clear(s) // space reused after Rollback or Reset may hold old bytes
			return s, nil
		}
	}

	size := a.blockSize
	if n > size {
		size = n
	}
	nb := &block{buf: make([]byte, size)}
	start, err := alignUp(0, align)
	if err != nil {
		return nil, err
	}
	if start+n > len(nb.buf) {
		return nil, fmt.Errorf("strarena: allocation of %d bytes exceeds block capacity", n)
	}
	nb.off = start + n
	a.blocks = append(a.blocks, nb)
	return nb.buf[start : start+n], nil
}

// AllocString copies s into the arena and returns a new string backed by
// that copy, so repeated short-lived statement fragments don't each incur
// their own heap allocation outside the arena's blocks.
func (a *Arena) AllocString(s string) (string, error) {
	buf, err := a.Alloc(len(s), 1)
	if err != nil {
		return "", err
	}
	copy(buf, s)
	return string(buf), nil
}

// Snapshot marks a point in the arena's allocation history that Rollback
// can return to.
type Snapshot struct {
	blockCount int
	off        int
}

// Snapshot records the arena's current allocation point.
func (a *Arena) Snapshot() Snapshot {
	if len(a.blocks) == 0 {
		return Snapshot{}
	}
	return Snapshot{blockCount: len(a.blocks), off: a.blocks[len(a.blocks)-1].off}
}

// Rollback discards every allocation made since s was taken: blocks
// allocated afterward are dropped, and the block live at snapshot time has
// its bump pointer rewound, allowing a caller to snapshot before a scoped
// computation and roll back only that scope's allocations.
func (a *Arena) Rollback(s Snapshot) {
	if s.blockCount == 0 {
		a.blocks = nil
		return
	}
	if s.blockCount > len(a.blocks) {
		return // snapshot from an arena that has since been reset; nothing to do
	}
	a.blocks = a.blocks[:s.blockCount]
	a.blocks[s.blockCount-1].off = s.off
}

// Reset discards every allocation, retaining the first block's backing
// array for reuse.
func (a *Arena) Reset() {
	if len(a.blocks) == 0 {
		return
	}
	first := a.blocks[0]
	first.off = 0
	a.blocks = a.blocks[:1]
}
