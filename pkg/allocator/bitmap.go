// Package allocator provides fixed IP allocation for subnets.
//
// Addresses are tracked in a bitmap, one bit per usable address of the
// subnet. The model store rebuilds an allocator from the addresses already
// stored for a subnet whenever a port asks for an address, so allocators are
// short lived and never persisted.
//
// Reference: OVN-Kubernetes pkg/allocator/bitmap/bitmap.go
package allocator

import (
	"fmt"
	"math/bits"
)

// Bitmap tracks which indexes in [0, size) are taken. It is not safe for
// concurrent use; SubnetAllocator serializes access.
type Bitmap struct {
	words     []uint64
	size      int
	allocated int
}

// NewBitmap creates an empty bitmap of size bits
func NewBitmap(size int) *Bitmap {
	return &Bitmap{
		words: make([]uint64, (size+63)/64),
		size:  size,
	}
}

func (b *Bitmap) check(index int) error {
	if index < 0 || index >= b.size {
		return fmt.Errorf("index %d out of range [0, %d)", index, b.size)
	}
	return nil
}

// Set marks index as taken
func (b *Bitmap) Set(index int) error {
	if err := b.check(index); err != nil {
		return err
	}
	w, mask := index/64, uint64(1)<<(index%64)
	if b.words[w]&mask != 0 {
		return fmt.Errorf("bit %d is already set", index)
	}
	b.words[w] |= mask
	b.allocated++
	return nil
}

// Clear marks index as free. Clearing a free index is a no-op.
func (b *Bitmap) Clear(index int) error {
	if err := b.check(index); err != nil {
		return err
	}
	w, mask := index/64, uint64(1)<<(index%64)
	if b.words[w]&mask != 0 {
		b.words[w] &^= mask
		b.allocated--
	}
	return nil
}

// IsSet reports whether index is taken; out of range indexes are not
func (b *Bitmap) IsSet(index int) bool {
	if b.check(index) != nil {
		return false
	}
	return b.words[index/64]&(uint64(1)<<(index%64)) != 0
}

// FirstClear returns the lowest free index, or -1 when every bit is set
func (b *Bitmap) FirstClear() int {
	for w, word := range b.words {
		if word == ^uint64(0) {
			continue
		}
		index := w*64 + bits.TrailingZeros64(^word)
		if index >= b.size {
			return -1
		}
		return index
	}
	return -1
}

// Size returns the number of bits
func (b *Bitmap) Size() int {
	return b.size
}

// Allocated returns the number of set bits
func (b *Bitmap) Allocated() int {
	return b.allocated
}

// Available returns the number of clear bits
func (b *Bitmap) Available() int {
	return b.size - b.allocated
}
