package allocator

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"
)

// MaxIPv6Window caps how many addresses of an IPv6 subnet are tracked.
// Allocation hands out the lowest free address, so the window is the
// front of the subnet.
const MaxIPv6Window = 1 << 16

// SubnetAllocator hands out addresses of one subnet.
//
// Allocation rules:
//   - The network address is never allocated
//   - The IPv4 broadcast address is never allocated
//   - Reserved addresses (gateway, addresses already stored) start taken
//   - The lowest free address is allocated first
type SubnetAllocator struct {
	mu sync.Mutex

	prefix netip.Prefix
	// first is the address at bitmap index 0: network address + 1
	first  uint128
	bitmap *Bitmap

	reserved map[netip.Addr]struct{}
}

// NewSubnetAllocator creates an allocator for cidr. Each reserved entry is
// an address or an inclusive "start-end" range; addresses outside the
// subnet are ignored.
func NewSubnetAllocator(cidr string, reserved ...string) (*SubnetAllocator, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}
	prefix = prefix.Masked()

	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	var size int
	if prefix.Addr().Is4() {
		// network and broadcast are not usable
		size = (1 << hostBits) - 2
	} else if hostBits >= 17 {
		size = MaxIPv6Window
	} else {
		size = (1 << hostBits) - 1
	}
	if size <= 0 {
		return nil, fmt.Errorf("subnet %s is too small for allocation", cidr)
	}

	a := &SubnetAllocator{
		prefix:   prefix,
		first:    fromAddr(prefix.Addr()).add(1),
		bitmap:   NewBitmap(size),
		reserved: make(map[netip.Addr]struct{}),
	}
	for _, r := range reserved {
		if err := a.reserve(r); err != nil {
			return nil, fmt.Errorf("invalid reserved address %q: %w", r, err)
		}
	}
	return a, nil
}

func (a *SubnetAllocator) reserve(spec string) error {
	start, end, isRange := strings.Cut(spec, "-")
	from, err := netip.ParseAddr(strings.TrimSpace(start))
	if err != nil {
		return err
	}
	to := from
	if isRange {
		if to, err = netip.ParseAddr(strings.TrimSpace(end)); err != nil {
			return err
		}
		if to.Less(from) {
			return fmt.Errorf("range end %s is before start %s", to, from)
		}
	}
	for addr := from; addr.IsValid() && !to.Less(addr); addr = addr.Next() {
		index, err := a.index(addr)
		if err != nil {
			continue
		}
		a.reserved[addr] = struct{}{}
		_ = a.bitmap.Set(index)
	}
	return nil
}

// AllocateNext allocates the lowest free address
func (a *SubnetAllocator) AllocateNext() (netip.Addr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	index := a.bitmap.FirstClear()
	if index == -1 {
		return netip.Addr{}, &SubnetExhaustedError{Subnet: a.prefix.String()}
	}
	if err := a.bitmap.Set(index); err != nil {
		return netip.Addr{}, fmt.Errorf("failed to allocate IP: %w", err)
	}
	return a.addr(index), nil
}

// Allocate claims a specific address
func (a *SubnetAllocator) Allocate(addr netip.Addr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	index, err := a.index(addr)
	if err != nil {
		return err
	}
	if a.bitmap.IsSet(index) {
		return &AddressInUseError{IP: addr.String()}
	}
	return a.bitmap.Set(index)
}

// Release frees an allocated address. Reserved addresses stay taken.
func (a *SubnetAllocator) Release(addr netip.Addr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.reserved[addr]; ok {
		return fmt.Errorf("cannot release reserved IP %s", addr)
	}
	index, err := a.index(addr)
	if err != nil {
		return err
	}
	return a.bitmap.Clear(index)
}

// IsAllocated reports whether addr is taken
func (a *SubnetAllocator) IsAllocated(addr netip.Addr) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	index, err := a.index(addr)
	if err != nil {
		return false
	}
	return a.bitmap.IsSet(index)
}

// Available returns the number of free addresses
func (a *SubnetAllocator) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bitmap.Available()
}

// Used returns the number of taken addresses, reserved ones included
func (a *SubnetAllocator) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bitmap.Allocated()
}

// Size returns the number of tracked addresses
func (a *SubnetAllocator) Size() int {
	return a.bitmap.Size()
}

// Prefix returns the subnet
func (a *SubnetAllocator) Prefix() netip.Prefix {
	return a.prefix
}

// index maps a usable address to its bitmap index
func (a *SubnetAllocator) index(addr netip.Addr) (int, error) {
	addr = addr.Unmap()
	outOfRange := &AddressOutOfRangeError{IP: addr.String(), Subnet: a.prefix.String()}
	if !a.prefix.Contains(addr) {
		return -1, outOfRange
	}
	offset, ok := fromAddr(addr).sub(a.first)
	if !ok || offset >= uint64(a.bitmap.Size()) {
		return -1, outOfRange
	}
	return int(offset), nil
}

func (a *SubnetAllocator) addr(index int) netip.Addr {
	return a.first.add(uint64(index)).toAddr(a.prefix.Addr().Is4())
}

// uint128 is an address as an unsigned integer
type uint128 struct {
	hi, lo uint64
}

func fromAddr(addr netip.Addr) uint128 {
	b := addr.As16()
	var u uint128
	for i := 0; i < 8; i++ {
		u.hi = u.hi<<8 | uint64(b[i])
		u.lo = u.lo<<8 | uint64(b[i+8])
	}
	return u
}

func (u uint128) toAddr(is4 bool) netip.Addr {
	var b [16]byte
	hi, lo := u.hi, u.lo
	for i := 7; i >= 0; i-- {
		b[i] = byte(hi)
		b[i+8] = byte(lo)
		hi >>= 8
		lo >>= 8
	}
	addr := netip.AddrFrom16(b)
	if is4 {
		return addr.Unmap()
	}
	return addr
}

func (u uint128) add(n uint64) uint128 {
	lo := u.lo + n
	hi := u.hi
	if lo < u.lo {
		hi++
	}
	return uint128{hi: hi, lo: lo}
}

// sub returns u - v when it fits in 64 bits and is not negative
func (u uint128) sub(v uint128) (uint64, bool) {
	if u.hi < v.hi || (u.hi == v.hi && u.lo < v.lo) {
		return 0, false
	}
	hi := u.hi - v.hi
	if u.lo < v.lo {
		hi--
	}
	if hi != 0 {
		return 0, false
	}
	return u.lo - v.lo, true
}
