package storage

import "github.com/ethereum/go-ethereum/common"

// AddressSet is an enumerable set of addresses with O(1) membership,
// insertion, and removal. New members append at the tail; removal swaps
// the last member into the vacated slot. Iteration order is therefore
// stable for unchanged entries but carries no guarantee across mutations.
type AddressSet struct {
	values []common.Address
	index  map[common.Address]int
}

// NewAddressSet returns an empty set.
func NewAddressSet() *AddressSet {
	return &AddressSet{index: make(map[common.Address]int)}
}

// Add inserts addr at the tail. Returns false if already present.
func (s *AddressSet) Add(addr common.Address) bool {
	if _, ok := s.index[addr]; ok {
		return false
	}
	s.index[addr] = len(s.values)
	s.values = append(s.values, addr)
	return true
}

// Remove deletes addr by swapping the tail into its slot. Returns false
// if not present.
func (s *AddressSet) Remove(addr common.Address) bool {
	i, ok := s.index[addr]
	if !ok {
		return false
	}
	last := len(s.values) - 1
	if i != last {
		moved := s.values[last]
		s.values[i] = moved
		s.index[moved] = i
	}
	s.values = s.values[:last]
	delete(s.index, addr)
	return true
}

// Contains reports membership.
func (s *AddressSet) Contains(addr common.Address) bool {
	_, ok := s.index[addr]
	return ok
}

// Len returns the member count.
func (s *AddressSet) Len() int {
	return len(s.values)
}

// Values returns a copy of the members in current storage order.
func (s *AddressSet) Values() []common.Address {
	out := make([]common.Address, len(s.values))
	copy(out, s.values)
	return out
}
