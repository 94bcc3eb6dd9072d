// Package store holds the set of values a node has delivered.
//
// The store only ever grows. Inserting or merging a value that is already
// known is a no-op, which makes re-delivery of gossip harmless. The store is
// not synchronised: it is owned by the node's event loop.
package store

import "github.com/mosaicnetworks/murmur/src/common"

// InmemStore is an in-memory, insert-only set of values.
type InmemStore struct {
	values map[common.Value]struct{}
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		values: make(map[common.Value]struct{}),
	}
}

// Insert adds a value and reports whether it was new.
func (s *InmemStore) Insert(v common.Value) bool {
	if _, ok := s.values[v]; ok {
		return false
	}
	s.values[v] = struct{}{}
	return true
}

// Merge adds all the values and returns those that were not known before, in
// input order. A value repeated in the input is reported once.
func (s *InmemStore) Merge(values []common.Value) []common.Value {
	var added []common.Value
	for _, v := range values {
		if s.Insert(v) {
			added = append(added, v)
		}
	}
	return added
}

// Contains reports whether v has been delivered.
func (s *InmemStore) Contains(v common.Value) bool {
	_, ok := s.values[v]
	return ok
}

// Snapshot returns a sorted copy of every known value.
func (s *InmemStore) Snapshot() []common.Value {
	res := make([]common.Value, 0, len(s.values))
	for v := range s.values {
		res = append(res, v)
	}
	common.SortValues(res)
	return res
}

// Len returns the number of known values.
func (s *InmemStore) Len() int {
	return len(s.values)
}
