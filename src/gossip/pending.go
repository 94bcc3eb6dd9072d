package gossip

import (
	"sort"

	"github.com/mosaicnetworks/murmur/src/common"
)

// Pending records, per neighbour, the values that have not been acknowledged
// yet. There are no timers: every tick re-sends the whole set for each
// neighbour until it is cleared by an acknowledgement.
type Pending struct {
	byNeighbor map[string]map[common.Value]struct{}
	total      int
}

// NewPending ...
func NewPending() *Pending {
	return &Pending{
		byNeighbor: make(map[string]map[common.Value]struct{}),
	}
}

// Add records an obligation to deliver v to neighbor. It reports whether the
// obligation is new.
func (p *Pending) Add(neighbor string, v common.Value) bool {
	set, ok := p.byNeighbor[neighbor]
	if !ok {
		set = make(map[common.Value]struct{})
		p.byNeighbor[neighbor] = set
	}
	if _, ok := set[v]; ok {
		return false
	}
	set[v] = struct{}{}
	p.total++
	return true
}

// AddAll records v for every neighbour except the one named by except, which
// may be empty.
func (p *Pending) AddAll(neighbors []string, v common.Value, except string) {
	for _, n := range neighbors {
		if n == except {
			continue
		}
		p.Add(n, v)
	}
}

// Clear removes the given values from the obligations towards neighbor and
// returns how many were removed.
func (p *Pending) Clear(neighbor string, values []common.Value) int {
	set, ok := p.byNeighbor[neighbor]
	if !ok {
		return 0
	}

	cleared := 0
	for _, v := range values {
		if _, ok := set[v]; ok {
			delete(set, v)
			cleared++
		}
	}
	p.total -= cleared

	if len(set) == 0 {
		delete(p.byNeighbor, neighbor)
	}

	return cleared
}

// Drop forgets every obligation towards neighbor.
func (p *Pending) Drop(neighbor string) {
	p.total -= len(p.byNeighbor[neighbor])
	delete(p.byNeighbor, neighbor)
}

// For returns the values pending for neighbor, sorted.
func (p *Pending) For(neighbor string) []common.Value {
	set := p.byNeighbor[neighbor]
	if len(set) == 0 {
		return nil
	}

	res := make([]common.Value, 0, len(set))
	for v := range set {
		res = append(res, v)
	}
	common.SortValues(res)
	return res
}

// Count returns the number of values pending for neighbor.
func (p *Pending) Count(neighbor string) int {
	return len(p.byNeighbor[neighbor])
}

// Len returns the total number of obligations.
func (p *Pending) Len() int {
	return p.total
}

// Neighbors returns the sorted ids of the neighbours with at least one
// obligation.
func (p *Pending) Neighbors() []string {
	res := make([]string, 0, len(p.byNeighbor))
	for n := range p.byNeighbor {
		res = append(res, n)
	}
	sort.Strings(res)
	return res
}
