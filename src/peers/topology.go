package peers

import (
	"errors"
	"fmt"
	"math"
)

// Kind selects the algorithm used to derive neighbours from the list of ids.
type Kind string

const (
	// Grid lays ids out row-major on a square grid and connects each node to
	// the rest of its row and column. The grid width is ceil(sqrt(n)) and
	// does not depend on fanout.
	Grid Kind = "grid"
	// Tree connects each node to its parent and up to fanout children.
	Tree Kind = "tree"
	// Ring connects each node to fanout/2 successors and predecessors.
	Ring Kind = "ring"
	// Full connects every node to every other node.
	Full Kind = "full"
)

// DefaultFanout is the branching factor used by Tree and Ring when none is
// configured.
const DefaultFanout = 4

var (
	// ErrTopologyFrozen is returned when an override arrives after gossip has
	// started.
	ErrTopologyFrozen = errors.New("topology is frozen: gossip already started")
	// ErrAlreadyOverridden is returned by a second override.
	ErrAlreadyOverridden = errors.New("topology was already overridden")
	// ErrNoSelfEntry is returned when an override has no entry for this node.
	ErrNoSelfEntry = errors.New("topology override has no entry for this node")
	// ErrNoKnownNeighbors is returned when none of the overriding neighbours
	// is a known node.
	ErrNoKnownNeighbors = errors.New("topology override names no known neighbour")
)

// ParseKind parses a topology kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Grid, Tree, Ring, Full:
		return k, nil
	case "":
		return Grid, nil
	default:
		return "", fmt.Errorf("unknown topology %q (grid, tree, ring, full)", s)
	}
}

// Build returns the neighbours of self among nodeIDs for the given kind. The
// ids are sorted with LessID first, so every node computes the same graph. If
// self is not among nodeIDs it is added.
func Build(kind Kind, nodeIDs []string, self string, fanout int) []string {
	if fanout <= 0 {
		fanout = DefaultFanout
	}

	ids := sortedWithSelf(nodeIDs, self)
	idx := indexOf(ids, self)

	switch kind {
	case Tree:
		return buildTree(ids, idx, fanout)
	case Ring:
		return buildRing(ids, idx, fanout)
	case Full:
		return buildFull(ids, idx)
	default:
		return buildGrid(ids, idx)
	}
}

func buildGrid(ids []string, idx int) []string {
	width := int(math.Ceil(math.Sqrt(float64(len(ids)))))
	if width == 0 {
		return nil
	}

	row, col := idx/width, idx%width
	var res []string
	for j := range ids {
		if j != idx && j/width == row {
			res = append(res, ids[j])
		}
	}
	for j := range ids {
		if j != idx && j%width == col {
			res = append(res, ids[j])
		}
	}
	return res
}

func buildTree(ids []string, idx int, fanout int) []string {
	var res []string
	if idx != 0 {
		res = append(res, ids[(idx-1)/fanout])
	}
	for c := fanout*idx + 1; c <= fanout*idx+fanout && c < len(ids); c++ {
		res = append(res, ids[c])
	}
	return res
}

func buildRing(ids []string, idx int, fanout int) []string {
	n := len(ids)
	k := fanout / 2
	if k < 1 {
		k = 1
	}

	seen := map[int]bool{idx: true}
	var res []string
	for d := 1; d <= k; d++ {
		for _, j := range []int{(idx + d) % n, (idx - d + n) % n} {
			if !seen[j] {
				seen[j] = true
				res = append(res, ids[j])
			}
		}
	}
	return res
}

func buildFull(ids []string, idx int) []string {
	res := make([]string, 0, len(ids))
	for j, id := range ids {
		if j != idx {
			res = append(res, id)
		}
	}
	return res
}

func sortedWithSelf(nodeIDs []string, self string) []string {
	ids := make([]string, 0, len(nodeIDs)+1)
	seen := make(map[string]bool, len(nodeIDs)+1)
	for _, id := range append(append([]string{}, nodeIDs...), self) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	SortIDs(ids)
	return ids
}

func indexOf(ids []string, id string) int {
	for i, x := range ids {
		if x == id {
			return i
		}
	}
	return -1
}

// Topology holds the neighbours of one node. It is computed once from the
// full list of ids and may be replaced once by an override, as long as gossip
// has not started.
type Topology struct {
	kind   Kind
	fanout int

	self       string
	nodes      []string
	known      map[string]bool
	neighbors  []string
	overridden bool
	frozen     bool
}

// NewTopology ...
func NewTopology(kind Kind, fanout int) *Topology {
	return &Topology{
		kind:   kind,
		fanout: fanout,
		known:  make(map[string]bool),
	}
}

// Init computes the neighbours of self among nodeIDs.
func (t *Topology) Init(self string, nodeIDs []string) {
	t.self = self
	t.nodes = sortedWithSelf(nodeIDs, self)
	t.known = make(map[string]bool, len(t.nodes))
	for _, id := range t.nodes {
		t.known[id] = true
	}
	t.neighbors = Build(t.kind, t.nodes, self, t.fanout)
}

// Self returns the id of the owning node.
func (t *Topology) Self() string {
	return t.self
}

// Kind returns the layout in use.
func (t *Topology) Kind() Kind {
	return t.kind
}

// Nodes returns every id in the cluster, sorted.
func (t *Topology) Nodes() []string {
	return append([]string(nil), t.nodes...)
}

// Neighbors returns a copy of the current neighbours.
func (t *Topology) Neighbors() []string {
	return append([]string(nil), t.neighbors...)
}

// IsNeighbor ...
func (t *Topology) IsNeighbor(id string) bool {
	return indexOf(t.neighbors, id) >= 0
}

// Freeze forbids further overrides. It is called when the first gossip message
// leaves the node.
func (t *Topology) Freeze() {
	t.frozen = true
}

// Frozen ...
func (t *Topology) Frozen() bool {
	return t.frozen
}

// Override replaces the computed neighbours with the entry for this node in m.
// Unknown ids and self-references are dropped and returned in ignored. The
// override is rejected, leaving the neighbours unchanged, when gossip has
// started, when a previous override was applied, when m has no entry for this
// node, or when no known neighbour remains. On success it returns the
// neighbours that were not neighbours before.
func (t *Topology) Override(m map[string][]string) (added, ignored []string, err error) {
	if t.frozen {
		return nil, nil, ErrTopologyFrozen
	}
	if t.overridden {
		return nil, nil, ErrAlreadyOverridden
	}

	entry, ok := m[t.self]
	if !ok {
		return nil, nil, ErrNoSelfEntry
	}

	var next []string
	seen := make(map[string]bool, len(entry))
	for _, id := range entry {
		if id == t.self || !t.known[id] {
			ignored = append(ignored, id)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		next = append(next, id)
	}

	if len(next) == 0 && len(t.nodes) > 1 {
		return nil, ignored, ErrNoKnownNeighbors
	}

	for _, id := range next {
		if !t.IsNeighbor(id) {
			added = append(added, id)
		}
	}

	t.neighbors = next
	t.overridden = true

	return added, ignored, nil
}
