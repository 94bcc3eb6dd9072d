package peers

import (
	"fmt"
	"math"
	"reflect"
	"testing"
)

func nodeIDs(n int) []string {
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("n%d", i)
	}
	return ids
}

func graph(kind Kind, ids []string, fanout int) map[string][]string {
	g := make(map[string][]string, len(ids))
	for _, id := range ids {
		g[id] = Build(kind, ids, id, fanout)
	}
	return g
}

// reachable returns the number of nodes reachable from start.
func reachable(g map[string][]string, start string) int {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range g[cur] {
			if !seen[nb] {
				seen[nb] = true
				queue = append(queue, nb)
			}
		}
	}
	return len(seen)
}

func TestSortIDsNatural(t *testing.T) {
	ids := []string{"n10", "n2", "n1", "c3", "n", "n0"}
	SortIDs(ids)

	expected := []string{"c3", "n", "n0", "n1", "n2", "n10"}
	if !reflect.DeepEqual(ids, expected) {
		t.Fatalf("ids should be %v, not %v", expected, ids)
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"grid", "tree", "ring", "full"} {
		k, err := ParseKind(s)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if string(k) != s {
			t.Fatalf("kind should be %s, not %s", s, k)
		}
	}

	if k, _ := ParseKind(""); k != Grid {
		t.Fatalf("empty kind should default to grid, not %s", k)
	}

	if _, err := ParseKind("star"); err == nil {
		t.Fatal("ParseKind(star) should fail")
	}
}

func TestBuildExcludesSelf(t *testing.T) {
	ids := nodeIDs(25)
	for _, kind := range []Kind{Grid, Tree, Ring, Full} {
		for _, id := range ids {
			for _, nb := range Build(kind, ids, id, 4) {
				if nb == id {
					t.Fatalf("%s: %s is its own neighbour", kind, id)
				}
			}
		}
	}
}

func TestBuildSymmetric(t *testing.T) {
	ids := nodeIDs(25)
	for _, kind := range []Kind{Grid, Tree, Ring, Full} {
		g := graph(kind, ids, 4)
		for a, nbs := range g {
			for _, b := range nbs {
				found := false
				for _, x := range g[b] {
					if x == a {
						found = true
						break
					}
				}
				if !found {
					t.Fatalf("%s: %s -> %s but not %s -> %s", kind, a, b, b, a)
				}
			}
		}
	}
}

func TestBuildConnected(t *testing.T) {
	for _, n := range []int{1, 2, 5, 24, 25, 26, 100} {
		ids := nodeIDs(n)
		for _, kind := range []Kind{Grid, Tree, Ring, Full} {
			g := graph(kind, ids, 4)
			if r := reachable(g, "n0"); r != n {
				t.Fatalf("%s N=%d: only %d nodes reachable from n0", kind, n, r)
			}
		}
	}
}

func TestBuildBoundedFanout(t *testing.T) {
	for _, n := range []int{25, 100} {
		ids := nodeIDs(n)
		gridBound := 2 * (int(math.Ceil(math.Sqrt(float64(n)))) - 1)

		bounds := map[Kind]int{
			Grid: gridBound,
			Tree: 5,
			Ring: 4,
		}

		for kind, bound := range bounds {
			for id, nbs := range graph(kind, ids, 4) {
				if len(nbs) > bound {
					t.Fatalf("%s N=%d: %s has %d neighbours, bound is %d", kind, n, id, len(nbs), bound)
				}
			}
		}
	}
}

func TestBuildTreeShape(t *testing.T) {
	ids := nodeIDs(25)

	root := Build(Tree, ids, "n0", 4)
	if !reflect.DeepEqual(root, []string{"n1", "n2", "n3", "n4"}) {
		t.Fatalf("n0 neighbours should be n1..n4, not %v", root)
	}

	n5 := Build(Tree, ids, "n5", 4)
	if !reflect.DeepEqual(n5, []string{"n1", "n21", "n22", "n23", "n24"}) {
		t.Fatalf("unexpected n5 neighbours %v", n5)
	}
}

func TestBuildGridShape(t *testing.T) {
	ids := nodeIDs(9)

	// 0 1 2
	// 3 4 5
	// 6 7 8
	n4 := Build(Grid, ids, "n4", 0)
	if !reflect.DeepEqual(n4, []string{"n3", "n5", "n1", "n7"}) {
		t.Fatalf("unexpected n4 neighbours %v", n4)
	}
}

func TestBuildSingleNode(t *testing.T) {
	for _, kind := range []Kind{Grid, Tree, Ring, Full} {
		if nbs := Build(kind, []string{"n0"}, "n0", 4); len(nbs) != 0 {
			t.Fatalf("%s: single node should have no neighbours, got %v", kind, nbs)
		}
	}
}

func TestTopologyOverride(t *testing.T) {
	topo := NewTopology(Tree, 4)
	topo.Init("n1", nodeIDs(5))

	if !reflect.DeepEqual(topo.Neighbors(), []string{"n0"}) {
		t.Fatalf("unexpected neighbours %v", topo.Neighbors())
	}

	added, ignored, err := topo.Override(map[string][]string{
		"n1": {"n0", "n2", "n1", "n99", "n2"},
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !reflect.DeepEqual(added, []string{"n2"}) {
		t.Fatalf("added should be [n2], not %v", added)
	}
	if !reflect.DeepEqual(ignored, []string{"n1", "n99"}) {
		t.Fatalf("ignored should be [n1 n99], not %v", ignored)
	}
	if !reflect.DeepEqual(topo.Neighbors(), []string{"n0", "n2"}) {
		t.Fatalf("unexpected neighbours %v", topo.Neighbors())
	}
	if !topo.IsNeighbor("n2") {
		t.Fatal("n2 should be a neighbour")
	}

	if _, _, err := topo.Override(map[string][]string{"n1": {"n3"}}); err != ErrAlreadyOverridden {
		t.Fatalf("second override should fail with ErrAlreadyOverridden, got %v", err)
	}
}

func TestTopologyOverrideRejected(t *testing.T) {
	topo := NewTopology(Grid, 0)
	topo.Init("n0", nodeIDs(4))
	before := topo.Neighbors()

	if _, _, err := topo.Override(map[string][]string{"n3": {"n0"}}); err != ErrNoSelfEntry {
		t.Fatalf("expected ErrNoSelfEntry, got %v", err)
	}

	if _, _, err := topo.Override(map[string][]string{"n0": {"x", "y"}}); err != ErrNoKnownNeighbors {
		t.Fatalf("expected ErrNoKnownNeighbors, got %v", err)
	}

	if !reflect.DeepEqual(topo.Neighbors(), before) {
		t.Fatalf("rejected overrides changed the neighbours to %v", topo.Neighbors())
	}

	topo.Freeze()
	if _, _, err := topo.Override(map[string][]string{"n0": {"n1"}}); err != ErrTopologyFrozen {
		t.Fatalf("expected ErrTopologyFrozen, got %v", err)
	}
	if !reflect.DeepEqual(topo.Neighbors(), before) {
		t.Fatalf("frozen override changed the neighbours to %v", topo.Neighbors())
	}
}

func TestGridIgnoresFanout(t *testing.T) {
	ids := nodeIDs(10)

	expected := graph(Grid, ids, DefaultFanout)
	for _, fanout := range []int{1, 2, 7, 25} {
		if g := graph(Grid, ids, fanout); !reflect.DeepEqual(expected, g) {
			t.Fatalf("grid with fanout %d should match the default grid, got %v", fanout, g)
		}
	}
}
