package peers

import (
	"sort"
	"strconv"
)

// LessID orders node ids naturally, so that n2 comes before n10. Ids are
// compared by their non-numeric prefix, then by their numeric suffix, then
// lexically, which keeps the order total for arbitrary strings.
func LessID(a, b string) bool {
	pa, na, oka := splitID(a)
	pb, nb, okb := splitID(b)

	if pa != pb {
		return pa < pb
	}
	if oka != okb {
		return !oka
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

// SortIDs sorts ids in place with LessID.
func SortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return LessID(ids[i], ids[j])
	})
}

func splitID(id string) (prefix string, n int, ok bool) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return id, 0, false
	}
	n, err := strconv.Atoi(id[i:])
	if err != nil {
		return id, 0, false
	}
	return id[:i], n, true
}
