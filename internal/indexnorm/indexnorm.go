// Package indexnorm rebases integer references into a known collection
// (for example, which ingredients a recipe step uses) into a canonical
// 0-based, sorted, de-duplicated set.
//
// The backend has sent these references both 0-based and 1-based, and
// nothing in the payload says which. The rebase decision is therefore a
// heuristic, and some inputs are genuinely ambiguous. Such inputs are
// resolved by a fixed tie-break and flagged, never rejected.
package indexnorm

import "sort"

// Base is the numbering convention a reference set was read as.
type Base int

const (
	ZeroBased Base = 0
	OneBased  Base = 1
)

// Result is the outcome of Normalize.
type Result struct {
	// Set is ascending, unique, and every value is in [0, n-1].
	Set []int

	// Detected is the convention the raw references were read as.
	Detected Base

	// Ambiguous reports that both readings would have kept every reference
	// in range, so Detected is a tie-break rather than evidence.
	Ambiguous bool

	// Dropped counts raw references discarded as out of range after
	// rebasing (stale references to deleted entries, negatives).
	Dropped int
}

// Normalize rebases raw against a collection of length n.
//
// The whole set is read as 1-based iff all of:
//   - min(raw) >= 1
//   - 0 is absent
//   - max(raw) == n, or some value > n-1
//
// in which case 1 is subtracted from every element. Otherwise it is read
// as already 0-based. Afterwards values outside [0, n-1] are dropped and
// the set is de-duplicated and sorted.
//
// Example: n=2, raw={1}. max(1) != 2 and nothing exceeds 1, so the set is
// read as 0-based and the result is {1}, although {0} (1-based) fits too;
// Ambiguous is set.
//
// Edge cases:
//   - Empty raw or n <= 0 yields an empty set.
//   - Duplicates in raw are collapsed.
func Normalize(raw []int, n int) Result {
	res := Result{Set: []int{}, Detected: ZeroBased}
	if len(raw) == 0 {
		return res
	}
	if n <= 0 {
		res.Dropped = len(raw)
		return res
	}

	lo, hi := raw[0], raw[0]
	hasZero := false
	for _, v := range raw {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		if v == 0 {
			hasZero = true
		}
	}

	oneBased := lo >= 1 && !hasZero && (hi == n || hi > n-1)
	if oneBased {
		res.Detected = OneBased
	} else {
		// Both readings fit when every value is in [1, n-1].
		res.Ambiguous = lo >= 1 && !hasZero && hi <= n-1
	}

	shift := 0
	if oneBased {
		shift = 1
	}

	seen := make(map[int]struct{}, len(raw))
	for _, v := range raw {
		v -= shift
		if v < 0 || v > n-1 {
			res.Dropped++
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		res.Set = append(res.Set, v)
	}
	sort.Ints(res.Set)
	return res
}

// Expand converts a canonical 0-based set into the wire convention base,
// preserving order.
func Expand(set []int, base Base) []int {
	out := make([]int, len(set))
	for i, v := range set {
		out[i] = v + int(base)
	}
	return out
}

// Toggle adds v to a canonical set when absent and removes it when present.
// The returned set stays ascending; set itself is not modified.
func Toggle(set []int, v int) []int {
	out := make([]int, 0, len(set)+1)
	found := false
	for _, x := range set {
		if x == v {
			found = true
			continue
		}
		out = append(out, x)
	}
	if !found {
		out = append(out, v)
		sort.Ints(out)
	}
	return out
}
