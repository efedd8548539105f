package merge

import (
	"github.com/nainya/docvcs/pkg/model"
)

// LowestCommonAncestor finds the merge base of two versions by searching
// their parent graphs breadth-first from both ends at once. The search runs
// until both sides are exhausted, since a merge may link straight back to an
// old version and make the first meeting point a stale ancestor. Numbers grow
// from parent to child, so the highest-numbered common ancestor is never an
// ancestor of another one.
func LowestCommonAncestor(snap *model.Snapshot, a, b string) (string, bool) {
	if _, ok := snap.Version(a); !ok {
		return "", false
	}
	if _, ok := snap.Version(b); !ok {
		return "", false
	}
	if a == b {
		return a, true
	}

	seenA := map[string]bool{a: true}
	seenB := map[string]bool{b: true}
	frontA := []string{a}
	frontB := []string{b}

	var common []string
	for len(frontA) > 0 || len(frontB) > 0 {
		frontA = expand(snap, frontA, seenA, seenB, &common)
		frontB = expand(snap, frontB, seenB, seenA, &common)
	}
	if len(common) == 0 {
		return "", false
	}
	return newest(snap, common), true
}

// expand advances one BFS layer, recording nodes already seen by the other
// search in met.
func expand(snap *model.Snapshot, front []string, seen, other map[string]bool, met *[]string) []string {
	var next []string
	for _, id := range front {
		v, ok := snap.Version(id)
		if !ok {
			continue
		}
		for _, p := range v.Parents {
			if seen[p] {
				continue
			}
			seen[p] = true
			if other[p] {
				*met = append(*met, p)
			}
			next = append(next, p)
		}
	}
	return next
}

func newest(snap *model.Snapshot, ids []string) string {
	best := ids[0]
	bestNum := int64(-1)
	for _, id := range ids {
		if v, ok := snap.Version(id); ok && v.Number > bestNum {
			best, bestNum = id, v.Number
		}
	}
	return best
}

// IsAncestor reports whether ancestor is reachable from descendant through
// parent links. A version is its own ancestor.
func IsAncestor(snap *model.Snapshot, ancestor, descendant string) bool {
	if ancestor == descendant {
		return true
	}
	seen := map[string]bool{descendant: true}
	queue := []string{descendant}
	for len(queue) > 0 {
		v, ok := snap.Version(queue[0])
		queue = queue[1:]
		if !ok {
			continue
		}
		for _, p := range v.Parents {
			if p == ancestor {
				return true
			}
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false
}
