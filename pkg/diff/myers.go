// ABOUTME: Myers O((N+M)D) shortest edit script over content units
// ABOUTME: Linear space: the middle snake splits the problem in two

package diff

// maxEditDistance bounds the search of one bisection. Sub-problems that
// would need more steps are diffed as a single replacement.
const maxEditDistance = 20000

// Diff computes a line-granularity script that turns old into new.
func Diff(old, new string) Script {
	return DiffUnits(UnitLine, old, new)
}

// DiffUnits computes a script at the given granularity.
func DiffUnits(unit Unit, old, new string) Script {
	if unit == "" {
		unit = UnitLine
	}
	var ops []Op
	compare(Split(unit, old), Split(unit, new), &ops)
	return Script{Unit: unit, Ops: canonical(ops)}
}

// compare appends the edits turning a into b. Common prefix and suffix are
// trimmed first; the rest is split at the middle snake and solved in halves.
func compare(a, b []string, ops *[]Op) {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	if prefix > 0 {
		*ops = append(*ops, Op{Type: OpRetain, Count: prefix})
		a, b = a[prefix:], b[prefix:]
	}
	suffix := 0
	for suffix < len(a) && suffix < len(b) && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}
	a, b = a[:len(a)-suffix], b[:len(b)-suffix]

	switch {
	case len(a) == 0 && len(b) == 0:
	case len(a) == 0:
		*ops = append(*ops, Op{Type: OpInsert, Units: cloneUnits(b)})
	case len(b) == 0:
		*ops = append(*ops, Op{Type: OpDelete, Units: cloneUnits(a)})
	default:
		if x, y, ok := bisect(a, b); ok {
			compare(a[:x], b[:y], ops)
			compare(a[x:], b[y:], ops)
		} else {
			*ops = append(*ops,
				Op{Type: OpDelete, Units: cloneUnits(a)},
				Op{Type: OpInsert, Units: cloneUnits(b)})
		}
	}

	if suffix > 0 {
		*ops = append(*ops, Op{Type: OpRetain, Count: suffix})
	}
}

// bisect runs the forward and reverse searches together and returns the
// point where they overlap, which lies on a shortest edit path. Memory is
// two frontiers of len(a)+len(b) entries. ok is false when the paths do not
// meet within maxEditDistance steps.
func bisect(a, b []string) (x, y int, ok bool) {
	n, m := len(a), len(b)
	maxD := (n + m + 1) / 2
	off := maxD
	size := 2*maxD + 2
	v1 := make([]int, size)
	v2 := make([]int, size)
	for i := range v1 {
		v1[i] = -1
		v2[i] = -1
	}
	v1[off+1] = 0
	v2[off+1] = 0

	// inner excludes the corners, so both halves of a split are smaller.
	inner := func(x, y int) bool {
		return x >= 0 && x <= n && y >= 0 && y <= m && x+y > 0 && x+y < n+m
	}

	delta := n - m
	// With an odd delta the paths meet on a forward step, otherwise on a
	// reverse step.
	front := delta%2 != 0
	var k1start, k1end, k2start, k2end int

	for d := 0; d < min(maxD, maxEditDistance); d++ {
		for k1 := -d + k1start; k1 <= d-k1end; k1 += 2 {
			i := off + k1
			var x1 int
			if k1 == -d || (k1 != d && v1[i-1] < v1[i+1]) {
				x1 = v1[i+1]
			} else {
				x1 = v1[i-1] + 1
			}
			y1 := x1 - k1
			for x1 < n && y1 < m && a[x1] == b[y1] {
				x1++
				y1++
			}
			v1[i] = x1
			switch {
			case x1 > n:
				k1end += 2
			case y1 > m:
				k1start += 2
			case front:
				j := off + delta - k1
				if j >= 0 && j < size && v2[j] != -1 && x1 >= n-v2[j] && inner(x1, y1) {
					return x1, y1, true
				}
			}
		}

		for k2 := -d + k2start; k2 <= d-k2end; k2 += 2 {
			i := off + k2
			var x2 int
			if k2 == -d || (k2 != d && v2[i-1] < v2[i+1]) {
				x2 = v2[i+1]
			} else {
				x2 = v2[i-1] + 1
			}
			y2 := x2 - k2
			for x2 < n && y2 < m && a[n-x2-1] == b[m-y2-1] {
				x2++
				y2++
			}
			v2[i] = x2
			switch {
			case x2 > n:
				k2end += 2
			case y2 > m:
				k2start += 2
			case !front:
				j := off + delta - k2
				if j >= 0 && j < size && v1[j] != -1 {
					x1 := v1[j]
					y1 := x1 - (j - off)
					if x1 >= n-x2 && inner(x1, y1) {
						return x1, y1, true
					}
				}
			}
		}
	}
	return 0, 0, false
}
