package merge

import (
	"sort"
	"strings"

	"github.com/nainya/docvcs/pkg/diff"
)

// Side identifies which branch a change came from.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// Conflict is a base region that both branches changed differently.
// BaseStart and BaseEnd are unit offsets into the merge base.
type Conflict struct {
	BaseStart  int    `json:"base_start"`
	BaseEnd    int    `json:"base_end"`
	Base       string `json:"base"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	Resolution Side   `json:"resolution,omitempty"`
}

type change struct {
	diff.Change
	side Side
}

type region struct {
	start, end int
	changes    []change
}

func (r *region) sides() (source, target bool) {
	for _, c := range r.changes {
		if c.side == SideSource {
			source = true
		} else {
			target = true
		}
	}
	return source, target
}

// overlaps reports whether c collides with a change of the other side in r.
func (r *region) overlaps(c change) bool {
	for _, m := range r.changes {
		if m.side == c.side {
			continue
		}
		if m.Start == c.Start || (m.Start < c.End && c.Start < m.End) {
			return true
		}
	}
	return false
}

// render applies the changes of one side to the region's base units.
func (r *region) render(base []string, side Side) string {
	var b strings.Builder
	pos := r.start
	for _, c := range r.changes {
		if c.side != side {
			continue
		}
		for _, u := range base[pos:c.Start] {
			b.WriteString(u)
		}
		for _, u := range c.New {
			b.WriteString(u)
		}
		pos = c.End
	}
	for _, u := range base[pos:r.end] {
		b.WriteString(u)
	}
	return b.String()
}

// ThreeWay merges source and target against their common base. Regions
// changed by only one side are taken from that side; regions changed
// identically by both are taken once. Every other overlapping region is
// reported as a conflict and resolved to the target's text.
func ThreeWay(unit diff.Unit, base, source, target string) (string, []Conflict) {
	baseUnits := diff.Split(unit, base)

	var all []change
	for _, c := range diff.DiffUnits(unit, base, source).Changes() {
		all = append(all, change{c, SideSource})
	}
	for _, c := range diff.DiffUnits(unit, base, target).Changes() {
		all = append(all, change{c, SideTarget})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End < all[j].End
	})

	var regions []*region
	for _, c := range all {
		if n := len(regions); n > 0 && regions[n-1].overlaps(c) {
			r := regions[n-1]
			r.changes = append(r.changes, c)
			r.start = min(r.start, c.Start)
			r.end = max(r.end, c.End)
			continue
		}
		regions = append(regions, &region{start: c.Start, end: c.End, changes: []change{c}})
	}

	var out strings.Builder
	var conflicts []Conflict
	pos := 0
	for _, r := range regions {
		for _, u := range baseUnits[pos:r.start] {
			out.WriteString(u)
		}
		pos = r.end

		hasSource, hasTarget := r.sides()
		switch {
		case hasSource && !hasTarget:
			out.WriteString(r.render(baseUnits, SideSource))
		case hasTarget && !hasSource:
			out.WriteString(r.render(baseUnits, SideTarget))
		default:
			src := r.render(baseUnits, SideSource)
			tgt := r.render(baseUnits, SideTarget)
			out.WriteString(tgt)
			if src != tgt {
				conflicts = append(conflicts, Conflict{
					BaseStart:  r.start,
					BaseEnd:    r.end,
					Base:       strings.Join(baseUnits[r.start:r.end], ""),
					Source:     src,
					Target:     tgt,
					Resolution: SideTarget,
				})
			}
		}
	}
	for _, u := range baseUnits[pos:] {
		out.WriteString(u)
	}
	return out.String(), conflicts
}
