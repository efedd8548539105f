// ABOUTME: Edit script model shared by diff, patch and merge
// ABOUTME: Scripts are retain/insert/delete runs over content units

package diff

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrPatchMismatch is returned when a script does not fit the content it is
// applied to.
var ErrPatchMismatch = errors.New("diff: script does not match content")

// Unit is the granularity a script is computed over.
type Unit string

const (
	// UnitLine splits content into lines, each keeping its trailing newline.
	UnitLine Unit = "line"
	// UnitWord splits content into alternating runs of space and non-space.
	UnitWord Unit = "word"
)

// ParseUnit maps a configuration value to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(s)) {
	case "", UnitLine:
		return UnitLine, nil
	case UnitWord:
		return UnitWord, nil
	default:
		return "", fmt.Errorf("diff: unknown granularity %q", s)
	}
}

// OpType is the kind of an edit operation.
type OpType string

const (
	OpRetain OpType = "retain"
	OpInsert OpType = "insert"
	OpDelete OpType = "delete"
)

// Op is one run of an edit script. Retain runs only carry Count; insert and
// delete runs carry the affected units.
type Op struct {
	Type  OpType   `json:"type"`
	Count int      `json:"count,omitempty"`
	Units []string `json:"units,omitempty"`
}

// Len returns the number of units the op covers.
func (o Op) Len() int {
	if o.Type == OpRetain {
		return o.Count
	}
	return len(o.Units)
}

// Script transforms one content string into another.
type Script struct {
	Unit Unit `json:"unit"`
	Ops  []Op `json:"ops"`
}

// Stats counts changed units.
type Stats struct {
	Insertions int `json:"insertions"`
	Deletions  int `json:"deletions"`
}

// Stats returns the number of inserted and deleted units.
func (s Script) Stats() Stats {
	var st Stats
	for _, op := range s.Ops {
		switch op.Type {
		case OpInsert:
			st.Insertions += len(op.Units)
		case OpDelete:
			st.Deletions += len(op.Units)
		}
	}
	return st
}

// IsIdentity reports whether the script changes nothing.
func (s Script) IsIdentity() bool {
	for _, op := range s.Ops {
		if op.Type != OpRetain {
			return false
		}
	}
	return true
}

// Invert returns the script that undoes s.
func (s Script) Invert() Script {
	ops := make([]Op, len(s.Ops))
	for i, op := range s.Ops {
		switch op.Type {
		case OpInsert:
			ops[i] = Op{Type: OpDelete, Units: cloneUnits(op.Units)}
		case OpDelete:
			ops[i] = Op{Type: OpInsert, Units: cloneUnits(op.Units)}
		default:
			ops[i] = op
		}
	}
	return Script{Unit: s.Unit, Ops: canonical(ops)}
}

// Change is a base-anchored replacement: units [Start, End) of the old
// content become New. Pure insertions have Start == End.
type Change struct {
	Start int
	End   int
	Old   []string
	New   []string
}

// Changes returns the script's change blocks in old-content order.
func (s Script) Changes() []Change {
	var out []Change
	pos := 0
	var cur *Change
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	for _, op := range s.Ops {
		switch op.Type {
		case OpRetain:
			flush()
			pos += op.Count
		case OpDelete:
			if cur == nil {
				cur = &Change{Start: pos, End: pos}
			}
			cur.Old = append(cur.Old, op.Units...)
			cur.End += len(op.Units)
			pos += len(op.Units)
		case OpInsert:
			if cur == nil {
				cur = &Change{Start: pos, End: pos}
			}
			cur.New = append(cur.New, op.Units...)
		}
	}
	flush()
	return out
}

// Split breaks content into units. Joining the units yields content again.
func Split(unit Unit, content string) []string {
	if content == "" {
		return nil
	}
	if unit == UnitWord {
		return splitWords(content)
	}
	return splitLines(content)
}

func splitLines(content string) []string {
	units := make([]string, 0, strings.Count(content, "\n")+1)
	for len(content) > 0 {
		i := strings.IndexByte(content, '\n')
		if i < 0 {
			units = append(units, content)
			break
		}
		units = append(units, content[:i+1])
		content = content[i+1:]
	}
	return units
}

func splitWords(content string) []string {
	var units []string
	start := 0
	inSpace := false
	for i, r := range content {
		space := unicode.IsSpace(r)
		if i > 0 && space != inSpace {
			units = append(units, content[start:i])
			start = i
		}
		inSpace = space
	}
	return append(units, content[start:])
}

// canonical coalesces adjacent runs of the same type and orders every change
// block as deletes followed by inserts.
func canonical(ops []Op) []Op {
	out := make([]Op, 0, len(ops))
	var del, ins []string
	flush := func() {
		if len(del) > 0 {
			out = append(out, Op{Type: OpDelete, Units: del})
		}
		if len(ins) > 0 {
			out = append(out, Op{Type: OpInsert, Units: ins})
		}
		del, ins = nil, nil
	}
	for _, op := range ops {
		switch op.Type {
		case OpRetain:
			if op.Count == 0 {
				continue
			}
			flush()
			if n := len(out); n > 0 && out[n-1].Type == OpRetain {
				out[n-1].Count += op.Count
				continue
			}
			out = append(out, Op{Type: OpRetain, Count: op.Count})
		case OpDelete:
			del = append(del, op.Units...)
		case OpInsert:
			ins = append(ins, op.Units...)
		}
	}
	flush()
	return out
}

func cloneUnits(units []string) []string {
	if units == nil {
		return nil
	}
	out := make([]string, len(units))
	copy(out, units)
	return out
}
