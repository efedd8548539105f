package diff

import (
	"fmt"
	"strings"
)

// LineKind marks a rendered line as context, addition or removal.
type LineKind byte

const (
	LineContext LineKind = ' '
	LineAdded   LineKind = '+'
	LineRemoved LineKind = '-'
)

// Line is one rendered unit of a hunk.
type Line struct {
	Kind LineKind `json:"kind"`
	Text string   `json:"text"`
}

// Hunk is a group of nearby changes with surrounding context.
type Hunk struct {
	OldStart int    `json:"old_start"`
	OldCount int    `json:"old_count"`
	NewStart int    `json:"new_start"`
	NewCount int    `json:"new_count"`
	Lines    []Line `json:"lines"`
}

type rendered struct {
	Line
	oldPos int
	newPos int
}

// Hunks groups the changes of s into hunks with context units on each side.
// old must be the content the script was computed from.
func (s Script) Hunks(old string, context int) ([]Hunk, error) {
	if context < 0 {
		context = 0
	}
	units := Split(s.Unit, old)

	var all []rendered
	oldPos, newPos := 0, 0
	for _, op := range s.Ops {
		switch op.Type {
		case OpRetain:
			if oldPos+op.Count > len(units) {
				return nil, ErrPatchMismatch
			}
			for _, u := range units[oldPos : oldPos+op.Count] {
				all = append(all, rendered{Line{LineContext, u}, oldPos, newPos})
				oldPos++
				newPos++
			}
		case OpDelete:
			for _, u := range op.Units {
				all = append(all, rendered{Line{LineRemoved, u}, oldPos, newPos})
				oldPos++
			}
		case OpInsert:
			for _, u := range op.Units {
				all = append(all, rendered{Line{LineAdded, u}, oldPos, newPos})
				newPos++
			}
		}
	}

	var hunks []Hunk
	for i := 0; i < len(all); {
		if all[i].Kind == LineContext {
			i++
			continue
		}
		start := max(i-context, 0)
		end := i
		// Extend while the next change is within two context windows.
		for j := i; j < len(all); j++ {
			if all[j].Kind != LineContext {
				end = j
				continue
			}
			if j-end > 2*context {
				break
			}
		}
		stop := min(end+context+1, len(all))
		hunks = append(hunks, buildHunk(all[start:stop]))
		i = stop
	}
	return hunks, nil
}

func buildHunk(lines []rendered) Hunk {
	h := Hunk{
		OldStart: lines[0].oldPos + 1,
		NewStart: lines[0].newPos + 1,
		Lines:    make([]Line, 0, len(lines)),
	}
	for _, l := range lines {
		switch l.Kind {
		case LineContext:
			h.OldCount++
			h.NewCount++
		case LineRemoved:
			h.OldCount++
		case LineAdded:
			h.NewCount++
		}
		h.Lines = append(h.Lines, l.Line)
	}
	return h
}

// Format renders s against old in unified diff form.
func Format(old string, s Script, context int) (string, error) {
	hunks, err := s.Hunks(old, context)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, h := range hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			text := strings.TrimSuffix(l.Text, "\n")
			b.WriteByte(byte(l.Kind))
			b.WriteString(text)
			b.WriteByte('\n')
			if s.Unit == UnitLine && !strings.HasSuffix(l.Text, "\n") {
				b.WriteString("\\ No newline at end of file\n")
			}
		}
	}
	return b.String(), nil
}
