package diff

import (
	"fmt"
	"strings"
)

// Patch applies s to old. Retained and deleted units are checked against old;
// any disagreement returns ErrPatchMismatch.
func Patch(old string, s Script) (string, error) {
	units := Split(s.Unit, old)
	var b strings.Builder
	b.Grow(len(old))

	pos := 0
	for i, op := range s.Ops {
		switch op.Type {
		case OpRetain:
			if op.Count < 0 || pos+op.Count > len(units) {
				return "", fmt.Errorf("%w: op %d retains %d units at %d of %d", ErrPatchMismatch, i, op.Count, pos, len(units))
			}
			for _, u := range units[pos : pos+op.Count] {
				b.WriteString(u)
			}
			pos += op.Count
		case OpDelete:
			for _, u := range op.Units {
				if pos >= len(units) || units[pos] != u {
					return "", fmt.Errorf("%w: op %d deletes %q at unit %d", ErrPatchMismatch, i, u, pos)
				}
				pos++
			}
		case OpInsert:
			for _, u := range op.Units {
				b.WriteString(u)
			}
		default:
			return "", fmt.Errorf("%w: op %d has unknown type %q", ErrPatchMismatch, i, op.Type)
		}
	}
	if pos != len(units) {
		return "", fmt.Errorf("%w: script covers %d of %d units", ErrPatchMismatch, pos, len(units))
	}
	return b.String(), nil
}
