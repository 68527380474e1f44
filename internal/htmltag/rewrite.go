package htmltag

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrOverlappingSpans is returned when two replacements cover the same bytes.
var ErrOverlappingSpans = errors.New("overlapping replacement spans")

// Replacement substitutes doc[Start:End] with Text.
type Replacement struct {
	Start int
	End   int
	Text  string
}

// Apply splices replacements into doc. Input order does not matter; spans
// must lie within doc and must not overlap.
func Apply(doc string, reps []Replacement) (string, error) {
	if len(reps) == 0 {
		return doc, nil
	}
	sorted := slices.Clone(reps)
	slices.SortFunc(sorted, func(a, b Replacement) int { return a.Start - b.Start })

	var b strings.Builder
	b.Grow(len(doc))
	last := 0
	for _, r := range sorted {
		if r.Start < last || r.End < r.Start || r.End > len(doc) {
			return "", fmt.Errorf("%w: [%d,%d) after offset %d", ErrOverlappingSpans, r.Start, r.End, last)
		}
		b.WriteString(doc[last:r.Start])
		b.WriteString(r.Text)
		last = r.End
	}
	b.WriteString(doc[last:])
	return b.String(), nil
}
