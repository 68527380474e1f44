// Package htmltag finds, parses, and rewrites <img> tags in raw HTML without
// building a DOM. Bytes outside matched tags are never touched.
package htmltag

import (
	"iter"
	"regexp"
)

var imgTagPattern = regexp.MustCompile(`(?i)<img\b[^>]*>`)

// Match is one image tag occurrence, spanning doc[Start:End].
type Match struct {
	Text  string
	Start int
	End   int
}

// Scan yields every image opening tag in document order. The sequence is lazy
// and can be ranged over more than once.
func Scan(doc string) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		offset := 0
		for offset < len(doc) {
			loc := imgTagPattern.FindStringIndex(doc[offset:])
			if loc == nil {
				return
			}
			start, end := offset+loc[0], offset+loc[1]
			if !yield(Match{Text: doc[start:end], Start: start, End: end}) {
				return
			}
			offset = end
		}
	}
}
