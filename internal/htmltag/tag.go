package htmltag

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Tag is a parsed image tag. Attribute order follows the input.
type Tag struct {
	attrs       []html.Attribute
	selfClosing bool
	valid       bool
}

// ParseTag tokenizes a single tag. Malformed input yields a tag without
// attributes rather than an error.
func ParseTag(text string) Tag {
	z := html.NewTokenizer(strings.NewReader(text))
	switch tt := z.Next(); tt {
	case html.StartTagToken, html.SelfClosingTagToken:
		tok := z.Token()
		if tok.Data != "img" {
			return Tag{}
		}
		return Tag{
			attrs:       tok.Attr,
			selfClosing: tt == html.SelfClosingTagToken,
			valid:       true,
		}
	default:
		return Tag{}
	}
}

// Get returns the first value of the named attribute.
func (t Tag) Get(key string) (string, bool) {
	for _, a := range t.attrs {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Src returns the trimmed src attribute.
func (t Tag) Src() string {
	v, _ := t.Get("src")
	return strings.TrimSpace(v)
}

// HasSize reports whether width and height both hold positive integers.
// Values such as "100%" or "auto" do not count as a size.
func (t Tag) HasSize() bool {
	_, _, ok := t.NumericSize()
	return ok
}

// NumericSize parses width and height as positive integers.
func (t Tag) NumericSize() (width, height int, ok bool) {
	w, _ := t.Get("width")
	h, _ := t.Get("height")
	width, werr := strconv.Atoi(strings.TrimSpace(w))
	height, herr := strconv.Atoi(strings.TrimSpace(h))
	if werr != nil || herr != nil || width <= 0 || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}

// Set updates the first occurrence of key or appends it.
func (t *Tag) Set(key, val string) {
	for i := range t.attrs {
		if t.attrs[i].Namespace == "" && t.attrs[i].Key == key {
			t.attrs[i].Val = val
			return
		}
	}
	t.attrs = append(t.attrs, html.Attribute{Key: key, Val: val})
}

// SetSize writes width and height.
func (t *Tag) SetSize(width, height int) {
	t.Set("width", strconv.Itoa(width))
	t.Set("height", strconv.Itoa(height))
}

// String serializes the tag with escaped, double-quoted attribute values.
func (t Tag) String() string {
	tok := html.Token{Type: html.StartTagToken, Data: "img", Attr: t.attrs}
	if t.selfClosing {
		tok.Type = html.SelfClosingTagToken
	}
	return tok.String()
}

// Valid reports whether the text parsed as an img start tag.
func (t Tag) Valid() bool {
	return t.valid
}
