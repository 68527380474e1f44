package htmltag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTagReadsAttributes(t *testing.T) {
	t.Parallel()

	tag := ParseTag(`<IMG SRC=" https://a.com/x.jpg " alt="a &amp; b" width="10" height="20">`)
	require.True(t, tag.Valid())
	assert.Equal(t, "https://a.com/x.jpg", tag.Src())
	alt, ok := tag.Get("alt")
	require.True(t, ok)
	assert.Equal(t, "a & b", alt)
	assert.True(t, tag.HasSize())
	w, h, ok := tag.NumericSize()
	require.True(t, ok)
	assert.Equal(t, 10, w)
	assert.Equal(t, 20, h)
}

func TestParseTagMalformed(t *testing.T) {
	t.Parallel()

	tag := ParseTag(`<div>`)
	assert.False(t, tag.Valid())
	assert.Equal(t, "", tag.Src())
}

func TestSizeChecks(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  bool
	}{
		{"none", `<img src="x">`, false},
		{"width only", `<img src="x" width="10">`, false},
		{"both numeric", `<img src="x" width="10" height="5">`, true},
		{"padded", `<img src="x" width=" 10 " height="5">`, true},
		{"percent", `<img src="x" width="100%" height="5">`, false},
		{"auto", `<img src="x" width="auto" height="auto">`, false},
		{"empty values", `<img src="x" width="" height="">`, false},
		{"zero", `<img src="x" width="0" height="5">`, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tag := ParseTag(tc.input)
			assert.Equal(t, tc.want, tag.HasSize())
			_, _, ok := tag.NumericSize()
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestSetSizeAppendsAndUpdates(t *testing.T) {
	t.Parallel()

	tag := ParseTag(`<img src="https://a.com/x.jpg">`)
	tag.SetSize(800, 600)
	assert.Equal(t, `<img src="https://a.com/x.jpg" width="800" height="600">`, tag.String())

	tag = ParseTag(`<img width="1" src="y.png" loading="lazy"/>`)
	tag.SetSize(3, 4)
	assert.Equal(t, `<img width="3" src="y.png" loading="lazy" height="4"/>`, tag.String())
}
