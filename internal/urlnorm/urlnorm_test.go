package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRemote(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRemote("https://a.com/x.jpg"))
	assert.True(t, IsRemote("HTTP://a.com/x.jpg"))
	assert.False(t, IsRemote("/images/x.jpg"))
	assert.False(t, IsRemote("//a.com/x.jpg"))
	assert.False(t, IsRemote("data:image/png;base64,AAAA"))
	assert.False(t, IsRemote("ftp://a.com/x.jpg"))
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a.com", HostOf("https://A.com:8443/x.jpg"))
	assert.Equal(t, "a.com", HostOf("https://a.com/100%.png"))
	assert.Equal(t, "", HostOf("https://[::1/x"))
}

func TestInAllowlist(t *testing.T) {
	t.Parallel()

	assert.True(t, InAllowlist("https://b.com/x.jpg", nil))
	assert.True(t, InAllowlist("https://A.com/x.jpg", []string{"a.com"}))
	assert.True(t, InAllowlist("https://a.com/x.jpg", []string{" A.COM "}))
	assert.False(t, InAllowlist("https://b.com/x.jpg", []string{"a.com"}))
	assert.False(t, InAllowlist("https://cdn.a.com/x.jpg", []string{"a.com"}))
	assert.False(t, InAllowlist("https://[::1/x", []string{"a.com"}))
}

func TestSafeURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "https://a.com/x.jpg", "https://a.com/x.jpg"},
		{"space and unicode", "https://a.com/a b/图.png", "https://a.com/a%20b/%E5%9B%BE.png"},
		{"already encoded", "https://a.com/a%20b/%E5%9B%BE.png", "https://a.com/a%20b/%E5%9B%BE.png"},
		{"lower-case escapes", "https://a.com/%e5%9b%be.png", "https://a.com/%E5%9B%BE.png"},
		{"unreserved escape decoded", "https://a.com/%41.png", "https://a.com/A.png"},
		{"reserved escape kept", "https://a.com/a%2Fb.png", "https://a.com/a%2Fb.png"},
		{"stray percent", "https://a.com/100%.png", "https://a.com/100%25.png"},
		{"invalid utf-8 kept escaped", "https://a.com/%FF.png", "https://a.com/%FF.png"},
		{"scheme and host case", "HTTPS://A.COM/X.jpg", "https://a.com/X.jpg"},
		{"default port", "http://a.com:80/x.jpg", "http://a.com/x.jpg"},
		{"custom port", "https://a.com:8443/x.jpg", "https://a.com:8443/x.jpg"},
		{"empty path", "https://a.com", "https://a.com/"},
		{"query and fragment", "https://a.com/x.jpg?w=1&h=2#top", "https://a.com/x.jpg?w=1&h=2#top"},
		{"trimmed", "  https://a.com/x.jpg  ", "https://a.com/x.jpg"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SafeURL(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			again, err := SafeURL(got)
			require.NoError(t, err)
			assert.Equal(t, got, again, "normalization must be idempotent")
		})
	}
}

func TestSafeURLRejectsHostless(t *testing.T) {
	t.Parallel()

	_, err := SafeURL("https:///x.jpg")
	require.Error(t, err)

	_, err = SafeURL("https://[::1/x")
	require.Error(t, err)
}

func TestCacheKeyStripQuery(t *testing.T) {
	t.Parallel()

	a1, err := CacheKey("https://a.com/x.jpg?v=1", false)
	require.NoError(t, err)
	a2, err := CacheKey("https://a.com/x.jpg?v=2", false)
	require.NoError(t, err)
	assert.NotEqual(t, a1, a2)

	b1, err := CacheKey("https://a.com/x.jpg?v=1", true)
	require.NoError(t, err)
	b2, err := CacheKey("https://a.com/x.jpg?v=2", true)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
	assert.Equal(t, "https://a.com/x.jpg", b1)

	c, err := CacheKey("https://a.com/a b.jpg", false)
	require.NoError(t, err)
	assert.Equal(t, "https://a.com/a%20b.jpg", c)
}
