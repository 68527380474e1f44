// Package urlnorm canonicalizes image URLs for network requests and cache lookups.
package urlnorm

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode/utf8"
)

const upperhex = "0123456789ABCDEF"

// reserved escapes are left encoded when a path is decoded.
const reserved = ";/?:@&=+$,#%"

// IsRemote reports whether raw starts with an http or https scheme.
func IsRemote(raw string) bool {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// HostOf returns the lower-cased hostname of raw, or "" when it does not parse.
func HostOf(raw string) string {
	u, err := parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// InAllowlist reports whether raw may be processed. An empty list allows every host.
func InAllowlist(raw string, allow []string) bool {
	if len(allow) == 0 {
		return true
	}
	host := HostOf(raw)
	if host == "" {
		return false
	}
	for _, entry := range allow {
		if strings.EqualFold(strings.TrimSpace(entry), host) {
			return true
		}
	}
	return false
}

// SafeURL returns raw with a validly escaped path. Escapes that decode to
// reserved characters are kept, everything else is decoded and re-encoded,
// so already-encoded and already-decoded inputs converge on one form.
func SafeURL(raw string) (string, error) {
	u, err := parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", raw)
	}
	u.Host = canonicalHost(u.Scheme, u.Host)

	escaped := u.EscapedPath()
	path, ok := decodeURI(escaped)
	if ok {
		path = encodeURI(path)
	} else {
		path = encodeURI(escaped)
	}
	if path == "" {
		path = "/"
	}
	plain, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	u.Path = plain
	u.RawPath = path
	return u.String(), nil
}

// CacheKey is the only string used to index the dimension cache. With
// stripQuery set, URLs that differ only by query share a key.
func CacheKey(raw string, stripQuery bool) (string, error) {
	safe, err := SafeURL(raw)
	if err != nil {
		return "", err
	}
	if !stripQuery {
		return safe, nil
	}
	u, err := url.Parse(safe)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	u.RawQuery = ""
	u.ForceQuery = false
	return u.String(), nil
}

// parse accepts stray percent signs by escaping them and retrying once.
func parse(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err == nil {
		return u, nil
	}
	u, retryErr := url.Parse(escapeStrayPercent(raw))
	if retryErr != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	return u, nil
}

func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}

// decodeURI decodes percent escapes except those naming reserved
// characters. It fails on malformed escapes or invalid UTF-8.
func decodeURI(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
			return "", false
		}
		v := unhex(s[i+1])<<4 | unhex(s[i+2])
		if v < utf8.RuneSelf && strings.IndexByte(reserved, v) >= 0 {
			b.WriteString(s[i : i+3])
		} else {
			b.WriteByte(v)
		}
		i += 2
	}
	out := b.String()
	if !utf8.ValidString(out) {
		return "", false
	}
	return out, true
}

// encodeURI escapes every byte outside the URI-safe set. Existing escape
// triplets are kept and stray percent signs become %25. Question marks and
// hashes are escaped because they would end the path.
func encodeURI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteString(s[i : i+3])
			i += 2
		case safeByte(c):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&15])
		}
	}
	return b.String()
}

func escapeStrayPercent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && (i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2])) {
			b.WriteString("%25")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func safeByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte(";,/:@&=+$-_.!~*'()", c) >= 0
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
