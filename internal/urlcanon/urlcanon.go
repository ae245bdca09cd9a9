// Package urlcanon canonicalizes URLs the way the crawl controller needs:
// absolute http:// URLs are normalized to "host/path"; relative references
// are resolved against an already-canonical referrer. https://, file:// and
// ftp:// URLs are rejected outright, as are TLS endpoints in general — this
// crawler never speaks TLS.
//
// Canonical form never includes a scheme, a query string, or a fragment,
// and never percent-decodes or lowercases anything: two URLs are equal iff
// their canonical strings are byte-equal.
package urlcanon

import "strings"

const (
	httpsScheme = "https://"
	httpScheme  = "http://"
	fileScheme  = "file://"
	ftpScheme   = "ftp://"
)

// FixURL canonicalizes raw, resolving it against referrer when raw is not
// itself an absolute http:// URL. referrer, when non-empty, must already be
// in canonical "host/path" form; passing an uncanonicalized referrer is
// undefined (see SPEC_FULL.md §9). FixURL reports false when raw
// cannot be resolved to an http(s)-free canonical URL.
func FixURL(raw, referrer string) (string, bool) {
	if raw == "" {
		return "", false
	}

	if strings.HasPrefix(raw, httpsScheme) || strings.HasPrefix(raw, fileScheme) || strings.HasPrefix(raw, ftpScheme) {
		return "", false
	}

	if strings.HasPrefix(raw, httpScheme) {
		return fixAbsolute(raw)
	}

	if referrer == "" {
		return "", false
	}
	return fixRelative(raw, referrer)
}

func fixAbsolute(raw string) (string, bool) {
	rest := raw[len(httpScheme):]

	hostEnd := strings.IndexByte(rest, '/')
	var host, requestPart string
	if hostEnd < 0 {
		host = rest
		requestPart = "/"
	} else {
		host = rest[:hostEnd]
		requestPart = rest[hostEnd:]
	}

	if host == "" {
		return "", false
	}

	return host + stripQueryAndFragment(requestPart), true
}

func fixRelative(raw, referrer string) (string, bool) {
	host, path := splitHostPath(referrer)
	if host == "" {
		return "", false
	}

	raw = stripQueryAndFragment(raw)

	if strings.HasPrefix(raw, "/") {
		return host + raw, true
	}

	n := 0
	for strings.HasPrefix(raw, "../") {
		raw = raw[len("../"):]
		n++
	}

	dir := dirOf(path)
	for i := 0; i < n; i++ {
		dir = upOne(dir)
	}

	return host + dir + raw, true
}

// ParseHost returns the host portion of a canonical "host/path" URL.
func ParseHost(url string) string {
	host, _ := splitHostPath(url)
	return host
}

// ParsePath returns the path portion of a canonical "host/path" URL,
// defaulting to "/" if the URL carries no path at all.
func ParsePath(url string) string {
	_, path := splitHostPath(url)
	return path
}

// ParsePort always returns 80: the reference canonicalizer never parses an
// explicit port out of the URL (see DESIGN.md Open Questions). The fetch
// engine does its own host:port splitting for dialing purposes, entirely
// independent of this function.
func ParsePort(url string) uint16 {
	return 80
}

func splitHostPath(url string) (host, path string) {
	i := strings.IndexByte(url, '/')
	if i < 0 {
		return url, "/"
	}
	return url[:i], url[i:]
}

func stripQueryAndFragment(s string) string {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return s
}

// dirOf returns the directory containing the last path segment, including
// the trailing slash. For a path already ending in "/", dirOf is the
// identity.
func dirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "/"
	}
	return path[:i+1]
}

// upOne strips one trailing directory segment from dir, clamping at root.
func upOne(dir string) string {
	trimmed := strings.TrimSuffix(dir, "/")
	i := strings.LastIndexByte(trimmed, '/')
	if i < 0 {
		return "/"
	}
	return trimmed[:i+1]
}
