// Package urlnorm normalizes URLs into the canonical form used as a
// PageCandidate's dedup key and as a Company's canonical website.
package urlnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize lowercases scheme and host, strips a default port, strips the
// fragment, and preserves a trailing slash on the path only if the input
// already had one. Normalize is idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if host, port, ok := strings.Cut(u.Host, ":"); ok {
		if defaultPorts[u.Scheme] == port {
			u.Host = host
		}
	}

	hadTrailingSlash := strings.HasSuffix(u.Path, "/") && u.Path != "/"
	if u.Path != "" && u.Path != "/" {
		cleaned := path.Clean(u.Path)
		if hadTrailingSlash && !strings.HasSuffix(cleaned, "/") {
			cleaned += "/"
		}
		u.Path = cleaned
	}

	return u.String(), nil
}

// Site returns the scheme+host canonical form of a URL, used as a
// Company's website identity key.
func Site(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if host, port, ok := strings.Cut(u.Host, ":"); ok {
		if defaultPorts[u.Scheme] == port {
			u.Host = host
		}
	}
	return u.Scheme + "://" + u.Host, nil
}

// CanonicalKey builds the dedup key the Research Orchestrator uses to
// detect re-research of the same (name, website) pair: the lowercased
// trimmed name joined to the canonical site.
func CanonicalKey(name, website string) (string, error) {
	site, err := Site(website)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(name)) + "|" + site, nil
}

// CompanyID derives a stable Company id from its canonical (name,
// website) identity, so re-research of the same company replaces rather
// than duplicates its vector-store point and document.
func CompanyID(name, website string) (string, error) {
	key, err := CanonicalKey(name, website)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(key))
	return "company_" + hex.EncodeToString(sum[:])[:24], nil
}

// SameRegistrableDomain reports whether two hosts share a registrable
// domain, approximated here as the last two labels (example.com,
// sub.example.com both match example.com; this does not consult a public
// suffix list, which is an acceptable simplification for a crawl-scoping
// check rather than a security boundary).
func SameRegistrableDomain(a, b string) bool {
	return registrable(a) == registrable(b)
}

func registrable(host string) string {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

var assetExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".zip": true, ".svg": true, ".ico": true, ".css": true, ".js": true,
	".mp4": true, ".mp3": true, ".woff": true, ".woff2": true, ".xml": true,
	".gz": true, ".tar": true, ".doc": true, ".docx": true, ".ppt": true,
	".pptx": true,
}

// IsAsset reports whether a URL's path extension marks it as a binary
// asset that should not be treated as a crawlable page.
func IsAsset(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	return assetExtensions[ext]
}

var noisePathFragments = []string{
	"/login", "/signin", "/sign-in", "/cart", "/checkout", "/logout",
	"/search?", "/search-results", "/wp-admin", "/wp-login",
}

// IsNoise reports whether a URL's path matches a known low-value pattern
// (login, cart, search-result fragments) that should be excluded from
// discovery.
func IsNoise(raw string) bool {
	lower := strings.ToLower(raw)
	for _, frag := range noisePathFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
