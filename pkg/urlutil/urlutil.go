// Package urlutil canonicalizes and classifies URLs discovered during a crawl.
package urlutil

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"
)

var skippedSchemes = []string{"mailto:", "javascript:", "tel:", "sms:", "data:", "ftp:", "file:", "about:"}

var trackingParams = map[string]bool{
	"gclid":   true,
	"dclid":   true,
	"fbclid":  true,
	"msclkid": true,
	"yclid":   true,
	"mc_cid":  true,
	"mc_eid":  true,
	"_ga":     true,
	"_gl":     true,
	"igshid":  true,
}

var assetExtensions = []string{
	".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".avif",
	".pdf", ".zip", ".gz", ".exe", ".dmg", ".mp3", ".mp4", ".webm", ".woff", ".woff2", ".ttf",
	".xml", ".json", ".txt", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
}

// HashURL creates a SHA256 hash of a URL string.
// Used as a fixed-width index key for arbitrarily long URLs.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize resolves rawURL against baseURL (which may be empty for absolute input) and returns
// its canonical form. The second return value is false when the URL cannot be crawled at all.
func Normalize(rawURL, baseURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || ShouldSkip(rawURL) {
		return "", false
	}

	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	u := ref
	if !ref.IsAbs() {
		if baseURL == "" {
			// Bare hosts such as "example.com/path" are accepted for seeds.
			if strings.HasPrefix(rawURL, "/") {
				return "", false
			}
			u, err = url.Parse("https://" + rawURL)
			if err != nil {
				return "", false
			}
		} else {
			base, err := url.Parse(baseURL)
			if err != nil {
				return "", false
			}
			u = base.ResolveReference(ref)
		}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		// IPv6 literal
		host = "[" + host + "]"
	}

	out := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     cleanPath(u.Path),
		RawQuery: cleanQuery(u.Query()),
	}
	return out.String(), true
}

// ExtractHost returns the lowercased hostname without a leading "www.".
func ExtractHost(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	if u.Host == "" && !strings.Contains(rawURL, "://") {
		if u, err = url.Parse("https://" + strings.TrimSpace(rawURL)); err != nil {
			return ""
		}
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// IsInternal reports whether rawURL belongs to the audited site. host must come from ExtractHost.
func IsInternal(rawURL, host string) bool {
	return host != "" && ExtractHost(rawURL) == host
}

// ShouldSkip reports hrefs that never become crawlable links: fragments and non-web schemes.
func ShouldSkip(rawURL string) bool {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	if s == "" || strings.HasPrefix(s, "#") {
		return true
	}
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}

// IsLikelyAsset reports URLs whose path extension marks them as non-HTML resources.
func IsLikelyAsset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, a := range assetExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// cleanPath collapses repeated slashes, resolves dot segments and drops the trailing slash
// everywhere except the root.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	p = path.Clean(p)
	if p == "." {
		return "/"
	}
	return p
}

func cleanQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
