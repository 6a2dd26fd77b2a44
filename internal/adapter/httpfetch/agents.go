package httpfetch

import (
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
)

var browserUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// Rotator hands out proxies round-robin and picks the User-Agent header.
type Rotator struct {
	proxies    []*url.URL
	userAgent  string
	mu         sync.Mutex
	proxyIndex int
}

// NewRotator parses the proxy list. A non-empty userAgent is always used; otherwise a browser
// agent is chosen at random per request.
func NewRotator(proxies []string, userAgent string) (*Rotator, error) {
	r := &Rotator{userAgent: userAgent}
	for _, p := range proxies {
		u, err := url.Parse(p)
		if err != nil {
			return nil, err
		}
		r.proxies = append(r.proxies, u)
	}
	return r, nil
}

// Proxy is usable as http.Transport.Proxy.
func (r *Rotator) Proxy(_ *http.Request) (*url.URL, error) {
	if len(r.proxies) == 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	proxy := r.proxies[r.proxyIndex]
	r.proxyIndex = (r.proxyIndex + 1) % len(r.proxies)
	return proxy, nil
}

// UserAgent returns the header value for the next request.
func (r *Rotator) UserAgent() string {
	if r.userAgent != "" {
		return r.userAgent
	}
	return browserUserAgents[rand.IntN(len(browserUserAgents))]
}
