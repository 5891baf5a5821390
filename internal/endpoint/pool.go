// Package endpoint tracks the ordered set of interchangeable RPC endpoints and which one is active.
package endpoint

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ErrEmptyPool is returned when a pool is configured without endpoints.
var ErrEmptyPool = errors.New("endpoint pool needs at least one endpoint")

// Pool holds a fixed endpoint sequence and a cursor that only ever moves forward, wrapping at the end.
type Pool struct {
	mu     sync.Mutex
	urls   []string
	cursor int
}

// New copies urls into a pool positioned at the first entry.
func New(urls []string) (*Pool, error) {
	if len(urls) == 0 {
		return nil, ErrEmptyPool
	}
	out := make([]string, len(urls))
	for i, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			return nil, fmt.Errorf("endpoint %d is blank", i)
		}
		out[i] = u
	}
	return &Pool{urls: out}, nil
}

// Current returns the active endpoint.
func (p *Pool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.urls[p.cursor]
}

// Index returns the cursor position of the active endpoint.
func (p *Pool) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Len reports how many endpoints the pool was configured with.
func (p *Pool) Len() int { return len(p.urls) }

// Rotate advances to the next endpoint and returns it. A single-entry pool rotates to itself.
func (p *Pool) Rotate() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = (p.cursor + 1) % len(p.urls)
	return p.urls[p.cursor]
}

// Redact reduces an endpoint to scheme and host. Providers put API keys in the userinfo, path or
// query, so only the redacted form may reach logs, metrics or the journal.
func Redact(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "redacted"
	}
	return u.Scheme + "://" + u.Host
}
