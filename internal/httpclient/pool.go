// Package httpclient pools *http.Client instances per destination host.
// Go's http.Transport already does keep-alive connection pooling once a
// response body is closed, so this pool's only job is to avoid
// building a fresh Transport (and its connection cache) per task, kept
// in an RWMutex-guarded map keyed by scheme and host.
package httpclient

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/asyncreq/engine/internal/observability"
)

// Pool hands out a *http.Client per host:port:scheme, reusing the same
// client (and therefore the same underlying connection pool) for every
// request to that destination.
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*http.Client

	maxIdlePerHost int
	idleTimeout    time.Duration
}

// NewPool builds an empty pool. maxIdlePerHost and idleTimeout tune the
// per-host http.Transport; zero values fall back to Go's defaults.
func NewPool(maxIdlePerHost int, idleTimeout time.Duration) *Pool {
	return &Pool{
		clients:        make(map[string]*http.Client),
		maxIdlePerHost: maxIdlePerHost,
		idleTimeout:    idleTimeout,
	}
}

// Get returns the client for rawURL's host, creating one on first use.
// RedirectEngine handles redirects explicitly, so every returned client
// disables net/http's own automatic redirect following.
func (p *Pool) Get(rawURL string) (*http.Client, error) {
	key, err := hostKey(rawURL)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	c, ok := p.clients[key]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c = &http.Client{
		Transport: observability.InstrumentTransport(&http.Transport{
			MaxIdleConnsPerHost: p.maxIdlePerHost,
			IdleConnTimeout:     p.idleTimeout,
		}),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	p.clients[key] = c
	return c, nil
}

// Close idles out every pooled client's connections.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.CloseIdleConnections()
	}
	p.clients = make(map[string]*http.Client)
}

func hostKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}
