package tracker

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// DefaultPoolLimit bounds how many credential sets a Pool keeps clients
// for. Per-request credential overrides would otherwise grow it forever.
const DefaultPoolLimit = 32

// Pool hands out one Client per credential set so field resolutions are
// shared across runs. The least recently used client is dropped once the
// limit is reached.
type Pool struct {
	mu      sync.Mutex
	limit   int
	clients map[string]*list.Element
	order   *list.List
	opts    []Option
}

type pooled struct {
	key    string
	client *Client
}

// NewPool creates a pool of at most DefaultPoolLimit clients built with opts.
func NewPool(opts ...Option) *Pool {
	return NewPoolLimit(DefaultPoolLimit, opts...)
}

// NewPoolLimit is NewPool with an explicit limit. A limit below one is
// treated as one.
func NewPoolLimit(limit int, opts ...Option) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{
		limit:   limit,
		clients: make(map[string]*list.Element),
		order:   list.New(),
		opts:    opts,
	}
}

// Get returns the client for the given credentials, creating it once.
func (p *Pool) Get(server, user, token string) *Client {
	key := poolKey(server, user, token)
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.clients[key]; ok {
		p.order.MoveToFront(el)
		return el.Value.(*pooled).client
	}
	c := New(server, user, token, p.opts...)
	p.clients[key] = p.order.PushFront(&pooled{key: key, client: c})
	for p.order.Len() > p.limit {
		oldest := p.order.Back()
		p.order.Remove(oldest)
		delete(p.clients, oldest.Value.(*pooled).key)
	}
	return c
}

// Len returns the number of distinct clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

// poolKey avoids keeping raw tokens as map keys.
func poolKey(server, user, token string) string {
	h := sha256.Sum256([]byte(strings.TrimRight(server, "/") + "\x00" + user + "\x00" + token))
	return hex.EncodeToString(h[:])
}
