package claude

import (
	"context"
	"fmt"
	"sync"
)

// Pool rotates across pre-constructed clients so concurrent jobs spread load
// over the shared credential. Acquire hands out clients in strict round-robin
// order; it never blocks beyond the rotation lock and never fails.
//
// A client may be handed to a second job while the first job's request on it
// is still in flight. The remote service, not the pool, has to tolerate
// concurrent use of one credential.
type Pool struct {
	mu      sync.Mutex
	clients []*Client
	next    int
}

// NewPool constructs size clients up front, paying organization resolution
// once per client at startup.
func NewPool(ctx context.Context, size int, opts Options) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("claude: pool size must be at least 1, got %d", size)
	}
	clients := make([]*Client, 0, size)
	for i := 0; i < size; i++ {
		c, err := NewClient(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("claude: construct pool client %d: %w", i, err)
		}
		clients = append(clients, c)
	}
	return &Pool{clients: clients}, nil
}

// NewPoolWithClients wraps already-constructed clients. Intended for tests.
func NewPoolWithClients(clients ...*Client) *Pool {
	return &Pool{clients: clients}
}

// Acquire returns the next client in rotation.
func (p *Pool) Acquire() *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.clients[p.next]
	p.next = (p.next + 1) % len(p.clients)
	return c
}

// Size reports the fixed number of pooled clients.
func (p *Pool) Size() int {
	return len(p.clients)
}
