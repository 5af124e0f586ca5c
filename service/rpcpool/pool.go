package rpcpool

import (
	"fmt"
	"strings"
)

// Pool is an immutable set of RPC endpoint URLs for one logical network.
// Selection is randomized per call; the order of URLs carries no meaning.
type Pool struct {
	urls []string
}

// NewPool creates a pool from the given endpoint URLs. Blank entries are
// dropped. Constructing a pool with zero usable endpoints fails with
// ErrInvalidConfiguration.
func NewPool(urls []string) (*Pool, error) {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u != "" {
			cleaned = append(cleaned, u)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: endpoint pool must contain at least one URL", ErrInvalidConfiguration)
	}
	return &Pool{urls: cleaned}, nil
}

// Size returns the number of endpoints in the pool.
func (p *Pool) Size() int {
	return len(p.urls)
}

// URLs returns a copy of the endpoint URLs.
func (p *Pool) URLs() []string {
	out := make([]string, len(p.urls))
	copy(out, p.urls)
	return out
}
