package httpapi

import (
	"sync"

	"github.com/r3e-network/sfnc/domain/serializer"
	"github.com/r3e-network/sfnc/hostlang"
)

// CompileResult is what a successful /compile request caches, and what
// GET /machines/:name and GET /machines/:name/ast serve back.
type CompileResult struct {
	Name         string
	Program      *hostlang.Program
	Document     *serializer.Document
	ReturnSchema []string
}

// resultCache holds the most recent CompileResult per machine name, in
// memory, for the lifetime of one server process.
type resultCache struct {
	mu      sync.RWMutex
	results map[string]*CompileResult
}

func newResultCache() *resultCache {
	return &resultCache{results: make(map[string]*CompileResult)}
}

func (c *resultCache) put(r *CompileResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[r.Name] = r
}

func (c *resultCache) get(name string) (*CompileResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[name]
	return r, ok
}

func (c *resultCache) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}
