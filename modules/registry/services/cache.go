package services

import "sync"

// runCache keeps the last computed run until a write invalidates it.
type runCache struct {
	mu  sync.RWMutex
	run *Run
}

func (c *runCache) Get() (*Run, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run, c.run != nil
}

func (c *runCache) Set(run *Run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run = run
}

func (c *runCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run = nil
}
