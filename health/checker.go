package health

import (
	"slices"
	"sync"
)

// Check reports the current status of one dependency. It must not block.
type Check func() Status

// Checker polls registered checks on demand and aggregates their results.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// Register adds or replaces the check for name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Remove deletes the check for name.
func (c *Checker) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Names lists registered checks in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run executes every check and aggregates them under system. Sub-statuses
// are ordered by check name.
func (c *Checker) Run(system string) Status {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	slices.Sort(names)
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		s := checks[name]()
		if s.Component == "" {
			s.Component = name
		}
		statuses = append(statuses, s)
	}
	return Aggregate(system, statuses)
}
