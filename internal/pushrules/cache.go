package pushrules

import (
	"sync"
)

// Cache holds the account's current push rules. The sync layer replaces the rule set
// whenever the server sends new push rules; the engine only reads from it.
type Cache struct {
	mu       sync.RWMutex
	ruleSet  *RuleSet
	ordered  []*Rule
	disabled map[string]struct{}
}

// NewCache returns an empty cache. An empty rule set never notifies.
func NewCache() *Cache {
	return &Cache{disabled: map[string]struct{}{}}
}

// Set validates and installs a new rule set.
func (c *Cache) Set(rs *RuleSet) error {
	if err := Validate(rs); err != nil {
		return err
	}
	ordered := rs.Ordered()
	disabled := RoomsWithDisabledPushRules(rs)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ruleSet = rs
	c.ordered = ordered
	c.disabled = disabled
	return nil
}

// RuleSet returns the installed rule set, or nil.
func (c *Cache) RuleSet() *RuleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ruleSet
}

// Rules returns the rules in evaluation order. Callers must not modify them.
func (c *Cache) Rules() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ordered
}

// NotificationsDisabled reports whether roomID is muted by a room mute override rule.
// The engine treats such rooms as having notifications disabled.
func (c *Cache) NotificationsDisabled(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.disabled[roomID]
	return ok
}
