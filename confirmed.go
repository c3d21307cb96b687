package replog

import "sync"

// ConfirmedLog is the master's record of what one secondary acknowledged.
// Membership is full-record equality, bucketed by Digest.
type ConfirmedLog struct {
	mu      sync.RWMutex
	buckets map[uint64][]Record
	n       int
}

func NewConfirmedLog() *ConfirmedLog {
	return &ConfirmedLog{buckets: make(map[uint64][]Record)}
}

// Add records rec as acknowledged. It reports false if rec was already present.
func (c *ConfirmedLog) Add(rec Record) bool {
	d := rec.Digest()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.buckets[d] {
		if r == rec {
			return false
		}
	}
	c.buckets[d] = append(c.buckets[d], rec)
	c.n++
	return true
}

func (c *ConfirmedLog) Contains(rec Record) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.containsLocked(rec)
}

func (c *ConfirmedLog) containsLocked(rec Record) bool {
	for _, r := range c.buckets[rec.Digest()] {
		if r == rec {
			return true
		}
	}
	return false
}

func (c *ConfirmedLog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.n
}

// Missing returns the records of master that were never acknowledged,
// preserving master order.
func (c *ConfirmedLog) Missing(master []Record) []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Record
	for _, rec := range master {
		if !c.containsLocked(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Covers reports whether every record of master has been acknowledged.
func (c *ConfirmedLog) Covers(master []Record) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, rec := range master {
		if !c.containsLocked(rec) {
			return false
		}
	}
	return true
}
