package cluster

import (
	"sync"

	"github.com/unkn0wn-root/replog"
)

// Descriptor is the master's view of one secondary.
type Descriptor struct {
	Addr                string        `json:"addr"`
	Health              replog.Health `json:"health"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}

type member struct {
	desc      Descriptor
	confirmed *replog.ConfirmedLog
}

// Registry holds one descriptor and one confirmed log per configured
// secondary. Members are fixed at construction and never removed.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	members map[string]*member
}

// NewRegistry creates a registry with every address HEALTHY. Duplicate
// addresses collapse onto the first occurrence.
func NewRegistry(addrs []string) *Registry {
	r := &Registry{members: make(map[string]*member, len(addrs))}
	for _, a := range addrs {
		if _, ok := r.members[a]; ok {
			continue
		}
		r.order = append(r.order, a)
		r.members[a] = &member{
			desc:      Descriptor{Addr: a, Health: replog.Healthy},
			confirmed: replog.NewConfirmedLog(),
		}
	}
	return r
}

// Addrs returns the secondaries in configured order.
func (r *Registry) Addrs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Health(addr string) (replog.Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[addr]
	if !ok {
		return replog.Unhealthy, false
	}
	return m.desc.Health, true
}

// HealthyCount is what quorum is checked against. SUSPECTED does not count.
func (r *Registry) HealthyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.members {
		if m.desc.Health == replog.Healthy {
			n++
		}
	}
	return n
}

// Eligible returns the secondaries a new write is dispatched to: every one
// that is not UNHEALTHY, in configured order.
func (r *Registry) Eligible() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, a := range r.order {
		if r.members[a].desc.Health != replog.Unhealthy {
			out = append(out, a)
		}
	}
	return out
}

// Snapshot copies every descriptor in configured order.
func (r *Registry) Snapshot() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, a := range r.order {
		out = append(out, r.members[a].desc)
	}
	return out
}

// Confirmed returns the log of records addr acknowledged, or nil for an
// unknown address.
func (r *Registry) Confirmed(addr string) *replog.ConfirmedLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.members[addr]; ok {
		return m.confirmed
	}
	return nil
}

// recordSuccess marks addr HEALTHY and returns the state it left.
func (r *Registry) recordSuccess(addr string) (prev replog.Health, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[addr]
	if !ok {
		return 0, false
	}
	prev = m.desc.Health
	m.desc.Health = replog.Healthy
	m.desc.ConsecutiveFailures = 0
	return prev, true
}

// recordFailure counts a failed probe. Below threshold consecutive failures
// the secondary is SUSPECTED, from threshold on it is UNHEALTHY.
func (r *Registry) recordFailure(addr string, threshold int) (prev, next replog.Health, failures int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[addr]
	if !ok {
		return 0, 0, 0, false
	}
	prev = m.desc.Health
	m.desc.ConsecutiveFailures++
	if m.desc.ConsecutiveFailures < threshold {
		m.desc.Health = replog.Suspected
	} else {
		m.desc.Health = replog.Unhealthy
	}
	return prev, m.desc.Health, m.desc.ConsecutiveFailures, true
}
