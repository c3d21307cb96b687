package cluster

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/replog"
)

// monitor probes every secondary on a fixed interval and drives the
// HEALTHY/SUSPECTED/UNHEALTHY state machine kept in the registry.
type monitor struct {
	tr        Transport
	reg       *Registry
	interval  time.Duration
	timeout   time.Duration
	threshold int
	// onRecover runs when a secondary goes from UNHEALTHY straight back to
	// HEALTHY. It must not block.
	onRecover func(addr string)
	log       *zap.Logger
	metrics   *metrics
}

func (m *monitor) run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tick probes all secondaries concurrently and returns when every probe has
// been classified.
func (m *monitor) tick(ctx context.Context) {
	var wg sync.WaitGroup
	for _, addr := range m.reg.Addrs() {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			m.check(ctx, addr)
		}(addr)
	}
	wg.Wait()
}

func (m *monitor) check(ctx context.Context, addr string) {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.tr.Probe(pctx, addr)
	cancel()

	// a probe cut short by shutdown says nothing about the secondary.
	if ctx.Err() != nil {
		return
	}

	if err == nil {
		prev, ok := m.reg.recordSuccess(addr)
		if !ok {
			return
		}
		m.metrics.setHealth(addr, replog.Healthy)
		if prev != replog.Healthy {
			m.transition(addr, prev, replog.Healthy, 0, nil)
		}
		if prev == replog.Unhealthy && m.onRecover != nil {
			m.onRecover(addr)
		}
		return
	}

	prev, next, failures, ok := m.reg.recordFailure(addr, m.threshold)
	if !ok {
		return
	}
	m.metrics.setHealth(addr, next)
	if prev != next {
		m.transition(addr, prev, next, failures, err)
		return
	}
	m.log.Debug("health probe failed",
		zap.String("addr", addr), zap.Int("failures", failures), zap.Error(err))
}

func (m *monitor) transition(addr string, from, to replog.Health, failures int, err error) {
	m.metrics.transitions.WithLabelValues(addr, to.String()).Inc()
	fields := []zap.Field{
		zap.String("addr", addr),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("failures", failures),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if to == replog.Unhealthy {
		m.log.Warn("secondary health changed", fields...)
		return
	}
	m.log.Info("secondary health changed", fields...)
}
