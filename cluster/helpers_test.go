package cluster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/unkn0wn-root/replog"
)

var errDown = fmt.Errorf("dial: %w: %w", replog.ErrTransport, errors.New("connection refused"))

// fakeTransport routes replication straight into in-process secondaries and
// lets tests take nodes down, fail a number of deliveries or hold them.
type fakeTransport struct {
	mu       sync.Mutex
	nodes    map[string]*Secondary
	down     map[string]bool
	nack     map[string]bool // reachable but answers 500 to replication
	failNext map[string]int
	gates    map[string]chan struct{}
	calls    map[string]int
	probes   map[string]int
	hook     func(addr string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		nodes:    make(map[string]*Secondary),
		down:     make(map[string]bool),
		nack:     make(map[string]bool),
		failNext: make(map[string]int),
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
		probes:   make(map[string]int),
	}
}

func (f *fakeTransport) Replicate(ctx context.Context, addr string, p ReplicatePayload) (int, error) {
	f.mu.Lock()
	f.calls[addr]++
	hook := f.hook
	down, nack := f.down[addr], f.nack[addr]
	fail := f.failNext[addr] > 0
	if fail {
		f.failNext[addr]--
	}
	gate := f.gates[addr]
	node := f.nodes[addr]
	f.mu.Unlock()

	if hook != nil {
		hook(addr)
	}
	if down {
		return 0, errDown
	}
	if nack || fail {
		return http.StatusInternalServerError, nil
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if _, err := node.Ingest(ctx, p, true); err != nil {
		return replog.StatusCode(err), nil
	}
	return http.StatusOK, nil
}

func (f *fakeTransport) Probe(ctx context.Context, addr string) error {
	f.mu.Lock()
	f.probes[addr]++
	down := f.down[addr]
	f.mu.Unlock()
	if down {
		return errDown
	}
	return nil
}

func (f *fakeTransport) setDown(addr string, down bool) {
	f.mu.Lock()
	f.down[addr] = down
	f.mu.Unlock()
}

func (f *fakeTransport) setNack(addr string, nack bool) {
	f.mu.Lock()
	f.nack[addr] = nack
	f.mu.Unlock()
}

func (f *fakeTransport) failTimes(addr string, n int) {
	f.mu.Lock()
	f.failNext[addr] = n
	f.mu.Unlock()
}

// hold makes deliveries to addr block until the returned func is called.
func (f *fakeTransport) hold(addr string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[addr] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeTransport) callCount(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[addr]
}

func (f *fakeTransport) setHook(h func(addr string)) {
	f.mu.Lock()
	f.hook = h
	f.mu.Unlock()
}

func testConfig(hosts ...string) Config {
	cfg := Default()
	cfg.Host = "127.0.0.1"
	cfg.Secret = "s3cret"
	cfg.SecondaryHosts = hosts
	cfg.MaxRetries = 2
	cfg.BackoffUnit = time.Millisecond
	cfg.ReplicateTimeout = time.Second
	cfg.HealthcheckInterval = time.Hour
	cfg.HealthcheckRequestTimeout = 100 * time.Millisecond
	return cfg
}

type testCluster struct {
	m    *Master
	tr   *fakeTransport
	secs map[string]*Secondary
}

// newTestCluster builds a master wired to one in-process secondary per host.
// The master is stopped when the test ends.
func newTestCluster(t *testing.T, cfg Config) *testCluster {
	t.Helper()
	tr := newFakeTransport()
	secs := make(map[string]*Secondary, len(cfg.SecondaryHosts))
	for _, h := range cfg.SecondaryHosts {
		scfg := cfg
		scfg.Host = h
		s, err := NewSecondary(scfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		secs[h] = s
		tr.nodes[h] = s
	}

	m, err := NewMaster(cfg, tr, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return &testCluster{m: m, tr: tr, secs: secs}
}

func (c *testCluster) markUnhealthy(addr string) {
	for i := 0; i < c.m.cfg.SuspectThreshold; i++ {
		c.m.reg.recordFailure(addr, c.m.cfg.SuspectThreshold)
	}
}

func intPtr(n int) *int { return &n }
