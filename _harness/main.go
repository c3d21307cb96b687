package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/replog/cluster"
)

type harness struct {
	master      *cluster.Master
	secondaries []*cluster.Secondary
	masterURL   string
	servers     []*http.Server
}

type result struct {
	Writes    int64
	Failures  int64
	Elapsed   time.Duration
	P50, P99  time.Duration
	Converged bool
}

func startHarness(secondaries, writeConcern int, codec string, sleep time.Duration, logger *zap.Logger) (*harness, error) {
	base := cluster.Default()
	base.Host = "127.0.0.1"
	base.Secret = "harness"
	base.Codec = codec
	base.WriteConcern = writeConcern
	base.BackoffUnit = 10 * time.Millisecond
	base.HealthcheckInterval = 200 * time.Millisecond
	base.Sleep = sleep

	h := &harness{}
	for i := 0; i < secondaries; i++ {
		s, err := cluster.NewSecondary(base, logger)
		if err != nil {
			return nil, err
		}
		addr, err := h.listen(s.Handler())
		if err != nil {
			return nil, err
		}
		h.secondaries = append(h.secondaries, s)
		base.SecondaryHosts = append(base.SecondaryHosts, addr)
	}

	c, err := cluster.CodecByName(codec)
	if err != nil {
		return nil, err
	}
	m, err := cluster.NewMaster(base, cluster.NewHTTPTransport(c, nil), logger)
	if err != nil {
		return nil, err
	}
	m.Start()
	h.master = m

	addr, err := h.listen(m.Handler())
	if err != nil {
		return nil, err
	}
	h.masterURL = "http://" + addr
	return h, nil
}

func (h *harness) listen(handler http.Handler) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	h.servers = append(h.servers, srv)
	go func() { _ = srv.Serve(ln) }()
	return ln.Addr().String(), nil
}

func (h *harness) close() {
	h.master.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, s := range h.servers {
		_ = s.Shutdown(ctx)
	}
}

// run posts writes from workers concurrently and then waits for every
// secondary to hold the master's log.
func (h *harness) run(writes, workers int, settle time.Duration) result {
	var (
		next      int64
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, writes)
		wg        sync.WaitGroup
	)
	client := &http.Client{Timeout: 30 * time.Second}

	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := atomic.AddInt64(&next, 1)
				if i > int64(writes) {
					return
				}
				body := `{"message":"msg-` + strconv.FormatInt(i, 10) + `"}`
				t0 := time.Now()
				resp, err := client.Post(h.masterURL+"/", "application/json", strings.NewReader(body))
				d := time.Since(t0)
				if err != nil || resp.StatusCode != http.StatusOK {
					atomic.AddInt64(&failures, 1)
				}
				if resp != nil {
					_ = resp.Body.Close()
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	res := result{Writes: int64(writes), Failures: failures, Elapsed: time.Since(start)}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	if n := len(latencies); n > 0 {
		res.P50 = latencies[n/2]
		res.P99 = latencies[(n*99)/100]
	}
	res.Converged = h.waitConverged(settle)
	return res
}

func (h *harness) waitConverged(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		want := h.master.Read()
		ok := true
		for _, s := range h.secondaries {
			if !equal(s.Read(), want) {
				ok = false
				break
			}
		}
		if ok || time.Now().After(deadline) {
			return ok
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func main() {
	var (
		secondaries = flag.Int("secondaries", 2, "number of in-process secondaries")
		wc          = flag.Int("w", 1, "write concern")
		writes      = flag.Int("writes", 2000, "total writes")
		workers     = flag.Int("workers", 16, "concurrent writers")
		codec       = flag.String("codec", "json", "replication codec: json|cbor")
		sleep       = flag.Duration("sleep", 0, "artificial secondary delay")
		settle      = flag.Duration("settle", 10*time.Second, "max wait for convergence")
		level       = flag.String("log", "warn", "log level")
	)
	flag.Parse()

	lvl, err := zapcore.ParseLevel(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	h, err := startHarness(*secondaries, *wc, *codec, *sleep, logger)
	if err != nil {
		logger.Fatal("start harness", zap.Error(err))
	}
	defer h.close()

	res := h.run(*writes, *workers, *settle)
	fmt.Printf("writes=%d failures=%d elapsed=%s rate=%.0f/s p50=%s p99=%s converged=%v\n",
		res.Writes, res.Failures, res.Elapsed, float64(res.Writes)/res.Elapsed.Seconds(),
		res.P50, res.P99, res.Converged)
	if !res.Converged || res.Failures > 0 {
		os.Exit(1)
	}
}
