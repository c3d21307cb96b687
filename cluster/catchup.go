package cluster

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/replog"
)

var (
	ErrCatchupRunning    = errors.New("catch-up already running")
	ErrCatchupIncomplete = errors.New("catch-up incomplete")
)

// reconciler replays to a recovered secondary every record the master has
// no acknowledgement for. A pass snapshots the master log, replays the
// difference concurrently and repeats until the secondary's confirmed log
// covers the snapshot, or the pass budget runs out.
type reconciler struct {
	log       *replog.MasterLog
	reg       *Registry
	send      func(ctx context.Context, addr string, rec replog.Record) int
	maxPasses int
	pacer     *pacer // nil: unpaced
	logger    *zap.Logger
	metrics   *metrics

	mu sync.Mutex
	// running holds the addresses being reconciled. The value is set when
	// another trigger arrived meanwhile and the holder must run again.
	running map[string]bool
}

func (r *reconciler) acquire(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.running[addr]; busy {
		r.running[addr] = true
		return false
	}
	r.running[addr] = false
	return true
}

// release frees addr's slot, unless a trigger arrived while it was held.
// In that case the slot is kept and release reports true.
func (r *reconciler) release(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[addr] {
		r.running[addr] = false
		return true
	}
	delete(r.running, addr)
	return false
}

func (r *reconciler) forget(addr string) {
	r.mu.Lock()
	delete(r.running, addr)
	r.mu.Unlock()
}

// reconcile returns the number of passes that replayed something in its
// last run. A trigger that arrives while a run is in progress is folded
// into one more run by the current holder.
func (r *reconciler) reconcile(ctx context.Context, addr string) (int, error) {
	confirmed := r.reg.Confirmed(addr)
	if confirmed == nil {
		return 0, replog.NewOpError("catchup", addr, replog.ErrInvalidRequest, "unknown secondary")
	}
	if !r.acquire(addr) {
		r.logger.Debug("catch-up already running, rerun requested", zap.String("addr", addr))
		return 0, ErrCatchupRunning
	}

	for {
		passes, err := r.run(ctx, addr, confirmed)
		if ctx.Err() != nil {
			r.forget(addr)
			return passes, err
		}
		if !r.release(addr) {
			return passes, err
		}
		r.logger.Info("catch-up triggered again while running", zap.String("addr", addr))
	}
}

func (r *reconciler) run(ctx context.Context, addr string, confirmed *replog.ConfirmedLog) (int, error) {
	lg := r.logger.With(zap.String("addr", addr))
	for pass := 1; pass <= r.maxPasses; pass++ {
		snapshot := r.log.Records()
		missed := confirmed.Missing(snapshot)
		if len(missed) == 0 {
			if pass > 1 {
				lg.Info("catch-up complete", zap.Int("passes", pass-1))
			}
			return pass - 1, nil
		}

		r.metrics.catchupPasses.WithLabelValues(addr).Inc()
		lg.Info("catch-up pass", zap.Int("pass", pass), zap.Int("missed", len(missed)),
			zap.Int("master_len", len(snapshot)))

		acked, err := r.replay(ctx, addr, missed)
		if err != nil {
			return pass, err
		}
		if confirmed.Covers(snapshot) {
			lg.Info("catch-up complete", zap.Int("passes", pass), zap.Int("replayed", acked))
			return pass, nil
		}
		if h, _ := r.reg.Health(addr); h == replog.Unhealthy {
			lg.Warn("catch-up stopped, secondary unhealthy again", zap.Int("pass", pass))
			return pass, replog.NewOpError("catchup", addr, replog.ErrUnavailable, "secondary unhealthy")
		}
	}

	lg.Error("catch-up gave up", zap.Int("passes", r.maxPasses))
	return r.maxPasses, ErrCatchupIncomplete
}

// replay sends every record concurrently with fresh attempt counts and
// waits for all of them to settle. It returns how many were acknowledged.
func (r *reconciler) replay(ctx context.Context, addr string, recs []replog.Record) (int, error) {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		acked int
		err   error
	)
	for _, rec := range recs {
		if r.pacer != nil {
			if err = r.pacer.wait(ctx); err != nil {
				break
			}
		}
		wg.Add(1)
		go func(rec replog.Record) {
			defer wg.Done()
			if r.send(ctx, addr, rec) == http.StatusOK {
				mu.Lock()
				acked++
				mu.Unlock()
			}
		}(rec)
	}
	wg.Wait()

	r.metrics.catchupReplay.WithLabelValues(addr).Add(float64(acked))
	if err == nil {
		err = ctx.Err()
	}
	return acked, err
}
