package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/replog"
	rlog "github.com/unkn0wn-root/replog/internal/log"
)

// Master accepts client writes, orders them and replicates them to the
// configured secondaries.
type Master struct {
	cfg     Config
	log     *replog.MasterLog
	reg     *Registry
	sender  *sender
	mon     *monitor
	recon   *reconciler
	logger  *zap.Logger
	metrics *metrics

	// lifetime context for everything that outlives a client request.
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	stopping  bool
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewMaster(cfg Config, tr Transport, logger *zap.Logger) (*Master, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, errors.New("nil transport")
	}
	logger = rlog.OrNop(logger).With(zap.String("role", "master"))

	ctx, cancel := context.WithCancel(context.Background())
	m := &Master{
		cfg:     cfg,
		log:     replog.NewMasterLog(),
		reg:     NewRegistry(cfg.SecondaryHosts),
		logger:  logger,
		metrics: newMetrics(),
		ctx:     ctx,
		cancel:  cancel,
	}
	m.sender = &sender{
		tr:      tr,
		reg:     m.reg,
		policy:  newBackoffPolicy(cfg.BackoffUnit, cfg.MaxRetries),
		timeout: cfg.ReplicateTimeout,
		secret:  cfg.Secret,
		log:     logger,
		metrics: m.metrics,
	}
	m.recon = &reconciler{
		log:       m.log,
		reg:       m.reg,
		send:      m.sender.send,
		maxPasses: cfg.CatchupMaxPasses,
		logger:    logger,
		metrics:   m.metrics,
		running:   make(map[string]bool),
	}
	if cfg.CatchupRPS > 0 {
		m.recon.pacer = newPacer(cfg.CatchupRPS, time.Second)
	}
	m.mon = &monitor{
		tr:        tr,
		reg:       m.reg,
		interval:  cfg.HealthcheckInterval,
		timeout:   cfg.HealthcheckRequestTimeout,
		threshold: cfg.SuspectThreshold,
		onRecover: m.triggerCatchup,
		log:       logger,
		metrics:   m.metrics,
	}
	for _, d := range m.reg.Snapshot() {
		m.metrics.setHealth(d.Addr, d.Health)
	}
	return m, nil
}

// Start launches the health monitor. Writes are accepted before Start.
func (m *Master) Start() {
	m.startOnce.Do(func() {
		m.spawn(m.mon.run)
		m.logger.Info("master started",
			zap.Strings("secondaries", m.reg.Addrs()),
			zap.Int("write_concern", m.cfg.WriteConcern),
			zap.Int("quorum", m.cfg.Quorum),
			zap.Int("max_retries", m.cfg.MaxRetries))
	})
}

// Stop cancels every background send, probe and catch-up and waits for them
// to return. It is idempotent.
func (m *Master) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopping = true
		m.mu.Unlock()

		m.cancel()
		if m.recon.pacer != nil {
			m.recon.pacer.stop()
		}
		m.wg.Wait()
		m.logger.Info("master stopped", zap.Int("records", m.log.Len()))
	})
}

// spawn runs f on the lifetime context under the master's WaitGroup. It
// reports false once Stop has begun.
func (m *Master) spawn(f func(ctx context.Context)) bool {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return false
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		f(m.ctx)
	}()
	return true
}

// Write appends message to the master log and replicates it. writeConcern
// overrides the configured default when it is non-nil and non-zero; a
// negative value is rejected. The master's own copy counts toward the write
// concern, so w requires w-1 secondary acks.
//
// ctx only bounds how long the caller waits; sends are never cancelled by it.
func (m *Master) Write(ctx context.Context, message string, writeConcern *int) (replog.Record, error) {
	if message == "" {
		m.metrics.writes.WithLabelValues("invalid").Inc()
		return replog.Record{}, replog.NewOpError("write", "", replog.ErrInvalidRequest,
			`Invalid request, "message" should be in JSON format`)
	}
	w := m.cfg.WriteConcern
	if writeConcern != nil && *writeConcern != 0 {
		w = *writeConcern
	}
	if w < 1 {
		m.metrics.writes.WithLabelValues("invalid").Inc()
		return replog.Record{}, replog.NewOpError("write", "", replog.ErrInvalidRequest,
			`Invalid request, "write_concern" should be a positive integer`)
	}
	if m.ctx.Err() != nil {
		return replog.Record{}, replog.NewOpError("write", "", replog.ErrUnavailable, "Master is shutting down")
	}
	if healthy := m.reg.HealthyCount(); healthy < m.cfg.Quorum {
		m.metrics.writes.WithLabelValues("quorum_not_met").Inc()
		m.logger.Warn("write rejected, quorum not met",
			zap.Int("healthy", healthy), zap.Int("quorum", m.cfg.Quorum))
		return replog.Record{}, replog.NewOpError("write", "", replog.ErrQuorumNotMet,
			fmt.Sprintf("Quorum not met: %d healthy secondaries, %d required, master is read-only", healthy, m.cfg.Quorum))
	}

	rec := m.log.Append(message)
	lg := m.logger.With(zap.Int64("order", rec.Order))
	lg.Info("message appended", zap.String("message", message), zap.Int("write_concern", w))

	results, dispatched := m.fanOut(rec)
	if err := awaitAcks(ctx, results, dispatched, w-1); err != nil {
		if errors.Is(err, replog.ErrReplicationFailed) {
			m.metrics.writes.WithLabelValues("replication_failed").Inc()
			lg.Warn("write concern not met", zap.Int("write_concern", w), zap.Int("dispatched", dispatched))
			return rec, replog.NewOpError("write", "", replog.ErrReplicationFailed,
				fmt.Sprintf("Replication failed, message: %s", message))
		}
		m.metrics.writes.WithLabelValues("abandoned").Inc()
		return rec, err
	}

	m.metrics.writes.WithLabelValues("accepted").Inc()
	return rec, nil
}

// Read returns every accepted message in order. It never depends on health.
func (m *Master) Read() []string {
	return m.log.Messages()
}

// Records returns the master log.
func (m *Master) Records() []replog.Record {
	return m.log.Records()
}

// Health reports every secondary's state in configured order.
func (m *Master) Health() []Descriptor {
	return m.reg.Snapshot()
}

// CheckHealth runs one probe round synchronously.
func (m *Master) CheckHealth(ctx context.Context) {
	m.mon.tick(ctx)
}

// Reconcile runs catch-up for addr synchronously and returns the number of
// replay passes it needed.
func (m *Master) Reconcile(ctx context.Context, addr string) (int, error) {
	return m.recon.reconcile(ctx, addr)
}

// Confirmed returns how many records addr has acknowledged.
func (m *Master) Confirmed(addr string) int {
	if c := m.reg.Confirmed(addr); c != nil {
		return c.Len()
	}
	return 0
}

func (m *Master) triggerCatchup(addr string) {
	m.spawn(func(ctx context.Context) {
		_, err := m.recon.reconcile(ctx, addr)
		if err != nil && !errors.Is(err, ErrCatchupRunning) && ctx.Err() == nil {
			m.logger.Warn("catch-up ended early", zap.String("addr", addr), zap.Error(err))
		}
	})
}
