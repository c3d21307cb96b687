package cluster

import (
	"context"
	"crypto/subtle"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/replog"
	rlog "github.com/unkn0wn-root/replog/internal/log"
)

// Secondary ingests replicated writes from the master and serves the
// gap-free prefix of what it has received.
type Secondary struct {
	cfg     Config
	log     *replog.LocalLog
	logger  *zap.Logger
	metrics *metrics
}

func NewSecondary(cfg Config, logger *zap.Logger) (*Secondary, error) {
	mode, err := replog.ParseDedupMode(cfg.DedupKey)
	if err != nil {
		return nil, err
	}
	if cfg.Sleep < 0 {
		cfg.Sleep = 0
	}
	s := &Secondary{
		cfg:     cfg,
		log:     replog.NewLocalLog(mode),
		logger:  rlog.OrNop(logger).With(zap.String("role", "secondary"), zap.String("host", cfg.Host)),
		metrics: newMetrics(),
	}
	return s, nil
}

// IsInternal reports whether a request addressed to host came through the
// cluster network, i.e. named this node's own HOST. Ports are ignored.
func (s *Secondary) IsInternal(host string) bool {
	return hostname(host) == hostname(s.cfg.Host)
}

// Ingest validates p and stores its record. Checks run in a fixed order:
// origin, secret, message, order.
func (s *Secondary) Ingest(ctx context.Context, p ReplicatePayload, internal bool) (replog.Outcome, error) {
	if err := s.validate(p, internal); err != nil {
		s.metrics.ingests.WithLabelValues("rejected").Inc()
		s.logger.Warn("replicated write rejected", zap.Error(err))
		return 0, err
	}
	rec, _ := p.Record()

	// A validated write is always stored, even when the caller stopped
	// waiting during SLEEP; its retry is then deduplicated.
	if s.cfg.Sleep > 0 {
		time.Sleep(s.cfg.Sleep)
	}
	if ctx.Err() != nil {
		s.logger.Debug("caller gone before ingest finished, storing anyway",
			zap.Int64("order", rec.Order), zap.Error(ctx.Err()))
	}

	out := s.log.Add(rec)
	s.metrics.ingests.WithLabelValues(out.String()).Inc()
	s.logger.Info("replicated write ingested",
		zap.Int64("order", rec.Order),
		zap.String("message", rec.Message),
		zap.Stringer("outcome", out),
		zap.Int("stored", s.log.Len()))
	return out, nil
}

func (s *Secondary) validate(p ReplicatePayload, internal bool) error {
	if !internal {
		return replog.NewOpError("ingest", "", replog.ErrForbidden,
			"POST method is only allowed in internal network")
	}
	if subtle.ConstantTimeCompare([]byte(p.Secret), []byte(s.cfg.Secret)) != 1 {
		return replog.NewOpError("ingest", "", replog.ErrForbidden,
			"Invalid request, secret should match")
	}
	if p.Message == "" {
		return replog.NewOpError("ingest", "", replog.ErrInvalidRequest,
			`Invalid request, "message" should be in JSON format`)
	}
	if !p.Order.Present() {
		return replog.NewOpError("ingest", "", replog.ErrInvalidRequest,
			`Invalid request, "order" should be present`)
	}
	if _, ok := p.Order.Int(); !ok {
		return replog.NewOpError("ingest", "", replog.ErrInvalidRequest,
			`Invalid request, "order" should be integer`)
	}
	return nil
}

// Read returns the gap-free prefix of received messages.
func (s *Secondary) Read() []string {
	return s.log.Visible()
}

// Records returns everything stored, gaps included.
func (s *Secondary) Records() []replog.Record {
	return s.log.Records()
}

// hostname strips an optional port and brackets from a Host header value.
func hostname(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(h)
	}
	return strings.ToLower(strings.Trim(hostport, "[]"))
}
