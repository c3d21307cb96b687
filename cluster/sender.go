package cluster

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/replog"
)

// sender delivers one record to one secondary, retrying with backoff until
// it is acknowledged, retries run out, the secondary turns UNHEALTHY or
// ctx ends. It always resolves to a status: 200 or 503.
type sender struct {
	tr      Transport
	reg     *Registry
	policy  *backoffPolicy
	timeout time.Duration
	secret  string
	log     *zap.Logger
	metrics *metrics
}

func (s *sender) send(ctx context.Context, addr string, rec replog.Record) int {
	lg := s.log.With(zap.String("addr", addr), zap.Int64("order", rec.Order))
	payload := NewReplicatePayload(rec, s.secret)

	for attempt := 0; ; attempt++ {
		if h, _ := s.reg.Health(addr); h == replog.Unhealthy {
			lg.Debug("secondary unhealthy, send skipped", zap.Int("attempt", attempt))
			s.metrics.sends.WithLabelValues(addr, "skipped").Inc()
			return http.StatusServiceUnavailable
		}

		err := s.attempt(ctx, addr, payload)
		if err == nil {
			s.reg.Confirmed(addr).Add(rec)
			s.metrics.attempts.WithLabelValues(addr, "ok").Inc()
			s.metrics.sends.WithLabelValues(addr, "ok").Inc()
			if attempt > 0 {
				lg.Info("replicated after retries", zap.Int("attempt", attempt))
			}
			return http.StatusOK
		}
		down := unreachable(err)
		if down {
			s.metrics.attempts.WithLabelValues(addr, "unreachable").Inc()
		} else {
			s.metrics.attempts.WithLabelValues(addr, "failed").Inc()
		}

		if ctx.Err() != nil {
			lg.Info("send abandoned, master stopping", zap.Int("attempt", attempt))
			s.metrics.sends.WithLabelValues(addr, "abandoned").Inc()
			return http.StatusServiceUnavailable
		}

		if !s.policy.retry(attempt) {
			lg.Error("replication failed, retries exhausted",
				zap.Int("attempt", attempt), zap.Error(err))
			s.metrics.sends.WithLabelValues(addr, "exhausted").Inc()
			return http.StatusServiceUnavailable
		}

		wait := s.policy.delay(attempt)
		if down {
			lg.Warn("replication attempt failed", zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		} else {
			lg.Info("replication attempt failed", zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		}

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			s.metrics.sends.WithLabelValues(addr, "abandoned").Inc()
			return http.StatusServiceUnavailable
		}
	}
}

// attempt performs one bounded request. Any reply other than 200 is an error.
func (s *sender) attempt(ctx context.Context, addr string, p ReplicatePayload) error {
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status, err := s.tr.Replicate(actx, addr, p)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errors.Wrapf(ErrUnexpectedAck, "status %d", status)
	}
	return nil
}
