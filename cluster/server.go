package cluster

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	rlog "github.com/unkn0wn-root/replog/internal/log"
)

const shutdownGrace = 5 * time.Second

// ListenAddrs returns the addresses a node binds: HOST:INTERNAL_PORT for
// cluster traffic and HOST:PORT for clients. The internal listener is skipped
// when it is disabled (0) or coincides with PORT.
func ListenAddrs(cfg Config) []string {
	addrs := []string{}
	if cfg.InternalPort > 0 && cfg.InternalPort != cfg.Port {
		addrs = append(addrs, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.InternalPort)))
	}
	return append(addrs, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
}

// Serve runs h on every address until ctx ends, then shuts the servers down
// gracefully. It returns the first listener error, if any.
func Serve(ctx context.Context, addrs []string, h http.Handler, logger *zap.Logger) error {
	logger = rlog.OrNop(logger)

	servers := make([]*http.Server, 0, len(addrs))
	listeners := make([]net.Listener, 0, len(addrs))
	for _, a := range addrs {
		ln, err := net.Listen("tcp", a)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return errors.Wrapf(err, "listen %s", a)
		}
		listeners = append(listeners, ln)
		servers = append(servers, &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		ln := listeners[i]
		logger.Info("listening", zap.String("addr", ln.Addr().String()))
		go func(srv *http.Server) {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				errCh <- errors.Wrapf(err, "serve %s", ln.Addr())
			}
		}(srv)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}
	return serveErr
}
