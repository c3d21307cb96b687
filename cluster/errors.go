package cluster

import (
	"context"
	"errors"
	"net"

	"github.com/unkn0wn-root/replog"
)

var (
	ErrStopped       = errors.New("master stopped")
	ErrUnexpectedAck = errors.New("unexpected status from secondary")
)

// unreachable reports whether err means the secondary never answered for a
// reason other than a timeout, e.g. a refused or reset connection.
func unreachable(err error) bool {
	if !errors.Is(err, replog.ErrTransport) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var nerr net.Error
	return !errors.As(err, &nerr) || !nerr.Timeout()
}
