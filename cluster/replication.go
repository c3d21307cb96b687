package cluster

import (
	"context"
	"net/http"

	"github.com/unkn0wn-root/replog"
)

// fanOut dispatches rec to every eligible secondary on the master's
// lifetime context. Each send reports its terminal status on the returned
// channel, in completion order. The channel is buffered for every send so
// nobody blocks once the caller stops reading.
func (m *Master) fanOut(rec replog.Record) (<-chan int, int) {
	targets := m.reg.Eligible()
	results := make(chan int, len(targets))

	for _, addr := range targets {
		addr := addr
		if !m.spawn(func(ctx context.Context) {
			results <- m.sender.send(ctx, addr, rec)
		}) {
			results <- http.StatusServiceUnavailable
		}
	}
	return results, len(targets)
}

// awaitAcks waits until want sends have returned 200. It returns nil on the
// first crossing and leaves the remaining sends running. It fails once every
// dispatched send has resolved short of want, or at once when fewer than want
// sends were dispatched.
func awaitAcks(ctx context.Context, results <-chan int, dispatched, want int) error {
	if want <= 0 {
		return nil
	}
	if dispatched < want {
		return replog.ErrReplicationFailed
	}

	acks := 0
	for resolved := 0; resolved < dispatched; resolved++ {
		select {
		case status := <-results:
			if status == http.StatusOK {
				acks++
				if acks >= want {
					return nil
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return replog.ErrReplicationFailed
}
