package cluster

import (
	"context"
	"sync"
	"time"
)

// pacer spaces out catch-up replays: a fixed-window token bucket that hands
// out up to perWindow tokens and refills all of them every window.
type pacer struct {
	mu        sync.Mutex
	perWindow int
	left      int
	window    time.Duration
	// refilled is closed and replaced on every refill to wake waiters.
	refilled chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

func newPacer(perWindow int, window time.Duration) *pacer {
	p := &pacer{
		perWindow: perWindow,
		left:      perWindow,
		window:    window,
		refilled:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *pacer) loop() {
	t := time.NewTicker(p.window)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.mu.Lock()
			p.left = p.perWindow
			close(p.refilled)
			p.refilled = make(chan struct{})
			p.mu.Unlock()
		case <-p.done:
			return
		}
	}
}

// take consumes a token if one is left in the current window. When none is,
// it returns the channel that closes at the next refill.
func (p *pacer) take() (bool, <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.left > 0 {
		p.left--
		return true, nil
	}
	return false, p.refilled
}

// wait blocks until it holds a token, ctx ends or the pacer is stopped.
func (p *pacer) wait(ctx context.Context) error {
	for {
		ok, next := p.take()
		if ok {
			return nil
		}
		select {
		case <-next:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return ErrStopped
		}
	}
}

// stop ends the refill loop and fails pending waits. Idempotent.
func (p *pacer) stop() { p.doneOnce.Do(func() { close(p.done) }) }
