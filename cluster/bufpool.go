package cluster

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// maxBodySize bounds every request body a node will read.
const maxBodySize = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

type bufPool struct {
	pool   sync.Pool
	maxCap int
}

// newBufPool pools body buffers. Buffers that grew past maxCap are dropped
// on the floor to avoid unbounded pool growth.
func newBufPool(initial, maxCap int) *bufPool {
	bp := &bufPool{maxCap: maxCap}
	bp.pool.New = func() any {
		return bytes.NewBuffer(make([]byte, 0, initial))
	}
	return bp
}

func (bp *bufPool) get() *bytes.Buffer {
	b := bp.pool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

func (bp *bufPool) put(b *bytes.Buffer) {
	if b == nil || b.Cap() > bp.maxCap {
		return
	}
	bp.pool.Put(b)
}

var bodyPool = newBufPool(512, 64<<10)

// readBody reads at most limit bytes of r into a pooled buffer. The caller
// returns the buffer with bodyPool.put once it has decoded the contents.
func readBody(r io.Reader, limit int64) (*bytes.Buffer, error) {
	b := bodyPool.get()
	if _, err := b.ReadFrom(io.LimitReader(r, limit+1)); err != nil {
		bodyPool.put(b)
		return nil, err
	}
	if int64(b.Len()) > limit {
		bodyPool.put(b)
		return nil, errBodyTooLarge
	}
	return b, nil
}

// drain discards the rest of r so the connection can be reused.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxBodySize))
}
