// Package replog holds the data model shared by the master and its
// secondaries: records, the master log, the per-secondary acknowledgement
// log and the secondary's gap-aware local log.
package replog

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Record is one accepted write. Order is assigned once by the master and
// is gapless from 1; Timestamp is the assignment time in Unix seconds.
type Record struct {
	Message   string  `json:"message" cbor:"message"`
	Order     int64   `json:"order" cbor:"order"`
	Timestamp float64 `json:"timestamp" cbor:"timestamp"`
}

// RecordKey identifies a logical write regardless of when it was stamped.
type RecordKey struct {
	Message string
	Order   int64
}

func (r Record) Key() RecordKey {
	return RecordKey{Message: r.Message, Order: r.Order}
}

// Digest hashes the full record (message, order and timestamp bits).
// Two records with equal digests are compared field by field before being
// treated as the same record.
func (r Record) Digest() uint64 {
	var hdr [16]byte
	binary.BigEndian.PutUint64(hdr[:8], uint64(r.Order))
	binary.BigEndian.PutUint64(hdr[8:], math.Float64bits(r.Timestamp))

	d := xxhash.New()
	_, _ = d.Write(hdr[:])
	_, _ = d.WriteString(r.Message)
	return d.Sum64()
}

// Now returns the current time as fractional Unix seconds.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
