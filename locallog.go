package replog

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DedupMode selects what makes two replicated records "the same".
type DedupMode uint8

const (
	// DedupRecord compares message, order and timestamp. A retried delivery
	// that was re-stamped is kept as a distinct record.
	DedupRecord DedupMode = iota
	// DedupMessageOrder compares message and order only; the first arrival wins.
	DedupMessageOrder
)

func (m DedupMode) String() string {
	switch m {
	case DedupRecord:
		return "record"
	case DedupMessageOrder:
		return "message_order"
	default:
		return fmt.Sprintf("dedup(%d)", uint8(m))
	}
}

// ParseDedupMode accepts "record" and "message_order" (case-insensitive).
func ParseDedupMode(s string) (DedupMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "record":
		return DedupRecord, nil
	case "message_order":
		return DedupMessageOrder, nil
	default:
		return 0, fmt.Errorf("unknown dedup key %q", s)
	}
}

// Outcome reports what an ingest did to the local log.
type Outcome uint8

const (
	Added Outcome = iota + 1
	Deduplicated
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Deduplicated:
		return "deduplicated"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// LocalLog is a secondary's view of the replicated stream. Records arrive
// concurrently and out of order; the log keeps them deduplicated and sorted
// by order, and Visible hides everything past the first gap.
type LocalLog struct {
	mu      sync.RWMutex
	mode    DedupMode
	records []Record
}

func NewLocalLog(mode DedupMode) *LocalLog {
	return &LocalLog{mode: mode}
}

func (l *LocalLog) Mode() DedupMode { return l.mode }

func (l *LocalLog) same(a, b Record) bool {
	if l.mode == DedupMessageOrder {
		return a.Key() == b.Key()
	}
	return a == b
}

// Add inserts rec unless an identical record is already stored. Records with
// equal orders keep their arrival order.
func (l *LocalLog) Add(rec Record) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	lo := sort.Search(len(l.records), func(i int) bool { return l.records[i].Order >= rec.Order })
	hi := lo
	for ; hi < len(l.records) && l.records[hi].Order == rec.Order; hi++ {
		if l.same(l.records[hi], rec) {
			return Deduplicated
		}
	}

	l.records = append(l.records, Record{})
	copy(l.records[hi+1:], l.records[hi:])
	l.records[hi] = rec
	return Added
}

// Records returns a copy of everything stored, gaps included.
func (l *LocalLog) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

func (l *LocalLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Visible returns the messages of the longest run that starts at the lowest
// stored record and advances by exactly one order per step.
func (l *LocalLog) Visible() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.records))
	for i, r := range l.records {
		if i > 0 && r.Order != l.records[i-1].Order+1 {
			break
		}
		out = append(out, r.Message)
	}
	return out
}
