package replog

import "sync"

// MasterLog is the master's append-only record sequence. Order assignment
// and append happen under one lock, so orders are exactly 1..Len().
type MasterLog struct {
	mu      sync.RWMutex
	records []Record
	now     func() float64
}

func NewMasterLog() *MasterLog {
	return &MasterLog{now: Now}
}

// Append stamps message with the next order and the current time.
func (l *MasterLog) Append(message string) Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		Message:   message,
		Order:     int64(len(l.records)) + 1,
		Timestamp: l.now(),
	}
	l.records = append(l.records, rec)
	return rec
}

// Records returns a copy of the log in order.
func (l *MasterLog) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Messages returns the message strings in insertion order.
func (l *MasterLog) Messages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.records))
	for i, r := range l.records {
		out[i] = r.Message
	}
	return out
}

func (l *MasterLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
