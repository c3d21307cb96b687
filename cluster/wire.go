package cluster

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/replog"
)

// WriteRequest is the body of a client POST to the master.
type WriteRequest struct {
	Message      string `json:"message" cbor:"message"`
	WriteConcern *int   `json:"write_concern,omitempty" cbor:"write_concern,omitempty"`
}

// ReplicatePayload is the body of a master POST to a secondary. The secret
// never leaves the ingestion boundary; Record strips it.
type ReplicatePayload struct {
	Message   string     `json:"message" cbor:"message"`
	Order     OrderField `json:"order" cbor:"order"`
	Timestamp float64    `json:"timestamp" cbor:"timestamp"`
	Secret    string     `json:"secret" cbor:"secret"`
}

// NewReplicatePayload builds the payload for rec.
func NewReplicatePayload(rec replog.Record, secret string) ReplicatePayload {
	return ReplicatePayload{
		Message:   rec.Message,
		Order:     OrderOf(rec.Order),
		Timestamp: rec.Timestamp,
		Secret:    secret,
	}
}

// Record returns the payload without its secret. ok is false when the order
// is missing or not an integer.
func (p ReplicatePayload) Record() (replog.Record, bool) {
	n, ok := p.Order.Int()
	if !ok {
		return replog.Record{}, false
	}
	return replog.Record{Message: p.Message, Order: n, Timestamp: p.Timestamp}, true
}

// OrderField is an order as it arrived on the wire. Integers, integral floats
// and decimal strings are accepted; anything else is kept as present but
// invalid so validation can tell "missing" from "not an integer".
type OrderField struct {
	n       int64
	present bool
	valid   bool
}

func OrderOf(n int64) OrderField {
	return OrderField{n: n, present: true, valid: true}
}

func (o OrderField) Present() bool { return o.present }

func (o OrderField) Int() (int64, bool) {
	return o.n, o.present && o.valid
}

func (o OrderField) MarshalJSON() ([]byte, error) {
	if !o.present || !o.valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, o.n, 10), nil
}

func (o *OrderField) UnmarshalJSON(b []byte) error {
	o.present = true
	o.valid = false

	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		o.n, o.valid = parseOrderString(s)
		return nil
	}
	if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		o.n, o.valid = n, true
		return nil
	}
	if f, err := strconv.ParseFloat(string(b), 64); err == nil {
		o.n, o.valid = integral(f)
	}
	return nil
}

func (o OrderField) MarshalCBOR() ([]byte, error) {
	if !o.present || !o.valid {
		return cborEnc.Marshal(nil)
	}
	return cborEnc.Marshal(o.n)
}

func (o *OrderField) UnmarshalCBOR(b []byte) error {
	o.present = true
	o.valid = false

	var v any
	if err := cborDec.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case uint64:
		if x <= math.MaxInt64 {
			o.n, o.valid = int64(x), true
		}
	case int64:
		o.n, o.valid = x, true
	case float64:
		o.n, o.valid = integral(x)
	case float32:
		o.n, o.valid = integral(float64(x))
	case string:
		o.n, o.valid = parseOrderString(x)
	}
	return nil
}

func parseOrderString(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// HealthEntry is one element of the master's GET /health reply:
// a single-key object mapping the secondary address to its state.
type HealthEntry map[string]replog.Health
