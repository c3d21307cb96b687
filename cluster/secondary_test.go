package cluster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/unkn0wn-root/replog"
)

func newTestSecondary(t *testing.T, mutate func(*Config)) *Secondary {
	t.Helper()
	cfg := testConfig()
	cfg.Host = "secondary1"
	cfg.Port = 8001
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSecondary(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func payload(msg string, order int64, secret string) ReplicatePayload {
	return ReplicatePayload{Message: msg, Order: OrderOf(order), Timestamp: 1, Secret: secret}
}

func TestIngestValidationOrder(t *testing.T) {
	s := newTestSecondary(t, nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		p        ReplicatePayload
		internal bool
		sentinel error
		reason   string
	}{
		{"external caller beats bad secret", ReplicatePayload{Secret: "wrong"}, false,
			replog.ErrForbidden, "POST method is only allowed in internal network"},
		{"bad secret beats empty message", ReplicatePayload{Secret: "wrong"}, true,
			replog.ErrForbidden, "Invalid request, secret should match"},
		{"empty message beats missing order", ReplicatePayload{Secret: "s3cret"}, true,
			replog.ErrInvalidRequest, `Invalid request, "message" should be in JSON format`},
		{"missing order", ReplicatePayload{Message: "a", Secret: "s3cret"}, true,
			replog.ErrInvalidRequest, `Invalid request, "order" should be present`},
		{"non-integer order", ReplicatePayload{Message: "a", Order: OrderField{present: true}, Secret: "s3cret"}, true,
			replog.ErrInvalidRequest, `Invalid request, "order" should be integer`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Ingest(ctx, tc.p, tc.internal)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.sentinel)
			assert.Equal(t, tc.reason, replog.Reason(err))
		})
	}
	assert.Zero(t, len(s.Records()))
}

func TestIngestDeduplicatesAndOrders(t *testing.T) {
	s := newTestSecondary(t, nil)
	ctx := context.Background()

	for _, o := range []int64{4, 1, 2} {
		out, err := s.Ingest(ctx, payload("m", o, "s3cret"), true)
		require.NoError(t, err)
		assert.Equal(t, replog.Added, out)
	}
	out, err := s.Ingest(ctx, payload("m", 2, "s3cret"), true)
	require.NoError(t, err)
	assert.Equal(t, replog.Deduplicated, out)

	assert.Len(t, s.Read(), 2)
	assert.Len(t, s.Records(), 3)

	_, err = s.Ingest(ctx, payload("m", 3, "s3cret"), true)
	require.NoError(t, err)
	assert.Len(t, s.Read(), 4)

	for _, r := range s.Records() {
		assert.Equal(t, "m", r.Message)
	}
}

func TestIngestDedupModes(t *testing.T) {
	ctx := context.Background()
	first := ReplicatePayload{Message: "a", Order: OrderOf(1), Timestamp: 1, Secret: "s3cret"}
	retry := first
	retry.Timestamp = 2

	full := newTestSecondary(t, nil)
	_, _ = full.Ingest(ctx, first, true)
	out, err := full.Ingest(ctx, retry, true)
	require.NoError(t, err)
	assert.Equal(t, replog.Added, out)

	keyed := newTestSecondary(t, func(c *Config) { c.DedupKey = "message_order" })
	_, _ = keyed.Ingest(ctx, first, true)
	out, err = keyed.Ingest(ctx, retry, true)
	require.NoError(t, err)
	assert.Equal(t, replog.Deduplicated, out)
}

func TestIngestSleep(t *testing.T) {
	s := newTestSecondary(t, func(c *Config) { c.Sleep = 30 * time.Millisecond })

	start := time.Now()
	_, err := s.Ingest(context.Background(), payload("a", 1, "s3cret"), true)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// rejected writes are not delayed.
	start = time.Now()
	_, err = s.Ingest(context.Background(), payload("a", 1, "nope"), true)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 30*time.Millisecond)

	// a caller that gave up does not lose the write.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := s.Ingest(ctx, payload("b", 2, "s3cret"), true)
	require.NoError(t, err)
	assert.Equal(t, replog.Added, out)
	assert.Len(t, s.Records(), 2)
}

func TestSlowSecondaryKeepsTimedOutWrites(t *testing.T) {
	s := newTestSecondary(t, func(c *Config) {
		c.Host = "127.0.0.1"
		c.Sleep = 100 * time.Millisecond
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := &http.Client{Timeout: 20 * time.Millisecond}
	resp, err := client.Post(srv.URL+"/", "application/json",
		strings.NewReader(`{"message":"a","order":1,"timestamp":1,"secret":"s3cret"}`))
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return len(s.Read()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a"}, s.Read())
}

func TestSlowSecondaryConvergesUnderShortReplicateTimeout(t *testing.T) {
	s := newTestSecondary(t, func(c *Config) {
		c.Host = "127.0.0.1"
		c.Sleep = 150 * time.Millisecond
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	cfg := testConfig(strings.TrimPrefix(srv.URL, "http://"))
	cfg.ReplicateTimeout = 50 * time.Millisecond
	cfg.MaxRetries = 2
	m, err := NewMaster(cfg, NewHTTPTransport(JSONCodec{}, nil), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	_, err = m.Write(context.Background(), "a", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(s.Read()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a"}, s.Read())
	// every delivery that timed out was stored once; the rest deduplicated.
	assert.Len(t, s.Records(), 1)
}

func TestIsInternal(t *testing.T) {
	s := newTestSecondary(t, nil)
	assert.True(t, s.IsInternal("secondary1"))
	assert.True(t, s.IsInternal("secondary1:80"))
	assert.True(t, s.IsInternal("SECONDARY1:8001"))
	assert.False(t, s.IsInternal("localhost:8001"))
	assert.False(t, s.IsInternal(""))

	v6 := newTestSecondary(t, func(c *Config) { c.Host = "::1" })
	assert.True(t, v6.IsInternal("[::1]:80"))
}

func TestSecondaryHandler(t *testing.T) {
	s := newTestSecondary(t, nil)
	h := s.Handler()

	post := func(host, contentType, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Host = host
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := post("client.example:8001", "", `{"message":"a","order":1,"secret":"s3cret"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = post("secondary1:80", "application/json", `{"message":"a","order":1,"timestamp":1.5,"secret":"s3cret"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Message added (secondary1:8001): a", rr.Body.String())

	rr = post("secondary1:80", "application/json", `{"message":"a","order":1,"timestamp":1.5,"secret":"s3cret"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Message deduplicated (secondary1:8001): a", rr.Body.String())

	rr = post("secondary1", "", `{"message":"b","order":"2","secret":"s3cret"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = post("secondary1", "", `{"message":"c","order":"three","secret":"s3cret"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, `Invalid request, "order" should be integer`, rr.Body.String())

	rr = post("secondary1", "", `{"message":"c","secret":"s3cret"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = post("secondary1", "", `{`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body, err := CBORCodec{}.Marshal(payload("c", 3, "s3cret"))
	require.NoError(t, err)
	rr = post("secondary1", contentTypeCBOR, string(body))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `["a","b","c"]`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), `replog_ingests_total{outcome="deduplicated"} 1`)
}
