package replog

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrInvalidRequest, http.StatusBadRequest},
		{NewOpError("write", "", ErrReplicationFailed, "Write concern not met"), http.StatusBadRequest},
		{NewOpError("ingest", "", ErrForbidden, "Invalid secret"), http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", ErrQuorumNotMet), http.StatusForbidden},
		{NewOpError("replicate", "s1:8000", ErrUnavailable, ""), http.StatusServiceUnavailable},
		{ErrTransport, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusCode(c.err); got != c.want {
			t.Fatalf("StatusCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestOpErrorFormatting(t *testing.T) {
	err := NewOpError("replicate", "s1:8000", ErrTransport, "connection refused")
	if got := err.Error(); got != "replicate s1:8000: transport failure: connection refused" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("OpError should unwrap to its sentinel")
	}
	if Reason(err) != "connection refused" {
		t.Fatalf("reason = %q", Reason(err))
	}
	if Reason(ErrForbidden) != "forbidden" {
		t.Fatalf("bare sentinel reason = %q", Reason(ErrForbidden))
	}
}

func TestHealthText(t *testing.T) {
	for _, h := range []Health{Healthy, Suspected, Unhealthy} {
		b, err := h.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back Health
		if err := back.UnmarshalText(b); err != nil || back != h {
			t.Fatalf("round trip of %v gave %v, %v", h, back, err)
		}
	}
	var h Health
	if err := h.UnmarshalText([]byte("dead")); err == nil {
		t.Fatalf("expected error for unknown health")
	}
}
