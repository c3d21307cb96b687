package cluster

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/unkn0wn-root/replog"
)

// Transport is how the master talks to its secondaries.
type Transport interface {
	// Replicate delivers p to addr and returns the HTTP status of the reply.
	// A non-nil error means no reply was received.
	Replicate(ctx context.Context, addr string, p ReplicatePayload) (int, error)
	// Probe returns nil when addr answered its liveness check with 200.
	Probe(ctx context.Context, addr string) error
}

type HTTPTransport struct {
	client *http.Client
	codec  Codec
}

// NewHTTPTransport returns a transport that encodes payloads with codec.
// Per-call deadlines come from the context, so client carries no timeout.
func NewHTTPTransport(codec Codec, client *http.Client) *HTTPTransport {
	if codec == nil {
		codec = JSONCodec{}
	}
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 64,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPTransport{client: client, codec: codec}
}

func (t *HTTPTransport) Replicate(ctx context.Context, addr string, p ReplicatePayload) (int, error) {
	body, err := t.codec.Marshal(p)
	if err != nil {
		return 0, errors.Wrap(err, "encode payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, nodeURL(addr, "/"), bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrapf(err, "replicate to %s", addr)
	}
	req.Header.Set("Content-Type", t.codec.ContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, noReply("replicate", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()
	drain(resp.Body)

	return resp.StatusCode, nil
}

func (t *HTTPTransport) Probe(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nodeURL(addr, "/health"), nil)
	if err != nil {
		return errors.Wrapf(err, "probe %s", addr)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return noReply("probe", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()
	drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrUnexpectedAck, "probe %s: status %d", addr, resp.StatusCode)
	}
	return nil
}

// noReply marks err as replog.ErrTransport, keeping the cause reachable
// through errors.Is and errors.As.
func noReply(op, addr string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, addr, replog.ErrTransport, err)
}

// nodeURL turns a configured address ("host", "host:port" or a full base
// URL) into a request URL for path.
func nodeURL(addr, path string) string {
	addr = strings.TrimSuffix(addr, "/")
	if strings.Contains(addr, "://") {
		return addr + path
	}
	return fmt.Sprintf("http://%s%s", addr, path)
}
