package main_test

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/replog"
	"github.com/unkn0wn-root/replog/cluster"
)

// memTransport delivers payloads straight into in-process secondaries.
type memTransport struct {
	mu    sync.RWMutex
	nodes map[string]*cluster.Secondary
}

func (t *memTransport) Replicate(ctx context.Context, addr string, p cluster.ReplicatePayload) (int, error) {
	t.mu.RLock()
	s := t.nodes[addr]
	t.mu.RUnlock()
	if _, err := s.Ingest(ctx, p, true); err != nil {
		return replog.StatusCode(err), nil
	}
	return http.StatusOK, nil
}

func (t *memTransport) Probe(context.Context, string) error { return nil }

func BenchmarkMasterLogAppend(b *testing.B) {
	l := replog.NewMasterLog()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			l.Append("m")
		}
	})
}

func BenchmarkLocalLogInOrder(b *testing.B) {
	l := replog.NewLocalLog(replog.DedupRecord)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		l.Add(replog.Record{Message: "m", Order: int64(i + 1), Timestamp: 1})
	}
}

func BenchmarkLocalLogShuffled(b *testing.B) {
	orders := rand.New(rand.NewSource(1)).Perm(b.N)
	l := replog.NewLocalLog(replog.DedupMessageOrder)
	b.ReportAllocs()
	b.ResetTimer()
	for _, o := range orders {
		l.Add(replog.Record{Message: "m", Order: int64(o + 1), Timestamp: 1})
	}
}

func BenchmarkCodec(b *testing.B) {
	p := cluster.NewReplicatePayload(replog.Record{Message: "hello world", Order: 42, Timestamp: 1700000000.5}, "s3cret")
	for _, c := range []cluster.Codec{cluster.JSONCodec{}, cluster.CBORCodec{}} {
		b.Run(c.ContentType(), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				raw, err := c.Marshal(p)
				if err != nil {
					b.Fatal(err)
				}
				var out cluster.ReplicatePayload
				if err := c.Unmarshal(raw, &out); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkMasterWrite(b *testing.B) {
	cfg := cluster.Default()
	cfg.Host = "127.0.0.1"
	cfg.Secret = "s3cret"
	tr := &memTransport{nodes: map[string]*cluster.Secondary{}}
	for i := 0; i < 3; i++ {
		s, err := cluster.NewSecondary(cfg, zap.NewNop())
		if err != nil {
			b.Fatal(err)
		}
		addr := fmt.Sprintf("s%d", i)
		tr.nodes[addr] = s
		cfg.SecondaryHosts = append(cfg.SecondaryHosts, addr)
	}
	m, err := cluster.NewMaster(cfg, tr, zap.NewNop())
	if err != nil {
		b.Fatal(err)
	}
	defer m.Stop()

	for _, w := range []int{1, 2, 4} {
		w := w
		b.Run(fmt.Sprintf("w=%d", w), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := m.Write(context.Background(), "m", &w); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
