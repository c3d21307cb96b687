package cluster

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/replog"
)

const invalidMessage = `Invalid request, "message" should be in JSON format`

// Handler serves the master's client API.
//
//	GET  /        accepted messages, in order
//	POST /        {message, write_concern?}
//	GET  /health  [{addr: state}, ...] in configured order
//	GET  /metrics prometheus exposition
func (m *Master) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		m.logger.Debug("retrieving messages")
		writeJSON(w, http.StatusOK, m.Read())
	})
	mux.HandleFunc("POST /{$}", m.handleWrite)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		descs := m.Health()
		out := make([]HealthEntry, 0, len(descs))
		for _, d := range descs {
			out = append(out, HealthEntry{d.Addr: d.Health})
		}
		writeJSON(w, http.StatusOK, out)
	})
	mux.Handle("GET /metrics", m.metrics.handler())
	return mux
}

func (m *Master) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req WriteRequest
	if err := decodeBody(r, &req); err != nil {
		m.logger.Warn("undecodable write", zap.Error(err))
		writeText(w, http.StatusBadRequest, invalidMessage)
		return
	}

	rec, err := m.Write(r.Context(), req.Message, req.WriteConcern)
	if err != nil {
		writeText(w, replog.StatusCode(err), replog.Reason(err))
		return
	}
	m.logger.Info("message added", zap.Int64("order", rec.Order))
	writeText(w, http.StatusOK, fmt.Sprintf("Message added to Master: %s", rec.Message))
}

// Handler serves the secondary's API. POST is only honoured when the request
// was addressed to this node's own HOST.
func (s *Secondary) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Read())
	})
	mux.HandleFunc("POST /{$}", s.handleIngest)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "OK")
	})
	mux.Handle("GET /metrics", s.metrics.handler())
	return mux
}

func (s *Secondary) handleIngest(w http.ResponseWriter, r *http.Request) {
	var p ReplicatePayload
	if err := decodeBody(r, &p); err != nil {
		s.logger.Warn("undecodable replicated write", zap.Error(err))
		writeText(w, http.StatusBadRequest, invalidMessage)
		return
	}

	out, err := s.Ingest(r.Context(), p, s.IsInternal(r.Host))
	if err != nil {
		writeText(w, replog.StatusCode(err), replog.Reason(err))
		return
	}

	where := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if out == replog.Deduplicated {
		writeText(w, http.StatusOK, fmt.Sprintf("Message deduplicated (%s): %s", where, p.Message))
		return
	}
	writeText(w, http.StatusOK, fmt.Sprintf("Message added (%s): %s", where, p.Message))
}

// decodeBody reads a bounded body and decodes it with the codec named by
// the request's Content-Type.
func decodeBody(r *http.Request, v any) error {
	buf, err := readBody(r.Body, maxBodySize)
	if err != nil {
		return err
	}
	defer bodyPool.put(buf)
	return codecForContentType(r.Header.Get("Content-Type")).Unmarshal(buf.Bytes(), v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}
