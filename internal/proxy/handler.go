package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/technosupport/frl-toolbox/internal/audit"
	"github.com/technosupport/frl-toolbox/internal/cops"
	"github.com/technosupport/frl-toolbox/internal/metrics"
)

const maxBodyBytes = 1 << 20

// Recorder stores transactions. *audit.Service satisfies it.
type Recorder interface {
	Write(ctx context.Context, tx audit.Transaction) error
}

// Publisher announces transactions. *events.Publisher satisfies it.
type Publisher interface {
	Publish(tx audit.Transaction) error
}

type Config struct {
	Scheme  string
	Host    string
	Timeout time.Duration
}

type Handler struct {
	cfg     Config
	client  *http.Client
	records Recorder
	events  Publisher
	metrics *metrics.Collector
	cache   ResponseCache
}

// NewHandler builds the COPS forwarding handler. records, events and m may
// be nil.
func NewHandler(cfg Config, client *http.Client, records Recorder, events Publisher, m *metrics.Collector) *Handler {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Handler{cfg: cfg, client: client, records: records, events: events, metrics: m}
}

// WithCache enables replay of cached activations during upstream outages.
func (h *Handler) WithCache(c ResponseCache) *Handler {
	h.cache = c
	return h
}

// ServeCOPS maps a client request, forwards it upstream and wraps the reply.
func (h *Handler) ServeCOPS(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.reject(w, r, fmt.Errorf("read request body: %w", err))
		return
	}

	req, err := cops.FromNetwork(r, body)
	if err != nil {
		h.reject(w, r, err)
		return
	}

	resp, status, elapsed, err := h.forward(r.Context(), req)
	tx := audit.NewTransaction(req, resp, status, err)
	tx.ClientIP = clientIP(r)

	switch {
	case err != nil && h.replay(r.Context(), w, req, &tx):
		log.Printf("[proxy] %s %s upstream error, served cached activation: %v", req.Kind, req.RequestID, err)
	case err != nil:
		log.Printf("[proxy] %s %s upstream error: %v", req.Kind, req.RequestID, err)
		http.Error(w, "upstream license server unavailable", http.StatusBadGateway)
	case status != http.StatusOK:
		log.Printf("[proxy] %s %s upstream status %d", req.Kind, req.RequestID, status)
		w.Header().Set("Content-Type", "application/json;charset=UTF-8")
		w.WriteHeader(status)
		_, _ = w.Write(resp.Body)
	default:
		if err := resp.Write(w); err != nil {
			log.Printf("[proxy] %s %s: %v", req.Kind, req.RequestID, err)
		}
		h.remember(r.Context(), req, resp)
	}

	h.observe(r.Context(), tx, elapsed)
}

func (h *Handler) forward(ctx context.Context, req *cops.Request) (*cops.Response, int, time.Duration, error) {
	out, err := req.ToNetwork(ctx, h.cfg.Scheme, h.cfg.Host)
	if err != nil {
		return nil, 0, 0, err
	}

	start := time.Now()
	upstream, err := h.client.Do(out)
	if err != nil {
		return nil, 0, time.Since(start), fmt.Errorf("upstream request: %w", err)
	}
	defer upstream.Body.Close()

	body, err := io.ReadAll(upstream.Body)
	elapsed := time.Since(start)
	if err != nil {
		return nil, upstream.StatusCode, elapsed, fmt.Errorf("read upstream body: %w", err)
	}
	return cops.NewResponse(req, body), upstream.StatusCode, elapsed, nil
}

// replay answers an activation from the cache. It reports whether a cached
// response was written.
func (h *Handler) replay(ctx context.Context, w http.ResponseWriter, req *cops.Request, tx *audit.Transaction) bool {
	if h.cache == nil || req.Kind != cops.Activation {
		return false
	}
	body, ok, err := h.cache.Get(ctx, CacheKey(req))
	if err != nil {
		log.Printf("[proxy] cache lookup failed: %v", err)
		return false
	}
	if !ok {
		return false
	}
	resp := cops.NewResponse(req, body)
	if err := resp.Write(w); err != nil {
		log.Printf("[proxy] %s %s: %v", req.Kind, req.RequestID, err)
	}
	tx.Result = audit.ResultCached
	tx.ResponseTimestamp = resp.Timestamp
	tx.ResponseBytes = len(body)
	return true
}

// remember stores successful activations and forgets deactivated ones.
func (h *Handler) remember(ctx context.Context, req *cops.Request, resp *cops.Response) {
	if h.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	if req.Kind == cops.Activation {
		err = h.cache.Put(ctx, CacheKey(req), resp.Body)
	} else {
		err = h.cache.Delete(ctx, CacheKey(req))
	}
	if err != nil {
		log.Printf("[proxy] cache update failed: %v", err)
	}
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, err error) {
	var br *cops.BadRequest
	reason := err.Error()
	if errors.As(err, &br) {
		reason = br.Reason
	}
	http.Error(w, reason, http.StatusBadRequest)

	if h.metrics != nil {
		h.metrics.BadRequest()
	}
	h.observe(r.Context(), audit.RejectedTransaction(r.URL.Path, clientIP(r), err), 0)
}

func (h *Handler) observe(ctx context.Context, tx audit.Transaction, elapsed time.Duration) {
	if h.metrics != nil {
		h.metrics.ObserveRequest(tx.Kind, tx.Result, elapsed)
	}
	if h.records != nil {
		if err := h.records.Write(context.WithoutCancel(ctx), tx); err != nil {
			log.Printf("[proxy] transaction %s not recorded: %v", tx.EventID, err)
		}
	}
	if h.events != nil {
		err := h.events.Publish(tx)
		if err != nil {
			log.Printf("[proxy] transaction %s not published: %v", tx.EventID, err)
		}
		if h.metrics != nil {
			h.metrics.Published(err)
		}
	}
}

// clientIP prefers the address chi's RealIP middleware left in RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
