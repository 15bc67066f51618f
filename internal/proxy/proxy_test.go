package proxy_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/frl-toolbox/internal/audit"
	"github.com/technosupport/frl-toolbox/internal/cops"
	"github.com/technosupport/frl-toolbox/internal/metrics"
	"github.com/technosupport/frl-toolbox/internal/proxy"
)

const activationBody = `{
  "npdId": "YzQ5ZmUzYjctNmZjNC00ZmE2LWE3YzgtMjA1ZGRlNTcyNmFl",
  "asnpTemplateId": "WXpRNVptVXpZamN0Tm1aak5DMDBabUUyTFdFM1l6Z3RNakExWkdSbE5UY3lObUZsezkwOTA",
  "appDetails": {"nglAppId": "Photoshop1", "nglAppVersion": "22.4.2", "nglLibVersion": "1.26.0.3"},
  "deviceDetails": {
    "currentDate": "2021-06-25T11:18:36.123-0700",
    "deviceId": "dev-1",
    "osName": "MAC",
    "osUserId": "user-1",
    "osVersion": "11.4.0"
  }
}`

type memRecorder struct {
	mu  sync.Mutex
	txs []audit.Transaction
	err error
}

func (m *memRecorder) Write(_ context.Context, tx audit.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	return m.err
}

type memPublisher struct {
	txs []audit.Transaction
}

func (m *memPublisher) Publish(tx audit.Transaction) error {
	m.txs = append(m.txs, tx)
	return nil
}

type fixture struct {
	router    http.Handler
	records   *memRecorder
	events    *memPublisher
	collector *metrics.Collector
	upstream  *httptest.Server
	seen      chan *http.Request
}

func newFixture(t *testing.T, status int, reply string) *fixture {
	t.Helper()
	f := &fixture{
		records:   &memRecorder{},
		events:    &memPublisher{},
		collector: metrics.NewCollector(metrics.Config{}),
		seen:      make(chan *http.Request, 1),
	}
	f.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		clone := r.Clone(context.Background())
		clone.Body = io.NopCloser(strings.NewReader(string(body)))
		f.seen <- clone
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(f.upstream.Close)

	h := proxy.NewHandler(proxy.Config{
		Scheme:  "http",
		Host:    strings.TrimPrefix(f.upstream.URL, "http://"),
		Timeout: 5 * time.Second,
	}, nil, f.records, f.events, f.collector)
	f.router = proxy.NewRouter(h, proxy.RouterConfig{Metrics: f.collector.Handler()})
	return f
}

func (f *fixture) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	return rec
}

func activation(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, cops.ActivationPath, strings.NewReader(body))
	r.Header.Set("X-Api-Key", "ngl_photoshop1")
	r.Header.Set("X-Request-Id", "req-1")
	r.Header.Set("X-Session-Id", "sess-1")
	r.RemoteAddr = "10.0.0.7:51234"
	return r
}

func TestActivationForwarded(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{"adobeCertSignedValues":{}}`)

	rec := f.do(activation(activationBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"adobeCertSignedValues":{}}`, rec.Body.String())
	assert.Equal(t, "application/json;charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))

	up := <-f.seen
	assert.Equal(t, http.MethodPost, up.Method)
	assert.Equal(t, cops.ActivationPath, up.URL.Path)
	assert.Equal(t, "ngl_photoshop1", up.Header.Get("X-Api-Key"))
	assert.Equal(t, cops.UserAgent(), up.Header.Get("User-Agent"))
	body, _ := io.ReadAll(up.Body)
	assert.Contains(t, string(body), `"deviceId":"dev-1"`)

	require.Len(t, f.records.txs, 1)
	tx := f.records.txs[0]
	assert.Equal(t, "activation", tx.Kind)
	assert.Equal(t, audit.ResultSuccess, tx.Result)
	assert.Equal(t, "10.0.0.7", tx.ClientIP)
	assert.Equal(t, len(`{"adobeCertSignedValues":{}}`), tx.ResponseBytes)
	assert.Len(t, f.events.txs, 1)
}

func TestDeactivationForwarded(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{"invalidationSuccessful":true}`)

	r := httptest.NewRequest(http.MethodDelete, cops.DeactivationPath+"?npdId=YzQ5&deviceId=dev-1&osUserId=user-1&enableVdiMarkerExists=true", nil)
	r.Header.Set("X-Api-Key", "ngl_photoshop1")
	r.Header.Set("X-Request-Id", "req-2")
	rec := f.do(r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"invalidationSuccessful":true}`, rec.Body.String())

	up := <-f.seen
	assert.Equal(t, http.MethodDelete, up.Method)
	assert.Equal(t, "npdId=YzQ5&deviceId=dev-1&osUserId=user-1&enableVdiMarkerExists=true", up.URL.RawQuery)
	require.Len(t, f.records.txs, 1)
	assert.Equal(t, "deactivation", f.records.txs[0].Kind)
}

func TestBadRequests(t *testing.T) {
	cases := []struct {
		name   string
		req    func() *http.Request
		reason string
	}{
		{"wrong method", func() *http.Request {
			r := activation(activationBody)
			r.Method = http.MethodGet
			return r
		}, "Activation method must be POST"},
		{"missing header", func() *http.Request {
			r := activation(activationBody)
			r.Header.Del("X-Session-Id")
			return r
		}, "Missing required header field"},
		{"malformed body", func() *http.Request { return activation("not json") }, "Malformed activation request body"},
		{"unknown path", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/asnp/other", nil)
		}, "Unknown endpoint path: /asnp/other"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, http.StatusOK, "{}")
			req := tc.req()
			rec := f.do(req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.reason, strings.TrimSpace(rec.Body.String()))
			select {
			case <-f.seen:
				t.Fatal("bad request reached upstream")
			default:
			}
			require.Len(t, f.records.txs, 1)
			tx := f.records.txs[0]
			assert.Equal(t, audit.ResultBadRequest, tx.Result)
			assert.Empty(t, tx.Kind)
			assert.Equal(t, req.URL.Path, tx.Path)
		})
	}
}

func TestUpstreamErrorStatus(t *testing.T) {
	f := newFixture(t, http.StatusForbidden, `{"error":"denied"}`)

	rec := f.do(activation(activationBody))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, `{"error":"denied"}`, rec.Body.String())
	require.Len(t, f.records.txs, 1)
	assert.Equal(t, audit.ResultFailure, f.records.txs[0].Result)
	assert.Equal(t, http.StatusForbidden, f.records.txs[0].UpstreamStatus)
}

func TestUpstreamUnreachable(t *testing.T) {
	f := newFixture(t, http.StatusOK, "{}")
	f.upstream.Close()

	rec := f.do(activation(activationBody))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	require.Len(t, f.records.txs, 1)
	assert.Equal(t, audit.ResultFailure, f.records.txs[0].Result)
}

func TestRecorderFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t, http.StatusOK, "{}")
	f.records.err = errors.New("spool full")

	rec := f.do(activation(activationBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, http.StatusOK, "{}")
	f.do(activation(activationBody))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `frl_proxy_requests_total{kind="activation",result="success"} 1`)
}

func TestHealthFailure(t *testing.T) {
	h := proxy.NewHandler(proxy.Config{Scheme: "http", Host: "localhost:1"}, nil, nil, nil, nil)
	router := proxy.NewRouter(h, proxy.RouterConfig{
		Health: func(context.Context) error { return errors.New("database unreachable") },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database unreachable")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
