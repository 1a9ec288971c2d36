package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RemoteAlert is one alert as served by GET /alerts.
type RemoteAlert struct {
	Name               string          `json:"name"`
	Query              string          `json:"query"`
	IntervalSecs       float64         `json:"intervalSecs"`
	RepeatIntervalSecs float64         `json:"repeatIntervalSecs"`
	Warn               RemoteThreshold `json:"warn"`
	Critical           RemoteThreshold `json:"critical"`
}

// RemoteThreshold is one threshold of a RemoteAlert.
type RemoteThreshold struct {
	Message string  `json:"message"`
	Value   float64 `json:"value"`
}

// RemoteCall is one notify or resolve request received by FakeRemote.
type RemoteCall struct {
	Kind    string
	Alert   string
	Message string
}

// FakeRemote is an in-process alerting service for tests.
// Queries answer with the last value set via SetValue; unknown queries get 404.
type FakeRemote struct {
	server *httptest.Server

	mu     sync.Mutex
	alerts []RemoteAlert
	values map[string]float64
	calls  []RemoteCall
}

// NewFakeRemote starts a fake remote serving alerts.
// Params: test handle and the alert set.
// Returns: running fake; it is closed by test cleanup.
func NewFakeRemote(tb testing.TB, alerts ...RemoteAlert) *FakeRemote {
	tb.Helper()

	remote := &FakeRemote{
		alerts: alerts,
		values: make(map[string]float64),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /alerts", remote.handleAlerts)
	mux.HandleFunc("GET /query", remote.handleQuery)
	mux.HandleFunc("POST /notify", remote.handleNotify)
	mux.HandleFunc("POST /resolve", remote.handleResolve)
	remote.server = httptest.NewServer(mux)
	tb.Cleanup(remote.server.Close)
	return remote
}

// URL returns the base URL of the fake.
func (r *FakeRemote) URL() string {
	return r.server.URL
}

// SetValue changes the sample returned for query.
func (r *FakeRemote) SetValue(query string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[query] = value
}

// Calls returns a copy of the notify and resolve requests received so far.
func (r *FakeRemote) Calls() []RemoteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RemoteCall, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *FakeRemote) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	alerts := r.alerts
	r.mu.Unlock()
	writeJSON(w, alerts)
}

func (r *FakeRemote) handleQuery(w http.ResponseWriter, req *http.Request) {
	target := req.URL.Query().Get("target")
	r.mu.Lock()
	value, ok := r.values[target]
	r.mu.Unlock()
	if !ok {
		http.NotFound(w, req)
		return
	}
	writeJSON(w, map[string]float64{"value": value})
}

func (r *FakeRemote) handleNotify(w http.ResponseWriter, req *http.Request) {
	var body struct {
		AlertName string `json:"alertName"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.record(RemoteCall{Kind: "notify", Alert: body.AlertName, Message: body.Message})
	w.WriteHeader(http.StatusNoContent)
}

func (r *FakeRemote) handleResolve(w http.ResponseWriter, req *http.Request) {
	var body struct {
		AlertName string `json:"alertName"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.record(RemoteCall{Kind: "resolve", Alert: body.AlertName})
	w.WriteHeader(http.StatusNoContent)
}

func (r *FakeRemote) record(call RemoteCall) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
