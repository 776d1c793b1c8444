// Package testutil provides a configurable mock provider HTTP server
// for client and engine tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines one canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockProvider is a configurable fake provider API for testing. The
// default handler answers every request with an Open-Meteo style daily
// payload derived from the query's start_date/end_date.
type MockProvider struct {
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	failures []MockResponse // consumed first, one per request

	// RequestCount counts every request received.
	RequestCount int

	// LastQuery holds the most recent request's query values.
	LastQuery map[string]string
}

// NewMockProvider starts the mock server.
func NewMockProvider() *MockProvider {
	m := &MockProvider{
		handlers: make(map[string]http.HandlerFunc),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the server base URL.
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockProvider) Close() {
	m.server.Close()
}

// Handle installs a custom handler for a path.
func (m *MockProvider) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// FailNext queues canned failure responses that are served, in order,
// before the normal handler takes over again.
func (m *MockProvider) FailNext(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, responses...)
}

// Requests returns the number of requests served so far.
func (m *MockProvider) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

func (m *MockProvider) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.LastQuery = make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			m.LastQuery[k] = vs[0]
		}
	}
	var failure *MockResponse
	if len(m.failures) > 0 {
		f := m.failures[0]
		m.failures = m.failures[1:]
		failure = &f
	}
	handler := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if failure != nil {
		if failure.Delay > 0 {
			time.Sleep(failure.Delay)
		}
		w.WriteHeader(failure.StatusCode)
		fmt.Fprint(w, failure.Body)
		return
	}
	if handler != nil {
		handler(w, r)
		return
	}
	m.defaultHandler(w, r)
}

// defaultHandler answers with a complete Open-Meteo style payload for
// the requested span and parameters.
func (m *MockProvider) defaultHandler(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start_date")
	end := r.URL.Query().Get("end_date")
	daily := r.URL.Query().Get("daily")
	body, err := OpenMeteoPayload(start, end, strings.Split(daily, ","))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error":true,"reason":%q}`, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// OpenMeteoPayload builds an archive-style JSON body covering
// [start, end] with synthetic values for each requested field.
func OpenMeteoPayload(start, end string, fields []string) ([]byte, error) {
	startT, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil, fmt.Errorf("bad start_date %q", start)
	}
	endT, err := time.Parse("2006-01-02", end)
	if err != nil {
		return nil, fmt.Errorf("bad end_date %q", end)
	}

	var dates []string
	for d := startT; !d.After(endT); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format("2006-01-02"))
	}

	payload := map[string]interface{}{"time": dates}
	for i, f := range fields {
		if f == "" {
			continue
		}
		col := make([]float64, len(dates))
		for j := range col {
			col[j] = float64(10 + i + j%5)
		}
		payload[f] = col
	}
	return json.Marshal(map[string]interface{}{"daily": payload})
}

// MeteostatPayload builds a point/daily-style JSON body covering
// [start, end] with synthetic values.
func MeteostatPayload(start, end string) ([]byte, error) {
	startT, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil, fmt.Errorf("bad start %q", start)
	}
	endT, err := time.Parse("2006-01-02", end)
	if err != nil {
		return nil, fmt.Errorf("bad end %q", end)
	}

	var days []map[string]interface{}
	for d := startT; !d.After(endT); d = d.AddDate(0, 0, 1) {
		days = append(days, map[string]interface{}{
			"date": d.Format("2006-01-02"),
			"tavg": 11.5,
			"tmin": 7.0,
			"tmax": 16.0,
			"prcp": 0.4,
			"wspd": 12.0,
			"wpgt": 25.0,
			"wdir": 270.0,
			"tsun": nil,
		})
	}
	return json.Marshal(map[string]interface{}{"data": days})
}
