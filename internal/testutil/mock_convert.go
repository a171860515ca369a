// Package testutil provides testing utilities for the page conversion
// pipeline.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior of the mock service for one page.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockConvertService is a configurable fake of the remote conversion
// service. It tracks request counts per page and the peak number of
// concurrent requests, which tests use to verify at-most-once invocation
// and the scheduler's concurrency ceiling.
type MockConvertService struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[int]MockResponse // by page index
	counts    map[int]int
	inFlight  int
	peak      int
}

// NewMockConvertService creates a mock conversion service. Pages without a
// configured response get a 200 with a deterministic HTML body.
func NewMockConvertService() *MockConvertService {
	mock := &MockConvertService{
		responses: make(map[int]MockResponse),
		counts:    make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockConvertService) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockConvertService) Close() {
	m.server.Close()
}

// SetResponse configures the response for one page index.
func (m *MockConvertService) SetResponse(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[page] = resp
}

// RequestCount returns how many times the given page was requested.
func (m *MockConvertService) RequestCount(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[page]
}

// TotalRequests returns the total number of requests served.
func (m *MockConvertService) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.counts {
		total += n
	}
	return total
}

// PeakConcurrency returns the maximum number of requests that were in
// flight at the same time.
func (m *MockConvertService) PeakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

func (m *MockConvertService) handle(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.Header.Get("X-Page"))
	if err != nil {
		http.Error(w, "missing or invalid X-Page header", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.counts[page]++
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
	resp, configured := m.responses[page]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	// Body is read so payload size influences nothing downstream.
	_, _ = io.Copy(io.Discard, r.Body)

	if !configured {
		resp = MockResponse{
			StatusCode: http.StatusOK,
			Body:       fmt.Sprintf("<html><body>page %d</body></html>", page),
		}
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write([]byte(resp.Body))
}
