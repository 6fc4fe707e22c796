package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// RequestRecord captures details of an HTTP request.
type RequestRecord struct {
	Timestamp time.Time           `json:"timestamp"`
	Method    string              `json:"method"`
	Host      string              `json:"host"`
	Path      string              `json:"path"`
	Query     string              `json:"query,omitempty"`
	Headers   map[string][]string `json:"headers"`
	Body      string              `json:"body,omitempty"`
	Action    string              `json:"action,omitempty"` // AWS API action
	Target    string              `json:"target,omitempty"` // cluster identifier or ARN
}

// MockResponse defines a canned HTTP response.
type MockResponse struct {
	Service    string            `yaml:"service" json:"service"`
	Method     string            `yaml:"method" json:"method"`
	Path       string            `yaml:"path" json:"path"`
	Action     string            `yaml:"action,omitempty" json:"action,omitempty"` // AWS API action to match
	Target     string            `yaml:"target,omitempty" json:"target,omitempty"` // cluster identifier or ARN to match
	Times      int               `yaml:"times,omitempty" json:"times,omitempty"`   // serve at most this many times, 0 = unlimited
	StatusCode int               `yaml:"status_code" json:"status_code"`
	Headers    map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body       string            `yaml:"body" json:"body"`
}

// MockServer simulates an HTTP API service.
type MockServer struct {
	name      string
	mu        sync.Mutex
	requests  []RequestRecord
	responses []MockResponse // Keep as list for action matching
	served    []int
	verbose   bool
}

// NewMockServer creates a new mock HTTP server.
func NewMockServer(name string, responses []MockResponse, verbose bool) *MockServer {
	filtered := make([]MockResponse, 0)
	for _, r := range responses {
		if strings.EqualFold(r.Service, name) {
			filtered = append(filtered, r)
		}
	}
	return &MockServer{
		name:      name,
		requests:  make([]RequestRecord, 0),
		responses: filtered,
		served:    make([]int, len(filtered)),
		verbose:   verbose,
	}
}

// requestTarget extracts the resource a query-protocol call addresses.
func requestTarget(values url.Values) string {
	if id := values.Get("DBClusterIdentifier"); id != "" {
		return id
	}
	return values.Get("ResourceName")
}

// ServeHTTP records the request and returns a matching mock response.
func (ms *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()

	// Parse the body to extract the Action parameter (AWS API uses form-encoded body)
	action, target := "", ""
	if values, err := url.ParseQuery(string(body)); err == nil {
		action = values.Get("Action")
		target = requestTarget(values)
	}

	rec := RequestRecord{
		Timestamp: time.Now(),
		Method:    r.Method,
		Host:      r.Host,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Headers:   r.Header,
		Body:      string(body),
		Action:    action,
		Target:    target,
	}

	ms.mu.Lock()
	ms.requests = append(ms.requests, rec)
	resp, ok := ms.match(r, action, target)
	ms.mu.Unlock()

	if ms.verbose {
		detail := ""
		if action != "" {
			detail = fmt.Sprintf(" [%s %s]", action, target)
		}
		fmt.Printf("    -> %-6s %-4s %s%s\n", ms.name, r.Method, r.URL.Path, detail)
	}

	if ok {
		ms.sendResponse(w, resp)
		return
	}

	// Default response
	if ms.verbose {
		fmt.Printf("    !  %-6s No mock for: %s %s (action: %s, target: %s)\n", ms.name, r.Method, r.URL.Path, action, target)
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><ErrorResponse><Error><Type>Sender</Type><Code>NotFound</Code><Message>No mock response configured</Message></Error></ErrorResponse>`))
}

// match finds the response for a request. Responses naming the request's
// target win over untargeted ones; exhausted responses are skipped.
// MUST be called with ms.mu held.
func (ms *MockServer) match(r *http.Request, action, target string) (MockResponse, bool) {
	for _, wantTarget := range []bool{true, false} {
		for i, resp := range ms.responses {
			if resp.Times > 0 && ms.served[i] >= resp.Times {
				continue
			}
			if (resp.Target != "") != wantTarget {
				continue
			}
			if resp.Target != "" && resp.Target != target {
				continue
			}

			if resp.Action != "" {
				if action != resp.Action || r.Method != resp.Method {
					continue
				}
			} else if r.Method != resp.Method || !matchPath(r.URL.Path, resp.Path) {
				continue
			}

			ms.served[i]++
			return resp, true
		}
	}
	return MockResponse{}, false
}

func (ms *MockServer) sendResponse(w http.ResponseWriter, resp MockResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/xml")
	}
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(resp.Body))
}

// GetRequests returns all captured requests.
func (ms *MockServer) GetRequests() []RequestRecord {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	reqs := make([]RequestRecord, len(ms.requests))
	copy(reqs, ms.requests)
	return reqs
}

// matchPath checks if a path matches a pattern (supports wildcards).
func matchPath(actual, pattern string) bool {
	if pattern == actual {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(actual, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
