package llm

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// CapturingTransport is an http.RoundTripper that keeps the last request and
// response bodies so failures can be classified from the raw payload. Thread-safe.
type CapturingTransport struct {
	Base http.RoundTripper

	mu           sync.RWMutex
	lastRequest  []byte
	lastResponse []byte
	lastStatus   int
}

// RoundTrip implements http.RoundTripper
func (t *CapturingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	t.mu.Lock()
	t.lastRequest = reqBody
	t.lastResponse = nil
	t.lastStatus = 0
	t.mu.Unlock()

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	t.mu.Lock()
	t.lastResponse = respBody
	t.lastStatus = resp.StatusCode
	t.mu.Unlock()

	return resp, nil
}

// LastCapture returns the last captured request body, response body and status.
func (t *CapturingTransport) LastCapture() (reqBody, respBody []byte, status int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastRequest, t.lastResponse, t.lastStatus
}
