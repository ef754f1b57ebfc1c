// Package devkit holds test doubles for exercising providers without a
// network.
package devkit

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
)

type Script struct {
	StatusCode int
	Body       string
	Header     http.Header
	Err        error
}

// RecordedRequest captures one request as the provider sent it, body already
// drained.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// FakeDoer answers requests from a fixed script, replaying the last entry
// once the script runs out.
type FakeDoer struct {
	mu       sync.Mutex
	scripts  []Script
	requests []RecordedRequest
}

func NewFakeDoer(scripts ...Script) *FakeDoer {
	return &FakeDoer{scripts: append([]Script(nil), scripts...)}
}

func (d *FakeDoer) Do(req *http.Request) (*http.Response, error) {
	if d == nil {
		return nil, fmt.Errorf("devkit: fake doer is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var body []byte
	if req.Body != nil {
		drained, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("devkit: read request body: %w", err)
		}
		req.Body.Close()
		body = drained
	}
	d.requests = append(d.requests, RecordedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})

	index := len(d.requests) - 1
	if index >= len(d.scripts) {
		if len(d.scripts) == 0 {
			return newResponse(Script{StatusCode: http.StatusOK}), nil
		}
		index = len(d.scripts) - 1
	}
	script := d.scripts[index]
	if script.Err != nil {
		return nil, script.Err
	}
	return newResponse(script), nil
}

func (d *FakeDoer) Requests() []RecordedRequest {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]RecordedRequest(nil), d.requests...)
}

func newResponse(script Script) *http.Response {
	statusCode := script.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	header := script.Header
	if header == nil {
		header = http.Header{"Content-Type": []string{"application/json"}}
	}
	return &http.Response{
		StatusCode: statusCode,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(script.Body))),
	}
}
