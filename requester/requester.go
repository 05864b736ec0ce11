// Package requester sends translated queries to a located backend.
package requester

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/razeghi71/ply/locator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Request is one query addressed to one backend.
type Request struct {
	Location locator.Location
	Query    any
	// Context carries per call settings such as the timezone.
	Context map[string]any
}

// Requester performs a request and returns the backend's raw answer.
type Requester interface {
	Request(ctx context.Context, req Request) (any, error)
}

// Func adapts a function to a Requester.
type Func func(ctx context.Context, req Request) (any, error)

func (f Func) Request(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// StatusError is a non-2xx answer. Client errors are permanent; server
// errors and throttling may succeed on a later attempt.
type StatusError struct {
	Location   locator.Location
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s answered %d: %s", e.Location, e.StatusCode, e.Body)
}

func (e *StatusError) Permanent() bool {
	return e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// TransportError is a failure to reach the backend at all. The location
// that produced it should be looked up again.
type TransportError struct {
	Location locator.Location
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("reaching %s: %v", e.Location, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Stale() bool { return true }

// Body is the JSON document posted to a backend.
type Body struct {
	Query   any            `json:"query"`
	Context map[string]any `json:"context,omitempty"`
}

// HTTP posts requests as JSON to http://location/path and returns the
// response body as a jsoniter.RawMessage.
type HTTP struct {
	Client *http.Client
	// Path defaults to /query.
	Path string
	// Timeout bounds a single request. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// NewHTTP creates an HTTP requester with its own client.
func NewHTTP(path string, timeout time.Duration) *HTTP {
	return &HTTP{Client: &http.Client{}, Path: path, Timeout: timeout}
}

func (h *HTTP) Request(ctx context.Context, req Request) (any, error) {
	payload, err := json.Marshal(Body{Query: req.Query, Context: req.Context})
	if err != nil {
		return nil, errors.Wrap(err, "encoding request")
	}

	parent := ctx
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, h.Timeout)
		defer cancel()
	}

	path := h.Path
	if path == "" {
		path = "/query"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := "http://" + req.Location.String() + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", url)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		if parent.Err() != nil {
			return nil, parent.Err()
		}
		return nil, &TransportError{Location: req.Location, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Location: req.Location, Err: errors.Wrap(err, "reading response")}
	}
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Location: req.Location, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return jsoniter.RawMessage(body), nil
}
