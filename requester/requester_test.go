package requester

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"

	"github.com/razeghi71/ply/locator"
)

func serverLocation(t *testing.T, srv *httptest.Server) locator.Location {
	t.Helper()
	l, err := locator.ParseLocation(srv.Listener.Addr().String())
	require.NoError(t, err)
	return l
}

func TestHTTPRequest(t *testing.T) {
	var got Body
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/plan", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		w.Write([]byte(`{"type":"NUMBER","value":3}`))
	}))
	defer srv.Close()

	h := NewHTTP("plan", time.Second)
	res, err := h.Request(context.Background(), Request{
		Location: serverLocation(t, srv),
		Query:    jsoniter.RawMessage(`{"op":"ref","name":"x"}`),
		Context:  map[string]any{"timezone": "UTC"},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"NUMBER","value":3}`, string(res.(jsoniter.RawMessage)))
	require.Equal(t, map[string]any{"op": "ref", "name": "x"}, got.Query)
	require.Equal(t, map[string]any{"timezone": "UTC"}, got.Context)
}

func TestHTTPStatusErrors(t *testing.T) {
	for _, tc := range []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))

		_, err := NewHTTP("", 0).Request(context.Background(), Request{Location: serverLocation(t, srv)})
		srv.Close()

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr), "status %d", tc.status)
		require.Equal(t, tc.status, statusErr.StatusCode)
		require.Equal(t, "nope", statusErr.Body)
		require.Equal(t, tc.permanent, statusErr.Permanent(), "status %d", tc.status)
	}
}

func TestHTTPUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	loc := serverLocation(t, srv)
	srv.Close()

	_, err := NewHTTP("", time.Second).Request(context.Background(), Request{Location: loc})
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	require.True(t, transportErr.Stale())
	require.Equal(t, loc, transportErr.Location)
}

func TestHTTPCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTP("", 0).Request(ctx, Request{Location: serverLocation(t, srv)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFunc(t *testing.T) {
	r := Func(func(_ context.Context, req Request) (any, error) {
		return req.Location.String(), nil
	})
	res, err := r.Request(context.Background(), Request{Location: locator.Location{Hostname: "h", Port: 1}})
	require.NoError(t, err)
	require.Equal(t, "h:1", res)
}
