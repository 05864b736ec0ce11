package server

import (
	"context"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/razeghi71/ply/dispatch"
	"github.com/razeghi71/ply/engine"
	"github.com/razeghi71/ply/locator"
	"github.com/razeghi71/ply/parser"
	"github.com/razeghi71/ply/plan"
	"github.com/razeghi71/ply/requester"
	"github.com/razeghi71/ply/retry"
	"github.com/razeghi71/ply/value"
)

func salesDatasets() value.Datum {
	sale := func(city string, revenue float64) value.Datum {
		return value.NewDatum(
			value.Attribute{Name: "city", Value: value.String(city)},
			value.Attribute{Name: "revenue", Value: value.Number(revenue)},
		)
	}
	sales := value.FromData([]value.Datum{sale("NY", 100), sale("LA", 50), sale("NY", 25)})
	return value.NewDatum(value.Attribute{Name: "sales", Value: value.DatasetVal(sales)})
}

func postQuery(t *testing.T, h http.Handler, query string, ctx map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	q, err := plan.MarshalExpression(parser.MustParse(query))
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{"query": jsoniter.RawMessage(q), "context": ctx})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(string(body))))
	return rec
}

func TestQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(nil, salesDatasets(), engine.Environment{}, reg)

	rec := postQuery(t, s, "$sales.filter($city == 'NY').sum($revenue)", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v, err := plan.UnmarshalValue(rec.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, 125.0, v.Num)

	rec = postQuery(t, s, "$sales.filter($city == 'LA')", map[string]any{"timezone": "Europe/Paris"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v, err = plan.UnmarshalValue(rec.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, value.TypeDataset, v.Type)
	require.Equal(t, 1, v.Dataset.Len())

	require.Equal(t, 1, testutil.CollectAndCount(s.duration, "ply_server_query_duration_seconds"))
}

func TestQueryErrors(t *testing.T) {
	s := New(nil, salesDatasets(), engine.Environment{}, nil)

	rec := postQuery(t, s, "$missing.count()", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"error"`)
	require.Contains(t, rec.Body.String(), "missing")

	rec = postQuery(t, s, "1", map[string]any{"timezone": "Nowhere/Land"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid timezone")

	for _, body := range []string{`not json`, `{}`, `{"query": {"op": "bogus"}}`} {
		rec = httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDatasetsReadyMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(nil, salesDatasets(), engine.Environment{}, reg)
	postQuery(t, s, "$sales.count()", nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/datasets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"name": "sales", "attributes": ["city", "revenue"], "rows": 3}]`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ply_server_query_duration_seconds")
}

func backendLocation(t *testing.T, url string) locator.Location {
	t.Helper()
	host, port, err := net.SplitHostPort(strings.TrimPrefix(url, "http://"))
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return locator.Location{Hostname: host, Port: p}
}

func TestRemoteRoundTrip(t *testing.T) {
	backend := httptest.NewServer(New(nil, salesDatasets(), engine.Environment{}, nil))
	defer backend.Close()

	remote := dispatch.NewRemote(
		locator.Static{Location: backendLocation(t, backend.URL)},
		requester.NewHTTP("/query", time.Second),
		retry.Config{Strategy: retry.StrategyExponential, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, FailAfter: 2},
		nil, nil,
	)

	v, err := remote.Dispatch(context.Background(), parser.MustParse("$sales.filter($city == 'NY').sum($revenue)"), value.Datum{}, engine.Environment{})
	require.NoError(t, err)
	require.Equal(t, 125.0, v.Num)

	local := value.FromData([]value.Datum{
		value.NewDatum(value.Attribute{Name: "name", Value: value.String("NY")}),
		value.NewDatum(value.Attribute{Name: "name", Value: value.String("LA")}),
	})
	router := &dispatch.Router{
		Native:         &dispatch.Native{Datasets: value.NewDatum(value.Attribute{Name: "cities", Value: value.DatasetVal(local)})},
		Remote:         remote,
		RemoteDatasets: []string{"sales"},
	}
	v, err = router.Dispatch(context.Background(), parser.MustParse("$sales.sum($revenue) + $cities.count()"), value.Datum{}, engine.Environment{})
	require.NoError(t, err)
	require.Equal(t, 177.0, v.Num)

	_, err = remote.Dispatch(context.Background(), parser.MustParse("$missing.count()"), value.Datum{}, engine.Environment{})
	var reqErr *dispatch.RequestError
	require.True(t, errors.As(err, &reqErr), "got %v", err)
	require.True(t, reqErr.Permanent)
}

func TestEvaluationErrorIsNotRetried(t *testing.T) {
	events := value.FromData([]value.Datum{
		value.NewDatum(value.Attribute{Name: "ts", Value: value.String("not a date")}),
	})
	s := New(nil, value.NewDatum(value.Attribute{Name: "events", Value: value.DatasetVal(events)}), engine.Environment{}, nil)
	query := "$events.apply('d', $ts.timeFloor('day'))"

	rec := postQuery(t, s, query, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "timeFloor")

	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		s.ServeHTTP(w, r)
	}))
	defer backend.Close()

	remote := dispatch.NewRemote(
		locator.Static{Location: backendLocation(t, backend.URL)},
		requester.NewHTTP("/query", time.Second),
		retry.Config{Strategy: retry.StrategyExponential, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, FailAfter: 5},
		nil, nil,
	)
	_, err := remote.Dispatch(context.Background(), parser.MustParse(query), value.Datum{}, engine.Environment{})
	var reqErr *dispatch.RequestError
	require.True(t, errors.As(err, &reqErr), "got %v", err)
	require.True(t, reqErr.Permanent)
	require.Equal(t, int32(1), hits.Load())
}

func TestQueryNonFiniteResult(t *testing.T) {
	big := func(n float64) value.Datum {
		return value.NewDatum(value.Attribute{Name: "n", Value: value.Number(n)})
	}
	huge := value.FromData([]value.Datum{big(math.MaxFloat64), big(math.MaxFloat64)})
	s := New(nil, value.NewDatum(value.Attribute{Name: "huge", Value: value.DatasetVal(huge)}), engine.Environment{}, nil)

	rec := postQuery(t, s, "$huge.sum($n)", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v, err := plan.UnmarshalValue(rec.Body.Bytes())
	require.NoError(t, err)
	require.True(t, math.IsInf(v.Num, 1), "got %s", v)
}

func TestServeShutsDown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := New(nil, salesDatasets(), engine.Environment{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/ready")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
