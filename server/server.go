// Package server exposes native evaluation over HTTP so that a Remote
// dispatcher elsewhere can send it plans.
package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/razeghi71/ply/dispatch"
	"github.com/razeghi71/ply/engine"
	"github.com/razeghi71/ply/plan"
	"github.com/razeghi71/ply/value"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodySize bounds a posted plan.
const maxBodySize = 16 << 20

// Server evaluates posted plans against a fixed set of datasets.
type Server struct {
	logger   log.Logger
	native   *dispatch.Native
	env      engine.Environment
	router   *mux.Router
	duration *prometheus.HistogramVec
}

// New creates a server. reg may be nil, in which case metrics are neither
// registered nor served.
func New(logger log.Logger, datasets value.Datum, env engine.Environment, reg *prometheus.Registry) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}
	s := &Server{
		logger: logger,
		native: &dispatch.Native{Datasets: datasets},
		env:    env,
		router: mux.NewRouter(),
		duration: promauto.With(registerer).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ply",
			Name:      "server_query_duration_seconds",
			Help:      "Time spent evaluating posted queries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status_code"}),
	}

	s.router.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	s.router.HandleFunc("/datasets", s.handleDatasets).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	if reg != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	return s.Serve(ctx, l)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(l)
	}()
	level.Info(s.logger).Log("msg", "server listening", "addr", l.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type queryRequest struct {
	Query   jsoniter.RawMessage `json:"query"`
	Context map[string]any      `json:"context"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status, err := s.query(w, r)
	elapsed := time.Since(start)
	s.duration.WithLabelValues(strconv.Itoa(status)).Observe(elapsed.Seconds())

	if err != nil {
		level.Warn(s.logger).Log("msg", "query failed", "status", status, "duration", elapsed, "err", err)
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	level.Info(s.logger).Log("msg", "query", "status", status, "duration", elapsed)
}

// query evaluates one posted plan and writes the value on success.
func (s *Server) query(w http.ResponseWriter, r *http.Request) (int, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return http.StatusBadRequest, errors.Wrap(err, "reading body")
	}
	var req queryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, errors.Wrap(err, "decoding body")
	}
	if len(req.Query) == 0 {
		return http.StatusBadRequest, errors.New("missing query")
	}
	ex, err := plan.UnmarshalExpression(req.Query)
	if err != nil {
		return http.StatusBadRequest, err
	}
	env, err := s.environment(req.Context)
	if err != nil {
		return http.StatusBadRequest, err
	}

	v, err := s.native.Dispatch(r.Context(), ex, value.Datum{}, env)
	if err != nil {
		if engine.IsEvaluationError(err) {
			return http.StatusBadRequest, err
		}
		return http.StatusInternalServerError, err
	}
	out, err := plan.MarshalValue(v)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
	return http.StatusOK, nil
}

// environment overlays the request context on the server's environment.
func (s *Server) environment(ctx map[string]any) (engine.Environment, error) {
	env := s.env
	if tz, ok := ctx["timezone"].(string); ok && tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return env, errors.Wrapf(err, "invalid timezone %q", tz)
		}
		env.Timezone = loc
	}
	if locale, ok := ctx["locale"].(string); ok {
		env.Locale = locale
	}
	return env, env.Validate()
}

type datasetInfo struct {
	Name       string   `json:"name"`
	Attributes []string `json:"attributes"`
	Rows       int      `json:"rows"`
}

func (s *Server) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	infos := []datasetInfo{}
	for _, a := range s.native.Datasets.Attributes() {
		if a.Value.Type != value.TypeDataset {
			continue
		}
		infos = append(infos, datasetInfo{Name: a.Name, Attributes: a.Value.Dataset.Attributes, Rows: a.Value.Dataset.Len()})
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ready\n")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
