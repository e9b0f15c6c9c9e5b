// SPDX-License-Identifier: MIT
//
// Package server exposes classification over HTTP:
//
//	POST /v1/classify           raw audio body (?format=, ?name=, ?probs=1, ?features=1)
//	POST /v1/classify/features  JSON object of the 57 features in canonical order
//	GET  /v1/labels             label order of every distribution
//	GET  /healthz               liveness
//	GET  /ws                    websocket stream of every result
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"genre/internal/audio"
	"genre/internal/batch"
	"genre/internal/classifier"
	"genre/internal/config"
	"genre/internal/features"
	"genre/internal/history"
	applog "genre/internal/log"
	"genre/internal/transport"

	"github.com/google/uuid"
)

var logger = applog.For("Server")

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Option configures a Server.
type Option func(*Server)

// WithHistory records every successful classification in h.
func WithHistory(h *history.Log) Option {
	return func(s *Server) { s.history = h }
}

// WithTransport publishes every result to t in addition to websocket clients.
func WithTransport(t transport.Transport) Option {
	return func(s *Server) { s.publish = t }
}

// Server is the HTTP classification service.
type Server struct {
	pipeline batch.Pipeline
	cfg      config.ServerConfig
	history  *history.Log
	publish  transport.Transport
	ws       *transport.WebSocketTransport
	handler  http.Handler
	http     *http.Server
}

// New builds a server around p. Call Close to release the websocket hub.
func New(p batch.Pipeline, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		cfg:      cfg,
		ws:       transport.NewWebSocketTransport(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/classify", s.handleClassify)
	mux.HandleFunc("POST /v1/classify/features", s.handleClassifyFeatures)
	mux.HandleFunc("GET /v1/labels", s.handleLabels)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /ws", s.ws)
	s.handler = s.withRequestID(mux)
	return s
}

// Handler returns the root handler, for mounting or testing.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", ln.Addr())
		errc <- s.http.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Infof("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.ws.Close()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Close stops the websocket hub and the publish transport.
func (s *Server) Close() error {
	err := s.ws.Close()
	if s.publish != nil {
		err = errors.Join(err, s.publish.Close())
	}
	return err
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		logger.Debugf("%s %s %s in %v", id, r.Method, r.URL.Path, time.Since(start))
	})
}

type response struct {
	transport.Result
	// Shadows Result.Probabilities so it is only present when asked for.
	Probabilities classifier.Distribution `json:"probabilities,omitempty"`
}

type errorResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := audio.ParseFormat(q.Get("format"))
	if err != nil {
		s.writeError(w, r, http.StatusUnsupportedMediaType, err)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Errorf("body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if len(data) == 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("empty request body"))
		return
	}
	source := q.Get("name")
	if source == "" {
		source = "upload"
	}

	s.run(w, r, source, func() (transport.Result, error) {
		return s.pipeline.ClassifyBytes(source, data, format, flag(q.Get("features")))
	})
}

func (s *Server) handleClassifyFeatures(w http.ResponseWriter, r *http.Request) {
	var named features.Named
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&named); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid feature object: %w", err))
		return
	}
	source := r.URL.Query().Get("name")
	if source == "" {
		source = "features"
	}

	s.run(w, r, source, func() (transport.Result, error) {
		start := time.Now()
		res := transport.Result{ID: RequestID(r.Context()), Source: source, Time: start}
		dist, err := s.pipeline.Adapter.ProbabilitiesNamed(named)
		res.Elapsed = time.Since(start)
		if err != nil {
			res.Error = err.Error()
			return res, err
		}
		res.Probabilities = dist
		res.Label = dist.Top().Label
		return res, nil
	})
}

// run executes classify under the request timeout and writes the outcome.
// Extraction cannot be interrupted, so on timeout its result is discarded.
func (s *Server) run(w http.ResponseWriter, r *http.Request, source string, classify func() (transport.Result, error)) {
	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	type outcome struct {
		res transport.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := classify()
		done <- outcome{res, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.writeError(w, r, http.StatusGatewayTimeout, fmt.Errorf("classification of %s timed out after %v", source, s.cfg.RequestTimeout))
		}
		return
	}

	out.res.ID = RequestID(r.Context())
	if out.err != nil {
		s.writeError(w, r, statusFor(out.err), out.err)
		s.broadcast(out.res)
		return
	}

	if s.history != nil {
		if _, err := s.history.Append(source, out.res.Label); err != nil {
			logger.Warnf("Failed to record history: %v", err)
		}
	}
	s.broadcast(out.res)

	resp := response{Result: out.res}
	if flag(r.URL.Query().Get("probs")) {
		resp.Probabilities = out.res.Probabilities
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) broadcast(res transport.Result) {
	if err := s.ws.Send(res); err != nil {
		logger.Debugf("Websocket publish skipped: %v", err)
	}
	if s.publish != nil {
		if err := s.publish.Send(res); err != nil {
			logger.Warnf("Failed to publish result: %v", err)
		}
	}
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"labels":   s.pipeline.Adapter.Labels(),
		"features": features.Names,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ws.Clients(),
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		decodeErr     *audio.DecodeError
		degenerateErr *features.DegenerateInputError
		inputErr      *classifier.ModelInputError
	)
	switch {
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &decodeErr), errors.As(err, &degenerateErr), errors.As(err, &inputErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	id := RequestID(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s: %v", id, err)
	} else {
		logger.Warnf("%s: %v", id, err)
	}
	writeJSON(w, status, errorResponse{ID: id, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Failed to write response: %v", err)
	}
}

func flag(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
