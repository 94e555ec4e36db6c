/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	applog "genstage/internal/log"
	"genstage/internal/version"
)

const (
	maxBodyBytes = 1 << 20
	maxBoardName = 128
	maxBatch     = 1000
	devSecret    = "dev-secret-change-me"
)

// Config holds server configuration.
type Config struct {
	DBURL  string
	Addr   string // http bind address, e.g. ":8080"
	Secret string
}

// LoadConfig reads GST_PG_DSN/DATABASE_URL, PORT/ADDR and GST_AUTH_SECRET.
func LoadConfig() Config {
	cfg := Config{DBURL: DSNFromEnv(), Addr: ":8080", Secret: os.Getenv("GST_AUTH_SECRET")}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	return cfg
}

// Server exposes the layout API over a Store.
type Server struct {
	store  Store
	secret string
	log    *slog.Logger
	now    func() time.Time
	met    *metrics
}

// NewServer builds a server. An empty secret falls back to an insecure
// development secret and logs a warning.
func NewServer(store Store, secret string) *Server {
	l := applog.WithComponent("backend")
	if secret == "" {
		secret = devSecret
		l.Warn("GST_AUTH_SECRET not set; using insecure dev secret")
	}
	return &Server{store: store, secret: secret, log: l, now: time.Now, met: newMetrics()}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db not ready"))
			return
		}
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(version.String()))
	})
	mux.Handle("GET /metrics", s.met.handler())
	mux.HandleFunc("POST /api/auth/token", s.handleToken)
	mux.HandleFunc("GET /api/boards/{board}/positions", s.withAuth(s.handleGetPositions))
	mux.HandleFunc("PUT /api/boards/{board}/positions", s.withAuth(s.handlePutPositions))
	mux.HandleFunc("DELETE /api/boards/{board}/positions/{item}", s.withAuth(s.handleDeletePosition))
	return s.met.instrument(s.logRequests(mux))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("dur", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject    string `json:"subject"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	b, _ := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	_ = r.Body.Close()
	_ = json.Unmarshal(b, &req)
	if req.Subject == "" {
		req.Subject = "dev"
	}
	if req.TTLSeconds <= 0 || req.TTLSeconds > 24*3600 {
		req.TTLSeconds = 3600
	}
	exp := s.now().Add(time.Duration(req.TTLSeconds) * time.Second)
	tok, err := SignToken(s.secret, req.Subject, exp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: tok, ExpiresAt: exp.UTC().Format(time.RFC3339)})
}

func boardName(r *http.Request) (string, error) {
	b := strings.TrimSpace(r.PathValue("board"))
	if b == "" || len(b) > maxBoardName {
		return "", errors.New("invalid board name")
	}
	return b, nil
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request, _ string) {
	board, err := boardName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ps, err := s.store.Positions(r.Context(), board)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		s.log.Error("read positions failed", slog.String("board", board), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, PositionsEnvelope{Board: board, Positions: ps})
	}
}

func (s *Server) handlePutPositions(w http.ResponseWriter, r *http.Request, subject string) {
	board, err := boardName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var env PositionsEnvelope
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if len(env.Positions) == 0 || len(env.Positions) > maxBatch {
		writeError(w, http.StatusBadRequest, fmt.Errorf("expected 1..%d positions", maxBatch))
		return
	}
	for _, p := range env.Positions {
		if strings.TrimSpace(p.ItemID) == "" {
			writeError(w, http.StatusBadRequest, errors.New("item_id is required"))
			return
		}
	}
	if err := s.store.PutPositions(r.Context(), board, subject, env.Positions); err != nil {
		s.log.Error("write positions failed", slog.String("board", board), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.met.positions.WithLabelValues("put").Add(float64(len(env.Positions)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request, _ string) {
	board, err := boardName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeletePositions(r.Context(), board, []string{r.PathValue("item")}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.met.positions.WithLabelValues("delete").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Start opens Postgres from cfg, applies migrations and serves until ctx ends.
func Start(ctx context.Context, cfg Config) error {
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := OpenPG(openCtx, cfg.DBURL)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			applog.WithComponent("backend").Warn("db close", slog.Any("err", err))
		}
	}()
	return NewServer(store, cfg.Secret).Serve(ctx, cfg.Addr)
}

// TokenResponse is returned by POST /api/auth/token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// PositionsEnvelope is the body of the positions endpoints.
type PositionsEnvelope struct {
	Board     string     `json:"board,omitempty"`
	Positions []Position `json:"positions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
