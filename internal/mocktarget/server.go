// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mocktarget is a stand-in HTTP service that heyload can be pointed
// at when no real target is available. It answers within a bounded, randomized
// time with a fixed status code per route.
package mocktarget

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LatencyRange is an inclusive range that simulated processing time is drawn
// from. A zero range adds no delay.
type LatencyRange struct {
	Min time.Duration
	Max time.Duration
}

// Config configures a Server.
type Config struct {
	// GetLatency applies to GET requests on known routes
	GetLatency LatencyRange
	// PostLatency applies to every POST
	PostLatency LatencyRange
	// Seed seeds the latency and /metrics generator. Zero seeds from the clock.
	Seed int64
}

// DefaultConfig returns the stock delays, 1-20ms for GETs and 5-30ms for
// POSTs.
func DefaultConfig() Config {
	return Config{
		GetLatency:  LatencyRange{Min: time.Millisecond, Max: 20 * time.Millisecond},
		PostLatency: LatencyRange{Min: 5 * time.Millisecond, Max: 30 * time.Millisecond},
	}
}

// Server is the mock target.
type Server struct {
	cfg Config

	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Server configured by cfg.
func New(cfg Config) *Server {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Server{cfg: cfg, rnd: rand.New(rand.NewSource(seed))}
}

// Handler returns the Server's routes:
//
//	GET  /health  200 {"status":"healthy",...}
//	GET  /metrics 200 with random counters
//	GET  /api/... 200
//	POST any      201
//
// Anything else is a 404.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serve)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("mocktarget: request")

	switch {
	case r.Method == http.MethodPost:
		if !s.delay(r.Context(), s.cfg.PostLatency) {
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"status":    "created",
			"path":      r.URL.Path,
			"timestamp": time.Now().Format(time.RFC3339Nano),
		})
	case r.Method != http.MethodGet:
		http.NotFound(w, r)
	case r.URL.Path == "/health":
		if !s.delay(r.Context(), s.cfg.GetLatency) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339Nano),
		})
	case r.URL.Path == "/metrics":
		if !s.delay(r.Context(), s.cfg.GetLatency) {
			return
		}
		writeJSON(w, http.StatusOK, s.randomMetrics())
	case strings.HasPrefix(r.URL.Path, "/api/"):
		if !s.delay(r.Context(), s.cfg.GetLatency) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"path":   r.URL.Path,
		})
	default:
		http.NotFound(w, r)
	}
}

// delay sleeps for a duration drawn from lr. It returns false if the request
// was canceled first.
func (s *Server) delay(ctx context.Context, lr LatencyRange) bool {
	d := s.draw(lr)
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Server) draw(lr LatencyRange) time.Duration {
	if lr.Max <= lr.Min {
		return lr.Min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lr.Min + time.Duration(s.rnd.Int63n(int64(lr.Max-lr.Min)+1))
}

func (s *Server) randomMetrics() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"requests_total":     1000 + s.rnd.Intn(9000),
		"active_connections": 10 + s.rnd.Intn(90),
		"cpu_percent":        10 + s.rnd.Float64()*70,
		"memory_mb":          100 + s.rnd.Intn(400),
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("mocktarget: error writing response")
	}
}

// TLSOptions enable HTTPS. ClientPEM, when set, requires clients to present a
// certificate signed by it.
type TLSOptions struct {
	Host      string
	ServerPEM string
	KeyFile   string
	ClientPEM string
}

// Enabled reports whether a server certificate and key were provided.
func (t TLSOptions) Enabled() bool {
	return t.ServerPEM != "" && t.KeyFile != ""
}

// TLSConfig builds the server side TLS configuration for opts.
func TLSConfig(opts TLSOptions) (*tls.Config, error) {
	cfg := &tls.Config{ServerName: opts.Host}
	if opts.ClientPEM == "" {
		return cfg, nil
	}
	clientPEM, err := os.ReadFile(opts.ClientPEM)
	if err != nil {
		return nil, errors.Wrapf(err, "opening client cert file %s", opts.ClientPEM)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(clientPEM) {
		return nil, errors.Errorf("no certificates found in %s", opts.ClientPEM)
	}
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	cfg.ClientCAs = caCertPool
	return cfg, nil
}

// ListenAndServe serves s on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, tlsOpts TLSOptions) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if tlsOpts.Enabled() {
		tlsCfg, err := TLSConfig(tlsOpts)
		if err != nil {
			return err
		}
		server.TLSConfig = tlsCfg
	}

	errC := make(chan error, 1)
	go func() {
		if tlsOpts.Enabled() {
			log.Info().Str("addr", addr).Msg("mocktarget: starting TLS server")
			errC <- server.ListenAndServeTLS(tlsOpts.ServerPEM, tlsOpts.KeyFile)
			return
		}
		log.Info().Str("addr", addr).Msg("mocktarget: starting server")
		errC <- server.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Msg("mocktarget: stopped")
		return nil
	}
}
