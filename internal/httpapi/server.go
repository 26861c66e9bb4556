// Package httpapi exposes the resolver over HTTP for sidecar use: other
// processes on the host can resolve tracks through the shared cache.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/famomatic/playflow/client"
	"github.com/famomatic/playflow/internal/log"
	"github.com/famomatic/playflow/internal/streamcache"
)

// Server wraps the resolver client behind a chi router.
type Server struct {
	client *client.Client
	logger zerolog.Logger
}

func NewServer(c *client.Client) *Server {
	return &Server{
		client: c,
		logger: log.WithComponent("httpapi"),
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/resolve", s.handleResolve)
	return r
}

type resolveRequest struct {
	TrackID        string   `json:"trackId"`
	ExcludeClients []string `json:"excludeClients,omitempty"`
}

type streamPayload struct {
	URL         string            `json:"url"`
	MimeType    string            `json:"mimeType,omitempty"`
	BitrateBps  int               `json:"bitrateBps,omitempty"`
	DurationMs  int64             `json:"durationMs,omitempty"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	Headers     map[string]string `json:"headers,omitempty"`
	IsSegmented bool              `json:"isSegmented"`
	ClientUsed  string            `json:"clientUsed"`
}

type resolveResponse struct {
	OK     bool           `json:"ok"`
	Stream *streamPayload `json:"stream,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, resolveResponse{OK: false, Error: "malformed request body"})
		return
	}
	if req.TrackID == "" {
		writeJSON(w, http.StatusBadRequest, resolveResponse{OK: false, Error: "trackId is required"})
		return
	}

	var (
		info *client.StreamInfo
		err  error
	)
	if len(req.ExcludeClients) > 0 {
		info, err = s.client.ResolveExcluding(r.Context(), req.TrackID, req.ExcludeClients)
	} else {
		info, err = s.client.Resolve(r.Context(), req.TrackID)
	}
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, streamcache.ErrBlacklisted) {
			status = http.StatusGone
		}
		s.logger.Warn().Str("track_id", req.TrackID).Err(err).Msg("resolve failed")
		writeJSON(w, status, resolveResponse{OK: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{OK: true, Stream: &streamPayload{
		URL:         info.URL,
		MimeType:    info.MimeType,
		BitrateBps:  info.BitrateBps,
		DurationMs:  info.DurationMs,
		ExpiresAt:   info.ExpiresAt,
		Headers:     info.Headers,
		IsSegmented: info.IsSegmented,
		ClientUsed:  info.ClientUsed,
	}})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "playflow",
		"now":     time.Now().UTC().Format(time.RFC3339),
	})
}

// Serve runs the HTTP server until ctx is cancelled, then drains with a
// short grace period.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info().Str("addr", addr).Msg("http api listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
