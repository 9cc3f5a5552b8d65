// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/ghostrelay/internal/domain/model"
	"github.com/okian/ghostrelay/internal/domain/types"
	"github.com/okian/ghostrelay/pkg/logger"
)

// maxBodyBytes bounds request bodies; a reading with a 4096-bit PEM key is
// well under 8 KiB.
const maxBodyBytes = 64 << 10

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ReadingSubmitter
	GhostReader
	GridReader
	DeviceRegistrar
}

// ReadingSubmitter runs a signed reading through the pipeline.
type ReadingSubmitter interface {
	SubmitReading(ctx context.Context, r model.DeviceReading) (types.ReadingResponse, error)
}

// GhostReader returns a device's ghost snapshot.
type GhostReader interface {
	Ghost(ctx context.Context, deviceAddress string) (types.GhostResponse, error)
}

// GridReader returns the oracle's current grid status.
type GridReader interface {
	GridStatus(ctx context.Context) (types.GridStatusResponse, error)
}

// DeviceRegistrar binds device keys.
type DeviceRegistrar interface {
	RegisterDevice(ctx context.Context, deviceAddress, publicKeyPEM string) (types.RegisterDeviceResponse, error)
}

// Server wires HTTP routes for the relay API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	readingHandler  *ReadingHandler
	ghostHandler    *GhostHandler
	gridHandler     *GridHandler
	registerHandler *RegisterHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	l := logger.Get().Named("api")
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		readingHandler:  NewReadingHandler(deps, l),
		ghostHandler:    NewGhostHandler(deps, l),
		gridHandler:     NewGridHandler(deps, l),
		registerHandler: NewRegisterHandler(deps, l),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/reading", MetricsMiddleware(s.readingHandler.HandlePostReading, "reading"))
	mux.HandleFunc("/ghost/", MetricsMiddleware(s.ghostHandler.HandleGetGhost, "ghost"))
	mux.HandleFunc("/grid-status", MetricsMiddleware(s.gridHandler.HandleGridStatus, "grid_status"))
	mux.HandleFunc("/register-device", MetricsMiddleware(s.registerHandler.HandleRegisterDevice, "register_device"))
}

// Handler wraps mux with the middleware every route shares.
func Handler(mux http.Handler) http.Handler {
	return RequestIDMiddleware(CORSMiddleware(mux))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: code})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed",
		fmt.Errorf("%w: %s", ErrMethodNotAllowed, r.Method))
}

// decodeJSON reads a single JSON document from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return fmt.Errorf("invalid JSON: %w", err)
		}
	}
	return nil
}
