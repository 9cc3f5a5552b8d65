package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/ghostrelay/internal/domain/model"
	"github.com/okian/ghostrelay/internal/domain/types"
	"github.com/okian/ghostrelay/pkg/logger"
)

// ReadingHandler handles reading submissions.
type ReadingHandler struct {
	submitter ReadingSubmitter
	logger    logger.Logger
}

// NewReadingHandler creates a new reading handler.
func NewReadingHandler(s ReadingSubmitter, l logger.Logger) *ReadingHandler {
	return &ReadingHandler{submitter: s, logger: l}
}

// HandlePostReading handles POST /reading requests.
func (h *ReadingHandler) HandlePostReading(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_reading"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req types.ReadingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.PowerUsage == nil {
		respondError(r.Context(), h.logger, w, NewKind(op, ErrMissingPowerUsage))
		return
	}

	resp, err := h.submitter.SubmitReading(r.Context(), readingFromRequest(req))
	if err != nil {
		respondError(r.Context(), h.logger, w, WrapKind(op, ErrServe, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func readingFromRequest(req types.ReadingRequest) model.DeviceReading { //nolint:gocritic // hugeParam: request values are decoded once
	return model.DeviceReading{
		Protocol:        model.ProtocolVersion(req.ProtocolVersion),
		DeviceID:        req.DeviceID,
		DeviceAddress:   req.DeviceAddress,
		Timestamp:       req.Timestamp,
		PowerUsageWatts: *req.PowerUsage,
		Signature:       req.Signature,
		PublicKey:       req.PublicKey,
		Hash:            req.Hash,
	}
}

// GhostHandler serves ghost snapshots.
type GhostHandler struct {
	reader GhostReader
	logger logger.Logger
}

// NewGhostHandler creates a new ghost handler.
func NewGhostHandler(g GhostReader, l logger.Logger) *GhostHandler {
	return &GhostHandler{reader: g, logger: l}
}

// HandleGetGhost handles GET /ghost/{deviceAddress} requests.
func (h *GhostHandler) HandleGetGhost(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_ghost"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	addr := strings.TrimPrefix(r.URL.Path, "/ghost/")
	if addr == "" || strings.Contains(addr, "/") {
		respondError(r.Context(), h.logger, w, NewKind(op, ErrMissingDeviceAddress))
		return
	}

	resp, err := h.reader.Ghost(r.Context(), addr)
	if err != nil {
		respondError(r.Context(), h.logger, w, WrapKind(op, ErrServe, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GridHandler serves the oracle's grid status.
type GridHandler struct {
	reader GridReader
	logger logger.Logger
}

// NewGridHandler creates a new grid status handler.
func NewGridHandler(g GridReader, l logger.Logger) *GridHandler {
	return &GridHandler{reader: g, logger: l}
}

// HandleGridStatus handles GET /grid-status requests.
func (h *GridHandler) HandleGridStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.grid_status"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	resp, err := h.reader.GridStatus(r.Context())
	if err != nil {
		respondError(r.Context(), h.logger, w, WrapKind(op, ErrServe, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegisterHandler binds device public keys.
type RegisterHandler struct {
	registrar DeviceRegistrar
	logger    logger.Logger
}

// NewRegisterHandler creates a new device registration handler.
func NewRegisterHandler(d DeviceRegistrar, l logger.Logger) *RegisterHandler {
	return &RegisterHandler{registrar: d, logger: l}
}

// HandleRegisterDevice handles POST /register-device requests.
func (h *RegisterHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_device"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req types.RegisterDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}

	resp, err := h.registrar.RegisterDevice(r.Context(), req.DeviceAddress, req.PublicKey)
	if err != nil {
		respondError(r.Context(), h.logger, w, WrapKind(op, ErrServe, err))
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// respondError writes the JSON error body for err and logs server-side failures.
func respondError(ctx context.Context, l logger.Logger, w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		l.Error(ctx, "request failed",
			logger.String("op", opOf(err)),
			logger.String("code", code),
			logger.Int("status", status),
			logger.Error(err),
		)
	} else {
		l.Debug(ctx, "request rejected",
			logger.String("op", opOf(err)),
			logger.String("code", code),
			logger.Error(err),
		)
	}
	writeError(w, status, code, publicMessage(status, err))
}
