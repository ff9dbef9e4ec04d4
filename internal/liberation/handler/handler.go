package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"simrelease/internal/auc"
	"simrelease/internal/liberation"
	"simrelease/internal/registry"
	dErrors "simrelease/pkg/domain-errors"
	"simrelease/pkg/platform/httputil"
	"simrelease/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service AucService

// Service runs liberation requests.
type Service interface {
	Liberate(ctx context.Context, req liberation.Request) ([]liberation.Outcome, error)
}

// AucService builds and delivers AUC batches.
type AucService interface {
	Create(ctx context.Context, identifiers []string, env registry.Environment) auc.Result
}

// Handler wires the /sim endpoints to the liberation engine and AUC service.
type Handler struct {
	service Service
	auc     AucService
	logger  *slog.Logger
}

func New(service Service, aucService AucService, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		auc:     aucService,
		logger:  logger,
	}
}

// Register mounts the /sim endpoints. Callers mount them behind the auth
// middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sim/creation-liberation", h.HandleLiberate)
	r.Post("/sim/auc", h.HandleAuc)
}

// HandleLiberate handles POST /sim/creation-liberation.
func (h *Handler) HandleLiberate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	actor := requestcontext.Actor(ctx)
	if actor == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[LiberateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	outcomes, err := h.service.Liberate(ctx, liberation.Request{
		Identifiers: req.identifiers,
		Environment: req.environment,
		Actor:       actor,
		Role:        requestcontext.Role(ctx),
		ClientIP:    requestcontext.ClientIP(ctx),
		Batch:       req.batch,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "liberation request failed",
			"request_id", requestID,
			"environment", req.environment,
			"identifiers", len(req.identifiers),
			"error", err,
		)
		if dErrors.HasCode(err, dErrors.CodeBadRequest) || dErrors.HasCode(err, dErrors.CodeValidation) {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, &LiberateResponse{
			Success: false,
			Message: publicMessage(err),
		})
		return
	}

	resp := fromOutcomes(outcomes)
	h.logger.InfoContext(ctx, "liberation request served",
		"request_id", requestID,
		"environment", req.environment,
		"batch", req.batch,
		"summary", resp.Message,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleAuc handles POST /sim/auc.
func (h *Handler) HandleAuc(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if requestcontext.Actor(ctx) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[AucRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res := h.auc.Create(ctx, req.identifiers, req.environment)
	h.logger.InfoContext(ctx, "auc request served",
		"request_id", requestID,
		"environment", req.environment,
		"actor", requestcontext.Actor(ctx),
		"success", res.Success,
		"filename", res.Filename,
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}

// publicMessage keeps internal error detail out of responses.
func publicMessage(err error) string {
	var de *dErrors.Error
	if dErrors.As(err, &de) && de.Code != dErrors.CodeInternal {
		return de.Message
	}
	return "internal error"
}
