package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/samueldng/cash-back-phone-link/internal/model"
	xhttp "github.com/samueldng/cash-back-phone-link/pkg/http"
)

type SettingsService interface {
	Get(ctx context.Context) (*model.Settings, error)
	Update(ctx context.Context, s model.Settings) (*model.Settings, error)
}

type SettingsHandler struct {
	svc SettingsService
}

func RegisterSettingsRoutes(e *router.Group, h *SettingsHandler) {
	e.GET("/settings", h.GetSettings)
	e.PUT("/settings", h.UpdateSettings)
}

func NewSettingsHandler(svc SettingsService) *SettingsHandler {
	return &SettingsHandler{
		svc: svc,
	}
}

func (h *SettingsHandler) GetSettings(ctx *xhttp.RequestCtx) {
	s, err := h.svc.Get(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, s)
}

func (h *SettingsHandler) UpdateSettings(ctx *xhttp.RequestCtx) {
	var req model.Settings
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	s, err := h.svc.Update(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, s)
}
