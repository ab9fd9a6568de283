package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"StockPulse/internal/domain/models"
	xhttp "StockPulse/pkg/http"
	applogger "StockPulse/pkg/logger"
)

type CollectionService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() models.CollectionStatus
}

type CollectionHandler struct {
	svc CollectionService
	l   *applogger.Logger
}

func NewCollectionHandler(svc CollectionService, l *applogger.Logger) *CollectionHandler {
	return &CollectionHandler{svc: svc, l: l}
}

func (h *CollectionHandler) Status(c echo.Context) error {
	return xhttp.OK(c, h.svc.Status())
}

func (h *CollectionHandler) Start(c echo.Context) error {
	if err := h.svc.Start(c.Request().Context()); err != nil {
		return fail(c, h.l, "collection start", err)
	}
	return xhttp.OK(c, h.svc.Status())
}

// Stop is idempotent; stopping an idle collector still answers 200.
func (h *CollectionHandler) Stop(c echo.Context) error {
	if err := h.svc.Stop(c.Request().Context()); err != nil {
		return fail(c, h.l, "collection stop", err)
	}
	return xhttp.OK(c, h.svc.Status())
}
