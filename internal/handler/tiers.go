package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ticketcore/checkout-service/internal/service"
)

// TierHandler serves the public availability read path that purchase
// pages poll.  Responses sit behind the redis response cache, so the
// figures may lag reality by the cache TTL.
type TierHandler struct {
	Checkout *service.CheckoutService
}

// NewTierHandler constructs a TierHandler.
func NewTierHandler(checkout *service.CheckoutService) *TierHandler {
	if checkout == nil {
		panic("nil service passed to NewTierHandler")
	}
	return &TierHandler{Checkout: checkout}
}

// ListByEvent handles GET /v1/events/:id/tiers.
func (h *TierHandler) ListByEvent(c echo.Context) error {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "VALIDATION_ERROR", "message": "invalid event id"})
	}
	event, tiers, err := h.Checkout.ListTiers(c.Request().Context(), eventID)
	if err != nil {
		return serviceError(c, err)
	}
	out := make([]echo.Map, len(tiers))
	for i, t := range tiers {
		out[i] = echo.Map{
			"id":            t.ID,
			"name":          t.Name,
			"price_cents":   t.PriceCents,
			"capacity":      t.Capacity,
			"available":     t.Available(),
			"max_per_order": t.MaxPerOrder,
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event": echo.Map{
			"id":        event.ID,
			"name":      event.Name,
			"starts_at": event.StartsAt,
			"ends_at":   event.EndsAt,
		},
		"tiers": out,
	})
}
