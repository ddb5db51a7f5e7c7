package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ticketcore/checkout-service/internal/middleware"
	"github.com/ticketcore/checkout-service/internal/model"
	"github.com/ticketcore/checkout-service/internal/payment"
	"github.com/ticketcore/checkout-service/internal/service"
)

// CheckoutHandler exposes the checkout session lifecycle over HTTP.  The
// auth middleware resolves member identities from bearer tokens; guests
// identify themselves with the email given at session creation, echoed
// back on later calls via the "as" query parameter.
type CheckoutHandler struct {
	Checkout *service.CheckoutService
}

// NewCheckoutHandler constructs a CheckoutHandler.
func NewCheckoutHandler(checkout *service.CheckoutService) *CheckoutHandler {
	if checkout == nil {
		panic("nil service passed to NewCheckoutHandler")
	}
	return &CheckoutHandler{Checkout: checkout}
}

type selectionBody struct {
	TierID   uint64 `json:"tier_id"`
	Quantity int    `json:"quantity"`
}

type createSessionBody struct {
	EventID    uint64          `json:"event_id"`
	Selections []selectionBody `json:"selections"`
	GuestEmail string          `json:"guest_email"`
	GuestName  string          `json:"guest_name"`
	AccessCode string          `json:"access_code"`
}

type sessionItemView struct {
	TierID         uint64 `json:"tier_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
	FeeCents       int64  `json:"fee_cents"`
	TotalCents     int64  `json:"total_cents"`
}

type paymentView struct {
	Mode         string `json:"mode"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
}

type sessionView struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	ExpiresAt     time.Time         `json:"expires_at"`
	SubtotalCents int64             `json:"subtotal_cents"`
	FeeCents      int64             `json:"fee_cents"`
	TotalCents    int64             `json:"total_cents"`
	Currency      string            `json:"currency"`
	Items         []sessionItemView `json:"items"`
	Payment       *paymentView      `json:"payment,omitempty"`
}

// CreateSession handles POST /v1/checkout-sessions.  Members are
// identified by their bearer token; anonymous callers must supply a
// guest email.  On success the response carries the priced session and,
// unless the order was free, the provider handoff material.
func (h *CheckoutHandler) CreateSession(c echo.Context) error {
	var body createSessionBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "VALIDATION_ERROR", "message": "invalid request body"})
	}

	var buyer model.BuyerRef
	if memberID := middleware.MemberID(c); memberID != "" {
		buyer = model.NewMemberRef(memberID)
	} else {
		buyer = model.NewGuestRef(body.GuestEmail, body.GuestName)
	}

	selections := make([]service.Selection, len(body.Selections))
	for i, s := range body.Selections {
		selections[i] = service.Selection{TierID: s.TierID, Quantity: s.Quantity}
	}

	res, err := h.Checkout.CreateSession(c.Request().Context(), service.CreateSessionInput{
		EventID:    body.EventID,
		Selections: selections,
		Buyer:      buyer,
		GuestCode:  body.AccessCode,
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, renderSession(res.Session, res.Handoff))
}

// GetStatus handles GET /v1/checkout-sessions/:id.
func (h *CheckoutHandler) GetStatus(c echo.Context) error {
	view, err := h.Checkout.GetStatus(c.Request().Context(), c.Param("id"), requesterIdentity(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":          c.Param("id"),
		"status":      string(view.Status),
		"expires_at":  view.ExpiresAt,
		"can_extend":  view.CanExtend,
		"total_cents": view.TotalCents,
		"currency":    view.Currency,
	})
}

// Cancel handles POST /v1/checkout-sessions/:id/cancel.  Holds are
// released before the response is written, so the freed inventory is
// immediately sellable.
func (h *CheckoutHandler) Cancel(c echo.Context) error {
	if err := h.Checkout.Cancel(c.Request().Context(), c.Param("id"), requesterIdentity(c)); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "status": string(model.SessionStatusCancelled)})
}

// Extend handles POST /v1/checkout-sessions/:id/extend.
func (h *CheckoutHandler) Extend(c echo.Context) error {
	view, err := h.Checkout.Extend(c.Request().Context(), c.Param("id"), requesterIdentity(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":         c.Param("id"),
		"status":     string(view.Status),
		"expires_at": view.ExpiresAt,
		"can_extend": view.CanExtend,
	})
}

// GetOrder handles GET /v1/orders/:id.
func (h *CheckoutHandler) GetOrder(c echo.Context) error {
	order, err := h.Checkout.GetOrder(c.Request().Context(), c.Param("id"), requesterIdentity(c))
	if err != nil {
		return serviceError(c, err)
	}
	tickets := make([]echo.Map, len(order.Tickets))
	for i, t := range order.Tickets {
		tickets[i] = echo.Map{"id": t.ID, "tier_id": t.TierID, "issued_at": t.IssuedAt}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":          order.ID,
		"session_id":  order.SessionID,
		"status":      string(order.Status),
		"total_cents": order.TotalCents,
		"currency":    order.Currency,
		"tickets":     tickets,
	})
}

// requesterIdentity resolves who is calling: the authenticated member if
// a valid bearer token was presented, otherwise the guest email passed
// in the "as" query parameter.
func requesterIdentity(c echo.Context) string {
	if memberID := middleware.MemberID(c); memberID != "" {
		return memberID
	}
	return c.QueryParam("as")
}

func renderSession(s model.CheckoutSession, handoff payment.Handoff) sessionView {
	view := sessionView{
		ID:            s.ID,
		Status:        string(s.Status),
		ExpiresAt:     s.ExpiresAt,
		SubtotalCents: s.SubtotalCents,
		FeeCents:      s.FeeCents,
		TotalCents:    s.TotalCents,
		Currency:      s.Currency,
		Items:         make([]sessionItemView, len(s.Items)),
	}
	for i, it := range s.Items {
		view.Items[i] = sessionItemView{
			TierID:         it.TierID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			SubtotalCents:  it.SubtotalCents,
			FeeCents:       it.FeeCents,
			TotalCents:     it.TotalCents,
		}
	}
	if handoff.ProviderRef != "" {
		view.Payment = &paymentView{
			Mode:         string(handoff.Mode),
			ClientSecret: handoff.ClientSecret,
			RedirectURL:  handoff.RedirectURL,
		}
	}
	return view
}
