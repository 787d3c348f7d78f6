package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showbook-chat/internal/checkin"
)

type TicketVerifier interface {
	Verify(ctx context.Context, token string, showID uint64) (*checkin.Outcome, error)
}

// TicketHandler serves the venue scanner.
type TicketHandler struct {
	Checkin TicketVerifier
}

type verifyTicketRequest struct {
	Token  string `json:"token"`
	ShowID uint64 `json:"show_id"`
}

// Verify handles POST /v1/tickets/verify.  A rejected ticket is a 200
// with valid=false and a reason code; only malformed requests and storage
// failures produce error statuses.
func (h *TicketHandler) Verify(c echo.Context) error {
	var req verifyTicketRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}
	out, err := h.Checkin.Verify(c.Request().Context(), req.Token, req.ShowID)
	if err != nil {
		c.Logger().Errorf("ticket verify: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if !out.Valid {
		return c.JSON(http.StatusOK, echo.Map{"valid": false, "reason": out.Reason})
	}
	b := out.Booking
	return c.JSON(http.StatusOK, echo.Map{
		"valid":       true,
		"booking_ref": b.Ref,
		"name":        b.BookerName,
		"quantity":    b.Quantity,
		"seats":       b.SeatCodes(),
	})
}
