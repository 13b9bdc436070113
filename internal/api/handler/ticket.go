package handler

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// TicketHandler serves the relying party that received a ticket from a
// client. Redeem spends the ticket; Check only looks.
type TicketHandler struct {
	service CaptchaService
	logger  *slog.Logger
}

func NewTicketHandler(svc CaptchaService, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{service: svc, logger: logger}
}

type TicketRequest struct {
	Ticket string `json:"ticket"`
}

type TicketResponse struct {
	Valid bool `json:"valid"`
}

// Redeem POST /v1/tickets/redeem - consume a ticket once
// @Summary Redeem a ticket
// @Tags tickets
// @Accept json
// @Produce json
// @Param request body TicketRequest true "Ticket"
// @Success 200 {object} TicketResponse
// @Failure 422 {object} domain.AppError
// @Router /v1/tickets/redeem [post]
func (h *TicketHandler) Redeem(c *fiber.Ctx) error {
	ticket, err := parseTicket(c)
	if err != nil {
		return err
	}

	valid, err := h.service.RedeemTicket(c.UserContext(), ticket)
	if err != nil {
		return err
	}
	return c.JSON(TicketResponse{Valid: valid})
}

// Check POST /v1/tickets/check - report whether a ticket is redeemable
// @Summary Check a ticket
// @Tags tickets
// @Accept json
// @Produce json
// @Param request body TicketRequest true "Ticket"
// @Success 200 {object} TicketResponse
// @Router /v1/tickets/check [post]
func (h *TicketHandler) Check(c *fiber.Ctx) error {
	ticket, err := parseTicket(c)
	if err != nil {
		return err
	}

	valid, err := h.service.CheckTicket(c.UserContext(), ticket)
	if err != nil {
		return err
	}
	return c.JSON(TicketResponse{Valid: valid})
}

func parseTicket(c *fiber.Ctx) (string, error) {
	var req TicketRequest
	if err := c.BodyParser(&req); err != nil {
		return "", domain.ErrBadRequest.WithError(fmt.Errorf("invalid JSON body: %w", err))
	}
	if req.Ticket == "" {
		return "", domain.ErrValidationFailed.WithError(fmt.Errorf("ticket is required"))
	}
	return req.Ticket, nil
}
