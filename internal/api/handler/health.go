package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// ReadinessChecker reports whether the storage backend answers
type ReadinessChecker interface {
	Healthy(ctx context.Context) bool
}

type HealthHandler struct {
	checker ReadinessChecker
}

// NewHealthHandler creates a health handler. A nil checker makes /ready
// always succeed.
func NewHealthHandler(checker ReadinessChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: "0.1.0",
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.checker != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		if !h.checker.Healthy(ctx) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
				Status: "unavailable",
			})
		}
	}

	return c.JSON(HealthResponse{
		Status: "ready",
	})
}
