package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/repository"
	"github.com/saturnino-fabrica-de-software/vigia/internal/service"
)

// CaptchaService interface for the service layer
type CaptchaService interface {
	RequestChallenge(ctx context.Context, t domain.ChallengeType) (*service.ChallengeView, error)
	SubmitAnswer(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
	GetChallengeStatus(ctx context.Context, id string) (*service.StatusView, error)
	RedeemTicket(ctx context.Context, ticket string) (bool, error)
	CheckTicket(ctx context.Context, ticket string) (bool, error)
	Statistics(ctx context.Context) (repository.Statistics, error)
}

type CaptchaHandler struct {
	service     CaptchaService
	blockWindow time.Duration
	logger      *slog.Logger
}

// NewCaptchaHandler creates a handler. blockWindow is advertised in
// Retry-After when a client is blocked.
func NewCaptchaHandler(svc CaptchaService, blockWindow time.Duration, logger *slog.Logger) *CaptchaHandler {
	return &CaptchaHandler{
		service:     svc,
		blockWindow: blockWindow,
		logger:      logger,
	}
}

type CreateChallengeRequest struct {
	Type string `json:"type"`
}

type ChallengeResponse struct {
	ChallengeID       string `json:"challenge_id"`
	Type              string `json:"type"`
	Label             string `json:"label"`
	BackgroundImage   string `json:"background_image"`
	PuzzleImage       string `json:"puzzle_image"`
	ExpiresAt         string `json:"expires_at"`
	MaxAttempts       int    `json:"max_attempts"`
	RemainingAttempts int    `json:"remaining_attempts"`
}

type ChallengeStatusResponse struct {
	ChallengeID       string `json:"challenge_id"`
	Type              string `json:"type"`
	Status            string `json:"status"`
	RemainingAttempts int    `json:"remaining_attempts"`
	CanAttempt        bool   `json:"can_attempt"`
	ExpiresAt         string `json:"expires_at"`
}

// VerifyRequest carries x/y for positional challenges or angle for rotate.
// A slider answer may omit y.
type VerifyRequest struct {
	X     *int     `json:"x,omitempty"`
	Y     *int     `json:"y,omitempty"`
	Angle *float64 `json:"angle,omitempty"`
}

type VerifyResponse struct {
	Verified          bool   `json:"verified"`
	Ticket            string `json:"ticket,omitempty"`
	RemainingAttempts int    `json:"remaining_attempts"`
	Status            string `json:"status"`
	Blocked           bool   `json:"blocked"`
}

type StatsResponse struct {
	Backend         string  `json:"backend"`
	TotalChallenges int64   `json:"total_challenges"`
	TotalTickets    int64   `json:"total_tickets"`
	TotalFailures   int64   `json:"total_failures"`
	HitRate         float64 `json:"hit_rate"`
	MemoryUsage     int64   `json:"memory_usage"`
}

// CreateChallenge POST /v1/captcha/challenges - issue a new challenge
// @Summary Issue a challenge
// @Tags captcha
// @Accept json
// @Produce json
// @Param request body CreateChallengeRequest true "Challenge type"
// @Success 201 {object} ChallengeResponse
// @Failure 400 {object} domain.AppError
// @Failure 422 {object} domain.AppError
// @Failure 429 {object} domain.AppError
// @Router /v1/captcha/challenges [post]
func (h *CaptchaHandler) CreateChallenge(c *fiber.Ctx) error {
	var req CreateChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(fmt.Errorf("invalid JSON body: %w", err))
	}

	t, err := domain.ParseChallengeType(req.Type)
	if err != nil {
		return err
	}

	view, err := h.service.RequestChallenge(c.UserContext(), t)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(ChallengeResponse{
		ChallengeID:       view.ChallengeID,
		Type:              view.Type.String(),
		Label:             view.Type.Label(),
		BackgroundImage:   view.BackgroundImage,
		PuzzleImage:       view.PuzzleImage,
		ExpiresAt:         view.ExpiresAt.UTC().Format(time.RFC3339),
		MaxAttempts:       view.MaxAttempts,
		RemainingAttempts: view.RemainingAttempts,
	})
}

// GetChallenge GET /v1/captcha/challenges/:id - challenge status for a retry UI
// @Summary Get challenge status
// @Tags captcha
// @Produce json
// @Param id path string true "Challenge ID"
// @Success 200 {object} ChallengeStatusResponse
// @Failure 404 {object} domain.AppError
// @Router /v1/captcha/challenges/{id} [get]
func (h *CaptchaHandler) GetChallenge(c *fiber.Ctx) error {
	status, err := h.service.GetChallengeStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}

	return c.JSON(ChallengeStatusResponse{
		ChallengeID:       status.ChallengeID,
		Type:              status.Type.String(),
		Status:            string(status.Status),
		RemainingAttempts: status.RemainingAttempts,
		CanAttempt:        status.CanAttempt,
		ExpiresAt:         status.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Verify POST /v1/captcha/challenges/:id/verify - submit an answer
// @Summary Verify an answer
// @Tags captcha
// @Accept json
// @Produce json
// @Param id path string true "Challenge ID"
// @Param request body VerifyRequest true "Answer"
// @Success 200 {object} VerifyResponse
// @Failure 404 {object} domain.AppError
// @Failure 409 {object} domain.AppError
// @Failure 429 {object} domain.AppError
// @Failure 503 {object} domain.AppError
// @Router /v1/captcha/challenges/{id}/verify [post]
func (h *CaptchaHandler) Verify(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(fmt.Errorf("invalid JSON body: %w", err))
	}

	submit := service.SubmitRequest{
		ChallengeID: c.Params("id"),
		Angle:       req.Angle,
		ClientIP:    c.IP(),
		UserAgent:   c.Get(fiber.HeaderUserAgent),
	}
	if req.X != nil {
		y := 0
		if req.Y != nil {
			y = *req.Y
		}
		pos := domain.NewCoordinate(*req.X, y)
		submit.Position = &pos
	}

	result, err := h.service.SubmitAnswer(c.UserContext(), submit)
	if err != nil {
		if errors.Is(err, domain.ErrClientBlocked) {
			h.setRetryAfter(c)
		}
		return err
	}

	if result.Blocked {
		h.setRetryAfter(c)
	}

	return c.JSON(VerifyResponse{
		Verified:          result.Verified,
		Ticket:            result.Ticket,
		RemainingAttempts: result.RemainingAttempts,
		Status:            string(result.Status),
		Blocked:           result.Blocked,
	})
}

// Stats GET /v1/captcha/stats - storage statistics
// @Summary Storage statistics
// @Tags captcha
// @Produce json
// @Success 200 {object} StatsResponse
// @Router /v1/captcha/stats [get]
func (h *CaptchaHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Statistics(c.UserContext())
	if err != nil {
		return err
	}

	return c.JSON(StatsResponse{
		Backend:         stats.Backend,
		TotalChallenges: stats.TotalChallenges,
		TotalTickets:    stats.TotalTickets,
		TotalFailures:   stats.TotalFailures,
		HitRate:         stats.HitRate,
		MemoryUsage:     stats.MemoryUsage,
	})
}

func (h *CaptchaHandler) setRetryAfter(c *fiber.Ctx) {
	if h.blockWindow > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(h.blockWindow.Seconds())))
	}
}
