package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/audit"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/generator"
	"github.com/saturnino-fabrica-de-software/vigia/internal/repository"
)

const (
	defaultTicketTTL      = 5 * time.Minute
	defaultStorageTimeout = 2 * time.Second
)

// ChallengeView is what a client may see of a challenge. The answer is
// never part of it.
type ChallengeView struct {
	ChallengeID       string
	Type              domain.ChallengeType
	BackgroundImage   string
	PuzzleImage       string
	ExpiresAt         time.Time
	MaxAttempts       int
	RemainingAttempts int
}

// StatusView drives the retry UI of a client
type StatusView struct {
	ChallengeID       string
	Type              domain.ChallengeType
	Status            domain.ChallengeStatus
	RemainingAttempts int
	CanAttempt        bool
	ExpiresAt         time.Time
}

// SubmitRequest carries one answer. Position is used by positional types,
// Angle by rotate. A missing answer still consumes an attempt.
type SubmitRequest struct {
	ChallengeID string
	Position    *domain.Coordinate
	Angle       *float64
	ClientIP    string
	UserAgent   string
}

type SubmitResult struct {
	Verified          bool
	Ticket            string
	RemainingAttempts int
	Status            domain.ChallengeStatus
	// Blocked is set when this failure pushed the client over the limit
	Blocked bool
}

// CaptchaService orchestrates challenge issuance, answer verification and
// ticket redemption on top of a StorageRepository.
type CaptchaService struct {
	store          repository.StorageRepository
	generator      generator.Generator
	auditLogger    audit.Logger
	logger         *slog.Logger
	ticketTTL      time.Duration
	storageTimeout time.Duration
}

func NewCaptchaService(
	store repository.StorageRepository,
	gen generator.Generator,
	auditLogger audit.Logger,
	logger *slog.Logger,
) *CaptchaService {
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	return &CaptchaService{
		store:          store,
		generator:      gen,
		auditLogger:    auditLogger,
		logger:         logger.With("component", "captcha_service"),
		ticketTTL:      defaultTicketTTL,
		storageTimeout: defaultStorageTimeout,
	}
}

func (s *CaptchaService) WithTicketTTL(ttl time.Duration) *CaptchaService {
	if ttl > 0 {
		s.ticketTTL = ttl
	}
	return s
}

func (s *CaptchaService) WithStorageTimeout(timeout time.Duration) *CaptchaService {
	if timeout > 0 {
		s.storageTimeout = timeout
	}
	return s
}

// RequestChallenge generates and stores a new challenge of type t
func (s *CaptchaService) RequestChallenge(ctx context.Context, t domain.ChallengeType) (*ChallengeView, error) {
	if !t.IsValid() {
		return nil, domain.ErrUnsupportedChallengeType.WithError(fmt.Errorf("unknown challenge type %q", t))
	}

	challenge, err := s.generator.Generate(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("generate %s challenge: %w", t, err)
	}

	storeCtx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.store.SaveChallenge(storeCtx, challenge); err != nil {
		return nil, err
	}

	s.audit(ctx, audit.Event{
		EventType:     audit.EventChallengeIssued,
		ChallengeID:   challenge.ID,
		ChallengeType: string(challenge.Type),
		Success:       true,
	})

	return &ChallengeView{
		ChallengeID:       challenge.ID,
		Type:              challenge.Type,
		BackgroundImage:   challenge.BackgroundImage,
		PuzzleImage:       challenge.PuzzleImage,
		ExpiresAt:         challenge.ExpireTime,
		MaxAttempts:       challenge.MaxAttempts,
		RemainingAttempts: challenge.RemainingAttempts(),
	}, nil
}

// SubmitAnswer verifies one answer. Wrong, late and repeated answers are
// reported through the result, not as errors. Storage faults are returned
// as errors and never count as a pass.
func (s *CaptchaService) SubmitAnswer(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.ChallengeID == "" {
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("challenge_id is required"))
	}

	storeCtx, cancel := s.bounded(ctx)
	defer cancel()

	if req.ClientIP != "" {
		blocked, err := s.store.IsIPBlocked(storeCtx, req.ClientIP)
		if err != nil {
			return nil, err
		}
		if blocked {
			s.audit(ctx, audit.Event{
				EventType:   audit.EventClientBlocked,
				ChallengeID: req.ChallengeID,
				IPAddress:   req.ClientIP,
				UserAgent:   req.UserAgent,
				Error:       "verification refused while blocked",
			})
			return nil, domain.ErrClientBlocked
		}
	}

	challenge, err := s.store.GetChallenge(storeCtx, req.ChallengeID)
	if err != nil {
		return nil, err
	}

	next, verified := s.verify(challenge, req)
	attempted := next.Version != challenge.Version

	if attempted {
		if err := s.store.SaveChallenge(storeCtx, next); err != nil {
			return nil, err
		}
	}

	result := &SubmitResult{
		Verified:          verified,
		RemainingAttempts: next.RemainingAttempts(),
		Status:            next.Status(),
	}

	event := audit.Event{
		ChallengeID:   next.ID,
		ChallengeType: string(next.Type),
		IPAddress:     req.ClientIP,
		UserAgent:     req.UserAgent,
		Success:       verified,
		Metadata: map[string]string{
			"attempt":            strconv.Itoa(next.AttemptCount),
			"remaining_attempts": strconv.Itoa(result.RemainingAttempts),
			"status":             string(result.Status),
		},
	}

	if verified {
		ticket, err := s.issueTicket(storeCtx, next)
		if err != nil {
			return nil, err
		}
		if req.ClientIP != "" {
			if err := s.store.RecordVerificationSuccess(storeCtx, req.ClientIP); err != nil {
				return nil, err
			}
		}
		result.Ticket = ticket

		event.EventType = audit.EventChallengeVerified
		s.audit(ctx, event)
		return result, nil
	}

	event.EventType = audit.EventChallengeFailed
	if result.Status == domain.StatusExhausted {
		event.EventType = audit.EventChallengeExhausted
	}
	if !attempted {
		event.Error = "challenge no longer accepts answers"
	}
	s.audit(ctx, event)

	// only a consumed attempt counts against the client
	if attempted && req.ClientIP != "" {
		if _, err := s.store.RecordVerificationFailure(storeCtx, req.ClientIP); err != nil {
			return nil, err
		}
		blocked, err := s.store.IsIPBlocked(storeCtx, req.ClientIP)
		if err != nil {
			return nil, err
		}
		if blocked {
			result.Blocked = true
			s.audit(ctx, audit.Event{
				EventType:   audit.EventClientBlocked,
				ChallengeID: next.ID,
				IPAddress:   req.ClientIP,
				UserAgent:   req.UserAgent,
			})
		}
	}

	return result, nil
}

func (s *CaptchaService) verify(c domain.Challenge, req SubmitRequest) (domain.Challenge, bool) {
	if c.Type.IsAngular() {
		angle := math.NaN()
		if req.Angle != nil {
			angle = *req.Angle
		}
		return c.VerifyRotationAnswer(angle, c.CorrectAngle)
	}

	position := domain.NoAnswer
	if req.Position != nil {
		position = *req.Position
	}
	return c.VerifyAnswer(position)
}

func (s *CaptchaService) issueTicket(ctx context.Context, c domain.Challenge) (string, error) {
	ticket, err := c.GenerateTicket()
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			s.logger.ErrorContext(ctx, "ticket requested for unverified challenge",
				slog.String("challenge_id", c.ID),
				slog.String("status", string(c.Status())),
				slog.String("error", err.Error()),
			)
		}
		return "", err
	}

	if err := s.store.SaveTicket(ctx, ticket, s.ticketTTL); err != nil {
		return "", err
	}
	return ticket, nil
}

// RedeemTicket consumes a ticket. It returns true at most once per ticket.
func (s *CaptchaService) RedeemTicket(ctx context.Context, ticket string) (bool, error) {
	if ticket == "" {
		return false, domain.ErrValidationFailed.WithError(fmt.Errorf("ticket is required"))
	}

	storeCtx, cancel := s.bounded(ctx)
	defer cancel()

	ok, err := s.store.ConsumeTicket(storeCtx, ticket)
	if err != nil {
		return false, err
	}

	event := audit.Event{EventType: audit.EventTicketRedeemed, Success: true}
	if !ok {
		event = audit.Event{EventType: audit.EventTicketReplayed, Error: "unknown, expired or spent ticket"}
	}
	s.audit(ctx, event)

	return ok, nil
}

// CheckTicket reports whether a ticket is still redeemable without
// consuming it
func (s *CaptchaService) CheckTicket(ctx context.Context, ticket string) (bool, error) {
	if ticket == "" {
		return false, domain.ErrValidationFailed.WithError(fmt.Errorf("ticket is required"))
	}

	storeCtx, cancel := s.bounded(ctx)
	defer cancel()

	return s.store.VerifyTicket(storeCtx, ticket)
}

func (s *CaptchaService) GetChallengeStatus(ctx context.Context, id string) (*StatusView, error) {
	if id == "" {
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("challenge id is required"))
	}

	storeCtx, cancel := s.bounded(ctx)
	defer cancel()

	c, err := s.store.GetChallenge(storeCtx, id)
	if err != nil {
		return nil, err
	}

	return &StatusView{
		ChallengeID:       c.ID,
		Type:              c.Type,
		Status:            c.Status(),
		RemainingAttempts: c.RemainingAttempts(),
		CanAttempt:        c.CanAttempt(),
		ExpiresAt:         c.ExpireTime,
	}, nil
}

// CleanupExpired sweeps expired challenges and tickets from storage
func (s *CaptchaService) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := s.store.CleanupExpired(ctx)
	if err != nil {
		return removed, fmt.Errorf("cleanup expired: %w", err)
	}
	return removed, nil
}

func (s *CaptchaService) Statistics(ctx context.Context) (repository.Statistics, error) {
	storeCtx, cancel := s.bounded(ctx)
	defer cancel()

	return s.store.GetStatistics(storeCtx)
}

func (s *CaptchaService) Healthy(ctx context.Context) bool {
	return s.store.IsHealthy(ctx)
}

func (s *CaptchaService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storageTimeout)
}

// audit failures never fail the request
func (s *CaptchaService) audit(ctx context.Context, event audit.Event) {
	if err := s.auditLogger.Log(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to write audit event",
			slog.String("event_type", string(event.EventType)),
			slog.String("error", err.Error()),
		)
	}
}
