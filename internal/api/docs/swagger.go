package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// CreateChallengeRequest selects the kind of puzzle to issue
type CreateChallengeRequest struct {
	Type string `json:"type" example:"slider"`
}

// ChallengeResponse is what a client needs to render a puzzle
type ChallengeResponse struct {
	ChallengeID       string `json:"challenge_id" example:"8f14e45f-ceea-467f-a8ad-8f2d3c7a91b0"`
	Type              string `json:"type" example:"slider"`
	Label             string `json:"label" example:"Slider"`
	BackgroundImage   string `json:"background_image" example:"data:image/png;base64,iVBORw0KGgo..."`
	PuzzleImage       string `json:"puzzle_image" example:"data:image/png;base64,iVBORw0KGgo..."`
	ExpiresAt         string `json:"expires_at" example:"2024-01-01T00:05:00Z"`
	MaxAttempts       int    `json:"max_attempts" example:"3"`
	RemainingAttempts int    `json:"remaining_attempts" example:"3"`
}

// ChallengeStatusResponse drives the retry UI
type ChallengeStatusResponse struct {
	ChallengeID       string `json:"challenge_id" example:"8f14e45f-ceea-467f-a8ad-8f2d3c7a91b0"`
	Type              string `json:"type" example:"rotate"`
	Status            string `json:"status" example:"attempting"`
	RemainingAttempts int    `json:"remaining_attempts" example:"2"`
	CanAttempt        bool   `json:"can_attempt" example:"true"`
	ExpiresAt         string `json:"expires_at" example:"2024-01-01T00:05:00Z"`
}

// VerifyRequest carries x/y for positional puzzles or angle for rotate
type VerifyRequest struct {
	X     int     `json:"x" example:"152"`
	Y     int     `json:"y" example:"0"`
	Angle float64 `json:"angle" example:"87.5"`
}

// VerifyResponse reports the outcome of one attempt
type VerifyResponse struct {
	Verified          bool   `json:"verified" example:"true"`
	Ticket            string `json:"ticket,omitempty" example:"8f14e45f-ceea-467f-a8ad-8f2d3c7a91b0_1704067200000_a1b2c3d4e5f60718"`
	RemainingAttempts int    `json:"remaining_attempts" example:"2"`
	Status            string `json:"status" example:"verified"`
	Blocked           bool   `json:"blocked" example:"false"`
}

// TicketRequest names the ticket to redeem or check
type TicketRequest struct {
	Ticket string `json:"ticket" example:"8f14e45f-ceea-467f-a8ad-8f2d3c7a91b0_1704067200000_a1b2c3d4e5f60718"`
}

// TicketResponse reports whether the ticket was (or is) valid
type TicketResponse struct {
	Valid bool `json:"valid" example:"true"`
}

// StatsResponse exposes storage counters
type StatsResponse struct {
	Backend         string  `json:"backend" example:"redis"`
	TotalChallenges int64   `json:"total_challenges" example:"120"`
	TotalTickets    int64   `json:"total_tickets" example:"42"`
	TotalFailures   int64   `json:"total_failures" example:"17"`
	HitRate         float64 `json:"hit_rate" example:"0.97"`
	MemoryUsage     int64   `json:"memory_usage" example:"1048576"`
}

// HealthResponse represents health and readiness checks
type HealthResponse struct {
	Status  string `json:"status" example:"ok"`
	Version string `json:"version,omitempty" example:"0.1.0"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

var (
	errBadRequest  = response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request")
	errNotFound    = response.New(ErrorResponse{Code: "CHALLENGE_NOT_FOUND", Message: "Challenge not found"}, "404", "Not Found")
	errRateLimited = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded"}, "429", "Too Many Requests")
	errUnavailable = response.New(ErrorResponse{Code: "STORAGE_UNAVAILABLE", Message: "Challenge storage is unavailable"}, "503", "Service Unavailable")
)

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Vigia CAPTCHA API",
		Version:     "v1.0.0",
		Description: "Issues image puzzles, verifies answers and hands out single-use tickets that a backend can redeem",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	challengeID := parameter.StrParam("id", parameter.Path, parameter.WithDescription("Challenge ID"))

	endpoints := []*endpoint.EndPoint{
		// POST /v1/captcha/challenges
		endpoint.New(
			endpoint.POST,
			"/captcha/challenges",
			endpoint.WithTags("Challenges"),
			endpoint.WithSummary("Issue a new challenge"),
			endpoint.WithDescription("Generates a puzzle of the requested type (concat, rotate, slider, click). The answer never leaves the server."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(CreateChallengeRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ChallengeResponse{}, "201", "Challenge issued"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadRequest,
				response.New(ErrorResponse{Code: "UNSUPPORTED_CHALLENGE_TYPE", Message: "Challenge type is not supported"}, "422", "Unprocessable Entity"),
				errRateLimited,
				errUnavailable,
			}),
		),

		// GET /v1/captcha/challenges/:id
		endpoint.New(
			endpoint.GET,
			"/captcha/challenges/{id}",
			endpoint.WithTags("Challenges"),
			endpoint.WithSummary("Get challenge status"),
			endpoint.WithDescription("Returns the lifecycle status and the remaining attempts of a challenge"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(challengeID),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ChallengeStatusResponse{}, "200", "Challenge status"),
			}),
			endpoint.WithErrors([]response.Response{errNotFound, errUnavailable}),
		),

		// POST /v1/captcha/challenges/:id/verify
		endpoint.New(
			endpoint.POST,
			"/captcha/challenges/{id}/verify",
			endpoint.WithTags("Challenges"),
			endpoint.WithSummary("Submit an answer"),
			endpoint.WithDescription("Checks an answer within the tolerance of the challenge type. A correct answer returns a ticket. Repeated failures from one client block it for a while."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(challengeID),
			endpoint.WithBody(VerifyRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(VerifyResponse{}, "200", "Attempt evaluated"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadRequest,
				errNotFound,
				response.New(ErrorResponse{Code: "CHALLENGE_CONFLICT", Message: "Challenge was modified by a concurrent attempt"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "CLIENT_BLOCKED", Message: "Too many failed verifications, try again later"}, "429", "Too Many Requests"),
				errUnavailable,
			}),
		),

		// GET /v1/captcha/stats
		endpoint.New(
			endpoint.GET,
			"/captcha/stats",
			endpoint.WithTags("Challenges"),
			endpoint.WithSummary("Storage statistics"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StatsResponse{}, "200", "Statistics"),
			}),
			endpoint.WithErrors([]response.Response{errUnavailable}),
		),

		// POST /v1/tickets/redeem
		endpoint.New(
			endpoint.POST,
			"/tickets/redeem",
			endpoint.WithTags("Tickets"),
			endpoint.WithSummary("Redeem a ticket"),
			endpoint.WithDescription("Consumes a ticket. Only the first redemption of a ticket reports valid."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(TicketRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(TicketResponse{}, "200", "Redemption result"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadRequest,
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity"),
				errUnavailable,
			}),
		),

		// POST /v1/tickets/check
		endpoint.New(
			endpoint.POST,
			"/tickets/check",
			endpoint.WithTags("Tickets"),
			endpoint.WithSummary("Check a ticket"),
			endpoint.WithDescription("Reports whether a ticket is still redeemable without consuming it"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(TicketRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(TicketResponse{}, "200", "Ticket state"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errUnavailable}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
