// handlers/event_routes.go
package handlers

import (
	"time"

	"tax-engagement-service/middleware"
	"tax-engagement-service/models"
	"tax-engagement-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// SetupEventRoutes registers the event-ingest surface other platform
// services call when something gamification-relevant happens. Every endpoint
// records the fact, kicks off evaluation in the background, and answers 202;
// callers never wait on achievement processing, and only a malformed payload
// earns a non-202 answer.
func SetupEventRoutes(app *fiber.App, triggers *services.TriggerService) {
	events := app.Group("/events", middleware.GatewayAuthMiddleware())

	accepted := func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	}

	badRequest := func(c *fiber.Ctx, cause string) error {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid event payload",
			"cause": cause,
		})
	}

	events.Post("/return-filed", func(c *fiber.Ctx) error {
		var req struct {
			UserID             string    `json:"user_id"`
			ClientID           string    `json:"client_id"`
			FilingTimeMs       *int64    `json:"filing_time_ms"`
			DaysBeforeDeadline *int      `json:"days_before_deadline"`
			FiledAt            time.Time `json:"filed_at"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err.Error())
		}
		if req.UserID == "" || req.ClientID == "" {
			return badRequest(c, "user_id and client_id are required")
		}
		err := triggers.OnReturnFiled(c.Context(), req.UserID, models.FilingEvent{
			ClientID:           req.ClientID,
			FilingTimeMs:       req.FilingTimeMs,
			DaysBeforeDeadline: req.DaysBeforeDeadline,
			FiledAt:            req.FiledAt,
		})
		if err != nil {
			return badRequest(c, err.Error())
		}
		return accepted(c)
	})

	events.Post("/login", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
			Hour   *int   `json:"hour"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err.Error())
		}
		if req.UserID == "" {
			return badRequest(c, "user_id is required")
		}
		if err := triggers.OnLogin(c.Context(), req.UserID, models.LoginEvent{Hour: req.Hour}); err != nil {
			return badRequest(c, err.Error())
		}
		return accepted(c)
	})

	events.Post("/referral-created", func(c *fiber.Ctx) error {
		var req struct {
			ReferrerID   string `json:"referrer_id"`
			ReferredID   string `json:"referred_id"`
			ReferralCode string `json:"referral_code"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err.Error())
		}
		if req.ReferrerID == "" || req.ReferredID == "" {
			return badRequest(c, "referrer_id and referred_id are required")
		}
		if err := triggers.OnReferralCreated(c.Context(), req.ReferrerID, req.ReferredID, req.ReferralCode); err != nil {
			return badRequest(c, err.Error())
		}
		return accepted(c)
	})

	events.Post("/referral-converted", func(c *fiber.Ctx) error {
		var req struct {
			ReferrerID string `json:"referrer_id"`
			ReferredID string `json:"referred_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err.Error())
		}
		if req.ReferrerID == "" || req.ReferredID == "" {
			return badRequest(c, "referrer_id and referred_id are required")
		}
		if err := triggers.OnReferralConverted(c.Context(), req.ReferrerID, req.ReferredID); err != nil {
			return badRequest(c, err.Error())
		}
		return accepted(c)
	})

	events.Post("/commission-earned", func(c *fiber.Ctx) error {
		var req struct {
			UserID string          `json:"user_id"`
			Amount decimal.Decimal `json:"amount"`
			Source string          `json:"source"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err.Error())
		}
		if req.UserID == "" {
			return badRequest(c, "user_id is required")
		}
		err := triggers.OnCommissionEarned(c.Context(), req.UserID, models.CommissionEvent{
			Amount: req.Amount,
			Source: req.Source,
		})
		if err != nil {
			return badRequest(c, err.Error())
		}
		return accepted(c)
	})

	events.Post("/satisfaction-rated", func(c *fiber.Ctx) error {
		var req struct {
			UserID string  `json:"user_id"`
			Rating float64 `json:"rating"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err.Error())
		}
		if req.UserID == "" {
			return badRequest(c, "user_id is required")
		}
		if err := triggers.OnSatisfactionRated(c.Context(), req.UserID, req.Rating); err != nil {
			return badRequest(c, err.Error())
		}
		return accepted(c)
	})

	events.Post("/contest-ended", func(c *fiber.Ctx) error {
		var req struct {
			UserID    string `json:"user_id"`
			ContestID string `json:"contest_id"`
			Position  int    `json:"position"`
			Score     int64  `json:"score"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err.Error())
		}
		if req.UserID == "" || req.Position < 1 {
			return badRequest(c, "user_id and a position >= 1 are required")
		}
		err := triggers.OnContestEnded(c.Context(), req.UserID, models.ContestEvent{
			ContestID: req.ContestID,
			Position:  req.Position,
			Score:     req.Score,
		})
		if err != nil {
			return badRequest(c, err.Error())
		}
		return accepted(c)
	})

	// Counter events share a payload shape: just the acting user.
	counter := func(fn func(c *fiber.Ctx, userID string) error) fiber.Handler {
		return func(c *fiber.Ctx) error {
			var req struct {
				UserID string `json:"user_id"`
			}
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, err.Error())
			}
			if req.UserID == "" {
				return badRequest(c, "user_id is required")
			}
			if err := fn(c, req.UserID); err != nil {
				return badRequest(c, err.Error())
			}
			return accepted(c)
		}
	}

	events.Post("/document-uploaded", counter(func(c *fiber.Ctx, userID string) error {
		return triggers.OnDocumentUploaded(c.Context(), userID)
	}))
	events.Post("/message-sent", counter(func(c *fiber.Ctx, userID string) error {
		return triggers.OnMessageSent(c.Context(), userID)
	}))
	events.Post("/link-created", counter(func(c *fiber.Ctx, userID string) error {
		return triggers.OnTrackingLinkCreated(c.Context(), userID)
	}))
	events.Post("/material-shared", counter(func(c *fiber.Ctx, userID string) error {
		return triggers.OnMaterialShared(c.Context(), userID)
	}))
	events.Post("/profile-updated", counter(func(c *fiber.Ctx, userID string) error {
		return triggers.OnProfileUpdated(c.Context(), userID)
	}))
}
