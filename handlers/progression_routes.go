// handlers/progression_routes.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"tax-engagement-service/middleware"
	"tax-engagement-service/models"
	"tax-engagement-service/services"
	"tax-engagement-service/store"
	"tax-engagement-service/utils"

	"github.com/gofiber/fiber/v2"
)

// SetupProgressionRoutes registers the read endpoints and the admin surface.
// The gateway forwards paths like /api/v1/engagement/s/user/progress ->
// /s/user/progress with the user context headers attached.
func SetupProgressionRoutes(
	app *fiber.App,
	st store.Store,
	leveling *services.LevelingService,
	achievements *services.AchievementService,
	catalog *services.CatalogService,
	triggers *services.TriggerService,
) {
	securedGroup := app.Group("/s", middleware.UserContextMiddleware())

	securedGroup.Get("/user/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		stats, err := st.GetStats(c.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			// New user; nothing has been earned yet.
			return c.JSON(fiber.Map{
				"level":          1,
				"total_xp":       0,
				"login_streak":   0,
				"longest_streak": 0,
			})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load progress",
				"cause": err.Error(),
			})
		}

		var unlockedCount int
		rows, err := st.ListProgress(c.Context(), userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load achievement progress",
				"cause": err.Error(),
			})
		}
		for _, p := range rows {
			if p.IsUnlocked {
				unlockedCount++
			}
		}

		return c.JSON(fiber.Map{
			"level":                 stats.Level,
			"total_xp":              stats.TotalXP,
			"current_level_xp":      stats.CurrentLevelXP,
			"next_level_xp":         stats.NextLevelXP,
			"login_streak":          stats.LoginStreak,
			"longest_streak":        stats.LongestLoginStreak,
			"documents_processed":   stats.DocumentsProcessed,
			"links_created":         stats.LinksCreated,
			"messages_sent":         stats.MessagesSent,
			"materials_shared":      stats.MaterialsShared,
			"achievements_unlocked": unlockedCount,
			"last_level_up_at":      stats.LastLevelUpAt,
		})
	})

	securedGroup.Get("/user/achievements", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		list, err := achievements.ListUserAchievements(c.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON([]services.UserAchievement{})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list achievements",
				"cause": err.Error(),
			})
		}
		return c.JSON(list)
	})

	securedGroup.Get("/user/level", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		progress, err := leveling.GetProgressToNextLevel(c.Context(), userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load level progress",
				"cause": err.Error(),
			})
		}
		if progress == nil {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(progress)
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	adminGroup.Post("/xp/grant", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id"`
			XP     int64  `json:"xp"`
			Reason string `json:"reason"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if req.UserID == "" || req.XP <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_id and a positive xp are required",
			})
		}
		if req.Reason == "" {
			req.Reason = "admin_grant"
		}

		stats, err := leveling.AwardXP(c.Context(), req.UserID, req.XP, req.Reason)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "XP award failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"message":  "XP granted successfully",
			"user_id":  req.UserID,
			"xp":       req.XP,
			"level":    stats.Level,
			"total_xp": stats.TotalXP,
		})
	})

	adminGroup.Post("/achievements", func(c *fiber.Ctx) error {
		var def models.AchievementDefinition
		if err := c.BodyParser(&def); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if err := catalog.SaveDefinition(c.Context(), &def); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "definition rejected",
				"cause": err.Error(),
			})
		}
		return c.Status(fiber.StatusCreated).JSON(def)
	})

	adminGroup.Post("/achievements/recalculate", func(c *fiber.Ctx) error {
		// The sweep can take a while on a full user base; run it detached and
		// acknowledge immediately.
		go func() {
			_ = triggers.RecalculateAll(context.Background())
		}()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "recalculation started",
		})
	})

	adminGroup.Post("/achievements/:id/icon", func(c *fiber.Ctx) error {
		id := c.Params("id")
		def, err := st.GetDefinition(c.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "achievement not found",
			})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load achievement",
				"cause": err.Error(),
			})
		}

		fileHeader, err := c.FormFile("icon")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "icon file is required",
				"cause": err.Error(),
			})
		}

		key := fmt.Sprintf("icons/%s%s", def.Slug, filepath.Ext(fileHeader.Filename))
		iconURL, err := utils.UploadFileToR2(fileHeader, key)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "icon upload failed",
				"cause": err.Error(),
			})
		}

		def.IconURL = iconURL
		if err := st.SaveDefinition(c.Context(), def); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to save icon URL",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"message":  "icon uploaded",
			"icon_url": iconURL,
		})
	})
}
