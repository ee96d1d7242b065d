package handlers

import (
	"game-arena-system/middleware"
	"game-arena-system/models"
	"game-arena-system/services"

	"github.com/gofiber/fiber/v2"
)

type MatchmakingHandler struct {
	queue   *services.MatchQueueService
	ratings *services.RatingService
}

func SetupMatchmakingRoutes(app *fiber.App, queue *services.MatchQueueService, ratings *services.RatingService) {
	h := &MatchmakingHandler{queue: queue, ratings: ratings}

	secured := app.Group("/", middleware.GatewayAuthMiddleware())

	secured.Post("/matchmaking/queue", h.Enqueue)
	secured.Delete("/matchmaking/queue/:player_id", h.Dequeue)
	secured.Get("/matchmaking/queue", h.Pending)
	secured.Get("/ratings/:player_id", h.Rating)
}

type enqueueRequest struct {
	Player   models.PlayerRef     `json:"player"`
	Criteria models.MatchCriteria `json:"criteria"`
}

func (h *MatchmakingHandler) Enqueue(c *fiber.Ctx) error {
	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil || req.Player.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "player id is required"})
	}
	requestID, err := h.queue.Enqueue(req.Player, req.Criteria)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"request_id": requestID})
}

func (h *MatchmakingHandler) Dequeue(c *fiber.Ctx) error {
	h.queue.Dequeue(c.Params("player_id"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *MatchmakingHandler) Pending(c *fiber.Ctx) error {
	return c.JSON(h.queue.Pending())
}

func (h *MatchmakingHandler) Rating(c *fiber.Ctx) error {
	playerID := c.Params("player_id")
	stats, known := h.ratings.Stats(playerID)
	return c.JSON(fiber.Map{
		"player_id": playerID,
		"rating":    stats.Rating,
		"wins":      stats.Wins,
		"losses":    stats.Losses,
		"known":     known,
	})
}
