package handlers

import (
	"game-arena-system/middleware"
	"game-arena-system/models"
	"game-arena-system/services"

	"github.com/gofiber/fiber/v2"
)

type BattleHandler struct {
	battles *services.BattleService
	ratings *services.RatingService
}

func SetupBattleRoutes(app *fiber.App, battles *services.BattleService, ratings *services.RatingService) {
	h := &BattleHandler{battles: battles, ratings: ratings}

	secured := app.Group("/", middleware.GatewayAuthMiddleware())

	secured.Post("/battles/pve", h.StartPvE)
	secured.Post("/battles/pvp", h.StartPvP)
	secured.Get("/battles/:id", h.Get)
	secured.Post("/battles/:id/turns", h.SubmitTurn)
	secured.Get("/battles", h.History)
}

type startPvERequest struct {
	Player        models.PlayerRef `json:"player"`
	OpponentLevel int              `json:"opponent_level"`
}

func (h *BattleHandler) StartPvE(c *fiber.Ctx) error {
	var req startPvERequest
	if err := c.BodyParser(&req); err != nil || req.Player.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "player id is required"})
	}
	b, err := h.battles.StartPvE(req.Player, req.OpponentLevel, h.ratings.Get(req.Player.ID))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(b)
}

type startPvPRequest struct {
	A      models.PlayerRef `json:"a"`
	B      models.PlayerRef `json:"b"`
	Ranked bool             `json:"ranked"`
}

func (h *BattleHandler) StartPvP(c *fiber.Ctx) error {
	var req startPvPRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	b, err := h.battles.StartPvP(req.A, req.B, h.ratings.Get(req.A.ID), h.ratings.Get(req.B.ID), req.Ranked)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(b)
}

func (h *BattleHandler) Get(c *fiber.Ctx) error {
	b, err := h.battles.Get(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(b)
}

type submitTurnRequest struct {
	ActorID string `json:"actor_id"`
	Action  string `json:"action"`
}

func (h *BattleHandler) SubmitTurn(c *fiber.Ctx) error {
	var req submitTurnRequest
	if err := c.BodyParser(&req); err != nil || req.ActorID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "actor_id is required"})
	}
	result, err := h.battles.SubmitTurn(c.Params("id"), req.ActorID, req.Action)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(result)
}

func (h *BattleHandler) History(c *fiber.Ctx) error {
	return c.JSON(h.battles.History())
}
