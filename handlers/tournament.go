package handlers

import (
	"time"

	"game-arena-system/middleware"
	"game-arena-system/models"
	"game-arena-system/services"

	"github.com/gofiber/fiber/v2"
)

type TournamentHandler struct {
	tournaments *services.TournamentService
}

func SetupTournamentRoutes(app *fiber.App, tournaments *services.TournamentService) {
	h := &TournamentHandler{tournaments: tournaments}

	secured := app.Group("/", middleware.GatewayAuthMiddleware())

	secured.Post("/tournaments", h.Schedule)
	secured.Get("/tournaments", h.List)
	secured.Get("/tournaments/:id", h.Get)
	secured.Post("/tournaments/:id/register", h.Register)
	secured.Post("/tournaments/:id/start", h.Start)
	secured.Get("/tournaments/:id/standings", h.Standings)
}

type scheduleTournamentRequest struct {
	Type              string             `json:"type"`
	Name              string             `json:"name"`
	MaxPlayers        int                `json:"max_players"`
	MinPlayers        int                `json:"min_players"`
	EntryFee          int64              `json:"entry_fee"`
	StartDelaySeconds int                `json:"start_delay_seconds"`
	PrizeTiers        []models.PrizeTier `json:"prize_tiers"`
}

func (h *TournamentHandler) Schedule(c *fiber.Ctx) error {
	var req scheduleTournamentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	t := h.tournaments.Schedule(req.Type, services.TournamentOptions{
		Name:       req.Name,
		MaxPlayers: req.MaxPlayers,
		MinPlayers: req.MinPlayers,
		EntryFee:   req.EntryFee,
		StartDelay: time.Duration(req.StartDelaySeconds) * time.Second,
		PrizeTiers: req.PrizeTiers,
	})
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (h *TournamentHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.tournaments.List())
}

func (h *TournamentHandler) Get(c *fiber.Ctx) error {
	t, err := h.tournaments.Get(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(t)
}

func (h *TournamentHandler) Register(c *fiber.Ctx) error {
	var player models.PlayerRef
	if err := c.BodyParser(&player); err != nil || player.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "player id is required"})
	}
	t, err := h.tournaments.Register(c.Params("id"), player)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(t)
}

func (h *TournamentHandler) Start(c *fiber.Ctx) error {
	t, err := h.tournaments.Start(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(t)
}

func (h *TournamentHandler) Standings(c *fiber.Ctx) error {
	standings, err := h.tournaments.Standings(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"standings": standings})
}
