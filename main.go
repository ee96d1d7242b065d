package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"game-arena-system/handlers"
	"game-arena-system/models"
	"game-arena-system/services"
	"game-arena-system/utils"
	"game-arena-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		AppName: "game-arena-system",
	})

	// Optional persistence: without DATABASE_URL the arena runs fully
	// in-memory, which is how the test rigs and local bridges use it.
	var db *gorm.DB
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatal("failed to connect to database:", err)
		}
		if err := db.AutoMigrate(
			&models.PlayerRating{},
			&models.MatchRequest{},
			&models.Battle{},
			&models.Tournament{},
			&models.BracketMatch{},
		); err != nil {
			log.Fatal("failed to migrate database:", err)
		}
	} else {
		log.Println("⚠️  DATABASE_URL not set — running without persistence")
	}

	hub := handlers.NewEventHub()

	ratingService := services.NewRatingService(db, utils.EnvFloat("RATING_DECAY", 0.95))
	battleService := services.NewBattleService(db, services.BattleConfig{
		CritChance:     utils.EnvFloat("CRIT_CHANCE", 0.10),
		ItemDropChance: utils.EnvFloat("ITEM_DROP_CHANCE", 0.10),
		ForfeitAfter:   time.Duration(utils.EnvInt("BATTLE_FORFEIT_MINUTES", 30)) * time.Minute,
	}, hub, nil)
	queueService := services.NewMatchQueueService(db, services.MatchQueueConfig{
		BracketWidth:   utils.EnvInt("BRACKET_WIDTH", 10),
		MaxLevel:       utils.EnvInt("MAX_LEVEL", 100),
		DefaultMaxWait: utils.EnvSeconds("DEFAULT_MAX_WAIT_SECONDS", 5*time.Minute),
		AllowReplace:   utils.EnvBool("QUEUE_ALLOW_REPLACE", true),
		RankingEnabled: utils.EnvBool("RANKING_ENABLED", true),
	}, ratingService, battleService, hub, nil)
	tournamentService := services.NewTournamentService(
		db, battleService, ratingService, hub, nil,
		utils.EnvInt("TOURNAMENT_MIN_PLAYERS", 4),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshotWorker := workers.NewSnapshotWorker(db, ratingService, queueService, battleService, tournamentService)
	go snapshotWorker.Run(ctx, utils.EnvSeconds("SNAPSHOT_INTERVAL_SECONDS", 60*time.Second))

	scheduler := services.NewArenaScheduler(queueService, tournamentService, battleService)
	scheduler.Start(utils.EnvSeconds("QUEUE_TICK_SECONDS", 5*time.Second))
	defer scheduler.Shutdown()

	handlers.SetupEventRoutes(app, hub)
	handlers.SetupMatchmakingRoutes(app, queueService, ratingService)
	handlers.SetupBattleRoutes(app, battleService, ratingService)
	handlers.SetupTournamentRoutes(app, tournamentService)

	addr := utils.EnvString("LISTEN_ADDR", ":5300")
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Arena server running on %s", addr)
	log.Println("✅ Gateway auth enforced on every route — all requests must come from the chat gateway")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
