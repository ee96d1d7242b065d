package workers

import (
	"context"
	"log"
	"time"

	"game-arena-system/models"
	"game-arena-system/services"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotWorker periodically mirrors the in-memory arena state into
// Postgres. Services already persist on their own write paths; this loop is
// the catch-all that heals rows missed around a crash or a transient DB
// error. Arena state stays authoritative in memory either way.
type SnapshotWorker struct {
	DB          *gorm.DB
	Ratings     *services.RatingService
	Queue       *services.MatchQueueService
	Battles     *services.BattleService
	Tournaments *services.TournamentService
}

func NewSnapshotWorker(db *gorm.DB, ratings *services.RatingService, queue *services.MatchQueueService, battles *services.BattleService, tournaments *services.TournamentService) *SnapshotWorker {
	return &SnapshotWorker{DB: db, Ratings: ratings, Queue: queue, Battles: battles, Tournaments: tournaments}
}

// Run blocks until ctx is cancelled, snapshotting every interval.
func (w *SnapshotWorker) Run(ctx context.Context, interval time.Duration) {
	if w.DB == nil {
		log.Println("Snapshot worker disabled (no database configured).")
		return
	}
	log.Println("Starting arena snapshot worker (DB-backed)...")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Arena snapshot worker stopped.")
			return
		case <-ticker.C:
			w.snapshotOnce()
		}
	}
}

func (w *SnapshotWorker) snapshotOnce() {
	if ratings := w.Ratings.Snapshot(); len(ratings) > 0 {
		// Bulk upsert in one statement; Postgres handles the conflict set.
		if err := w.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&ratings).Error; err != nil {
			log.Printf("❌ Failed to upsert %d rating(s): %v", len(ratings), err)
		}
	}

	if pending := w.Queue.Pending(); len(pending) > 0 {
		if err := w.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&pending).Error; err != nil {
			log.Printf("❌ Failed to upsert %d queue request(s): %v", len(pending), err)
		}
	}

	if battles := w.Battles.History(); len(battles) > 0 {
		for i := range battles {
			battles[i].PrepareSnapshot()
		}
		if err := w.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&battles).Error; err != nil {
			log.Printf("❌ Failed to upsert %d battle(s): %v", len(battles), err)
		}
	}

	tournaments := w.Tournaments.List()
	if len(tournaments) == 0 {
		return
	}
	var matches []models.BracketMatch
	for i := range tournaments {
		for _, round := range tournaments[i].Rounds {
			for _, m := range round {
				matches = append(matches, *m)
			}
		}
		tournaments[i].PrepareSnapshot()
	}
	if err := w.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&tournaments).Error; err != nil {
		log.Printf("❌ Failed to upsert %d tournament(s): %v", len(tournaments), err)
	}
	if len(matches) > 0 {
		if err := w.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&matches).Error; err != nil {
			log.Printf("❌ Failed to upsert %d bracket match(es): %v", len(matches), err)
		}
	}
}
