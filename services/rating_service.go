package services

import (
	"log"
	"math"
	"sync"

	"game-arena-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultRating is assigned lazily the first time a player appears in a
// ranked outcome.
const DefaultRating = 1000

// ratingK is the classic logistic K-factor.
const ratingK = 32

// RatingService owns the per-player skill ratings. It is the only state
// shared between matchmaking and outcome reporting, so every mutation goes
// through its mutex. DB writes are best-effort snapshots.
type RatingService struct {
	DB *gorm.DB

	mu      sync.Mutex
	ratings map[string]*models.PlayerRating
	decay   float64
}

func NewRatingService(db *gorm.DB, decay float64) *RatingService {
	if decay <= 0 || decay > 1 {
		decay = 0.95
	}
	s := &RatingService{
		DB:      db,
		ratings: make(map[string]*models.PlayerRating),
		decay:   decay,
	}
	s.restore()
	return s
}

// restore reloads persisted ratings on boot. In-memory state is
// authoritative afterwards.
func (s *RatingService) restore() {
	if s.DB == nil {
		return
	}
	var rows []models.PlayerRating
	if err := s.DB.Find(&rows).Error; err != nil {
		log.Printf("[RATING] restore failed: %v", err)
		return
	}
	for i := range rows {
		r := rows[i]
		s.ratings[r.PlayerID] = &r
	}
	if len(rows) > 0 {
		log.Printf("[RATING] restored %d player rating(s)", len(rows))
	}
}

// Get returns the player's current rating without creating an entry.
func (s *RatingService) Get(playerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.ratings[playerID]; ok {
		return r.Rating
	}
	return DefaultRating
}

// Stats returns rating plus win/loss counters, and whether the player has
// any ranked history.
func (s *RatingService) Stats(playerID string) (models.PlayerRating, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.ratings[playerID]; ok {
		return *r, true
	}
	return models.PlayerRating{PlayerID: playerID, Rating: DefaultRating}, false
}

// expectedScore is the logistic win expectation of a vs b.
func expectedScore(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// Record applies one ranked outcome: winner gains round(K*(1-expWinner)),
// loser drops round(K*expLoser), then both ratings are multiplied once by
// the decay factor to bound long-term inflation. Ratings clamp at 0.
// Returns the post-update ratings.
func (s *RatingService) Record(winnerID, loserID string) (int, int) {
	s.mu.Lock()
	winner := s.entryLocked(winnerID)
	loser := s.entryLocked(loserID)

	expWinner := expectedScore(winner.Rating, loser.Rating)
	expLoser := expectedScore(loser.Rating, winner.Rating)

	winner.Rating += int(math.Round(ratingK * (1 - expWinner)))
	loser.Rating -= int(math.Round(ratingK * expLoser))

	winner.Rating = decayRating(winner.Rating, s.decay)
	loser.Rating = decayRating(loser.Rating, s.decay)

	winner.Wins++
	loser.Losses++

	wSnap, lSnap := *winner, *loser
	s.mu.Unlock()

	s.persist(wSnap)
	s.persist(lSnap)
	return wSnap.Rating, lSnap.Rating
}

func decayRating(rating int, decay float64) int {
	decayed := int(math.Round(float64(rating) * decay))
	if decayed < 0 {
		return 0
	}
	return decayed
}

// entryLocked returns the live entry, creating it at the default rating.
func (s *RatingService) entryLocked(playerID string) *models.PlayerRating {
	if r, ok := s.ratings[playerID]; ok {
		return r
	}
	r := &models.PlayerRating{PlayerID: playerID, Rating: DefaultRating}
	s.ratings[playerID] = r
	return r
}

// Snapshot copies every entry for the snapshot worker.
func (s *RatingService) Snapshot() []models.PlayerRating {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PlayerRating, 0, len(s.ratings))
	for _, r := range s.ratings {
		out = append(out, *r)
	}
	return out
}

func (s *RatingService) persist(r models.PlayerRating) {
	if s.DB == nil {
		return
	}
	if err := s.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&r).Error; err != nil {
		log.Printf("[RATING] snapshot upsert failed for %s: %v", r.PlayerID, err)
	}
}
