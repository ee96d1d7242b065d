package services

import (
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"game-arena-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// recentPartnerWindow is how many of a player's latest opponents are
	// excluded from pairing (anti-repeat rule).
	recentPartnerWindow = 5
	// recentPartnerCap bounds the stored pairing history per player.
	recentPartnerCap = 50
	// activityWindow is the trailing span counted as "recent activity".
	activityWindow = 24 * time.Hour
)

type MatchQueueConfig struct {
	BracketWidth   int           // level span per matchmaking bracket
	MaxLevel       int           // top of the last bracket
	DefaultMaxWait time.Duration // used when a request has no max wait
	AllowReplace   bool          // re-enqueue replaces the previous request
	RankingEnabled bool          // filter candidates by rating distance
}

// MatchQueueService owns the pending matchmaking requests and the level
// brackets they are partitioned into. All mutations funnel through its
// mutex so the periodic tick can never race the enqueue/dequeue calls.
type MatchQueueService struct {
	DB *gorm.DB

	mu       sync.Mutex
	cfg      MatchQueueConfig
	pending  []*models.MatchRequest // FIFO submission order
	byPlayer map[string]*models.MatchRequest
	brackets []*models.LevelBracket
	recent   map[string][]string    // latest opponents, newest last
	activity map[string][]time.Time // match timestamps per player

	ratings  *RatingService
	battles  *BattleService
	notifier Notifier
	rng      *rand.Rand
}

func NewMatchQueueService(db *gorm.DB, cfg MatchQueueConfig, ratings *RatingService, battles *BattleService, notifier Notifier, rng *rand.Rand) *MatchQueueService {
	if cfg.BracketWidth <= 0 {
		cfg.BracketWidth = 10
	}
	if cfg.MaxLevel <= 0 {
		cfg.MaxLevel = 100
	}
	if cfg.DefaultMaxWait <= 0 {
		cfg.DefaultMaxWait = 5 * time.Minute
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &MatchQueueService{
		DB:       db,
		cfg:      cfg,
		byPlayer: make(map[string]*models.MatchRequest),
		recent:   make(map[string][]string),
		activity: make(map[string][]time.Time),
		ratings:  ratings,
		battles:  battles,
		notifier: notifier,
		rng:      rng,
	}
	for min := 1; min <= cfg.MaxLevel; min += cfg.BracketWidth {
		s.brackets = append(s.brackets, &models.LevelBracket{
			MinLevel: min,
			MaxLevel: min + cfg.BracketWidth - 1,
			Members:  make(map[string]bool),
		})
	}
	return s
}

// Enqueue adds a pending request for the player, replacing any previous one
// under the default policy. With replacement disallowed a second enqueue
// fails with ErrAlreadyExists.
func (s *MatchQueueService) Enqueue(player models.PlayerRef, criteria models.MatchCriteria) (string, error) {
	if player.ID == "" {
		return "", ErrInvalidParticipants
	}
	if criteria.MinLevel <= 0 {
		criteria.MinLevel = player.Level - s.cfg.BracketWidth/2
		if criteria.MinLevel < 1 {
			criteria.MinLevel = 1
		}
	}
	if criteria.MaxLevel <= 0 {
		criteria.MaxLevel = player.Level + s.cfg.BracketWidth/2
	}
	if criteria.MaxWaitSeconds <= 0 {
		criteria.MaxWaitSeconds = int(s.cfg.DefaultMaxWait.Seconds())
	}

	s.mu.Lock()
	if existing, ok := s.byPlayer[player.ID]; ok {
		if !s.cfg.AllowReplace {
			s.mu.Unlock()
			return "", ErrAlreadyExists
		}
		s.removeLocked(existing)
	}
	req := &models.MatchRequest{
		ID:          uuid.NewString(),
		PlayerID:    player.ID,
		PlayerName:  player.Name,
		Level:       player.Level,
		Network:     player.Network,
		Criteria:    criteria,
		SubmittedAt: time.Now(),
	}
	s.pending = append(s.pending, req)
	s.byPlayer[player.ID] = req
	if b := s.bracketForLocked(player.Level); b != nil {
		b.Members[player.ID] = true
	}
	snap := *req
	s.mu.Unlock()

	s.persist(&snap)
	return snap.ID, nil
}

// Dequeue drops the player's pending request. No-op if absent.
func (s *MatchQueueService) Dequeue(playerID string) {
	s.mu.Lock()
	if req, ok := s.byPlayer[playerID]; ok {
		s.removeLocked(req)
	}
	s.mu.Unlock()
	s.unpersist(playerID)
}

// Pending copies the queue in submission order for the ops view.
func (s *MatchQueueService) Pending() []models.MatchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MatchRequest, 0, len(s.pending))
	for _, req := range s.pending {
		out = append(out, *req)
	}
	return out
}

// ProcessQueue is the periodic matchmaking tick. Requests are visited in
// FIFO submission order; a failure on one request never aborts the tick for
// the rest. Successful pairs start a ranked PvP battle immediately.
func (s *MatchQueueService) ProcessQueue() {
	s.mu.Lock()
	snapshot := make([]*models.MatchRequest, len(s.pending))
	copy(snapshot, s.pending)
	s.mu.Unlock()

	now := time.Now()
	for _, req := range snapshot {
		s.processOne(req, now)
	}
}

func (s *MatchQueueService) processOne(req *models.MatchRequest, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[QUEUE] request %s for %s failed: %v", req.ID, req.PlayerID, r)
		}
	}()

	opponent, expired := s.matchLocked(req, now)
	if expired {
		log.Printf("[QUEUE] request %s for %s expired unmatched", req.ID, req.PlayerID)
		s.notifier.Announce("match_expired", req)
		s.unpersist(req.PlayerID)
		return
	}
	if opponent == nil {
		return
	}

	s.notifier.Announce("match_created", map[string]any{
		"request":  req,
		"opponent": opponent.Player(),
	})
	s.unpersist(req.PlayerID)
	s.unpersist(opponent.PlayerID)

	battle, err := s.battles.StartPvP(
		req.Player(), opponent.Player(),
		s.ratings.Get(req.PlayerID), s.ratings.Get(opponent.PlayerID),
		true,
	)
	if err != nil {
		log.Printf("[QUEUE] failed to start battle for %s vs %s: %v", req.PlayerID, opponent.PlayerID, err)
		return
	}
	// Close the ranked loop: write ratings back once this battle resolves.
	s.battles.OnCompleted(battle.ID, func(b *models.Battle) {
		loser := b.SideA.ID
		if loser == b.WinnerID {
			loser = b.SideB.ID
		}
		s.RecordRankedResult(b.WinnerID, loser)
	})
}

// matchLocked runs the locked half of one tick item: skip requests that are
// no longer current, find and claim an opponent, or report expiry. The mutex
// is released by defer so a panic in the search cannot strand the lock.
func (s *MatchQueueService) matchLocked(req *models.MatchRequest, now time.Time) (opponent *models.MatchRequest, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byPlayer[req.PlayerID] != req {
		// Already matched or dequeued earlier in this tick.
		return nil, false
	}
	opponent = s.findOpponentLocked(req)
	if opponent == nil {
		if now.Sub(req.SubmittedAt) > s.maxWait(req) {
			s.removeLocked(req)
			return nil, true
		}
		return nil, false
	}
	s.removeLocked(req)
	s.removeLocked(opponent)
	s.recordPairingLocked(req.PlayerID, opponent.PlayerID, now)
	return opponent, false
}

// findOpponentLocked implements the candidate search: the requester's level
// bracket first, widened to the explicit level window across all brackets
// when the bracket holds nobody else, then the filter and scoring pass.
func (s *MatchQueueService) findOpponentLocked(req *models.MatchRequest) *models.MatchRequest {
	var pool []*models.MatchRequest
	if b := s.bracketForLocked(req.Level); b != nil {
		for _, other := range s.pending {
			if other.PlayerID != req.PlayerID && b.Members[other.PlayerID] {
				pool = append(pool, other)
			}
		}
	}
	if len(pool) == 0 {
		for _, other := range s.pending {
			if other.PlayerID != req.PlayerID {
				pool = append(pool, other)
			}
		}
	}

	reqRating := s.ratings.Get(req.PlayerID)
	var best *models.MatchRequest
	bestScore := math.Inf(-1)
	for _, cand := range pool {
		if cand.Level < req.Criteria.MinLevel || cand.Level > req.Criteria.MaxLevel {
			continue
		}
		if s.recentlyPlayedLocked(req.PlayerID, cand.PlayerID) {
			continue
		}
		if s.cfg.RankingEnabled && req.Criteria.RankingRange > 0 {
			if abs(reqRating-s.ratings.Get(cand.PlayerID)) > req.Criteria.RankingRange {
				continue
			}
		}
		score := s.scoreLocked(req, cand, reqRating)
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best
}

// scoreLocked ranks a candidate: closeness in level and rating, a bonus for
// a cross-network pairing when asked for, recent activity on both sides,
// and a jitter term that breaks near-ties randomly so the same two players
// do not get paired forever.
func (s *MatchQueueService) scoreLocked(req, cand *models.MatchRequest, reqRating int) float64 {
	score := math.Max(0, float64(100-2*abs(req.Level-cand.Level)))
	if req.Criteria.PreferCrossNetwork && req.Network != cand.Network {
		score += 50
	}
	score += math.Max(0, float64(50-abs(reqRating-s.ratings.Get(cand.PlayerID))))
	score += 10 * float64(s.recentActivityLocked(req.PlayerID)+s.recentActivityLocked(cand.PlayerID))
	score += s.rng.Float64() * 20
	return score
}

// RecordRankedResult writes the rating delta back after a ranked battle and
// stamps both players' activity clocks.
func (s *MatchQueueService) RecordRankedResult(winnerID, loserID string) {
	winnerRating, loserRating := s.ratings.Record(winnerID, loserID)

	s.mu.Lock()
	now := time.Now()
	s.activity[winnerID] = append(s.activity[winnerID], now)
	s.activity[loserID] = append(s.activity[loserID], now)
	s.mu.Unlock()

	s.notifier.Announce("rating_updated", map[string]any{
		"winner": map[string]any{"player_id": winnerID, "rating": winnerRating},
		"loser":  map[string]any{"player_id": loserID, "rating": loserRating},
	})
}

func (s *MatchQueueService) maxWait(req *models.MatchRequest) time.Duration {
	if req.Criteria.MaxWaitSeconds > 0 {
		return time.Duration(req.Criteria.MaxWaitSeconds) * time.Second
	}
	return s.cfg.DefaultMaxWait
}

func (s *MatchQueueService) bracketForLocked(level int) *models.LevelBracket {
	for _, b := range s.brackets {
		if b.Contains(level) {
			return b
		}
	}
	if len(s.brackets) == 0 {
		return nil
	}
	// Levels past the configured max land in the top bracket.
	return s.brackets[len(s.brackets)-1]
}

func (s *MatchQueueService) recentlyPlayedLocked(a, b string) bool {
	hist := s.recent[a]
	start := len(hist) - recentPartnerWindow
	if start < 0 {
		start = 0
	}
	for _, id := range hist[start:] {
		if id == b {
			return true
		}
	}
	return false
}

func (s *MatchQueueService) recordPairingLocked(a, b string, now time.Time) {
	s.recent[a] = appendCapped(s.recent[a], b, recentPartnerCap)
	s.recent[b] = appendCapped(s.recent[b], a, recentPartnerCap)
	s.activity[a] = append(s.activity[a], now)
	s.activity[b] = append(s.activity[b], now)
}

func (s *MatchQueueService) recentActivityLocked(playerID string) int {
	cutoff := time.Now().Add(-activityWindow)
	stamps := s.activity[playerID]
	kept := stamps[:0]
	count := 0
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
			count++
		}
	}
	s.activity[playerID] = kept
	return count
}

// removeLocked drops a request from the FIFO list, the per-player index and
// its level bracket.
func (s *MatchQueueService) removeLocked(req *models.MatchRequest) {
	for i, other := range s.pending {
		if other == req {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	if s.byPlayer[req.PlayerID] == req {
		delete(s.byPlayer, req.PlayerID)
	}
	if b := s.bracketForLocked(req.Level); b != nil {
		delete(b.Members, req.PlayerID)
	}
}

func appendCapped(list []string, v string, limit int) []string {
	list = append(list, v)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (s *MatchQueueService) persist(req *models.MatchRequest) {
	if s.DB == nil {
		return
	}
	if err := s.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(req).Error; err != nil {
		log.Printf("[QUEUE] snapshot upsert failed for %s: %v", req.ID, err)
	}
}

func (s *MatchQueueService) unpersist(playerID string) {
	if s.DB == nil {
		return
	}
	if err := s.DB.Where("player_id = ?", playerID).Delete(&models.MatchRequest{}).Error; err != nil {
		log.Printf("[QUEUE] snapshot delete failed for %s: %v", playerID, err)
	}
}
