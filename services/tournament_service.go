package services

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"game-arena-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TournamentOptions is what the admin/chat layer supplies on scheduling.
type TournamentOptions struct {
	Name       string             `json:"name"`
	MaxPlayers int                `json:"max_players"`
	MinPlayers int                `json:"min_players"`
	EntryFee   int64              `json:"entry_fee"`
	StartDelay time.Duration      `json:"start_delay"`
	PrizeTiers []models.PrizeTier `json:"prize_tiers"`
}

// TournamentService owns bracket and match lifecycle for every tournament.
// It creates battles through the BattleService and advances rounds purely in
// reaction to battle-completion callbacks; there is no tournament tick.
type TournamentService struct {
	DB *gorm.DB

	mu            sync.Mutex
	tournaments   map[string]*models.Tournament
	matchByBattle map[string]*models.BracketMatch
	tourByBattle  map[string]string

	battles    *BattleService
	ratings    *RatingService
	notifier   Notifier
	rng        *rand.Rand
	minDefault int
}

func NewTournamentService(db *gorm.DB, battles *BattleService, ratings *RatingService, notifier Notifier, rng *rand.Rand, minPlayers int) *TournamentService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if minPlayers < 2 {
		minPlayers = 4
	}
	return &TournamentService{
		DB:            db,
		tournaments:   make(map[string]*models.Tournament),
		matchByBattle: make(map[string]*models.BracketMatch),
		tourByBattle:  make(map[string]string),
		battles:       battles,
		ratings:       ratings,
		notifier:      notifier,
		rng:           rng,
		minDefault:    minPlayers,
	}
}

// Schedule creates a tournament in the scheduled state and announces it.
// Registration stays open until the roster fills or Start is called.
func (s *TournamentService) Schedule(tournamentType string, opts TournamentOptions) *models.Tournament {
	if tournamentType == "" {
		tournamentType = "single_elimination"
	}
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = 16
	}
	if opts.MinPlayers <= 0 {
		opts.MinPlayers = s.minDefault
	}
	if opts.Name == "" {
		opts.Name = "Arena Tournament"
	}
	t := &models.Tournament{
		ID:         uuid.NewString(),
		Type:       tournamentType,
		Name:       opts.Name,
		Status:     models.TournamentStatusScheduled,
		MaxPlayers: opts.MaxPlayers,
		MinPlayers: opts.MinPlayers,
		EntryFee:   opts.EntryFee,
		StartTime:  time.Now().Add(opts.StartDelay),
		PrizeTiers: opts.PrizeTiers,
	}

	s.mu.Lock()
	s.tournaments[t.ID] = t
	view := t.Clone()
	s.mu.Unlock()

	s.notifier.Announce("tournament_scheduled", view)
	s.persist(&view)
	return &view
}

// Register adds a player to a scheduled tournament's roster. The tournament
// starts automatically the instant the roster fills.
func (s *TournamentService) Register(tournamentID string, player models.PlayerRef) (*models.Tournament, error) {
	s.mu.Lock()
	t, ok := s.tournaments[tournamentID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if t.Status != models.TournamentStatusScheduled {
		s.mu.Unlock()
		return nil, ErrInvalidState
	}
	if len(t.Participants) >= t.MaxPlayers {
		s.mu.Unlock()
		return nil, ErrCapacityExceeded
	}
	if t.Registered(player.ID) {
		s.mu.Unlock()
		return nil, ErrAlreadyExists
	}
	t.Participants = append(t.Participants, player)
	full := len(t.Participants) == t.MaxPlayers

	// Announce the registration before any auto-start, so the event stream
	// shows the roster filling and then the tournament starting.
	s.notifier.Announce("tournament_registration", map[string]any{
		"tournament_id": tournamentID,
		"player":        player,
		"registered":    len(t.Participants),
	})
	var startErr error
	if full {
		startErr = s.startLocked(t)
	}
	view := t.Clone()
	s.mu.Unlock()

	if startErr != nil {
		log.Printf("⚠️ [TOURNAMENT] auto-start of %s failed: %v", tournamentID, startErr)
	}
	s.persist(&view)
	return &view, nil
}

// Start closes registration and builds the opening bracket. A tournament
// below its minimum roster stays scheduled; this core never retries on its
// own.
func (s *TournamentService) Start(tournamentID string) (*models.Tournament, error) {
	s.mu.Lock()
	t, ok := s.tournaments[tournamentID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if t.Status != models.TournamentStatusScheduled {
		s.mu.Unlock()
		return nil, ErrInvalidState
	}
	err := s.startLocked(t)
	view := t.Clone()
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	s.persist(&view)
	return &view, nil
}

// StartDue sweeps scheduled tournaments whose start time has passed and that
// meet the minimum roster. Lifecycle kick-off only; round advancement stays
// battle-event driven.
func (s *TournamentService) StartDue() {
	s.mu.Lock()
	var due []string
	now := time.Now()
	for id, t := range s.tournaments {
		if t.StartDue(now) && len(t.Participants) >= t.MinPlayers {
			due = append(due, id)
		}
	}
	s.mu.Unlock()

	for _, id := range due {
		if _, err := s.Start(id); err != nil {
			log.Printf("⚠️ [TOURNAMENT] scheduled start of %s failed: %v", id, err)
		}
	}
}

// startLocked activates the tournament: shuffle the roster to remove
// registration-order bias, pair consecutive players, give the odd player
// out a bye, then launch the round's battles.
func (s *TournamentService) startLocked(t *models.Tournament) error {
	if len(t.Participants) < t.MinPlayers {
		return ErrInsufficientParticipants
	}
	t.Status = models.TournamentStatusActive

	shuffled := make([]models.PlayerRef, len(t.Participants))
	copy(shuffled, t.Participants)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	s.buildRoundLocked(t, shuffled)
	s.notifier.Announce("tournament_started", map[string]any{
		"tournament_id": t.ID,
		"name":          t.Name,
		"participants":  len(t.Participants),
	})
	log.Printf("🏆 [TOURNAMENT] %s started with %d players", t.Name, len(t.Participants))
	return nil
}

// buildRoundLocked pairs the given players into the next round and starts
// it. Bye matches settle immediately; everything else gets a PvP battle.
// With an odd player count the trailing player takes the bye.
func (s *TournamentService) buildRoundLocked(t *models.Tournament, players []models.PlayerRef) {
	round := len(t.Rounds)
	var matches []*models.BracketMatch
	for i := 0; i < len(players); i += 2 {
		m := &models.BracketMatch{
			ID:           uuid.NewString(),
			TournamentID: t.ID,
			Round:        round,
			Slot:         len(matches),
			SideA:        players[i],
			Status:       models.MatchStatusPending,
		}
		if i+1 < len(players) {
			m.SideB = players[i+1]
		} else {
			m.Status = models.MatchStatusBye
			m.WinnerID = m.SideA.ID
		}
		matches = append(matches, m)
	}
	t.Rounds = append(t.Rounds, matches)

	for _, m := range matches {
		if m.Bye() {
			s.persistMatch(m)
			continue
		}
		battle, err := s.battles.StartPvP(
			m.SideA, m.SideB,
			s.ratings.Get(m.SideA.ID), s.ratings.Get(m.SideB.ID),
			false,
		)
		if err != nil {
			// Leaves the match pending; resolved by the forfeit sweep once
			// the battle layer recovers, or by an operator restart.
			log.Printf("⚠️ [TOURNAMENT] battle start failed for match %s: %v", m.ID, err)
			continue
		}
		m.BattleID = battle.ID
		m.Status = models.MatchStatusActive
		s.matchByBattle[battle.ID] = m
		s.tourByBattle[battle.ID] = t.ID
		battleID := battle.ID
		s.battles.OnCompleted(battleID, func(b *models.Battle) {
			s.handleBattleDone(battleID, b.WinnerID)
		})
		s.persistMatch(m)
	}
}

// handleBattleDone is the edge coming back from the battle resolver: record
// the match winner, then advance the round once every match has settled.
func (s *TournamentService) handleBattleDone(battleID, winnerID string) {
	s.mu.Lock()
	m, ok := s.matchByBattle[battleID]
	if !ok {
		s.mu.Unlock()
		return
	}
	tournamentID := s.tourByBattle[battleID]
	delete(s.matchByBattle, battleID)
	delete(s.tourByBattle, battleID)

	m.WinnerID = winnerID
	m.Status = models.MatchStatusCompleted
	matchSnap := *m

	t := s.tournaments[tournamentID]
	if t == nil || t.Status != models.TournamentStatusActive {
		s.mu.Unlock()
		return
	}
	s.advanceIfRoundDoneLocked(t)
	completed := t.Status == models.TournamentStatusCompleted
	var view models.Tournament
	if completed {
		view = t.Clone()
	}
	s.mu.Unlock()

	s.persistMatch(&matchSnap)
	if completed {
		var champion models.PlayerRef
		for _, p := range view.Participants {
			if p.ID == view.ChampionID {
				champion = p
				break
			}
		}
		s.notifier.Announce("tournament_completed", map[string]any{
			"tournament_id": view.ID,
			"champion":      champion,
			"payouts":       view.Payouts,
		})
		s.persist(&view)
	}
}

// advanceIfRoundDoneLocked collects winners in match order once no match in
// the current round is still open, then either crowns the champion or builds
// the next round from the winners. Winners are never reshuffled, so bracket
// position is stable from round to round.
func (s *TournamentService) advanceIfRoundDoneLocked(t *models.Tournament) {
	round := t.CurrentRound()
	for _, m := range round {
		if !m.Settled() {
			return
		}
	}
	winners := make([]models.PlayerRef, 0, len(round))
	for _, m := range round {
		winners = append(winners, m.Winner())
	}
	if len(winners) == 1 {
		s.completeLocked(t, winners[0])
		return
	}
	s.buildRoundLocked(t, winners)
	s.notifier.Announce("tournament_round_started", map[string]any{
		"tournament_id": t.ID,
		"round":         len(t.Rounds) - 1,
		"matches":       len(t.CurrentRound()),
	})
}

// completeLocked records the terminal state. The completion announcement and
// snapshot happen in handleBattleDone once the mutex is released, keeping the
// event stream in causal order.
func (s *TournamentService) completeLocked(t *models.Tournament, champion models.PlayerRef) {
	t.Status = models.TournamentStatusCompleted
	t.ChampionID = champion.ID
	t.Payouts = s.distributePrizesLocked(t)
	log.Printf("🏆 [TOURNAMENT] %s completed, champion=%s", t.Name, champion.ID)
}

// distributePrizesLocked walks the prize tiers in ascending place order over
// the standings. Each payout is floor(pool*fraction); places beyond the
// tracked standings go unpaid and the remainder stays with the house.
func (s *TournamentService) distributePrizesLocked(t *models.Tournament) []models.PrizePayout {
	standings := s.standingsLocked(t)
	pool := t.PrizePool()
	var payouts []models.PrizePayout
	place := 1
	for _, tier := range t.PrizeTiers {
		for i := 0; i < tier.Places; i++ {
			if place > len(standings) {
				return payouts
			}
			payouts = append(payouts, models.PrizePayout{
				PlayerID: standings[place-1],
				Place:    place,
				Amount:   int64(float64(pool) * tier.Fraction),
			})
			place++
		}
	}
	return payouts
}

// standingsLocked approximates final placement: champion first, then the
// other finalists, then each earlier round's losers walking backwards, in
// bracket-slot order within a round. Players eliminated in the same round
// are not truly ranked against each other.
func (s *TournamentService) standingsLocked(t *models.Tournament) []string {
	if t.ChampionID == "" {
		return nil
	}
	out := []string{t.ChampionID}
	seen := map[string]bool{t.ChampionID: true}
	for i := len(t.Rounds) - 1; i >= 0; i-- {
		for _, m := range t.Rounds[i] {
			for _, p := range []models.PlayerRef{m.SideA, m.SideB} {
				if p.ID == "" || seen[p.ID] || p.ID == m.WinnerID {
					continue
				}
				seen[p.ID] = true
				out = append(out, p.ID)
			}
		}
	}
	return out
}

// Get returns a detached copy of the tournament; later bracket updates never
// show through it.
func (s *TournamentService) Get(tournamentID string) (*models.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[tournamentID]
	if !ok {
		return nil, ErrNotFound
	}
	view := t.Clone()
	return &view, nil
}

// Standings returns the ordered player ids for a completed tournament.
func (s *TournamentService) Standings(tournamentID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[tournamentID]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != models.TournamentStatusCompleted {
		return nil, fmt.Errorf("%w: standings only exist once completed", ErrInvalidState)
	}
	return s.standingsLocked(t), nil
}

// List copies every tournament for the snapshot worker and the ops view.
func (s *TournamentService) List() []models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Tournament, 0, len(s.tournaments))
	for _, t := range s.tournaments {
		out = append(out, t.Clone())
	}
	return out
}

func (s *TournamentService) persist(t *models.Tournament) {
	if s.DB == nil {
		return
	}
	snap := *t
	snap.PrepareSnapshot()
	if err := s.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&snap).Error; err != nil {
		log.Printf("⚠️ [TOURNAMENT] snapshot upsert failed for %s: %v", t.ID, err)
	}
}

func (s *TournamentService) persistMatch(m *models.BracketMatch) {
	if s.DB == nil {
		return
	}
	if err := s.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(m).Error; err != nil {
		log.Printf("⚠️ [TOURNAMENT] match snapshot upsert failed for %s: %v", m.ID, err)
	}
}
