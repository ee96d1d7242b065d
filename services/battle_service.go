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

// battleHistoryCap bounds the completed-battle list kept for snapshots.
const battleHistoryCap = 256

// actionBaseDamage maps the chat-layer action verbs to base damage. Unknown
// actions fall back to a plain attack.
var actionBaseDamage = map[string]int{
	"attack": 10,
	"slash":  12,
	"fierce": 16,
	"quick":  6,
	"defend": 4,
}

const defaultActionDamage = 10

// monsterNames is the small flavor table PvE opponents draw from.
var monsterNames = []string{
	"Gnarled Troll", "Bog Serpent", "Cinder Imp", "Hollow Knight",
	"Rust Golem", "Night Howler", "Marsh Witch", "Pale Revenant",
}

// itemDrops is the loot table for the configurable drop chance.
var itemDrops = []string{
	"healing draught", "iron talisman", "worn grimoire",
	"silver dagger", "ember charm",
}

type BattleConfig struct {
	CritChance     float64       // PvE critical probability
	ItemDropChance float64       // winner loot probability
	ForfeitAfter   time.Duration // idle time before the stale sweep forfeits a battle
}

// TurnResult is what one applied action looks like to the caller.
type TurnResult struct {
	Turn       models.BattleTurn `json:"turn"`
	ActorHP    int               `json:"actor_hp"`
	OpponentHP int               `json:"opponent_hp"`
	Completed  bool              `json:"completed"`
	WinnerID   string            `json:"winner_id,omitempty"`
}

// BattleService resolves battles turn by turn. It owns all turn-level state
// while a battle is active and is unaware of tournaments; interested parties
// register per-battle completion callbacks via OnCompleted.
type BattleService struct {
	DB *gorm.DB

	mu        sync.Mutex
	cfg       BattleConfig
	active    map[string]*models.Battle
	resolved  map[string]bool
	history   []*models.Battle
	callbacks map[string][]func(*models.Battle)
	rng       *rand.Rand

	notifier Notifier
}

func NewBattleService(db *gorm.DB, cfg BattleConfig, notifier Notifier, rng *rand.Rand) *BattleService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.ForfeitAfter <= 0 {
		cfg.ForfeitAfter = 30 * time.Minute
	}
	return &BattleService{
		DB:        db,
		cfg:       cfg,
		active:    make(map[string]*models.Battle),
		resolved:  make(map[string]bool),
		callbacks: make(map[string][]func(*models.Battle)),
		rng:       rng,
		notifier:  notifier,
	}
}

// NewPlayerCombatant derives battle stats from a chat-layer player ref. The
// curves are opaque inputs as far as the match core is concerned.
func NewPlayerCombatant(p models.PlayerRef, rating int) models.Combatant {
	hp := 100 + p.Level*10
	return models.Combatant{
		ID:      p.ID,
		Name:    p.Name,
		Level:   p.Level,
		HP:      hp,
		MaxHP:   hp,
		Attack:  10 + p.Level*2,
		Defense: 5 + p.Level,
		Rating:  rating,
		Network: p.Network,
	}
}

func (s *BattleService) monsterForLevel(level int) models.Combatant {
	if level < 1 {
		level = 1
	}
	name := monsterNames[s.rng.Intn(len(monsterNames))]
	hp := 80 + level*15
	return models.Combatant{
		ID:        "npc:" + uuid.NewString(),
		Name:      name,
		Level:     level,
		HP:        hp,
		MaxHP:     hp,
		Attack:    8 + level*3,
		Defense:   2 + level,
		IsMonster: true,
	}
}

// StartPvE opens a battle between a single player and a generated monster of
// the requested level.
func (s *BattleService) StartPvE(player models.PlayerRef, opponentLevel int, rating int) (*models.Battle, error) {
	if player.ID == "" {
		return nil, ErrInvalidParticipants
	}
	s.mu.Lock()
	b := &models.Battle{
		ID:        uuid.NewString(),
		Kind:      models.BattleKindPvE,
		Status:    models.BattleStatusActive,
		SideA:     NewPlayerCombatant(player, rating),
		SideB:     s.monsterForLevel(opponentLevel),
		StartedAt: time.Now(),
	}
	s.active[b.ID] = b
	view := *b
	s.mu.Unlock()

	s.notifier.Announce("battle_started", view)
	s.persist(&view)
	return &view, nil
}

// StartPvP opens a battle between exactly two distinct players.
func (s *BattleService) StartPvP(a, b models.PlayerRef, ratingA, ratingB int, ranked bool) (*models.Battle, error) {
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		return nil, ErrInvalidParticipants
	}
	s.mu.Lock()
	battle := &models.Battle{
		ID:        uuid.NewString(),
		Kind:      models.BattleKindPvP,
		Ranked:    ranked,
		Status:    models.BattleStatusActive,
		SideA:     NewPlayerCombatant(a, ratingA),
		SideB:     NewPlayerCombatant(b, ratingB),
		StartedAt: time.Now(),
	}
	s.active[battle.ID] = battle
	view := *battle
	s.mu.Unlock()

	s.notifier.Announce("battle_started", view)
	s.persist(&view)
	return &view, nil
}

// OnCompleted registers fn to run exactly once when the battle resolves. If
// the battle already resolved, fn runs immediately with the final state.
func (s *BattleService) OnCompleted(battleID string, fn func(*models.Battle)) {
	s.mu.Lock()
	if s.resolved[battleID] {
		var done *models.Battle
		for _, h := range s.history {
			if h.ID == battleID {
				done = h
				break
			}
		}
		s.mu.Unlock()
		if done != nil {
			fn(done)
		}
		return
	}
	if _, ok := s.active[battleID]; ok {
		s.callbacks[battleID] = append(s.callbacks[battleID], fn)
	}
	s.mu.Unlock()
}

// Get returns a copy of an active battle.
func (s *BattleService) Get(battleID string) (*models.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.active[battleID]; ok {
		view := *b
		return &view, nil
	}
	if s.resolved[battleID] {
		for _, h := range s.history {
			if h.ID == battleID {
				view := *h
				return &view, nil
			}
		}
	}
	return nil, ErrNotFound
}

// SubmitTurn applies one player action. The attacker's hit is always
// evaluated and resolved before any counter-attack check, so a battle can
// never end with both sides dead. Post-completion submissions always fail
// with ErrBattleAlreadyResolved and mutate nothing.
func (s *BattleService) SubmitTurn(battleID, actorID, action string) (*TurnResult, error) {
	s.mu.Lock()
	if s.resolved[battleID] {
		s.mu.Unlock()
		return nil, ErrBattleAlreadyResolved
	}
	b, ok := s.active[battleID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	var attacker, defender *models.Combatant
	switch actorID {
	case b.SideA.ID:
		attacker, defender = &b.SideA, &b.SideB
	case b.SideB.ID:
		attacker, defender = &b.SideB, &b.SideA
	default:
		s.mu.Unlock()
		return nil, ErrNotAParticipant
	}
	if attacker.IsMonster {
		// Monsters only ever counter; the chat layer cannot act for them.
		s.mu.Unlock()
		return nil, ErrNotAParticipant
	}

	base, ok := actionBaseDamage[action]
	if !ok {
		base = defaultActionDamage
	}

	turn := models.BattleTurn{
		Seq:     len(b.Turns) + 1,
		ActorID: actorID,
		Action:  action,
		At:      time.Now(),
	}

	if b.Kind == models.BattleKindPvE {
		dmg := base + attacker.Level*2
		if s.rng.Float64() < s.cfg.CritChance {
			dmg *= 2
			turn.Critical = true
		}
		dmg -= defender.Defense
		if dmg < 1 {
			dmg = 1
		}
		turn.Damage = dmg
		applyDamage(defender, dmg)

		if defender.HP > 0 {
			counter := defender.Attack - int(math.Floor(float64(attacker.Level)*1.5))
			if counter < 1 {
				counter = 1
			}
			turn.CounterDamage = counter
			applyDamage(attacker, counter)
		}
	} else {
		dmg := base + attacker.Level*2 - int(math.Floor(float64(defender.Level)*1.5))
		if dmg < 1 {
			dmg = 1
		}
		turn.Damage = dmg
		applyDamage(defender, dmg)
	}

	b.Turns = append(b.Turns, turn)

	result := &TurnResult{Turn: turn, ActorHP: attacker.HP, OpponentHP: defender.HP}

	var done *models.Battle
	var fns []func(*models.Battle)
	switch {
	case defender.HP <= 0:
		done, fns = s.completeLocked(b, attacker, models.BattleResolutionKnockout)
	case attacker.HP <= 0:
		done, fns = s.completeLocked(b, defender, models.BattleResolutionKnockout)
	}
	s.mu.Unlock()

	if done != nil {
		result.Completed = true
		result.WinnerID = done.WinnerID
		s.finish(done, fns)
	}
	return result, nil
}

// completeLocked transitions the battle to its terminal state and detaches
// the registered callbacks. Caller holds the mutex and must run s.finish on
// the returned copy after releasing it.
func (s *BattleService) completeLocked(b *models.Battle, winner *models.Combatant, resolution string) (*models.Battle, []func(*models.Battle)) {
	now := time.Now()
	b.Status = models.BattleStatusCompleted
	b.Resolution = resolution
	b.WinnerID = winner.ID
	b.EndedAt = &now

	if !winner.IsMonster && resolution == models.BattleResolutionKnockout {
		var opponent *models.Combatant
		if winner == &b.SideA {
			opponent = &b.SideB
		} else {
			opponent = &b.SideA
		}
		b.Rewards = s.rollRewards(opponent)
	}

	delete(s.active, b.ID)
	s.resolved[b.ID] = true
	s.history = append(s.history, b)
	if len(s.history) > battleHistoryCap {
		s.history = s.history[len(s.history)-battleHistoryCap:]
	}
	fns := s.callbacks[b.ID]
	delete(s.callbacks, b.ID)
	return b, fns
}

// finish runs the exactly-once completion side effects outside the lock.
func (s *BattleService) finish(b *models.Battle, fns []func(*models.Battle)) {
	for _, fn := range fns {
		fn(b)
	}
	s.notifier.Announce("battle_ended", b)
	s.persist(b)
}

// rollRewards scales experience and gold by the beaten opponent's level and
// rating, with a configurable chance of an item drop.
func (s *BattleService) rollRewards(opponent *models.Combatant) models.BattleRewards {
	rating := opponent.Rating
	if rating <= 0 {
		rating = DefaultRating
	}
	rewards := models.BattleRewards{
		Experience: int64(20 + opponent.Level*15 + rating/20),
		Gold:       int64(10 + opponent.Level*5 + rating/50),
	}
	if s.rng.Float64() < s.cfg.ItemDropChance {
		rewards.ItemDrop = itemDrops[s.rng.Intn(len(itemDrops))]
	}
	return rewards
}

// ForfeitStale resolves battles idle past the configured limit so a
// disconnected player cannot stall a tournament round forever. PvE forfeits
// to the monster (the player walked away); PvP forfeits to whichever side
// acted last, or to slot B if nobody ever acted. Returns how many battles
// were forfeited.
func (s *BattleService) ForfeitStale() int {
	type doneSet struct {
		battle *models.Battle
		fns    []func(*models.Battle)
	}
	s.mu.Lock()
	now := time.Now()
	var finished []doneSet
	for _, b := range s.active {
		last := b.StartedAt
		if n := len(b.Turns); n > 0 {
			last = b.Turns[n-1].At
		}
		if now.Sub(last) <= s.cfg.ForfeitAfter {
			continue
		}
		winner := &b.SideB
		if b.Kind == models.BattleKindPvP && b.LastActorID() == b.SideA.ID {
			winner = &b.SideA
		}
		done, fns := s.completeLocked(b, winner, models.BattleResolutionForfeit)
		finished = append(finished, doneSet{done, fns})
	}
	s.mu.Unlock()

	for _, d := range finished {
		log.Printf("[BATTLE] forfeited stale battle %s (winner %s)", d.battle.ID, d.battle.WinnerID)
		s.finish(d.battle, d.fns)
	}
	return len(finished)
}

// History copies the completed-battle list for the snapshot worker.
func (s *BattleService) History() []models.Battle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Battle, 0, len(s.history))
	for _, b := range s.history {
		out = append(out, *b)
	}
	return out
}

func applyDamage(c *models.Combatant, dmg int) {
	c.HP -= dmg
	if c.HP < 0 {
		c.HP = 0
	}
}

func (s *BattleService) persist(b *models.Battle) {
	if s.DB == nil {
		return
	}
	snap := *b
	snap.PrepareSnapshot()
	if err := s.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&snap).Error; err != nil {
		log.Printf("[BATTLE] snapshot upsert failed for %s: %v", b.ID, err)
	}
}
