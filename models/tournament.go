package models

import (
	"encoding/json"
	"time"
)

const (
	TournamentStatusScheduled = "scheduled"
	TournamentStatusActive    = "active"
	TournamentStatusCompleted = "completed"

	MatchStatusPending   = "pending"
	MatchStatusActive    = "active"
	MatchStatusBye       = "bye"
	MatchStatusCompleted = "completed"
)

// PrizeTier maps a payout fraction to a run of consecutive places. Tiers are
// walked in order, so {0.5,1},{0.3,1},{0.2,1} pays places 1..3.
type PrizeTier struct {
	Fraction float64 `json:"fraction"`
	Places   int     `json:"places"`
}

// PrizePayout is one awarded prize, announced on completion.
type PrizePayout struct {
	PlayerID string `json:"player_id"`
	Place    int    `json:"place"`
	Amount   int64  `json:"amount"`
}

// BracketMatch is one slot of the single-elimination tree. SideB empty means
// a bye: the sole occupant is the winner immediately and no battle is run.
type BracketMatch struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	TournamentID string    `json:"tournament_id" gorm:"index;not null"`
	Round        int       `json:"round"`
	Slot         int       `json:"slot"`
	SideA        PlayerRef `json:"side_a" gorm:"embedded;embeddedPrefix:a_"`
	SideB        PlayerRef `json:"side_b" gorm:"embedded;embeddedPrefix:b_"`
	BattleID     string    `json:"battle_id,omitempty" gorm:"index"`
	WinnerID     string    `json:"winner_id,omitempty"`
	Status       string    `json:"status" gorm:"default:'pending'"`
}

// Bye reports whether the match has no second participant.
func (m *BracketMatch) Bye() bool { return m.SideB.ID == "" }

// Settled reports whether the match can no longer change (bye or completed).
func (m *BracketMatch) Settled() bool {
	return m.Status == MatchStatusBye || m.Status == MatchStatusCompleted
}

// Winner returns the PlayerRef matching WinnerID, or the zero value.
func (m *BracketMatch) Winner() PlayerRef {
	switch m.WinnerID {
	case m.SideA.ID:
		return m.SideA
	case m.SideB.ID:
		return m.SideB
	}
	return PlayerRef{}
}

// Loser returns the participant that did not win, or the zero value for a bye.
func (m *BracketMatch) Loser() PlayerRef {
	if m.Bye() || m.WinnerID == "" {
		return PlayerRef{}
	}
	if m.WinnerID == m.SideA.ID {
		return m.SideB
	}
	return m.SideA
}

// Tournament is one single-elimination event. The participant list freezes
// on activation; round advancement is driven by battle completions.
type Tournament struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Type       string    `json:"type" gorm:"default:'single_elimination'"`
	Name       string    `json:"name"`
	Status     string    `json:"status" gorm:"default:'scheduled'"`
	MaxPlayers int       `json:"max_players"`
	MinPlayers int       `json:"min_players"`
	EntryFee   int64     `json:"entry_fee" gorm:"default:0"`
	StartTime  time.Time `json:"start_time"`
	ChampionID string    `json:"champion_id,omitempty"`

	Participants []PlayerRef       `json:"participants" gorm:"-"`
	PrizeTiers   []PrizeTier       `json:"prize_tiers" gorm:"-"`
	Rounds       [][]*BracketMatch `json:"rounds,omitempty" gorm:"-"`
	Payouts      []PrizePayout     `json:"payouts,omitempty" gorm:"-"`

	// JSON mirrors for the snapshot upsert.
	ParticipantsJSON string `json:"-" gorm:"type:text"`
	PrizeTiersJSON   string `json:"-" gorm:"type:text"`
	PayoutsJSON      string `json:"-" gorm:"type:text"`

	Timestamps
}

// Clone deep-copies the tournament so a returned view cannot change when
// the live bracket advances. Matches are copied by value; slices get fresh
// backing arrays.
func (t *Tournament) Clone() Tournament {
	out := *t
	out.Participants = append([]PlayerRef(nil), t.Participants...)
	out.PrizeTiers = append([]PrizeTier(nil), t.PrizeTiers...)
	out.Payouts = append([]PrizePayout(nil), t.Payouts...)
	if t.Rounds != nil {
		out.Rounds = make([][]*BracketMatch, len(t.Rounds))
		for i, round := range t.Rounds {
			out.Rounds[i] = make([]*BracketMatch, len(round))
			for j, m := range round {
				c := *m
				out.Rounds[i][j] = &c
			}
		}
	}
	return out
}

// Registered reports whether playerID is already on the roster.
func (t *Tournament) Registered(playerID string) bool {
	for _, p := range t.Participants {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// CurrentRound returns the most recently built round, or nil.
func (t *Tournament) CurrentRound() []*BracketMatch {
	if len(t.Rounds) == 0 {
		return nil
	}
	return t.Rounds[len(t.Rounds)-1]
}

// PrizePool is participant count times entry fee.
func (t *Tournament) PrizePool() int64 {
	return int64(len(t.Participants)) * t.EntryFee
}

// PrepareSnapshot fills the JSON mirror columns before a DB upsert.
func (t *Tournament) PrepareSnapshot() {
	if data, err := json.Marshal(t.Participants); err == nil {
		t.ParticipantsJSON = string(data)
	}
	if data, err := json.Marshal(t.PrizeTiers); err == nil {
		t.PrizeTiersJSON = string(data)
	}
	if data, err := json.Marshal(t.Payouts); err == nil {
		t.PayoutsJSON = string(data)
	}
}

// StartDue reports whether a scheduled tournament's start time has passed.
func (t *Tournament) StartDue(now time.Time) bool {
	return t.Status == TournamentStatusScheduled && !t.StartTime.IsZero() && !now.Before(t.StartTime)
}
