package models

import "time"

// MatchCriteria is what a player asks for when they queue up.
// Zero values fall back to service defaults (level window around the
// player's own level, default max wait).
type MatchCriteria struct {
	MinLevel           int  `json:"min_level" gorm:"column:min_level"`
	MaxLevel           int  `json:"max_level" gorm:"column:max_level"`
	RankingRange       int  `json:"ranking_range" gorm:"column:ranking_range"` // max rating gap when ranking is enabled
	MaxWaitSeconds     int  `json:"max_wait_seconds" gorm:"column:max_wait_seconds"`
	PreferCrossNetwork bool `json:"prefer_cross_network" gorm:"column:prefer_cross_network"`
}

// MatchRequest is one pending matchmaking entry. Exactly one active request
// per player id; replaced or removed on pairing/expiry.
type MatchRequest struct {
	ID          string        `json:"id" gorm:"primaryKey"`
	PlayerID    string        `json:"player_id" gorm:"index;not null"`
	PlayerName  string        `json:"player_name"`
	Level       int           `json:"level"`
	Network     string        `json:"network"`
	Criteria    MatchCriteria `json:"criteria" gorm:"embedded"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// Player returns the chat-layer view of the requester.
func (r *MatchRequest) Player() PlayerRef {
	return PlayerRef{ID: r.PlayerID, Name: r.PlayerName, Level: r.Level, Network: r.Network}
}

// LevelBracket is a matchmaking-only partition of queued players by
// character level. Boundaries are fixed, contiguous and non-overlapping;
// membership follows the queue. Not persisted.
type LevelBracket struct {
	MinLevel int             `json:"min_level"`
	MaxLevel int             `json:"max_level"`
	Members  map[string]bool `json:"-"`
}

// Contains reports whether level falls inside the bracket.
func (b *LevelBracket) Contains(level int) bool {
	return level >= b.MinLevel && level <= b.MaxLevel
}
