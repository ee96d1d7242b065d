package models

import (
	"encoding/json"
	"time"
)

const (
	BattleKindPvE = "pve"
	BattleKindPvP = "pvp"

	BattleStatusActive    = "active"
	BattleStatusCompleted = "completed"

	// How a completed battle was decided.
	BattleResolutionKnockout = "knockout"
	BattleResolutionForfeit  = "forfeit"
)

// Combatant is one side of a battle. Monsters use a synthetic "npc:" id so
// a single damage path serves PvE and PvP.
type Combatant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Level     int    `json:"level"`
	HP        int    `json:"hp"`
	MaxHP     int    `json:"max_hp"`
	Attack    int    `json:"attack"`
	Defense   int    `json:"defense"`
	Rating    int    `json:"rating"` // rating at battle start, used for reward scaling
	Network   string `json:"network,omitempty"`
	IsMonster bool   `json:"is_monster,omitempty"`
}

// BattleTurn is one applied action in the turn log.
type BattleTurn struct {
	Seq           int       `json:"seq"`
	ActorID       string    `json:"actor_id"`
	Action        string    `json:"action"`
	Damage        int       `json:"damage"`
	Critical      bool      `json:"critical,omitempty"`
	CounterDamage int       `json:"counter_damage,omitempty"`
	At            time.Time `json:"at"`
}

// BattleRewards is what the winning player takes home. Values are opaque to
// this core; the chat layer credits them.
type BattleRewards struct {
	Experience int64  `json:"experience"`
	Gold       int64  `json:"gold"`
	ItemDrop   string `json:"item_drop,omitempty"`
}

// Battle records a single PvE or PvP fight. Slot A is always a player; slot
// B is the monster for PvE. Turn-level state lives in memory while the
// battle is active; the snapshot columns exist for restart recovery only.
type Battle struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	Kind       string     `json:"kind" gorm:"type:varchar(8)"`
	Ranked     bool       `json:"ranked" gorm:"default:false"`
	Status     string     `json:"status" gorm:"default:'active'"`
	Resolution string     `json:"resolution,omitempty"`
	WinnerID   string     `json:"winner_id,omitempty" gorm:"index"`
	SideA      Combatant  `json:"side_a" gorm:"embedded;embeddedPrefix:a_"`
	SideB      Combatant  `json:"side_b" gorm:"embedded;embeddedPrefix:b_"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	Turns   []BattleTurn  `json:"turns,omitempty" gorm:"-"`
	Rewards BattleRewards `json:"rewards" gorm:"embedded;embeddedPrefix:reward_"`

	// JSON mirror of Turns for the snapshot upsert.
	TurnsJSON string `json:"-" gorm:"type:text"`
}

// Participant reports whether id belongs to either side.
func (b *Battle) Participant(id string) bool {
	return id == b.SideA.ID || id == b.SideB.ID
}

// LastActorID returns the actor of the most recent turn, or "" if none.
func (b *Battle) LastActorID() string {
	if len(b.Turns) == 0 {
		return ""
	}
	return b.Turns[len(b.Turns)-1].ActorID
}

// PrepareSnapshot fills the JSON mirror columns before a DB upsert.
func (b *Battle) PrepareSnapshot() {
	data, err := json.Marshal(b.Turns)
	if err != nil {
		return
	}
	b.TurnsJSON = string(data)
}
