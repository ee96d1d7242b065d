package models

import (
	"time"

	"gorm.io/gorm"
)

// PlayerRef is the slice of player state the chat layer hands us with every
// request. The chat layer owns the authoritative player store; we only carry
// what battles and matchmaking need.
type PlayerRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Level   int    `json:"level"`
	Network string `json:"network"` // originating chat network, e.g. "irc.libera"
}

// PlayerRating holds the ranked skill estimate plus win/loss counters.
// Created lazily on the first ranked outcome; rating never goes below 0.
type PlayerRating struct {
	PlayerID string `json:"player_id" gorm:"primaryKey"`
	Rating   int    `json:"rating" gorm:"default:1000"`
	Wins     int    `json:"wins" gorm:"default:0"`
	Losses   int    `json:"losses" gorm:"default:0"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
