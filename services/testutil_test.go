package services

import (
	"sync"

	"game-arena-system/models"
)

// memoryNotifier records announcements so tests can assert on the event
// stream without a websocket hub.
type memoryNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *memoryNotifier) Announce(event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *memoryNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

func playerRef(id string, level int, network string) models.PlayerRef {
	return models.PlayerRef{ID: id, Name: "player-" + id, Level: level, Network: network}
}
