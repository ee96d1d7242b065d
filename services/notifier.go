package services

import "log"

// Notifier is the fire-and-forget announcement sink. Every state transition
// (tournament scheduled/started/completed, match created/expired, battle
// started/ended, rating updates) goes through here; implementations must
// never fail the calling operation. The production implementation fans out
// over the websocket hub in handlers.
type Notifier interface {
	Announce(event string, payload any)
}

// LogNotifier is the fallback sink when no hub is wired (tests, tooling).
type LogNotifier struct{}

func (LogNotifier) Announce(event string, payload any) {
	log.Printf("[ANNOUNCE] %s: %+v", event, payload)
}
