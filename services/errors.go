package services

import "errors"

// Error taxonomy returned synchronously by the mutating operations. Handlers
// map these to HTTP statuses; nothing here is retried internally.
var (
	ErrNotFound                 = errors.New("not found")
	ErrInvalidState             = errors.New("operation not allowed in current state")
	ErrCapacityExceeded         = errors.New("capacity exceeded")
	ErrInsufficientParticipants = errors.New("not enough participants")
	ErrAlreadyExists            = errors.New("already exists")
	ErrBattleAlreadyResolved    = errors.New("battle already resolved")
	ErrInvalidParticipants      = errors.New("invalid participants")
	ErrNotAParticipant          = errors.New("not a participant in this battle")
)
