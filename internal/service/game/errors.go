package game

import "errors"

// Validation failures surfaced to the acting client through an Ack response.
// None of them leave room state partially mutated: every handler validates
// fully before committing.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrNameRequired     = errors.New("name required")
	ErrIdentityRequired = errors.New("player key required")
	ErrGameStarted      = errors.New("game already started")
	ErrNotHost          = errors.New("only the host can do that")
	ErrTooFewPlayers    = errors.New("need at least 3 players")
	ErrWrongPhase       = errors.New("not allowed in this phase")
	ErrUnknownPlayer    = errors.New("unknown player")
	ErrEliminated       = errors.New("you are eliminated")
	ErrInvalidTarget    = errors.New("invalid target")
	ErrSelfVote         = errors.New("can't vote for yourself")
	ErrGameOver         = errors.New("game is over")
)
