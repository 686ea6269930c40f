package game

// A game round moves through five phases:
// 1. lobby: players join, the host may start a game
// 2. role: round 1 only, each living player pulls their secret role
// 3. discuss: players speak in the fixed speaking order
// 4. vote: every living player votes or skips, then the tally runs
// 5. results: the outcome is shown, then the next round or back to lobby
const (
	PHASE_LOBBY   = "lobby"
	PHASE_DISCUSS = "discuss"
	PHASE_ROLE    = "role"
	PHASE_VOTE    = "vote"
	PHASE_RESULTS = "results"
)

// Transitions the host may request through SetPhase. Everything else goes
// through a dedicated operation: lobby->role via StartGame, vote->results via
// the tally, results onward via NextRound, and any->lobby via EndGame only.
var manualTransitions = map[string][]string{
	PHASE_ROLE:    {PHASE_DISCUSS},
	PHASE_DISCUSS: {PHASE_VOTE},
}

func canSetPhase(from, to string) bool {
	for _, allowed := range manualTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}
