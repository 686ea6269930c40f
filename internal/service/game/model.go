package game

// Player roles for one game. Every crew member shares the secret word;
// imposters receive no word and never learn each other's identity.
const (
	ROLE_CREW     = "CREW"
	ROLE_IMPOSTER = "IMPOSTER"
)

// Winning sides, broadcast at game end.
const (
	WINNER_CREW      = "CREW"
	WINNER_IMPOSTERS = "IMPOSTERS"
)

// Sentinel vote target for an abstain.
const VOTE_SKIP = "SKIP"

// Player is one participant of a room. Key is a stable, client-held identity
// token, so a player survives reconnects: on disconnect the entry is only
// marked offline, never removed.
type Player struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`

	RespCh chan ResponseWrapper `json:"-"`
}
