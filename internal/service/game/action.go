package game

// JoinOrCreateRequest must be the first request of every connection. With
// Create set it allocates a new room with the caller as host; otherwise it
// attaches the caller to the room at RoomCode. A key already present in the
// room makes this a rejoin, valid in any phase.
type JoinOrCreateRequest struct {
	RoomCode  string `json:"room_code,omitempty"`
	Name      string `json:"name"`
	PlayerKey string `json:"player_key"`
	Create    bool   `json:"create,omitempty"`

	RespCh chan ResponseWrapper `json:"-"`
}

// LeaveRequest marks the player offline. It is also synthesized by the
// websocket layer when a connection drops, carrying that connection's RespCh
// so a stale leave from a superseded connection can be told apart.
type LeaveRequest struct {
	PlayerKey string `json:"player_key"`

	RespCh chan ResponseWrapper `json:"-"`
}

type StartGameRequest struct {
	PlayerKey string `json:"player_key"`
}

type RequestRoleRequest struct {
	PlayerKey string `json:"player_key"`
}

type SetPhaseRequest struct {
	PlayerKey string `json:"player_key"`
	Phase     string `json:"phase"`
}

type NextSpeakerRequest struct {
	PlayerKey string `json:"player_key"`
}

type CastVoteRequest struct {
	PlayerKey string `json:"player_key"`
	// TargetKey is a living, non-self player key or the SKIP sentinel.
	TargetKey string `json:"target_key"`
}

type NextRoundRequest struct {
	PlayerKey string `json:"player_key"`
}

type EndGameRequest struct {
	PlayerKey string `json:"player_key"`
}

// TimeoutRequest is injected by a room's own phase timer, never by clients.
// Phase and Seq identify the arming so stale expiries are dropped.
type TimeoutRequest struct {
	Phase string `json:"phase"`
	Seq   uint64 `json:"seq"`
}

// SnapshotRequest is injected by the HTTP peek endpoint.
type SnapshotRequest struct {
	Reply chan RoomPeek `json:"-"`
}

// AckResponse answers the mutating request that triggered it, unicast to the
// acting player only.
type AckResponse struct {
	Op       string `json:"op"`
	Ok       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	RoomCode string `json:"room_code,omitempty"`
	Rejoined bool   `json:"rejoined,omitempty"`
	// Already marks a repeated RequestRole: success, but no second delivery.
	Already bool `json:"already,omitempty"`
}

type PublicPlayer struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Connected  bool   `json:"connected"`
	Eliminated bool   `json:"eliminated"`
}

type SpeakerSlot struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Connected  bool   `json:"connected"`
	Eliminated bool   `json:"eliminated"`
	Speaking   bool   `json:"speaking"`
}

type TimerInfo struct {
	RemainingMs int64 `json:"remaining_ms"`
	DurationMs  int64 `json:"duration_ms"`
}

// RoomStateResponse is the public room snapshot broadcast after every
// mutation. It never carries the secret word or the imposter roster.
type RoomStateResponse struct {
	RoomCode      string              `json:"room_code"`
	Phase         string              `json:"phase"`
	Round         int                 `json:"round"`
	HostKey       string              `json:"host_key"`
	Players       []PublicPlayer      `json:"players"`
	SpeakingOrder []SpeakerSlot       `json:"speaking_order,omitempty"`
	VoteStatus    *VoteStatusResponse `json:"vote_status,omitempty"`
	Timer         *TimerInfo          `json:"timer,omitempty"`
}

// RoleResponse is the one-time private role delivery. Word stays empty for
// imposters.
type RoleResponse struct {
	Role  string `json:"role"`
	Word  string `json:"word,omitempty"`
	Round int    `json:"round"`
}

type VoteStatusResponse struct {
	VotedCount int `json:"voted_count"`
	Total      int `json:"total"`
}

// EliminatedInfo is the only place an imposter identity is disclosed before
// game end, and only for the player the tally removed.
type EliminatedInfo struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	WasImposter bool   `json:"was_imposter"`
}

type WinInfo struct {
	Winner string `json:"winner"`
}

type ResultsResponse struct {
	Eliminated  *EliminatedInfo `json:"eliminated,omitempty"`
	TieOrNoElim bool            `json:"tie_or_no_elim"`
	Win         *WinInfo        `json:"win,omitempty"`
}

// WinResponse ends a game: the full imposter roster is revealed here and
// nowhere else.
type WinResponse struct {
	Winner    string   `json:"winner"`
	Imposters []string `json:"imposters"`
}

// RoomPeek is the read-only view served over plain HTTP for join screens.
type RoomPeek struct {
	RoomCode    string `json:"room_code"`
	Phase       string `json:"phase"`
	Round       int    `json:"round"`
	PlayerCount int    `json:"player_count"`
}
