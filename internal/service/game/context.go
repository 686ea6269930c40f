package game

import (
	"time"

	"go.uber.org/zap"
)

// PhaseDurations configures the countdown armed on entering each timed phase.
type PhaseDurations struct {
	Role    time.Duration
	Discuss time.Duration
	Vote    time.Duration
	Results time.Duration
}

// Options parameterize a room's phase controller. With AutoAdvance off the
// host drives every transition; with it on, each phase entry arms a countdown
// whose expiry advances the machine on its own.
type Options struct {
	AutoAdvance bool
	Durations   PhaseDurations
}

// RoomContext holds the full mutable state of one room. It is owned by that
// room's machine goroutine and touched only from there, so no lock is needed:
// every handler runs to completion before the next event is taken.
type RoomContext struct {
	RoomCode string
	Phase    string
	Round    int
	HostKey  string

	Players map[string]*Player
	// Roster keeps player keys in join order; host migration and the public
	// snapshot need a deterministic order the map cannot give.
	Roster []string

	SecretWord string
	Imposters  map[string]struct{}
	Eliminated map[string]struct{}
	// Revealed tracks who already pulled their role this game, making
	// RequestRole idempotent.
	Revealed map[string]struct{}
	Votes    map[string]string

	// SpeakingOrder is a permutation of all player keys, fixed at game start.
	// SpeakerBase advances one slot per NextSpeaker; the current speaker is
	// the first living player at or after it.
	SpeakingOrder []string
	SpeakerBase   int

	Opts Options

	// Single-owner phase timer. Seq invalidates expiries from a timer that
	// was since re-armed or cancelled.
	Timer     *time.Timer
	TimerSeq  uint64
	TimerEnds time.Time
	TimerDur  time.Duration
	TmoCh     chan RequestWrapper

	// Outcome of the last tally, consumed by the results stage.
	LastTally *ResultsResponse
	GameOver  bool
	Winner    string
}

func NewRoomContext(roomCode string, opts Options) *RoomContext {
	return &RoomContext{
		RoomCode:   roomCode,
		Phase:      PHASE_LOBBY,
		Players:    make(map[string]*Player),
		Imposters:  make(map[string]struct{}),
		Eliminated: make(map[string]struct{}),
		Revealed:   make(map[string]struct{}),
		Votes:      make(map[string]string),
		Opts:       opts,
		TmoCh:      make(chan RequestWrapper, 8),
	}
}

// ResetGame clears all per-game state while preserving the player roster.
// Runs on StartGame and on every return to the lobby.
func (rc *RoomContext) ResetGame() {
	rc.Round = 0
	rc.SecretWord = ""
	rc.Imposters = make(map[string]struct{})
	rc.Eliminated = make(map[string]struct{})
	rc.Revealed = make(map[string]struct{})
	rc.Votes = make(map[string]string)
	rc.SpeakingOrder = nil
	rc.SpeakerBase = 0
	rc.LastTally = nil
	rc.GameOver = false
	rc.Winner = ""
}

func (rc *RoomContext) IsHost(playerKey string) bool {
	return rc.HostKey == playerKey
}

func (rc *RoomContext) IsEliminated(playerKey string) bool {
	_, out := rc.Eliminated[playerKey]
	return out
}

func (rc *RoomContext) IsImposter(playerKey string) bool {
	_, imp := rc.Imposters[playerKey]
	return imp
}

// IsLiving reports whether the key names a player who has not been
// eliminated this game.
func (rc *RoomContext) IsLiving(playerKey string) bool {
	if _, ok := rc.Players[playerKey]; !ok {
		return false
	}

	return !rc.IsEliminated(playerKey)
}

func (rc *RoomContext) CountLiving() int {
	return len(rc.Players) - len(rc.Eliminated)
}

func (rc *RoomContext) LivingImposters() int {
	count := 0
	for key := range rc.Imposters {
		if !rc.IsEliminated(key) {
			count++
		}
	}

	return count
}

func (rc *RoomContext) LivingCrew() int {
	count := 0
	for key := range rc.Players {
		if !rc.IsImposter(key) && !rc.IsEliminated(key) {
			count++
		}
	}

	return count
}

// CheckWin derives the terminal outcome from the living counts: crew win once
// every imposter is out, imposters win once they are not outnumbered.
func (rc *RoomContext) CheckWin() (over bool, winner string) {
	imp := rc.LivingImposters()
	crew := rc.LivingCrew()

	if imp <= 0 {
		return true, WINNER_CREW
	}
	if imp >= crew {
		return true, WINNER_IMPOSTERS
	}

	return false, ""
}

// CurrentSpeakerKey scans the speaking order from the base index, wrapping,
// and returns the first living player, or "" when everyone is eliminated.
func (rc *RoomContext) CurrentSpeakerKey() string {
	n := len(rc.SpeakingOrder)
	if n == 0 {
		return ""
	}

	for i := 0; i < n; i++ {
		key := rc.SpeakingOrder[(rc.SpeakerBase+i)%n]
		if !rc.IsEliminated(key) {
			return key
		}
	}

	return ""
}

// AdvanceSpeaker moves the base index one past the current speaker and
// returns the new speaker, snapping over eliminated slots.
func (rc *RoomContext) AdvanceSpeaker() string {
	current := rc.CurrentSpeakerKey()
	if current == "" {
		return ""
	}

	for i, key := range rc.SpeakingOrder {
		if key == current {
			rc.SpeakerBase = (i + 1) % len(rc.SpeakingOrder)
			break
		}
	}

	return rc.CurrentSpeakerKey()
}

// PromoteHost reassigns the host key after the host left: first still
// connected player in roster order, else the first roster entry. The host key
// always stays inside the roster.
func (rc *RoomContext) PromoteHost() {
	for _, key := range rc.Roster {
		if p, ok := rc.Players[key]; ok && p.Connected {
			rc.HostKey = key
			return
		}
	}

	if len(rc.Roster) > 0 {
		rc.HostKey = rc.Roster[0]
	}
}

// VotedCount counts living players with a recorded vote or skip.
func (rc *RoomContext) VotedCount() int {
	count := 0
	for voterKey := range rc.Votes {
		if rc.IsLiving(voterKey) {
			count++
		}
	}

	return count
}

// SetTimeout arms the room's single phase timer, replacing any pending one.
// Expiry injects a Timeout request back into the machine loop; the recorded
// phase and sequence let stale expiries be dropped there.
func (rc *RoomContext) SetTimeout(d time.Duration) {
	rc.ClearTimeout()

	rc.TimerSeq++
	seq := rc.TimerSeq
	phase := rc.Phase

	rc.TimerEnds = time.Now().Add(d)
	rc.TimerDur = d

	tmoCh := rc.TmoCh
	rc.Timer = time.AfterFunc(d, func() {
		wrapper := RequestWrapper{
			ReqType: REQ_TIMEOUT,
			Native:  &TimeoutRequest{Phase: phase, Seq: seq},
		}

		select {
		case tmoCh <- wrapper:
		default:
			zap.L().Warn(
				"dropping timeout event: channel full",
				zap.String("phase", phase),
			)
		}
	})
}

func (rc *RoomContext) ClearTimeout() {
	if rc.Timer != nil {
		rc.Timer.Stop()
		rc.Timer = nil
	}

	// Invalidate anything already in flight.
	rc.TimerSeq++
	rc.TimerEnds = time.Time{}
	rc.TimerDur = 0
}

// TimerAlive reports whether the given timeout event belongs to the timer
// currently armed for the room.
func (rc *RoomContext) TimerAlive(tmo *TimeoutRequest) bool {
	return rc.Timer != nil && tmo.Seq == rc.TimerSeq && tmo.Phase == rc.Phase
}

// PublicState builds the room snapshot broadcast to everyone. The secret word
// and imposter roster never appear here.
func (rc *RoomContext) PublicState() RoomStateResponse {
	players := make([]PublicPlayer, 0, len(rc.Roster))
	for _, key := range rc.Roster {
		p, ok := rc.Players[key]
		if !ok {
			continue
		}

		players = append(players, PublicPlayer{
			Key:        p.Key,
			Name:       p.Name,
			Connected:  p.Connected,
			Eliminated: rc.IsEliminated(key),
		})
	}

	resp := RoomStateResponse{
		RoomCode: rc.RoomCode,
		Phase:    rc.Phase,
		Round:    rc.Round,
		HostKey:  rc.HostKey,
		Players:  players,
	}

	if len(rc.SpeakingOrder) > 0 && rc.Phase != PHASE_LOBBY {
		speaking := rc.CurrentSpeakerKey()
		slots := make([]SpeakerSlot, 0, len(rc.SpeakingOrder))

		for _, key := range rc.SpeakingOrder {
			p, ok := rc.Players[key]
			if !ok {
				continue
			}

			slots = append(slots, SpeakerSlot{
				Key:        key,
				Name:       p.Name,
				Connected:  p.Connected,
				Eliminated: rc.IsEliminated(key),
				Speaking:   rc.Phase == PHASE_DISCUSS && key == speaking,
			})
		}

		resp.SpeakingOrder = slots
	}

	if rc.Phase == PHASE_VOTE {
		resp.VoteStatus = &VoteStatusResponse{
			VotedCount: rc.VotedCount(),
			Total:      rc.CountLiving(),
		}
	}

	if rc.Timer != nil {
		remaining := time.Until(rc.TimerEnds)
		if remaining < 0 {
			remaining = 0
		}

		resp.Timer = &TimerInfo{
			RemainingMs: remaining.Milliseconds(),
			DurationMs:  rc.TimerDur.Milliseconds(),
		}
	}

	return resp
}

func (rc *RoomContext) Peek() RoomPeek {
	return RoomPeek{
		RoomCode:    rc.RoomCode,
		Phase:       rc.Phase,
		Round:       rc.Round,
		PlayerCount: len(rc.Players),
	}
}

func (rc *RoomContext) BroadcastResp(resp ResponseWrapper) {
	for _, p := range rc.Players {
		if p.RespCh == nil {
			continue
		}

		select {
		case p.RespCh <- resp:
		default:
			zap.L().Warn(
				"failed to broadcast response: player channel full",
				zap.String("room_code", rc.RoomCode),
				zap.String("player_key", p.Key),
			)
		}
	}
}

func (rc *RoomContext) UnicastResp(playerKey string, resp ResponseWrapper) {
	p, ok := rc.Players[playerKey]
	if !ok || p.RespCh == nil {
		zap.L().Debug(
			"no live connection for unicast response",
			zap.String("room_code", rc.RoomCode),
			zap.String("player_key", playerKey),
		)
		return
	}

	select {
	case p.RespCh <- resp:
	default:
		zap.L().Warn(
			"failed to unicast response: player channel full",
			zap.String("room_code", rc.RoomCode),
			zap.String("player_key", playerKey),
		)
	}
}

// BroadcastState republishes the public snapshot to the whole room. Called
// after every state mutation.
func (rc *RoomContext) BroadcastState() {
	rc.BroadcastResp(WrapResponse(RESP_ROOM_STATE, rc.PublicState()))
}
