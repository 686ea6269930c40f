package game

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// StageHandler is the per-phase half of the room state machine. OnEnter and
// OnExit bracket a phase; OnHandle processes one request. A handler requests
// a transition through the onSwitch callback, which the machine applies after
// OnHandle returns.
type StageHandler interface {
	Stage() string

	OnEnter(ctx *RoomContext)
	OnHandle(ctx *RoomContext, req RequestWrapper) error
	OnExit(ctx *RoomContext)

	SetOnSwitch(func(nextPhase string))
}

func ackOK(ctx *RoomContext, playerKey, op string) {
	ctx.UnicastResp(playerKey, WrapResponse(RESP_ACK, AckResponse{Op: op, Ok: true}))
}

func ackErr(ctx *RoomContext, playerKey, op string, err error) {
	ctx.UnicastResp(playerKey, WrapResponse(RESP_ACK, AckResponse{Op: op, Error: err.Error()}))
}

// actorKey digs the acting player's key out of any wire request, so a request
// rejected for its phase can still be acknowledged to its sender.
func actorKey(req RequestWrapper) string {
	switch {
	case req.ReqType == REQ_JOIN_OR_CREATE:
		if r := TryUnwrapJoinOrCreateRequest(req); r != nil {
			return r.PlayerKey
		}
	case req.ReqType == REQ_LEAVE:
		if r := TryUnwrapLeaveRequest(req); r != nil {
			return r.PlayerKey
		}
	case req.ReqType == REQ_START_GAME:
		if r := TryUnwrapStartGameRequest(req); r != nil {
			return r.PlayerKey
		}
	case req.ReqType == REQ_REQUEST_ROLE:
		if r := TryUnwrapRequestRoleRequest(req); r != nil {
			return r.PlayerKey
		}
	case req.ReqType == REQ_SET_PHASE:
		if r := TryUnwrapSetPhaseRequest(req); r != nil {
			return r.PlayerKey
		}
	case req.ReqType == REQ_NEXT_SPEAKER:
		if r := TryUnwrapNextSpeakerRequest(req); r != nil {
			return r.PlayerKey
		}
	case req.ReqType == REQ_CAST_VOTE:
		if r := TryUnwrapCastVoteRequest(req); r != nil {
			return r.PlayerKey
		}
	case req.ReqType == REQ_NEXT_ROUND:
		if r := TryUnwrapNextRoundRequest(req); r != nil {
			return r.PlayerKey
		}
	case req.ReqType == REQ_END_GAME:
		if r := TryUnwrapEndGameRequest(req); r != nil {
			return r.PlayerKey
		}
	}

	return ""
}

func rejectWrongPhase(ctx *RoomContext, req RequestWrapper) error {
	if key := actorKey(req); key != "" {
		ackErr(ctx, key, req.ReqType, ErrWrongPhase)
	}

	return fmt.Errorf("%s: %w", req.ReqType, ErrWrongPhase)
}

// handleCommon covers the requests valid in every phase: join/rejoin, leave,
// and the host's end-game.
func handleCommon(ctx *RoomContext, req RequestWrapper, onSwitch func(string)) (bool, error) {
	if jreq := TryUnwrapJoinOrCreateRequest(req); jreq != nil {
		return true, onJoin(ctx, jreq)
	}

	if lreq := TryUnwrapLeaveRequest(req); lreq != nil {
		return true, onLeave(ctx, lreq)
	}

	if ereq := TryUnwrapEndGameRequest(req); ereq != nil {
		return true, onEndGame(ctx, ereq, onSwitch)
	}

	return false, nil
}

func onJoin(ctx *RoomContext, req *JoinOrCreateRequest) error {
	// The join ack goes straight to the joining connection: on failure the
	// caller has no player entry to unicast through.
	ackTo := func(ack AckResponse) {
		if req.RespCh == nil {
			return
		}

		select {
		case req.RespCh <- WrapResponse(RESP_ACK, ack):
		default:
		}
	}

	name := cleanName(req.Name)
	if name == "" {
		ackTo(AckResponse{Op: REQ_JOIN_OR_CREATE, Error: ErrNameRequired.Error()})
		return ErrNameRequired
	}

	if req.PlayerKey == "" {
		ackTo(AckResponse{Op: REQ_JOIN_OR_CREATE, Error: ErrIdentityRequired.Error()})
		return ErrIdentityRequired
	}

	if existing, ok := ctx.Players[req.PlayerKey]; ok {
		// Known key: rejoin. Adopt the new connection and name, leave all
		// game state alone. The role is never redelivered here; a repeat
		// RequestRole answers with already=true instead.
		if existing.RespCh != nil && existing.RespCh != req.RespCh {
			close(existing.RespCh)
		}

		existing.Name = name
		existing.RespCh = req.RespCh
		existing.Connected = true

		ackTo(AckResponse{
			Op:       REQ_JOIN_OR_CREATE,
			Ok:       true,
			RoomCode: ctx.RoomCode,
			Rejoined: true,
		})

		ctx.BroadcastState()

		return nil
	}

	if ctx.Phase != PHASE_LOBBY {
		ackTo(AckResponse{Op: REQ_JOIN_OR_CREATE, Error: ErrGameStarted.Error()})
		return ErrGameStarted
	}

	player := &Player{
		Key:       req.PlayerKey,
		Name:      name,
		Connected: true,
		RespCh:    req.RespCh,
	}

	ctx.Players[req.PlayerKey] = player
	ctx.Roster = append(ctx.Roster, req.PlayerKey)

	// First player in becomes host.
	if ctx.HostKey == "" {
		ctx.HostKey = req.PlayerKey
	}

	ackTo(AckResponse{Op: REQ_JOIN_OR_CREATE, Ok: true, RoomCode: ctx.RoomCode})

	ctx.BroadcastState()

	return nil
}

func onLeave(ctx *RoomContext, req *LeaveRequest) error {
	p, ok := ctx.Players[req.PlayerKey]
	if !ok {
		return ErrUnknownPlayer
	}

	// A leave synthesized for a connection that has since been superseded by
	// a rejoin must not knock the rejoined player offline.
	if req.RespCh != nil && p.RespCh != req.RespCh {
		return nil
	}

	if p.RespCh != nil {
		select {
		case p.RespCh <- WrapResponse(RESP_ACK, AckResponse{Op: REQ_LEAVE, Ok: true}):
		default:
		}

		close(p.RespCh)
		p.RespCh = nil
	}

	p.Connected = false

	// The player entry stays: eliminations and votes already recorded keep
	// their meaning, and the key can reattach later.
	if ctx.HostKey == req.PlayerKey {
		ctx.PromoteHost()
	}

	ctx.BroadcastState()

	return nil
}

func onEndGame(ctx *RoomContext, req *EndGameRequest, onSwitch func(string)) error {
	if !ctx.IsHost(req.PlayerKey) {
		ackErr(ctx, req.PlayerKey, REQ_END_GAME, ErrNotHost)
		return ErrNotHost
	}

	ackOK(ctx, req.PlayerKey, REQ_END_GAME)

	if ctx.Phase != PHASE_LOBBY {
		// Lobby entry resets the game state.
		onSwitch(PHASE_LOBBY)
	} else {
		ctx.ResetGame()
		ctx.BroadcastState()
	}

	return nil
}

// ----- lobby -----

type lobbyStageHandler struct {
	onSwitch func(string)
}

func NewLobbyStageHandler() *lobbyStageHandler {
	return &lobbyStageHandler{}
}

func (lsh *lobbyStageHandler) Stage() string {
	return PHASE_LOBBY
}

func (lsh *lobbyStageHandler) OnEnter(ctx *RoomContext) {
	// Entering the lobby always means no game is running: fresh room, host
	// ended the game, or the game reached a terminal outcome.
	ctx.ResetGame()
	ctx.BroadcastState()
}

func (lsh *lobbyStageHandler) OnHandle(ctx *RoomContext, req RequestWrapper) error {
	if handled, err := handleCommon(ctx, req, lsh.onSwitch); handled {
		return err
	}

	if sreq := TryUnwrapStartGameRequest(req); sreq != nil {
		return onStartGame(ctx, sreq, lsh.onSwitch)
	}

	return rejectWrongPhase(ctx, req)
}

func (lsh *lobbyStageHandler) OnExit(ctx *RoomContext) {
	ctx.ClearTimeout()
}

func (lsh *lobbyStageHandler) SetOnSwitch(onSwitch func(string)) {
	lsh.onSwitch = onSwitch
}

func onStartGame(ctx *RoomContext, req *StartGameRequest, onSwitch func(string)) error {
	if !ctx.IsHost(req.PlayerKey) {
		ackErr(ctx, req.PlayerKey, REQ_START_GAME, ErrNotHost)
		return ErrNotHost
	}

	if len(ctx.Players) < 3 {
		ackErr(ctx, req.PlayerKey, REQ_START_GAME, ErrTooFewPlayers)
		return ErrTooFewPlayers
	}

	ctx.ResetGame()
	ctx.SecretWord = pickWord()

	// One shuffle picks the imposters, an independent one fixes the speaking
	// order for the whole game.
	picks := append([]string(nil), ctx.Roster...)
	rand.Shuffle(len(picks), func(i, j int) {
		picks[i], picks[j] = picks[j], picks[i]
	})

	for _, key := range picks[:imposterCount(len(picks))] {
		ctx.Imposters[key] = struct{}{}
	}

	order := append([]string(nil), ctx.Roster...)
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	ctx.SpeakingOrder = order
	ctx.SpeakerBase = 0
	ctx.Round = 1

	ackOK(ctx, req.PlayerKey, REQ_START_GAME)
	onSwitch(PHASE_ROLE)

	return nil
}

// ----- role -----

type roleStageHandler struct {
	onSwitch func(string)
}

func NewRoleStageHandler() *roleStageHandler {
	return &roleStageHandler{}
}

func (rsh *roleStageHandler) Stage() string {
	return PHASE_ROLE
}

func (rsh *roleStageHandler) OnEnter(ctx *RoomContext) {
	if ctx.Opts.AutoAdvance {
		ctx.SetTimeout(ctx.Opts.Durations.Role)
	}

	ctx.BroadcastState()
}

func (rsh *roleStageHandler) OnHandle(ctx *RoomContext, req RequestWrapper) error {
	if handled, err := handleCommon(ctx, req, rsh.onSwitch); handled {
		return err
	}

	if rreq := TryUnwrapRequestRoleRequest(req); rreq != nil {
		return onRequestRole(ctx, rreq)
	}

	if preq := TryUnwrapSetPhaseRequest(req); preq != nil {
		return onSetPhase(ctx, preq, rsh.onSwitch)
	}

	if tmo := TryUnwrapTimeoutRequest(req); tmo != nil {
		if tmo.Phase == PHASE_ROLE {
			rsh.onSwitch(PHASE_DISCUSS)
		}
		return nil
	}

	return rejectWrongPhase(ctx, req)
}

func (rsh *roleStageHandler) OnExit(ctx *RoomContext) {
	ctx.ClearTimeout()
}

func (rsh *roleStageHandler) SetOnSwitch(onSwitch func(string)) {
	rsh.onSwitch = onSwitch
}

func onRequestRole(ctx *RoomContext, req *RequestRoleRequest) error {
	if _, ok := ctx.Players[req.PlayerKey]; !ok {
		return ErrUnknownPlayer
	}

	if ctx.IsEliminated(req.PlayerKey) {
		ackErr(ctx, req.PlayerKey, REQ_REQUEST_ROLE, ErrEliminated)
		return ErrEliminated
	}

	if _, delivered := ctx.Revealed[req.PlayerKey]; delivered {
		// Repeat request: success, but the payload went out once already.
		ctx.UnicastResp(req.PlayerKey, WrapResponse(RESP_ACK, AckResponse{
			Op:      REQ_REQUEST_ROLE,
			Ok:      true,
			Already: true,
		}))
		return nil
	}

	ctx.Revealed[req.PlayerKey] = struct{}{}

	role := RoleResponse{Role: ROLE_CREW, Word: ctx.SecretWord, Round: ctx.Round}
	if ctx.IsImposter(req.PlayerKey) {
		// An imposter learns only their own status, never the word and never
		// the other imposters.
		role = RoleResponse{Role: ROLE_IMPOSTER, Round: ctx.Round}
	}

	ctx.UnicastResp(req.PlayerKey, WrapResponse(RESP_ROLE, role))
	ackOK(ctx, req.PlayerKey, REQ_REQUEST_ROLE)

	return nil
}

func onSetPhase(ctx *RoomContext, req *SetPhaseRequest, onSwitch func(string)) error {
	if !ctx.IsHost(req.PlayerKey) {
		ackErr(ctx, req.PlayerKey, REQ_SET_PHASE, ErrNotHost)
		return ErrNotHost
	}

	if !canSetPhase(ctx.Phase, req.Phase) {
		ackErr(ctx, req.PlayerKey, REQ_SET_PHASE, ErrWrongPhase)
		return ErrWrongPhase
	}

	ackOK(ctx, req.PlayerKey, REQ_SET_PHASE)
	onSwitch(req.Phase)

	return nil
}

// ----- discuss -----

type discussStageHandler struct {
	onSwitch func(string)
}

func NewDiscussStageHandler() *discussStageHandler {
	return &discussStageHandler{}
}

func (dsh *discussStageHandler) Stage() string {
	return PHASE_DISCUSS
}

func (dsh *discussStageHandler) OnEnter(ctx *RoomContext) {
	if ctx.Opts.AutoAdvance {
		ctx.SetTimeout(ctx.Opts.Durations.Discuss)
	}

	ctx.BroadcastState()
}

func (dsh *discussStageHandler) OnHandle(ctx *RoomContext, req RequestWrapper) error {
	if handled, err := handleCommon(ctx, req, dsh.onSwitch); handled {
		return err
	}

	if nreq := TryUnwrapNextSpeakerRequest(req); nreq != nil {
		return onNextSpeaker(ctx, nreq)
	}

	if preq := TryUnwrapSetPhaseRequest(req); preq != nil {
		return onSetPhase(ctx, preq, dsh.onSwitch)
	}

	if tmo := TryUnwrapTimeoutRequest(req); tmo != nil {
		if tmo.Phase == PHASE_DISCUSS {
			dsh.onSwitch(PHASE_VOTE)
		}
		return nil
	}

	return rejectWrongPhase(ctx, req)
}

func (dsh *discussStageHandler) OnExit(ctx *RoomContext) {
	ctx.ClearTimeout()
}

func (dsh *discussStageHandler) SetOnSwitch(onSwitch func(string)) {
	dsh.onSwitch = onSwitch
}

func onNextSpeaker(ctx *RoomContext, req *NextSpeakerRequest) error {
	if !ctx.IsHost(req.PlayerKey) {
		ackErr(ctx, req.PlayerKey, REQ_NEXT_SPEAKER, ErrNotHost)
		return ErrNotHost
	}

	ctx.AdvanceSpeaker()

	ackOK(ctx, req.PlayerKey, REQ_NEXT_SPEAKER)
	ctx.BroadcastState()

	return nil
}

// ----- vote -----

type voteStageHandler struct {
	onSwitch func(string)
}

func NewVoteStageHandler() *voteStageHandler {
	return &voteStageHandler{}
}

func (vsh *voteStageHandler) Stage() string {
	return PHASE_VOTE
}

func (vsh *voteStageHandler) OnEnter(ctx *RoomContext) {
	ctx.Votes = make(map[string]string)

	if ctx.Opts.AutoAdvance {
		ctx.SetTimeout(ctx.Opts.Durations.Vote)
	}

	ctx.BroadcastState()
}

func (vsh *voteStageHandler) OnHandle(ctx *RoomContext, req RequestWrapper) error {
	if handled, err := handleCommon(ctx, req, vsh.onSwitch); handled {
		return err
	}

	if vreq := TryUnwrapCastVoteRequest(req); vreq != nil {
		return onCastVote(ctx, vreq, vsh.onSwitch)
	}

	if tmo := TryUnwrapTimeoutRequest(req); tmo != nil {
		if tmo.Phase == PHASE_VOTE {
			// Time is up: tally whatever is in, missing voters abstain.
			finishVoting(ctx, vsh.onSwitch)
		}
		return nil
	}

	return rejectWrongPhase(ctx, req)
}

func (vsh *voteStageHandler) OnExit(ctx *RoomContext) {
	ctx.ClearTimeout()
}

func (vsh *voteStageHandler) SetOnSwitch(onSwitch func(string)) {
	vsh.onSwitch = onSwitch
}

func onCastVote(ctx *RoomContext, req *CastVoteRequest, onSwitch func(string)) error {
	if _, ok := ctx.Players[req.PlayerKey]; !ok {
		return ErrUnknownPlayer
	}

	if ctx.IsEliminated(req.PlayerKey) {
		ackErr(ctx, req.PlayerKey, REQ_CAST_VOTE, ErrEliminated)
		return ErrEliminated
	}

	if req.TargetKey != VOTE_SKIP {
		if req.TargetKey == req.PlayerKey {
			ackErr(ctx, req.PlayerKey, REQ_CAST_VOTE, ErrSelfVote)
			return ErrSelfVote
		}

		if !ctx.IsLiving(req.TargetKey) {
			ackErr(ctx, req.PlayerKey, REQ_CAST_VOTE, ErrInvalidTarget)
			return ErrInvalidTarget
		}
	}

	// Last write wins until the tally runs.
	ctx.Votes[req.PlayerKey] = req.TargetKey

	ackOK(ctx, req.PlayerKey, REQ_CAST_VOTE)

	status := VoteStatusResponse{
		VotedCount: ctx.VotedCount(),
		Total:      ctx.CountLiving(),
	}
	ctx.BroadcastResp(WrapResponse(RESP_VOTE_STATUS, status))

	if status.VotedCount >= status.Total {
		finishVoting(ctx, onSwitch)
	} else {
		ctx.BroadcastState()
	}

	return nil
}

// finishVoting tallies the vote and moves to results. The phase guard makes
// the tally single-shot: whichever of "last vote in" and "vote timer expiry"
// runs first flips the phase, and the other finds voting already over.
func finishVoting(ctx *RoomContext, onSwitch func(string)) {
	if ctx.Phase != PHASE_VOTE {
		return
	}

	tally := make(map[string]int)
	for voterKey, targetKey := range ctx.Votes {
		if !ctx.IsLiving(voterKey) {
			continue
		}
		if targetKey == VOTE_SKIP {
			continue
		}
		if !ctx.IsLiving(targetKey) {
			continue
		}

		tally[targetKey]++
	}

	maxCount := 0
	for _, count := range tally {
		if count > maxCount {
			maxCount = count
		}
	}

	top := make([]string, 0, 1)
	for targetKey, count := range tally {
		if count == maxCount {
			top = append(top, targetKey)
		}
	}

	result := &ResultsResponse{TieOrNoElim: true}

	// A single leader with at least one vote is eliminated; a tie or an
	// all-skip round eliminates nobody.
	if maxCount > 0 && len(top) == 1 {
		elimKey := top[0]
		ctx.Eliminated[elimKey] = struct{}{}

		result.TieOrNoElim = false
		result.Eliminated = &EliminatedInfo{
			Key:         elimKey,
			Name:        ctx.Players[elimKey].Name,
			WasImposter: ctx.IsImposter(elimKey),
		}
	}

	if over, winner := ctx.CheckWin(); over {
		ctx.GameOver = true
		ctx.Winner = winner
		result.Win = &WinInfo{Winner: winner}
	}

	ctx.LastTally = result
	onSwitch(PHASE_RESULTS)
}

// ----- results -----

type resultsStageHandler struct {
	onSwitch func(string)
}

func NewResultsStageHandler() *resultsStageHandler {
	return &resultsStageHandler{}
}

func (rsh *resultsStageHandler) Stage() string {
	return PHASE_RESULTS
}

func (rsh *resultsStageHandler) OnEnter(ctx *RoomContext) {
	result := ctx.LastTally
	if result == nil {
		result = &ResultsResponse{TieOrNoElim: true}
	}

	ctx.BroadcastResp(WrapResponse(RESP_RESULTS, *result))

	if ctx.GameOver {
		// Game end is the one place the full imposter roster goes public.
		imposters := make([]string, 0, len(ctx.Imposters))
		for key := range ctx.Imposters {
			imposters = append(imposters, key)
		}
		sort.Strings(imposters)

		ctx.BroadcastResp(WrapResponse(RESP_WIN, WinResponse{
			Winner:    ctx.Winner,
			Imposters: imposters,
		}))
	}

	if ctx.Opts.AutoAdvance {
		ctx.SetTimeout(ctx.Opts.Durations.Results)
	}

	ctx.BroadcastState()
}

func (rsh *resultsStageHandler) OnHandle(ctx *RoomContext, req RequestWrapper) error {
	if handled, err := handleCommon(ctx, req, rsh.onSwitch); handled {
		return err
	}

	if nreq := TryUnwrapNextRoundRequest(req); nreq != nil {
		return onNextRound(ctx, nreq, rsh.onSwitch)
	}

	if tmo := TryUnwrapTimeoutRequest(req); tmo != nil {
		if tmo.Phase == PHASE_RESULTS {
			if ctx.GameOver {
				rsh.onSwitch(PHASE_LOBBY)
			} else {
				advanceRound(ctx, rsh.onSwitch)
			}
		}
		return nil
	}

	return rejectWrongPhase(ctx, req)
}

func (rsh *resultsStageHandler) OnExit(ctx *RoomContext) {
	ctx.ClearTimeout()
}

func (rsh *resultsStageHandler) SetOnSwitch(onSwitch func(string)) {
	rsh.onSwitch = onSwitch
}

func onNextRound(ctx *RoomContext, req *NextRoundRequest, onSwitch func(string)) error {
	if !ctx.IsHost(req.PlayerKey) {
		ackErr(ctx, req.PlayerKey, REQ_NEXT_ROUND, ErrNotHost)
		return ErrNotHost
	}

	if ctx.GameOver {
		ackErr(ctx, req.PlayerKey, REQ_NEXT_ROUND, ErrGameOver)
		return ErrGameOver
	}

	ackOK(ctx, req.PlayerKey, REQ_NEXT_ROUND)
	advanceRound(ctx, onSwitch)

	return nil
}

// advanceRound starts the next round of a running game. Roles were shown in
// round 1; later rounds go straight to discussion.
func advanceRound(ctx *RoomContext, onSwitch func(string)) {
	ctx.Round++
	ctx.Votes = make(map[string]string)
	ctx.LastTally = nil

	onSwitch(PHASE_DISCUSS)
}
