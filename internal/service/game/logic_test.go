package game

import (
	"errors"
	"slices"
	"testing"
)

// drainResponses empties a player's response channel and returns the
// responses grouped by type.
func drainResponses(p *Player) map[string][]ResponseWrapper {
	byType := make(map[string][]ResponseWrapper)

	for {
		select {
		case resp := <-p.RespCh:
			byType[resp.RespType] = append(byType[resp.RespType], resp)
		default:
			return byType
		}
	}
}

func TestImposterCount(t *testing.T) {
	want := map[int]int{
		3: 1, 4: 1,
		5: 2, 6: 2,
		7: 3, 8: 3,
		9: 4, 10: 4,
		11: 5, 12: 5,
	}

	for players, imposters := range want {
		if got := imposterCount(players); got != imposters {
			t.Errorf("imposterCount(%d) = %d, want %d", players, got, imposters)
		}
	}
}

func TestStartGameAssignsRolesAndOrder(t *testing.T) {
	ctx := newTestRoom("a", "b", "c", "d", "e")

	lsh := NewLobbyStageHandler()
	lsh.SetOnSwitch(switchTo(ctx))

	req := RequestWrapper{
		ReqType: REQ_START_GAME,
		Data:    mustMarshal(StartGameRequest{PlayerKey: "a"}),
	}

	if err := lsh.OnHandle(ctx, req); err != nil {
		t.Fatalf("start game should succeed, got %v", err)
	}

	if ctx.Phase != PHASE_ROLE {
		t.Fatalf("game start should enter the role phase, got %q", ctx.Phase)
	}
	if ctx.Round != 1 {
		t.Fatalf("game start should begin round 1, got %d", ctx.Round)
	}

	if len(ctx.Imposters) != 2 {
		t.Fatalf("5 players should yield 2 imposters, got %d", len(ctx.Imposters))
	}
	for key := range ctx.Imposters {
		if _, ok := ctx.Players[key]; !ok {
			t.Fatalf("imposter %q is not an actual player", key)
		}
	}

	order := append([]string(nil), ctx.SpeakingOrder...)
	slices.Sort(order)
	roster := append([]string(nil), ctx.Roster...)
	slices.Sort(roster)
	if !slices.Equal(order, roster) {
		t.Fatalf("speaking order %v is not a permutation of the roster %v",
			ctx.SpeakingOrder, ctx.Roster)
	}

	if !slices.Contains(WORDS, ctx.SecretWord) {
		t.Fatalf("secret word %q is not from the word list", ctx.SecretWord)
	}
}

func TestStartGameValidations(t *testing.T) {
	lsh := NewLobbyStageHandler()

	t.Run("non host", func(t *testing.T) {
		ctx := newTestRoom("a", "b", "c")
		lsh.SetOnSwitch(switchTo(ctx))

		req := RequestWrapper{
			ReqType: REQ_START_GAME,
			Data:    mustMarshal(StartGameRequest{PlayerKey: "b"}),
		}

		if err := lsh.OnHandle(ctx, req); !errors.Is(err, ErrNotHost) {
			t.Fatalf("want ErrNotHost, got %v", err)
		}
		if ctx.Phase != PHASE_LOBBY {
			t.Fatalf("rejected start must not leave the lobby")
		}
	})

	t.Run("too few players", func(t *testing.T) {
		ctx := newTestRoom("a", "b")
		lsh.SetOnSwitch(switchTo(ctx))

		req := RequestWrapper{
			ReqType: REQ_START_GAME,
			Data:    mustMarshal(StartGameRequest{PlayerKey: "a"}),
		}

		if err := lsh.OnHandle(ctx, req); !errors.Is(err, ErrTooFewPlayers) {
			t.Fatalf("want ErrTooFewPlayers, got %v", err)
		}
	})
}

func TestRequestRoleDeliversOncePerGame(t *testing.T) {
	ctx := newTestRoom("a", "b", "c")
	ctx.Phase = PHASE_ROLE
	ctx.Round = 1
	ctx.SecretWord = "Pizza"
	ctx.Imposters["b"] = struct{}{}

	rsh := NewRoleStageHandler()
	rsh.SetOnSwitch(switchTo(ctx))

	roleReq := func(key string) RequestWrapper {
		return RequestWrapper{
			ReqType: REQ_REQUEST_ROLE,
			Data:    mustMarshal(RequestRoleRequest{PlayerKey: key}),
		}
	}

	if err := rsh.OnHandle(ctx, roleReq("a")); err != nil {
		t.Fatalf("crew role request should succeed, got %v", err)
	}
	if err := rsh.OnHandle(ctx, roleReq("b")); err != nil {
		t.Fatalf("imposter role request should succeed, got %v", err)
	}

	crewResp := drainResponses(ctx.Players["a"])
	if len(crewResp[RESP_ROLE]) != 1 {
		t.Fatalf("crew should get exactly one role delivery, got %d", len(crewResp[RESP_ROLE]))
	}
	crewRole := crewResp[RESP_ROLE][0].Data.(RoleResponse)
	if crewRole.Role != ROLE_CREW || crewRole.Word != "Pizza" {
		t.Fatalf("crew role should carry the word: %+v", crewRole)
	}

	impResp := drainResponses(ctx.Players["b"])
	impRole := impResp[RESP_ROLE][0].Data.(RoleResponse)
	if impRole.Role != ROLE_IMPOSTER || impRole.Word != "" {
		t.Fatalf("imposter role must not carry the word: %+v", impRole)
	}

	// Repeat request: ok with already set, no second role payload.
	if err := rsh.OnHandle(ctx, roleReq("a")); err != nil {
		t.Fatalf("repeat role request should succeed, got %v", err)
	}

	repeat := drainResponses(ctx.Players["a"])
	if len(repeat[RESP_ROLE]) != 0 {
		t.Fatalf("repeat request must not redeliver the role")
	}
	ack := repeat[RESP_ACK][0].Data.(AckResponse)
	if !ack.Ok || !ack.Already {
		t.Fatalf("repeat request should ack ok/already: %+v", ack)
	}
}

func TestRequestRoleRejectsEliminated(t *testing.T) {
	ctx := newTestRoom("a", "b", "c")
	ctx.Phase = PHASE_ROLE
	ctx.Eliminated["c"] = struct{}{}

	rsh := NewRoleStageHandler()
	rsh.SetOnSwitch(switchTo(ctx))

	req := RequestWrapper{
		ReqType: REQ_REQUEST_ROLE,
		Data:    mustMarshal(RequestRoleRequest{PlayerKey: "c"}),
	}

	if err := rsh.OnHandle(ctx, req); !errors.Is(err, ErrEliminated) {
		t.Fatalf("want ErrEliminated, got %v", err)
	}
}

func TestRejoinKeepsGameState(t *testing.T) {
	ctx := newTestRoom("a", "b", "c")
	ctx.Phase = PHASE_DISCUSS
	ctx.Round = 2
	ctx.Imposters["b"] = struct{}{}
	ctx.Players["b"].Connected = false
	ctx.Players["b"].RespCh = nil

	dsh := NewDiscussStageHandler()
	dsh.SetOnSwitch(switchTo(ctx))

	freshCh := make(chan ResponseWrapper, 64)
	req := RequestWrapper{
		ReqType: REQ_JOIN_OR_CREATE,
		Native: &JoinOrCreateRequest{
			RoomCode:  ctx.RoomCode,
			Name:      "player b returns",
			PlayerKey: "b",
			RespCh:    freshCh,
		},
	}

	if err := dsh.OnHandle(ctx, req); err != nil {
		t.Fatalf("rejoin should succeed mid-game, got %v", err)
	}

	p := ctx.Players["b"]
	if !p.Connected || p.RespCh != freshCh {
		t.Fatalf("rejoin should adopt the new connection")
	}
	if len(ctx.Roster) != 3 {
		t.Fatalf("rejoin must not add a roster entry, got %d", len(ctx.Roster))
	}
	if !ctx.IsImposter("b") {
		t.Fatalf("rejoin must not touch role assignment")
	}

	byType := drainResponses(p)
	ack := byType[RESP_ACK][0].Data.(AckResponse)
	if !ack.Ok || !ack.Rejoined {
		t.Fatalf("rejoin ack should be ok/rejoined: %+v", ack)
	}
	if len(byType[RESP_ROLE]) != 0 {
		t.Fatalf("rejoin must not redeliver the role")
	}
}

func TestNewJoinRejectedMidGame(t *testing.T) {
	ctx := newTestRoom("a", "b", "c")
	ctx.Phase = PHASE_DISCUSS

	dsh := NewDiscussStageHandler()
	dsh.SetOnSwitch(switchTo(ctx))

	req := RequestWrapper{
		ReqType: REQ_JOIN_OR_CREATE,
		Native: &JoinOrCreateRequest{
			RoomCode:  ctx.RoomCode,
			Name:      "latecomer",
			PlayerKey: "late",
			RespCh:    make(chan ResponseWrapper, 8),
		},
	}

	if err := dsh.OnHandle(ctx, req); !errors.Is(err, ErrGameStarted) {
		t.Fatalf("want ErrGameStarted, got %v", err)
	}
	if _, ok := ctx.Players["late"]; ok {
		t.Fatalf("rejected join must not add a player")
	}
}

func TestLeavePromotesHost(t *testing.T) {
	ctx := newTestRoom("a", "b", "c")
	ctx.Players["b"].Connected = false

	lsh := NewLobbyStageHandler()
	lsh.SetOnSwitch(switchTo(ctx))

	req := RequestWrapper{
		ReqType: REQ_LEAVE,
		Native:  &LeaveRequest{PlayerKey: "a", RespCh: ctx.Players["a"].RespCh},
	}

	if err := lsh.OnHandle(ctx, req); err != nil {
		t.Fatalf("leave should succeed, got %v", err)
	}

	// b is disconnected, so c is the first connected player in join order.
	if ctx.HostKey != "c" {
		t.Fatalf("host should pass to the first connected player, got %q", ctx.HostKey)
	}
	if ctx.Players["a"].Connected {
		t.Fatalf("leaver should be marked disconnected")
	}
	if _, ok := ctx.Players["a"]; !ok {
		t.Fatalf("leaver's entry must stay for a later rejoin")
	}
}

func TestStaleLeaveIgnoredAfterRejoin(t *testing.T) {
	ctx := newTestRoom("a", "b", "c")

	oldCh := make(chan ResponseWrapper, 8)

	lsh := NewLobbyStageHandler()
	lsh.SetOnSwitch(switchTo(ctx))

	req := RequestWrapper{
		ReqType: REQ_LEAVE,
		Native:  &LeaveRequest{PlayerKey: "a", RespCh: oldCh},
	}

	if err := lsh.OnHandle(ctx, req); err != nil {
		t.Fatalf("stale leave should be swallowed, got %v", err)
	}
	if !ctx.Players["a"].Connected {
		t.Fatalf("a leave from a superseded connection must not disconnect the player")
	}
	if ctx.HostKey != "a" {
		t.Fatalf("host must be untouched, got %q", ctx.HostKey)
	}
}

func TestCheckWin(t *testing.T) {
	cases := []struct {
		name       string
		eliminated []string
		wantOver   bool
		wantWinner string
	}{
		{"game running", []string{"e"}, false, ""},
		{"all imposters out", []string{"a", "b"}, true, WINNER_CREW},
		{"imposters match crew", []string{"c", "d"}, true, WINNER_IMPOSTERS},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// 5 players, a and b are the imposters.
			ctx := newTestRoom("a", "b", "c", "d", "e")
			ctx.Imposters["a"] = struct{}{}
			ctx.Imposters["b"] = struct{}{}
			for _, key := range tc.eliminated {
				ctx.Eliminated[key] = struct{}{}
			}

			over, winner := ctx.CheckWin()
			if over != tc.wantOver || winner != tc.wantWinner {
				t.Fatalf("CheckWin() = (%v, %q), want (%v, %q)",
					over, winner, tc.wantOver, tc.wantWinner)
			}
		})
	}
}

func TestSpeakerRotationSkipsEliminatedAndWraps(t *testing.T) {
	ctx := newTestRoom("a", "b", "c", "d")
	ctx.SpeakingOrder = []string{"a", "b", "c", "d"}
	ctx.Eliminated["b"] = struct{}{}

	if got := ctx.CurrentSpeakerKey(); got != "a" {
		t.Fatalf("first speaker should be a, got %q", got)
	}

	// b is eliminated, so a advances straight to c.
	if got := ctx.AdvanceSpeaker(); got != "c" {
		t.Fatalf("advance should skip the eliminated slot, got %q", got)
	}
	if got := ctx.AdvanceSpeaker(); got != "d" {
		t.Fatalf("next speaker should be d, got %q", got)
	}
	if got := ctx.AdvanceSpeaker(); got != "a" {
		t.Fatalf("rotation should wrap back to a, got %q", got)
	}
}

func TestNextSpeakerIsHostOnly(t *testing.T) {
	ctx := newTestRoom("a", "b", "c")
	ctx.Phase = PHASE_DISCUSS
	ctx.SpeakingOrder = []string{"b", "a", "c"}

	dsh := NewDiscussStageHandler()
	dsh.SetOnSwitch(switchTo(ctx))

	req := RequestWrapper{
		ReqType: REQ_NEXT_SPEAKER,
		Data:    mustMarshal(NextSpeakerRequest{PlayerKey: "b"}),
	}
	if err := dsh.OnHandle(ctx, req); !errors.Is(err, ErrNotHost) {
		t.Fatalf("want ErrNotHost, got %v", err)
	}
	if ctx.SpeakerBase != 0 {
		t.Fatalf("rejected advance must not move the rotation")
	}

	req = RequestWrapper{
		ReqType: REQ_NEXT_SPEAKER,
		Data:    mustMarshal(NextSpeakerRequest{PlayerKey: "a"}),
	}
	if err := dsh.OnHandle(ctx, req); err != nil {
		t.Fatalf("host advance should succeed, got %v", err)
	}
	if got := ctx.CurrentSpeakerKey(); got != "a" {
		t.Fatalf("speaker should move from b to a, got %q", got)
	}
}

func TestSetPhaseFollowsManualTransitions(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		wantErr error
	}{
		{PHASE_ROLE, PHASE_DISCUSS, nil},
		{PHASE_DISCUSS, PHASE_VOTE, nil},
		{PHASE_ROLE, PHASE_VOTE, ErrWrongPhase},
		{PHASE_DISCUSS, PHASE_RESULTS, ErrWrongPhase},
	}

	for _, tc := range cases {
		ctx := newTestRoom("a", "b", "c")
		ctx.Phase = tc.from

		err := onSetPhase(ctx, &SetPhaseRequest{PlayerKey: "a", Phase: tc.to}, switchTo(ctx))
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s->%s: want %v, got %v", tc.from, tc.to, tc.wantErr, err)
		}

		if tc.wantErr == nil && ctx.Phase != tc.to {
			t.Fatalf("%s->%s: phase not switched, still %q", tc.from, tc.to, ctx.Phase)
		}
		if tc.wantErr != nil && ctx.Phase != tc.from {
			t.Fatalf("%s->%s: rejected transition moved the phase to %q", tc.from, tc.to, ctx.Phase)
		}
	}

	ctx := newTestRoom("a", "b", "c")
	ctx.Phase = PHASE_ROLE
	err := onSetPhase(ctx, &SetPhaseRequest{PlayerKey: "b", Phase: PHASE_DISCUSS}, switchTo(ctx))
	if !errors.Is(err, ErrNotHost) {
		t.Fatalf("non-host set-phase should fail with ErrNotHost, got %v", err)
	}
}

func TestNextRound(t *testing.T) {
	ctx := newTestRoom("a", "b", "c", "d")
	ctx.Phase = PHASE_RESULTS
	ctx.Round = 1
	ctx.Votes = map[string]string{"a": "b"}
	ctx.LastTally = &ResultsResponse{TieOrNoElim: true}

	rsh := NewResultsStageHandler()
	rsh.SetOnSwitch(switchTo(ctx))

	req := RequestWrapper{
		ReqType: REQ_NEXT_ROUND,
		Data:    mustMarshal(NextRoundRequest{PlayerKey: "b"}),
	}
	if err := rsh.OnHandle(ctx, req); !errors.Is(err, ErrNotHost) {
		t.Fatalf("want ErrNotHost, got %v", err)
	}

	req = RequestWrapper{
		ReqType: REQ_NEXT_ROUND,
		Data:    mustMarshal(NextRoundRequest{PlayerKey: "a"}),
	}
	if err := rsh.OnHandle(ctx, req); err != nil {
		t.Fatalf("host next-round should succeed, got %v", err)
	}

	// Roles were shown in round 1, so round 2 goes straight to discussion.
	if ctx.Phase != PHASE_DISCUSS {
		t.Fatalf("next round should enter discussion, got %q", ctx.Phase)
	}
	if ctx.Round != 2 {
		t.Fatalf("round should advance to 2, got %d", ctx.Round)
	}
	if len(ctx.Votes) != 0 || ctx.LastTally != nil {
		t.Fatalf("next round must clear votes and the last tally")
	}
}

func TestNextRoundRejectedAfterGameOver(t *testing.T) {
	ctx := newTestRoom("a", "b", "c")
	ctx.Phase = PHASE_RESULTS
	ctx.GameOver = true
	ctx.Winner = WINNER_CREW

	rsh := NewResultsStageHandler()
	rsh.SetOnSwitch(switchTo(ctx))

	req := RequestWrapper{
		ReqType: REQ_NEXT_ROUND,
		Data:    mustMarshal(NextRoundRequest{PlayerKey: "a"}),
	}
	if err := rsh.OnHandle(ctx, req); !errors.Is(err, ErrGameOver) {
		t.Fatalf("want ErrGameOver, got %v", err)
	}
}

func TestEndGameReturnsToLobby(t *testing.T) {
	ctx := newTestRoom("a", "b", "c")
	ctx.Phase = PHASE_DISCUSS

	dsh := NewDiscussStageHandler()
	dsh.SetOnSwitch(switchTo(ctx))

	req := RequestWrapper{
		ReqType: REQ_END_GAME,
		Data:    mustMarshal(EndGameRequest{PlayerKey: "b"}),
	}
	if err := dsh.OnHandle(ctx, req); !errors.Is(err, ErrNotHost) {
		t.Fatalf("want ErrNotHost, got %v", err)
	}

	req = RequestWrapper{
		ReqType: REQ_END_GAME,
		Data:    mustMarshal(EndGameRequest{PlayerKey: "a"}),
	}
	if err := dsh.OnHandle(ctx, req); err != nil {
		t.Fatalf("host end-game should succeed, got %v", err)
	}
	if ctx.Phase != PHASE_LOBBY {
		t.Fatalf("end-game should return to the lobby, got %q", ctx.Phase)
	}
}

func TestWrongPhaseRequestsRejected(t *testing.T) {
	ctx := newTestRoom("a", "b", "c")

	lsh := NewLobbyStageHandler()
	lsh.SetOnSwitch(switchTo(ctx))

	req := RequestWrapper{
		ReqType: REQ_CAST_VOTE,
		Data:    mustMarshal(CastVoteRequest{PlayerKey: "a", TargetKey: "b"}),
	}
	if err := lsh.OnHandle(ctx, req); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("voting in the lobby should fail with ErrWrongPhase, got %v", err)
	}

	ack := drainResponses(ctx.Players["a"])[RESP_ACK][0].Data.(AckResponse)
	if ack.Ok || ack.Op != REQ_CAST_VOTE {
		t.Fatalf("rejection should be acked to the sender: %+v", ack)
	}
}

func TestCleanName(t *testing.T) {
	if got := cleanName("  alice  "); got != "alice" {
		t.Errorf("cleanName should trim, got %q", got)
	}

	long := make([]rune, 30)
	for i := range long {
		long[i] = 'x'
	}
	if got := cleanName(string(long)); len([]rune(got)) != 20 {
		t.Errorf("cleanName should cap at 20 runes, got %d", len([]rune(got)))
	}
}
