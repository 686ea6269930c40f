package game

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// RoomMachine runs one room. All requests and timer expiries for the room are
// funnelled into its event loop and handled one at a time, run to completion,
// so handlers mutate the RoomContext without locks.
type RoomMachine struct {
	ctx     *RoomContext
	handler StageHandler
	// reqCh carries every client request for this room.
	reqCh chan RequestWrapper
	// doneCh tells the machine to exit its event loop.
	doneCh chan struct{}

	createdAt time.Time
	// Read by the registry's cleanup loop without entering the event loop.
	connected  atomic.Int64
	lastActive atomic.Int64
}

func NewRoomMachine(roomCode string, opts Options, doneCh chan struct{}) *RoomMachine {
	rm := &RoomMachine{
		ctx:       NewRoomContext(roomCode, opts),
		handler:   NewLobbyStageHandler(),
		reqCh:     make(chan RequestWrapper, 64),
		doneCh:    doneCh,
		createdAt: time.Now(),
	}

	rm.handler.SetOnSwitch(func(nextPhase string) {
		rm.ctx.Phase = nextPhase
	})

	rm.lastActive.Store(time.Now().Unix())

	return rm
}

func (rm *RoomMachine) ReqCh() chan RequestWrapper {
	return rm.reqCh
}

func (rm *RoomMachine) Code() string {
	return rm.ctx.RoomCode
}

func (rm *RoomMachine) CreatedAt() time.Time {
	return rm.createdAt
}

// ConnectedCount is the number of players with a live connection, as of the
// last handled event.
func (rm *RoomMachine) ConnectedCount() int64 {
	return rm.connected.Load()
}

// LastActive is when the machine last handled any event.
func (rm *RoomMachine) LastActive() time.Time {
	return time.Unix(rm.lastActive.Load(), 0)
}

func (rm *RoomMachine) Start() {
	rm.handler.OnEnter(rm.ctx)

	for {
		var req RequestWrapper

		select {
		case req = <-rm.reqCh:
			zap.L().Debug(
				"room received request",
				zap.String("room_code", rm.ctx.RoomCode),
				zap.String("request_type", req.ReqType),
			)
		case req = <-rm.ctx.TmoCh:
			zap.L().Debug(
				"room received timeout event",
				zap.String("room_code", rm.ctx.RoomCode),
			)
		case <-rm.doneCh:
			rm.ctx.ClearTimeout()
			zap.L().Info(
				"room machine shutting down",
				zap.String("room_code", rm.ctx.RoomCode),
			)
			return
		}

		// A timer that was re-armed or cancelled after this expiry was queued
		// must not advance the phase a second time.
		if tmo := TryUnwrapTimeoutRequest(req); tmo != nil && !rm.ctx.TimerAlive(tmo) {
			zap.L().Debug(
				"dropping stale timeout",
				zap.String("room_code", rm.ctx.RoomCode),
				zap.String("timeout_phase", tmo.Phase),
			)
			continue
		}

		// Snapshots are read-only and phase-independent, answered here.
		if snap := TryUnwrapSnapshotRequest(req); snap != nil {
			select {
			case snap.Reply <- rm.ctx.Peek():
			default:
			}
			continue
		}

		if err := rm.handler.OnHandle(rm.ctx, req); err != nil {
			zap.L().Debug(
				"request rejected",
				zap.String("room_code", rm.ctx.RoomCode),
				zap.String("stage", rm.handler.Stage()),
				zap.String("request_type", req.ReqType),
				zap.Error(err),
			)
		}

		rm.trackActivity()

		for rm.ctx.Phase != rm.handler.Stage() {
			rm.switchStage()
		}
	}
}

func (rm *RoomMachine) switchStage() {
	rm.handler.OnExit(rm.ctx)

	var newHandler StageHandler

	switch rm.ctx.Phase {
	case PHASE_LOBBY:
		newHandler = NewLobbyStageHandler()
	case PHASE_ROLE:
		newHandler = NewRoleStageHandler()
	case PHASE_DISCUSS:
		newHandler = NewDiscussStageHandler()
	case PHASE_VOTE:
		newHandler = NewVoteStageHandler()
	case PHASE_RESULTS:
		newHandler = NewResultsStageHandler()
	default:
		zap.L().Error(
			"unknown phase, staying on current stage",
			zap.String("room_code", rm.ctx.RoomCode),
			zap.String("phase", rm.ctx.Phase),
		)
		rm.ctx.Phase = rm.handler.Stage()
		return
	}

	newHandler.SetOnSwitch(func(nextPhase string) {
		rm.ctx.Phase = nextPhase
	})

	rm.handler = newHandler

	zap.L().Info(
		"room entered phase",
		zap.String("room_code", rm.ctx.RoomCode),
		zap.String("phase", rm.ctx.Phase),
		zap.Int("round", rm.ctx.Round),
	)

	rm.handler.OnEnter(rm.ctx)
}

func (rm *RoomMachine) trackActivity() {
	count := int64(0)
	for _, p := range rm.ctx.Players {
		if p.Connected {
			count++
		}
	}

	rm.connected.Store(count)
	rm.lastActive.Store(time.Now().Unix())
}
