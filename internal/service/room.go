package service

import (
	"strings"
	"sync"
	"time"

	"github.com/smba11/imposter-online/internal/config"
	"github.com/smba11/imposter-online/internal/service/game"

	"go.uber.org/zap"
)

// RoomService is the registry of live rooms. Each room runs as its own
// goroutine (a game.RoomMachine); the registry only creates, looks up, and
// eventually reaps them. Rooms share no state with one another.
type RoomService struct {
	state *roomServiceState
}

type roomServiceState struct {
	mu sync.RWMutex

	rooms   map[string]*game.RoomMachine
	doneChs map[string]chan struct{}

	opts game.Options
	ttl  time.Duration

	cleanUpDone chan struct{}
}

func NewRoomService(cfg *config.AppConfig) *RoomService {
	state := &roomServiceState{
		rooms:   make(map[string]*game.RoomMachine),
		doneChs: make(map[string]chan struct{}),
		opts: game.Options{
			AutoAdvance: cfg.AutoAdvance,
			Durations: game.PhaseDurations{
				Role:    time.Duration(cfg.RoleSeconds) * time.Second,
				Discuss: time.Duration(cfg.DiscussSeconds) * time.Second,
				Vote:    time.Duration(cfg.VoteSeconds) * time.Second,
				Results: time.Duration(cfg.ResultsSeconds) * time.Second,
			},
		},
		ttl:         time.Duration(cfg.RoomTTLMinutes) * time.Minute,
		cleanUpDone: make(chan struct{}),
	}

	go startCleanupLoop(state)

	return &RoomService{
		state: state,
	}
}

// startCleanupLoop reaps rooms that have had no connected player for the
// configured TTL. Rooms never expire while anyone is attached.
func startCleanupLoop(state *roomServiceState) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-state.cleanUpDone:
			return

		case <-ticker.C:
			state.mu.Lock()

			for code, machine := range state.rooms {
				if machine.ConnectedCount() > 0 {
					continue
				}
				if time.Since(machine.LastActive()) < state.ttl {
					continue
				}

				zap.S().Infof("room %s idle past TTL, reclaiming", code)

				close(state.doneChs[code])
				delete(state.doneChs, code)
				delete(state.rooms, code)
			}

			state.mu.Unlock()
		}
	}
}

func (rs *RoomService) Close() {
	close(rs.state.cleanUpDone)

	rs.state.mu.Lock()
	defer rs.state.mu.Unlock()

	for code, doneCh := range rs.state.doneChs {
		close(doneCh)
		delete(rs.state.doneChs, code)
		delete(rs.state.rooms, code)
	}
}

// JoinOrCreate resolves the room a JoinOrCreate request targets, creating it
// when asked to. It returns the room's request channel; the caller forwards
// the join request itself and reads the ack on its own response channel. The
// actual join/rejoin decision happens inside the room goroutine.
func (rs *RoomService) JoinOrCreate(req *game.JoinOrCreateRequest) (chan game.RequestWrapper, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, game.ErrNameRequired
	}

	if req.PlayerKey == "" {
		return nil, game.ErrIdentityRequired
	}

	if req.Create {
		machine := rs.createRoom()
		req.RoomCode = machine.Code()

		zap.S().Infof("room %s created", machine.Code())

		return machine.ReqCh(), nil
	}

	code := NormalizeRoomCode(req.RoomCode)
	req.RoomCode = code

	rs.state.mu.RLock()
	machine, ok := rs.state.rooms[code]
	rs.state.mu.RUnlock()

	if !ok {
		return nil, game.ErrRoomNotFound
	}

	return machine.ReqCh(), nil
}

func (rs *RoomService) createRoom() *game.RoomMachine {
	rs.state.mu.Lock()
	defer rs.state.mu.Unlock()

	code := MakeRoomCode()
	for {
		if _, taken := rs.state.rooms[code]; !taken {
			break
		}
		code = MakeRoomCode()
	}

	doneCh := make(chan struct{})
	machine := game.NewRoomMachine(code, rs.state.opts, doneCh)

	rs.state.rooms[code] = machine
	rs.state.doneChs[code] = doneCh

	go machine.Start()

	return machine
}

// Peek asks a room's goroutine for its public summary, for the HTTP join
// screen. The reply is awaited with a deadline so a wedged room cannot hang
// the HTTP handler.
func (rs *RoomService) Peek(code string) (game.RoomPeek, error) {
	code = NormalizeRoomCode(code)

	rs.state.mu.RLock()
	machine, ok := rs.state.rooms[code]
	rs.state.mu.RUnlock()

	if !ok {
		return game.RoomPeek{}, game.ErrRoomNotFound
	}

	reply := make(chan game.RoomPeek, 1)
	wrapper := game.RequestWrapper{
		ReqType: game.REQ_SNAPSHOT,
		Native:  &game.SnapshotRequest{Reply: reply},
	}

	timer := time.NewTimer(3 * time.Second)
	defer timer.Stop()

	select {
	case machine.ReqCh() <- wrapper:
	case <-timer.C:
		zap.S().Warnf("room %s did not accept snapshot request in time", code)
		return game.RoomPeek{}, game.ErrRoomNotFound
	}

	select {
	case peek := <-reply:
		return peek, nil
	case <-timer.C:
		zap.S().Warnf("room %s snapshot reply timed out", code)
		return game.RoomPeek{}, game.ErrRoomNotFound
	}
}
