package websocket

import (
	"encoding/json"
	"time"

	"github.com/smba11/imposter-online/internal/service/game"
	"github.com/smba11/imposter-online/internal/state"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	"go.uber.org/zap"
)

// Request types a client may send after joining. Timeout and Snapshot are
// server-internal and never accepted off the wire; JoinOrCreate is only valid
// as a connection's first frame.
var wireRequestTypes = map[string]struct{}{
	game.REQ_LEAVE:        {},
	game.REQ_START_GAME:   {},
	game.REQ_REQUEST_ROLE: {},
	game.REQ_SET_PHASE:    {},
	game.REQ_NEXT_SPEAKER: {},
	game.REQ_CAST_VOTE:    {},
	game.REQ_NEXT_ROUND:   {},
	game.REQ_END_GAME:     {},
}

// JoinGame upgrades the connection and binds it to a room: the first frame
// must be JoinOrCreate, then a read loop feeds the room machine while a write
// goroutine drains the player's response channel.
func JoinGame(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		conn, err := upgrader.Upgrade(
			ctx.ResponseWriter(),
			ctx.Request(),
			nil,
		)
		if err != nil {
			zap.L().Error("websocket upgrade failed", zap.Error(err))
			ctx.StatusCode(iris.StatusBadRequest)
			return
		}

		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))
		conn.SetPongHandler(heartbeatHandler(conn))

		connID := game.GenID()

		// Buffered so a slow write cannot stall the room loop.
		respCh := make(chan game.ResponseWrapper, 64)

		_, msg, err := conn.ReadMessage()
		if err != nil {
			zap.L().Error(
				"failed to read first request",
				zap.String("conn_id", connID),
				zap.Error(err),
			)
			return
		}

		var wrapper game.RequestWrapper

		if err := json.Unmarshal(msg, &wrapper); err != nil {
			zap.L().Error(
				"failed to parse first request",
				zap.String("conn_id", connID),
				zap.Error(err),
			)
			return
		}

		joinReq := game.TryUnwrapJoinOrCreateRequest(wrapper)
		if joinReq == nil {
			zap.L().Error(
				"first request is not JoinOrCreate",
				zap.String("conn_id", connID),
				zap.String("request_type", wrapper.ReqType),
			)

			conn.WriteJSON(game.WrapErrResponse("first request must be JoinOrCreate"))
			return
		}

		joinReq.RespCh = respCh

		reqCh, err := appState.RoomSvc.JoinOrCreate(joinReq)
		if err != nil {
			zap.L().Warn(
				"failed to resolve room",
				zap.String("conn_id", connID),
				zap.Error(err),
			)

			conn.WriteJSON(game.WrapErrResponse(err.Error()))
			return
		}

		playerKey := joinReq.PlayerKey
		roomCode := joinReq.RoomCode

		// Hand the join to the room goroutine; the decision (new player,
		// rejoin, game already started) is made there.
		joinWrapper := game.RequestWrapper{
			ReqType: game.REQ_JOIN_OR_CREATE,
			Native:  joinReq,
		}

		select {
		case reqCh <- joinWrapper:
		case <-time.After(3 * time.Second):
			zap.L().Error(
				"room did not accept join in time",
				zap.String("conn_id", connID),
				zap.String("room_code", roomCode),
			)
			return
		}

		// Peek at the join ack: a rejected join ends the connection here.
		// The ack is pushed back so the write goroutine still delivers it.
		select {
		case ack, ok := <-respCh:
			if !ok {
				zap.L().Warn(
					"response channel closed before join ack",
					zap.String("conn_id", connID),
				)
				return
			}

			joined := true
			if data, isAck := ack.Data.(game.AckResponse); isAck && !data.Ok {
				joined = false
			}

			conn.WriteJSON(ack)

			if !joined {
				zap.L().Info(
					"join rejected",
					zap.String("conn_id", connID),
					zap.String("room_code", roomCode),
					zap.String("player_key", playerKey),
				)
				return
			}
		case <-time.After(3 * time.Second):
			zap.L().Error(
				"timed out waiting for join ack",
				zap.String("conn_id", connID),
				zap.String("room_code", roomCode),
			)
			return
		}

		zap.L().Info(
			"player attached to room",
			zap.String("conn_id", connID),
			zap.String("room_code", roomCode),
			zap.String("player_key", playerKey),
		)

		writeDoneCh := make(chan struct{})
		defer close(writeDoneCh)

		go func() {
			ticker := time.NewTicker(HEARTBEAT_INTERVAL)
			defer ticker.Stop()

			for {
				select {
				case <-writeDoneCh:
					return

				case <-ticker.C:
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						zap.L().Debug(
							"heartbeat failed",
							zap.String("conn_id", connID),
							zap.Error(err),
						)
						return
					}

					conn.SetWriteDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))

				case resp, ok := <-respCh:
					// The room closes this channel when the player leaves or
					// a newer connection takes over.
					if !ok {
						zap.L().Info(
							"response channel closed, write goroutine exiting",
							zap.String("conn_id", connID),
						)
						return
					}

					if err := conn.WriteJSON(resp); err != nil {
						zap.L().Debug(
							"failed to write response",
							zap.String("conn_id", connID),
							zap.Error(err),
						)
						return
					}
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(
					err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					zap.L().Error(
						"failed to read message",
						zap.String("conn_id", connID),
						zap.Error(err),
					)
				}

				break
			}

			var wrapper game.RequestWrapper

			if err := json.Unmarshal(msg, &wrapper); err != nil {
				zap.L().Warn(
					"failed to parse message",
					zap.String("conn_id", connID),
					zap.Error(err),
				)

				continue
			}

			if _, allowed := wireRequestTypes[wrapper.ReqType]; !allowed {
				zap.L().Warn(
					"dropping request type not accepted over the wire",
					zap.String("conn_id", connID),
					zap.String("request_type", wrapper.ReqType),
				)

				continue
			}

			select {
			case reqCh <- wrapper:
			default:
				zap.L().Error(
					"failed to forward request: room channel full",
					zap.String("conn_id", connID),
					zap.String("room_code", roomCode),
				)
			}
		}

		// The read loop exited, so the client is gone. Tell the room; the
		// RespCh lets it ignore this leave if a rejoin already replaced us.
		leaveReq := game.LeaveRequest{
			PlayerKey: playerKey,
			RespCh:    respCh,
		}

		leaveWrapper := game.RequestWrapper{
			ReqType: game.REQ_LEAVE,
			Native:  &leaveReq,
		}

		select {
		case reqCh <- leaveWrapper:
		case <-time.After(3 * time.Second):
			zap.L().Warn(
				"failed to deliver leave request",
				zap.String("conn_id", connID),
				zap.String("player_key", playerKey),
			)
		}

		zap.L().Info(
			"websocket connection finished",
			zap.String("conn_id", connID),
			zap.String("room_code", roomCode),
			zap.String("player_key", playerKey),
		)
	}
}
