package game

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Request types. One per room operation; Timeout and Snapshot are synthesized
// inside the server and rejected when they arrive over the wire.
const (
	REQ_JOIN_OR_CREATE = "JoinOrCreate"
	REQ_LEAVE          = "Leave"
	REQ_START_GAME     = "StartGame"
	REQ_REQUEST_ROLE   = "RequestRole"
	REQ_SET_PHASE      = "SetPhase"
	REQ_NEXT_SPEAKER   = "NextSpeaker"
	REQ_CAST_VOTE      = "CastVote"
	REQ_NEXT_ROUND     = "NextRound"
	REQ_END_GAME       = "EndGame"
	REQ_TIMEOUT        = "Timeout"
	REQ_SNAPSHOT       = "Snapshot"
)

// RequestWrapper is the envelope every room request travels in. Wire requests
// carry JSON in Data; server-synthesized requests carry a typed value in
// Native because they hold channels that cannot round-trip through JSON.
type RequestWrapper struct {
	ReqType string          `json:"request_type"`
	Data    json.RawMessage `json:"data"`

	Native any `json:"-"`
}

func unwrapInto(wrapper RequestWrapper, dst any) bool {
	if err := json.Unmarshal(wrapper.Data, dst); err != nil {
		zap.L().Error(
			"failed to unwrap request",
			zap.String("request_type", wrapper.ReqType),
			zap.Error(err),
		)
		return false
	}

	return true
}

func TryUnwrapJoinOrCreateRequest(wrapper RequestWrapper) *JoinOrCreateRequest {
	if wrapper.ReqType != REQ_JOIN_OR_CREATE {
		return nil
	}

	if req, ok := wrapper.Native.(*JoinOrCreateRequest); ok {
		return req
	}

	var req JoinOrCreateRequest
	if !unwrapInto(wrapper, &req) {
		return nil
	}

	return &req
}

func TryUnwrapLeaveRequest(wrapper RequestWrapper) *LeaveRequest {
	if wrapper.ReqType != REQ_LEAVE {
		return nil
	}

	if req, ok := wrapper.Native.(*LeaveRequest); ok {
		return req
	}

	var req LeaveRequest
	if !unwrapInto(wrapper, &req) {
		return nil
	}

	return &req
}

func TryUnwrapStartGameRequest(wrapper RequestWrapper) *StartGameRequest {
	if wrapper.ReqType != REQ_START_GAME {
		return nil
	}

	var req StartGameRequest
	if !unwrapInto(wrapper, &req) {
		return nil
	}

	return &req
}

func TryUnwrapRequestRoleRequest(wrapper RequestWrapper) *RequestRoleRequest {
	if wrapper.ReqType != REQ_REQUEST_ROLE {
		return nil
	}

	var req RequestRoleRequest
	if !unwrapInto(wrapper, &req) {
		return nil
	}

	return &req
}

func TryUnwrapSetPhaseRequest(wrapper RequestWrapper) *SetPhaseRequest {
	if wrapper.ReqType != REQ_SET_PHASE {
		return nil
	}

	var req SetPhaseRequest
	if !unwrapInto(wrapper, &req) {
		return nil
	}

	return &req
}

func TryUnwrapNextSpeakerRequest(wrapper RequestWrapper) *NextSpeakerRequest {
	if wrapper.ReqType != REQ_NEXT_SPEAKER {
		return nil
	}

	var req NextSpeakerRequest
	if !unwrapInto(wrapper, &req) {
		return nil
	}

	return &req
}

func TryUnwrapCastVoteRequest(wrapper RequestWrapper) *CastVoteRequest {
	if wrapper.ReqType != REQ_CAST_VOTE {
		return nil
	}

	var req CastVoteRequest
	if !unwrapInto(wrapper, &req) {
		return nil
	}

	return &req
}

func TryUnwrapNextRoundRequest(wrapper RequestWrapper) *NextRoundRequest {
	if wrapper.ReqType != REQ_NEXT_ROUND {
		return nil
	}

	var req NextRoundRequest
	if !unwrapInto(wrapper, &req) {
		return nil
	}

	return &req
}

func TryUnwrapEndGameRequest(wrapper RequestWrapper) *EndGameRequest {
	if wrapper.ReqType != REQ_END_GAME {
		return nil
	}

	var req EndGameRequest
	if !unwrapInto(wrapper, &req) {
		return nil
	}

	return &req
}

func TryUnwrapTimeoutRequest(wrapper RequestWrapper) *TimeoutRequest {
	if wrapper.ReqType != REQ_TIMEOUT {
		return nil
	}

	req, ok := wrapper.Native.(*TimeoutRequest)
	if !ok {
		return nil
	}

	return req
}

func TryUnwrapSnapshotRequest(wrapper RequestWrapper) *SnapshotRequest {
	if wrapper.ReqType != REQ_SNAPSHOT {
		return nil
	}

	req, ok := wrapper.Native.(*SnapshotRequest)
	if !ok {
		return nil
	}

	return req
}

// Response types.
const (
	RESP_ERROR = "Error"

	RESP_ACK         = "Ack"
	RESP_ROOM_STATE  = "RoomState"
	RESP_ROLE        = "Role"
	RESP_VOTE_STATUS = "VoteStatus"
	RESP_RESULTS     = "RoundResults"
	RESP_WIN         = "GameWin"
)

type ResponseWrapper struct {
	RespType string `json:"response_type"`
	Data     any    `json:"data,omitempty"`
	ErrMsg   string `json:"error_message,omitempty"`
}

func WrapResponse(respType string, data any) ResponseWrapper {
	return ResponseWrapper{
		RespType: respType,
		Data:     data,
	}
}

func WrapErrResponse(errMsg string) ResponseWrapper {
	return ResponseWrapper{
		RespType: RESP_ERROR,
		ErrMsg:   errMsg,
	}
}
