package signal

import (
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) roomRequest(conn *WsSignalConn, data []byte) (core.RoomRequest, bool) {
	var p core.RoomRequest
	if err := ctl.decode(data, &p); err != nil {
		ctl.sendError(conn, fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return p, false
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(conn.remote) {
		ctl.sendError(conn, domain.ErrRateLimited)
		return p, false
	}
	return p, true
}

func (ctl *SignalWSController) createRoom(conn *WsSignalConn, data []byte) {
	p, ok := ctl.roomRequest(conn, data)
	if !ok {
		return
	}
	if err := ctl.Orch.CreateRoom(conn.id, p); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleJoin(conn *WsSignalConn, data []byte) {
	p, ok := ctl.roomRequest(conn, data)
	if !ok {
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Str("room_id", p.RoomID).Msg("join")
	if _, err := ctl.Orch.JoinRoom(conn.id, p); err != nil {
		ctl.sendError(conn, err)
	}
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(conn *WsSignalConn) {
	roomID, err := ctl.Orch.LeaveRoom(conn.id)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	ctl.sendJSON(conn, core.RoomLeft{Type: core.EventRoomLeft, RoomID: roomID})
}
