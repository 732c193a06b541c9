package orch

import (
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

func parseRoomRequest(req core.RoomRequest) (domain.RoomID, *domain.User, error) {
	roomID := domain.RoomID(req.RoomID)
	if err := roomID.Validate(); err != nil {
		return "", nil, err
	}
	user, err := domain.NewUser(domain.UserID(req.UserID), req.DisplayName)
	if err != nil {
		return "", nil, err
	}
	return roomID, user, nil
}

func rejected(err error) error {
	metrics.JoinsRejected.WithLabelValues(string(domain.Kind(err))).Inc()
	return err
}

// CreateRoom creates req.RoomID with conn's user as owner and only member.
// The password is hashed before any shared lock is taken.
func (o *Orchestrator) CreateRoom(conn core.ConnID, req core.RoomRequest) error {
	roomID, user, err := parseRoomRequest(req)
	if err != nil {
		return rejected(err)
	}
	if o.Rooms.Exists(roomID) {
		return rejected(fmt.Errorf("create %q: %w", roomID, domain.ErrRoomExists))
	}
	hash, err := o.Rooms.HashPassword(req.Password)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.Presence.Connected(conn) {
		return domain.ErrNotConnected
	}
	info, err := o.Rooms.CreateRoom(roomID, *user, hash)
	if err != nil {
		return rejected(err)
	}
	metrics.RoomsCreated.Inc()
	metrics.ActiveRooms.Inc()
	o.Ledger.RoomCreated(roomID, info.CreatedAt)

	o.leaveLocked(conn)
	o.enterLocked(conn, *user, roomID)
	o.Ledger.OpenSession(conn, roomID, *user, 1)

	o.Send(conn, core.RoomCreated{Type: core.EventRoomCreated, RoomID: roomID})
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room_id", string(roomID)).Str("user", string(user.ID)).Msg("created room")
	return nil
}

// JoinRoom admits conn into an existing room. The joiner receives
// room-joined and one user-connected per pre-existing member; those members
// receive user-connected for the joiner.
func (o *Orchestrator) JoinRoom(conn core.ConnID, req core.RoomRequest) (core.JoinResult, error) {
	roomID, user, err := parseRoomRequest(req)
	if err != nil {
		return core.JoinResult{}, rejected(err)
	}
	ticket, err := o.Rooms.Authorize(roomID, req.Password)
	if err != nil {
		return core.JoinResult{}, rejected(err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.Presence.Connected(conn) {
		return core.JoinResult{}, domain.ErrNotConnected
	}
	if cur, _, ok := o.Presence.RoomOf(conn); ok && cur == roomID {
		return core.JoinResult{}, rejected(fmt.Errorf("join %q: %w", roomID, domain.ErrAlreadyInRoom))
	}
	res, err := o.Rooms.Admit(ticket, *user)
	if err != nil {
		return core.JoinResult{}, rejected(err)
	}

	o.leaveLocked(conn)
	o.enterLocked(conn, *user, roomID)
	n, _ := o.Rooms.MemberCount(roomID)
	o.Ledger.OpenSession(conn, roomID, *user, n)

	o.Send(conn, core.RoomJoined{Type: core.EventRoomJoined, RoomID: roomID, IsOwner: res.IsOwner})
	for _, m := range res.Existing {
		o.Send(conn, core.UserConnected{Type: core.EventUserConnected, UserID: m.ID, DisplayName: m.DisplayName})
	}
	o.broadcast(roomID, conn, core.UserConnected{
		Type:        core.EventUserConnected,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
	})
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room_id", string(roomID)).Str("user", string(user.ID)).Int("existing", len(res.Existing)).Msg("joined room")
	return res, nil
}

// enterLocked must be called with mu held. A connection displaced by conn
// for the same user loses the room, its session is closed and it is told so.
func (o *Orchestrator) enterLocked(conn core.ConnID, user domain.User, roomID domain.RoomID) {
	displaced, _ := o.Presence.Enter(conn, user, roomID)
	if displaced == "" {
		return
	}
	o.Ledger.CloseSession(displaced)
	o.Send(displaced, core.RoomLeft{Type: core.EventRoomLeft, RoomID: roomID})
	log.Info().Str("module", "orch").Str("conn", string(displaced)).Str("room_id", string(roomID)).Str("user", string(user.ID)).Msg("superseded by newer connection")
}

// LeaveRoom leaves the current room and keeps the connection open.
func (o *Orchestrator) LeaveRoom(conn core.ConnID) (domain.RoomID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	roomID, ok := o.leaveLocked(conn)
	if !ok {
		return "", domain.ErrNotInRoom
	}
	return roomID, nil
}
