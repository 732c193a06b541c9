package app

import (
	"context"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type presenceEntry struct {
	Participant core.Participant
	Cancel      context.CancelFunc
	User        domain.User
	RoomID      domain.RoomID
}

// Presence is the bidirectional index between connections and the
// (user, room, display name) they currently present as.
type Presence struct {
	mu     sync.RWMutex
	byConn map[core.ConnID]*presenceEntry
	byRoom map[domain.RoomID]map[domain.UserID]core.ConnID
}

func NewPresence() *Presence {
	return &Presence{
		byConn: make(map[core.ConnID]*presenceEntry),
		byRoom: make(map[domain.RoomID]map[domain.UserID]core.ConnID),
	}
}

// PresenceSnap is a read-only copy of one directory entry.
type PresenceSnap struct {
	Conn        core.ConnID
	Participant core.Participant
	User        domain.User
	RoomID      domain.RoomID
}

func (p *Presence) Bind(part core.Participant, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byConn[part.ID()] = &presenceEntry{Participant: part, Cancel: cancel}
	log.Debug().Str("module", "app.presence").Str("conn", string(part.ID())).Msg("bound connection")
}

// Unbind drops the connection and any room index pointing at it.
func (p *Presence) Unbind(conn core.ConnID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.byConn[conn]; ok {
		p.dropIndexLocked(conn, e)
		delete(p.byConn, conn)
	}
	log.Debug().Str("module", "app.presence").Str("conn", string(conn)).Msg("unbound connection")
}

// Enter records that conn presents as user inside room. A user id already
// indexed in that room is taken over by the newer connection; the displaced
// connection loses its room and is returned.
func (p *Presence) Enter(conn core.ConnID, user domain.User, room domain.RoomID) (displaced core.ConnID, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byConn[conn]
	if !ok {
		return "", false
	}
	p.dropIndexLocked(conn, e)
	e.User = user
	e.RoomID = room
	idx, ok := p.byRoom[room]
	if !ok {
		idx = make(map[domain.UserID]core.ConnID)
		p.byRoom[room] = idx
	}
	if prev, taken := idx[user.ID]; taken && prev != conn {
		if pe, bound := p.byConn[prev]; bound {
			pe.RoomID = ""
		}
		displaced = prev
		log.Info().Str("module", "app.presence").Str("conn", string(prev)).Str("room_id", string(room)).Str("user", string(user.ID)).Msg("connection superseded")
	}
	idx[user.ID] = conn
	log.Debug().Str("module", "app.presence").Str("conn", string(conn)).Str("room_id", string(room)).Str("user", string(user.ID)).Msg("entered room")
	return displaced, true
}

// Exit clears the room association of conn. current reports whether conn was
// the indexed connection for its (room, user) pair.
func (p *Presence) Exit(conn core.ConnID) (snap PresenceSnap, current bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byConn[conn]
	if !ok || e.RoomID == "" {
		return PresenceSnap{}, false
	}
	snap = snapOf(conn, e)
	current = p.dropIndexLocked(conn, e)
	e.RoomID = ""
	return snap, current
}

func (p *Presence) dropIndexLocked(conn core.ConnID, e *presenceEntry) bool {
	if e.RoomID == "" {
		return false
	}
	idx := p.byRoom[e.RoomID]
	if idx[e.User.ID] != conn {
		return false
	}
	delete(idx, e.User.ID)
	if len(idx) == 0 {
		delete(p.byRoom, e.RoomID)
	}
	return true
}

func (p *Presence) Get(conn core.ConnID) (PresenceSnap, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byConn[conn]
	if !ok {
		return PresenceSnap{}, false
	}
	return snapOf(conn, e), true
}

func (p *Presence) RoomOf(conn core.ConnID) (domain.RoomID, PresenceSnap, bool) {
	snap, ok := p.Get(conn)
	if !ok || snap.RoomID == "" {
		return "", PresenceSnap{}, false
	}
	return snap.RoomID, snap, true
}

// Lookup is the hot path of targeted relay.
func (p *Presence) Lookup(room domain.RoomID, user domain.UserID) (PresenceSnap, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.byRoom[room][user]
	if !ok {
		return PresenceSnap{}, false
	}
	return snapOf(conn, p.byConn[conn]), true
}

func (p *Presence) MembersOfRoom(room domain.RoomID) []PresenceSnap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx := p.byRoom[room]
	out := make([]PresenceSnap, 0, len(idx))
	for _, conn := range idx {
		out = append(out, snapOf(conn, p.byConn[conn]))
	}
	return out
}

func (p *Presence) Connected(conn core.ConnID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byConn[conn]
	return ok
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byConn)
}

func (p *Presence) Cancel(conn core.ConnID) bool {
	p.mu.RLock()
	e, ok := p.byConn[conn]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.presence").Str("conn", string(conn)).Msg("canceled connection")
	return true
}

func snapOf(conn core.ConnID, e *presenceEntry) PresenceSnap {
	return PresenceSnap{Conn: conn, Participant: e.Participant, User: e.User, RoomID: e.RoomID}
}
