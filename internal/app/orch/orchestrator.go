package orch

import (
	"context"
	"sync"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/ledger"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the single entry point for signaling events. Membership
// transitions hold mu so the registry, presence and ledger change together.
type Orchestrator struct {
	Rooms    core.RoomRegistry
	Presence *app.Presence
	Ledger   *ledger.Ledger
	Policy   app.Policy

	mu sync.Mutex
}

// Connect registers a freshly opened transport. cancel tears the transport
// down and is used to kick slow consumers.
func (o *Orchestrator) Connect(p core.Participant, cancel context.CancelFunc) {
	o.Presence.Bind(p, cancel)
	metrics.ActiveConnections.Inc()
	log.Info().Str("module", "orch").Str("conn", string(p.ID())).Msg("connected")
}

// Disconnect leaves the current room, closes the session and forgets the
// connection. Calling it twice is harmless.
func (o *Orchestrator) Disconnect(conn core.ConnID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.Presence.Connected(conn) {
		return
	}
	o.leaveLocked(conn)
	o.Presence.Unbind(conn)
	metrics.ActiveConnections.Dec()
	log.Info().Str("module", "orch").Str("conn", string(conn)).Msg("disconnected")
}

// leaveLocked must be called with mu held.
func (o *Orchestrator) leaveLocked(conn core.ConnID) (domain.RoomID, bool) {
	snap, current := o.Presence.Exit(conn)
	if snap.RoomID == "" {
		return "", false
	}
	o.Ledger.CloseSession(conn)
	if !current {
		// Another connection of the same user holds the membership.
		return snap.RoomID, true
	}
	if o.Rooms.LeaveRoom(snap.RoomID, snap.User.ID) {
		metrics.ActiveRooms.Dec()
	}
	o.broadcast(snap.RoomID, conn, core.UserDisconnected{
		Type:   core.EventUserDisconnected,
		UserID: snap.User.ID,
	})
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room_id", string(snap.RoomID)).Str("user", string(snap.User.ID)).Msg("left room")
	return snap.RoomID, true
}

// Send encodes v and queues it for conn alone.
func (o *Orchestrator) Send(conn core.ConnID, v any) bool {
	snap, ok := o.Presence.Get(conn)
	if !ok {
		return false
	}
	f, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode")
		return false
	}
	return o.deliver(snap, f, "direct")
}

func (o *Orchestrator) broadcast(room domain.RoomID, except core.ConnID, v any) int {
	f, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode")
		return 0
	}
	return o.broadcastFrame(room, except, f, "broadcast")
}

func (o *Orchestrator) broadcastFrame(room domain.RoomID, except core.ConnID, f core.Frame, label string) int {
	sent := 0
	for _, snap := range o.Presence.MembersOfRoom(room) {
		if snap.Conn == except {
			continue
		}
		if o.deliver(snap, f, label) {
			sent++
		}
	}
	log.Debug().Str("module", "orch").Str("room_id", string(room)).Str("type", label).Int("sent_to", sent).Msg("broadcast result")
	return sent
}

// deliver never blocks; a full send queue is handed to the Policy.
func (o *Orchestrator) deliver(to app.PresenceSnap, f core.Frame, label string) bool {
	if err := to.Participant.Signal().TrySend(f); err != nil {
		metrics.SignalsDropped.WithLabelValues("backpressure").Inc()
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(to.Conn)).Str("type", label).Msg("frame dropped")
		if o.Policy != nil && o.Policy.OnBackPressure(to.RoomID, to) == app.KickMember {
			o.Presence.Cancel(to.Conn)
		}
		return false
	}
	metrics.SignalsRelayed.WithLabelValues(label).Inc()
	return true
}
