package orch

import (
	"encoding/json"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Relay forwards an offer, answer or ice-candidate verbatim. With a target it
// reaches only that user in the sender's room; without one it reaches every
// other connection in the room. It returns the number of recipients.
func (o *Orchestrator) Relay(conn core.ConnID, kind core.EventType, payload json.RawMessage, target domain.UserID) int {
	if !kind.IsSignal() {
		return 0
	}
	room, from, ok := o.Presence.RoomOf(conn)
	if !ok {
		return 0
	}
	f, err := core.Encode(core.SignalForward{
		Type:         kind,
		Payload:      payload,
		FromUserID:   from.User.ID,
		TargetUserID: target,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode signal")
		return 0
	}

	if target == "" {
		return o.broadcastFrame(room, conn, f, string(kind))
	}
	to, ok := o.Presence.Lookup(room, target)
	if !ok {
		// The peer most likely disconnected a moment ago.
		metrics.SignalsDropped.WithLabelValues("no_target").Inc()
		log.Debug().Str("module", "orch").Str("room_id", string(room)).Str("target", string(target)).Str("type", string(kind)).Msg("target not present")
		return 0
	}
	if o.deliver(to, f, string(kind)) {
		return 1
	}
	return 0
}

// Chat relays msg to the rest of the room only when roomID is the sender's
// current room. Sender identity is taken from presence.
func (o *Orchestrator) Chat(conn core.ConnID, roomID domain.RoomID, msg core.ChatMessage) int {
	room, from, ok := o.Presence.RoomOf(conn)
	if !ok || room != roomID {
		log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("room_id", string(roomID)).Msg("chat for foreign room dropped")
		return 0
	}
	msg.UserID = from.User.ID
	msg.DisplayName = from.User.DisplayName
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	o.Ledger.RecordMessage(conn)
	return o.broadcast(room, conn, core.ChatForward{
		Type:    core.EventChatMessage,
		Message: msg,
		RoomID:  room,
	})
}

// Quality stores a stats sample on the sender's session and rebroadcasts it.
func (o *Orchestrator) Quality(conn core.ConnID, stats json.RawMessage) int {
	room, from, ok := o.Presence.RoomOf(conn)
	if !ok {
		return 0
	}
	if !o.Ledger.RecordQualitySample(conn, stats) {
		return 0
	}
	return o.broadcast(room, conn, core.QualityUpdate{
		Type:        core.EventUserQualityUpdate,
		UserID:      from.User.ID,
		DisplayName: from.User.DisplayName,
		Stats:       stats,
	})
}
