package signal

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleRelay forwards offer, answer and ice-candidate bodies untouched.
func (ctl *SignalWSController) handleRelay(conn *WsSignalConn, kind core.EventType, data []byte) {
	var p core.SignalRequest
	if err := ctl.decode(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", string(kind)).Msg("bad signal payload")
		return
	}
	ctl.Orch.Relay(conn.id, kind, p.Payload, domain.UserID(p.TargetUserID))
}

func (ctl *SignalWSController) handleChat(conn *WsSignalConn, data []byte) {
	var p core.ChatRequest
	if err := ctl.decode(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad chat payload")
		return
	}
	ctl.Orch.Chat(conn.id, domain.RoomID(p.RoomID), p.Message)
}

func (ctl *SignalWSController) handleStats(conn *WsSignalConn, data []byte) {
	var p core.StatsRequest
	if err := ctl.decode(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad stats payload")
		return
	}
	ctl.Orch.Quality(conn.id, p.Stats)
}
