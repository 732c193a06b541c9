package signal

import (
	"errors"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, core.Pong{Type: core.EventPong})
}

// sendError answers a failed create/join/leave with room-error.
func (ctl *SignalWSController) sendError(conn *WsSignalConn, err error) {
	kind := domain.Kind(err)
	log.Info().Err(err).Str("module", "signal").Str("conn", string(conn.id)).Str("kind", string(kind)).Msg("room error")
	ctl.sendJSON(conn, core.RoomError{
		Type:    core.EventRoomError,
		Message: publicMessage(err),
		Code:    kind,
	})
}

var publicErrors = []error{
	domain.ErrUserIDEmpty,
	domain.ErrUserIDTooLong,
	domain.ErrDisplayNameTooLong,
	domain.ErrRoomIDEmpty,
	domain.ErrRoomIDTooLong,
	domain.ErrRoomNotFound,
	domain.ErrPasswordRequired,
	domain.ErrPasswordIncorrect,
	domain.ErrRoomExists,
	domain.ErrAlreadyInRoom,
	domain.ErrNotInRoom,
	domain.ErrRateLimited,
}

// publicMessage strips wrapping context and hides anything unexpected.
func publicMessage(err error) string {
	for _, e := range publicErrors {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	if domain.Kind(err) == domain.KindValidation {
		return domain.ErrBadPayload.Error()
	}
	return "internal error"
}
