package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/huddle/internal/app/ledger"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/gin-gonic/gin"
)

const recentSessionsLimit = 20

type dashboardGlobal struct {
	ledger.GlobalStats
	CurrentUsers int `json:"currentUsers"`
	ActiveRooms  int `json:"activeRooms"`
}

func (h *handlers) global() dashboardGlobal {
	return dashboardGlobal{
		GlobalStats:  h.orch.Ledger.Global(),
		CurrentUsers: h.orch.Presence.Count(),
		ActiveRooms:  len(h.orch.Rooms.List()),
	}
}

func (h *handlers) dashboardStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"global":         h.global(),
		"rooms":          h.orch.Ledger.Rooms(h.orch.LiveRooms()),
		"recentSessions": h.orch.Ledger.RecentSessions(recentSessionsLimit),
	})
}

func (h *handlers) dashboardRoom(c *gin.Context) {
	id := domain.RoomID(c.Param("roomId"))
	stats, err := h.orch.RoomStats(id)
	if errors.Is(err, domain.ErrRoomMetricsNotFound) {
		abortError(c, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	members, _ := h.orch.Rooms.Members(id)
	c.JSON(http.StatusOK, gin.H{
		"room":     stats,
		"members":  members,
		"sessions": h.orch.Ledger.RoomSessions(id),
	})
}
