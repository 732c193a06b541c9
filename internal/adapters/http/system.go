package http

import (
	"net/http"
	"runtime"
	"time"

	"github.com/dkeye/huddle/internal/app/ledger"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const mb = 1024 * 1024

type memorySnapshot struct {
	HeapAllocMB float64 `json:"heapAllocMB"`
	HeapSysMB   float64 `json:"heapSysMB"`
	SysMB       float64 `json:"sysMB"`
	NumGC       uint32  `json:"numGC"`
	Goroutines  int     `json:"goroutines"`
}

func readMemory() memorySnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return memorySnapshot{
		HeapAllocMB: float64(m.HeapAlloc) / mb,
		HeapSysMB:   float64(m.HeapSys) / mb,
		SysMB:       float64(m.Sys) / mb,
		NumGC:       m.NumGC,
		Goroutines:  runtime.NumGoroutine(),
	}
}

type stateSizes struct {
	ledger.Sizes
	Connections  int `json:"connections"`
	Rooms        int `json:"rooms"`
	AuthSessions int `json:"authSessions"`
}

func (h *handlers) sizes() stateSizes {
	return stateSizes{
		Sizes:        h.orch.Ledger.Sizes(),
		Connections:  h.orch.Presence.Count(),
		Rooms:        len(h.orch.Rooms.List()),
		AuthSessions: h.auth.Len(),
	}
}

func (h *handlers) uptime() time.Duration {
	return time.Since(h.orch.Ledger.StartTime())
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    h.uptime().Seconds(),
		"timestamp": time.Now().UTC(),
	})
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.ice})
}

func (h *handlers) performance(c *gin.Context) {
	mem := readMemory()
	g := h.global()
	pct := 0.0
	if mem.SysMB > 0 {
		pct = mem.HeapAllocMB / mem.SysMB * 100
	}
	c.JSON(http.StatusOK, gin.H{
		"application": gin.H{
			"totalMemoryMB":     mem.HeapAllocMB,
			"memoryPercentage":  pct,
			"activeConnections": g.CurrentUsers,
			"activeSessions":    g.ActiveSessions,
			"activeRooms":       g.ActiveRooms,
		},
		"server": gin.H{
			"uptime":    h.uptime().Seconds(),
			"memory":    mem,
			"goVersion": runtime.Version(),
			"numCPU":    runtime.NumCPU(),
		},
		"stats": g,
	})
}

func (h *handlers) memoryStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"memory": readMemory(),
		"state":  h.sizes(),
	})
}

// memoryCleanup runs reclaim and the auth sweep now, then forces a GC.
func (h *handlers) memoryCleanup(c *gin.Context) {
	before := h.sizes()
	rep := h.orch.Reclaim()
	swept := h.auth.Sweep()
	metrics.AuthSessionsEvicted.Add(float64(swept))
	runtime.GC()
	after := h.sizes()
	log.Info().Str("module", "adapters.http").
		Int("sessions_purged", rep.ClosedPurged+rep.OrphansPurged).
		Int("rooms_purged", rep.RoomsPurged).
		Int("auth_evicted", swept).
		Msg("manual cleanup")
	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"reclaim":             rep,
		"authSessionsEvicted": swept,
		"before":              before,
		"after":               after,
		"memory":              readMemory(),
	})
}
