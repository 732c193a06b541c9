package http

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/huddle/internal/app/ledger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var reportPeriods = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

type reportQuery struct {
	Period string `form:"period" binding:"omitempty,oneof=1h 24h 7d 30d"`
	Format string `form:"format" binding:"omitempty,oneof=json csv"`
}

type usageSummary struct {
	TotalSessions        int   `json:"totalSessions"`
	TotalMessages        int64 `json:"totalMessages"`
	UniqueUsers          int   `json:"uniqueUsers"`
	UniqueRooms          int   `json:"uniqueRooms"`
	TotalDurationMs      int64 `json:"totalDuration"`
	AvgSessionDurationMs int64 `json:"avgSessionDuration"`
}

type usageReport struct {
	Period      string           `json:"period"`
	From        time.Time        `json:"from"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Summary     usageSummary     `json:"summary"`
	Sessions    []ledger.Session `json:"sessions"`
}

func summarize(sessions []ledger.Session) usageSummary {
	var s usageSummary
	users := make(map[string]struct{})
	rooms := make(map[string]struct{})
	for _, x := range sessions {
		s.TotalSessions++
		s.TotalMessages += x.MessageCount
		s.TotalDurationMs += x.DurationMs
		users[string(x.UserID)] = struct{}{}
		rooms[string(x.RoomID)] = struct{}{}
	}
	s.UniqueUsers = len(users)
	s.UniqueRooms = len(rooms)
	if s.TotalSessions > 0 {
		s.AvgSessionDurationMs = s.TotalDurationMs / int64(s.TotalSessions)
	}
	return s
}

// usageReport covers sessions active at some point in the period: open ones
// and those that ended after its start, as far as the ledger still retains them.
func (h *handlers) usageReport(c *gin.Context) {
	var q reportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortError(c, http.StatusBadRequest, "period must be one of 1h, 24h, 7d, 30d and format json or csv")
		return
	}
	if q.Period == "" {
		q.Period = "24h"
	}
	now := time.Now()
	from := now.Add(-reportPeriods[q.Period])
	sessions := h.orch.Ledger.SessionsSince(from)

	if q.Format == "csv" {
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=usage-report-%s.csv", q.Period))
		c.Status(http.StatusOK)
		if err := writeCSV(c.Writer, sessions); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("write csv report")
		}
		return
	}
	c.JSON(http.StatusOK, usageReport{
		Period:      q.Period,
		From:        from,
		GeneratedAt: now,
		Summary:     summarize(sessions),
		Sessions:    sessions,
	})
}

var csvHeader = []string{
	"sessionId", "roomId", "userId", "displayName", "startTime", "endTime",
	"durationSeconds", "messageCount", "sampleCount", "active",
}

func writeCSV(w io.Writer, sessions []ledger.Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range sessions {
		end := ""
		if s.EndTime != nil {
			end = s.EndTime.UTC().Format(time.RFC3339)
		}
		row := []string{
			string(s.ID),
			string(s.RoomID),
			string(s.UserID),
			s.DisplayName,
			s.StartTime.UTC().Format(time.RFC3339),
			end,
			strconv.FormatInt(int64(s.Duration/time.Second), 10),
			strconv.FormatInt(s.MessageCount, 10),
			strconv.Itoa(s.SampleCount),
			strconv.FormatBool(s.Active),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
