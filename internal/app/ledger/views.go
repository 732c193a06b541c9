package ledger

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

// Session is a read-only copy of a ledger session.
type Session struct {
	ID             core.SessionID  `json:"sessionId"`
	RoomID         domain.RoomID   `json:"roomId"`
	UserID         domain.UserID   `json:"userId"`
	DisplayName    string          `json:"displayName"`
	StartTime      time.Time       `json:"startTime"`
	EndTime        *time.Time      `json:"endTime,omitempty"`
	Duration       time.Duration   `json:"-"`
	DurationMs     int64           `json:"duration"`
	MessageCount   int64           `json:"messageCount"`
	Active         bool            `json:"active"`
	SampleCount    int             `json:"sampleCount"`
	QualitySamples []QualitySample `json:"qualitySamples,omitempty"`
}

// RoomStats merges RoomMetrics with the live membership size.
type RoomStats struct {
	RoomID              domain.RoomID    `json:"roomId"`
	CreatedAt           time.Time        `json:"createdAt"`
	Live                bool             `json:"live"`
	CurrentParticipants int              `json:"currentParticipants"`
	TotalParticipants   int64            `json:"totalParticipants"`
	PeakParticipants    int              `json:"peakParticipants"`
	TotalMessages       int64            `json:"totalMessages"`
	TotalDurationMs     int64            `json:"totalDuration"`
	SessionIDs          []core.SessionID `json:"sessionIds"`
}

type GlobalStats struct {
	TotalRooms           int64     `json:"totalRooms"`
	TotalSessions        int64     `json:"totalSessions"`
	TotalMessages        int64     `json:"totalMessages"`
	PeakConcurrentUsers  int       `json:"peakConcurrentUsers"`
	ServerStartTime      time.Time `json:"serverStartTime"`
	ActiveSessions       int       `json:"activeSessions"`
	AvgSessionDurationMs int64     `json:"avgSessionDuration"`
	UptimeMs             int64     `json:"uptime"`
}

type Sizes struct {
	Sessions       int `json:"sessions"`
	OpenSessions   int `json:"openSessions"`
	RoomMetrics    int `json:"roomMetrics"`
	QualitySamples int `json:"qualitySamples"`
}

// viewLocked copies s; live sessions report their running duration.
func (l *Ledger) viewLocked(s *session, withSamples bool) Session {
	v := Session{
		ID:           s.id,
		RoomID:       s.roomID,
		UserID:       s.user.ID,
		DisplayName:  s.user.DisplayName,
		StartTime:    s.start,
		Duration:     s.duration,
		MessageCount: s.messages,
		Active:       s.open(),
		SampleCount:  s.samples.len(),
	}
	if s.open() {
		v.Duration = l.now().Sub(s.start)
	} else {
		end := s.end
		v.EndTime = &end
	}
	v.DurationMs = v.Duration.Milliseconds()
	if withSamples {
		v.QualitySamples = s.samples.items()
	}
	return v
}

func (l *Ledger) Global() GlobalStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g := GlobalStats{
		TotalRooms:          l.global.totalRooms,
		TotalSessions:       l.global.totalSessions,
		TotalMessages:       l.global.totalMessages,
		PeakConcurrentUsers: l.global.peakConcurrentUsers,
		ServerStartTime:     l.start,
		ActiveSessions:      len(l.byConn),
		UptimeMs:            l.now().Sub(l.start).Milliseconds(),
	}
	if l.global.closedSessions > 0 {
		g.AvgSessionDurationMs = (l.global.closedDuration / time.Duration(l.global.closedSessions)).Milliseconds()
	}
	return g
}

// RoomStats returns ErrRoomMetricsNotFound for unknown or reclaimed rooms.
// live is the current member count, negative when the room is not registered.
func (l *Ledger) RoomStats(roomID domain.RoomID, live int) (RoomStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.rooms[roomID]
	if !ok {
		return RoomStats{}, fmt.Errorf("stats %q: %w", roomID, domain.ErrRoomMetricsNotFound)
	}
	return statsOf(m, live), nil
}

// Rooms lists every retained room, newest first. live maps registered rooms
// to their member count.
func (l *Ledger) Rooms(live map[domain.RoomID]int) []RoomStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]RoomStats, 0, len(l.rooms))
	for id, m := range l.rooms {
		n, ok := live[id]
		if !ok {
			n = -1
		}
		out = append(out, statsOf(m, n))
	}
	slices.SortFunc(out, func(a, b RoomStats) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

func statsOf(m *roomMetrics, live int) RoomStats {
	st := RoomStats{
		RoomID:            m.roomID,
		CreatedAt:         m.createdAt,
		Live:              live >= 0,
		TotalParticipants: m.totalParticipants,
		PeakParticipants:  m.peak,
		TotalMessages:     m.totalMessages,
		TotalDurationMs:   m.totalDuration.Milliseconds(),
		SessionIDs:        slices.Clone(m.sessionIDs),
	}
	if live > 0 {
		st.CurrentParticipants = live
		st.PeakParticipants = max(st.PeakParticipants, live)
	}
	return st
}

// RecentSessions returns up to n sessions, most recently started first.
func (l *Ledger) RecentSessions(n int) []Session {
	out := l.collect(func(*session) bool { return true })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SessionsSince returns sessions that were active at or after since.
func (l *Ledger) SessionsSince(since time.Time) []Session {
	return l.collect(func(s *session) bool {
		return s.open() || !s.end.Before(since)
	})
}

func (l *Ledger) RoomSessions(roomID domain.RoomID) []Session {
	return l.collect(func(s *session) bool { return s.roomID == roomID })
}

func (l *Ledger) collect(keep func(*session) bool) []Session {
	l.mu.RLock()
	out := make([]Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		if keep(s) {
			out = append(out, l.viewLocked(s, false))
		}
	}
	l.mu.RUnlock()
	slices.SortFunc(out, func(a, b Session) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (l *Ledger) Sizes() Sizes {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sz := Sizes{
		Sessions:     len(l.sessions),
		OpenSessions: len(l.byConn),
		RoomMetrics:  len(l.rooms),
	}
	for _, s := range l.sessions {
		sz.QualitySamples += s.samples.len()
	}
	return sz
}
