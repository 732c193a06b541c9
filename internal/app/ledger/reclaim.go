package ledger

import (
	"context"
	"slices"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Liveness answers questions about state owned by other components. Both
// funcs are called without the ledger lock held.
type Liveness struct {
	ConnLive func(core.ConnID) bool
	RoomLive func(domain.RoomID) bool
}

type ReclaimReport struct {
	ClosedPurged  int `json:"closedSessionsPurged"`
	OrphansPurged int `json:"orphanSessionsPurged"`
	RefsDropped   int `json:"sessionRefsDropped"`
	RoomsPurged   int `json:"roomMetricsPurged"`
}

// Reclaim purges expired sessions, then room metrics of rooms that are gone.
// A session whose connection is still live and the metrics of a registered
// room are never removed.
func (l *Ledger) Reclaim(live Liveness) ReclaimReport {
	var rep ReclaimReport
	rep.ClosedPurged, rep.OrphansPurged = l.reclaimSessions(live)
	rep.RefsDropped, rep.RoomsPurged = l.reclaimRooms(live)
	return rep
}

func (l *Ledger) reclaimSessions(live Liveness) (closed, orphans int) {
	now := l.now()

	type candidate struct {
		id   core.SessionID
		conn core.ConnID
		open bool
	}
	l.mu.RLock()
	var cands []candidate
	for id, s := range l.sessions {
		switch {
		case !s.open() && now.Sub(s.end) > l.cfg.SessionRetention:
			cands = append(cands, candidate{id: id, conn: s.conn})
		case s.open() && now.Sub(s.start) > l.cfg.OrphanTimeout:
			cands = append(cands, candidate{id: id, conn: s.conn, open: true})
		}
	}
	l.mu.RUnlock()

	cands = slices.DeleteFunc(cands, func(c candidate) bool {
		return c.open && live.ConnLive != nil && live.ConnLive(c.conn)
	})
	if len(cands) == 0 {
		return 0, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range cands {
		s, ok := l.sessions[c.id]
		if !ok || s.open() != c.open {
			continue
		}
		delete(l.sessions, c.id)
		if c.open {
			// Abandoned: no duration is folded into the room.
			if l.byConn[s.conn] == c.id {
				delete(l.byConn, s.conn)
			}
			orphans++
			continue
		}
		closed++
	}
	return closed, orphans
}

func (l *Ledger) reclaimRooms(live Liveness) (refs, rooms int) {
	now := l.now()

	l.mu.RLock()
	var cands []domain.RoomID
	for id, m := range l.rooms {
		if now.Sub(m.lastActivity) > l.cfg.RoomMetricsRetention {
			cands = append(cands, id)
		}
	}
	l.mu.RUnlock()

	cands = slices.DeleteFunc(cands, func(id domain.RoomID) bool {
		return live.RoomLive != nil && live.RoomLive(id)
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	openRooms := make(map[domain.RoomID]struct{}, len(l.byConn))
	for _, id := range l.byConn {
		openRooms[l.sessions[id].roomID] = struct{}{}
	}
	for _, m := range l.rooms {
		before := len(m.sessionIDs)
		m.sessionIDs = slices.DeleteFunc(m.sessionIDs, func(id core.SessionID) bool {
			_, ok := l.sessions[id]
			return !ok
		})
		refs += before - len(m.sessionIDs)
	}
	for _, id := range cands {
		m, ok := l.rooms[id]
		if !ok || now.Sub(m.lastActivity) <= l.cfg.RoomMetricsRetention {
			continue
		}
		if _, busy := openRooms[id]; busy {
			continue
		}
		delete(l.rooms, id)
		rooms++
	}
	return refs, rooms
}

// Run reclaims every interval until ctx is done.
func (l *Ledger) Run(ctx context.Context, interval time.Duration, live Liveness) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	log.Info().Str("module", "ledger").Dur("interval", interval).Msg("reclaim loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "ledger").Msg("reclaim loop stopped")
			return nil
		case <-t.C:
			rep := l.Reclaim(live)
			Observe(rep)
		}
	}
}

// Observe logs a reclaim report and feeds the reclaim counters.
func Observe(rep ReclaimReport) {
	metrics.Reclaimed.WithLabelValues("closed_session").Add(float64(rep.ClosedPurged))
	metrics.Reclaimed.WithLabelValues("orphan_session").Add(float64(rep.OrphansPurged))
	metrics.Reclaimed.WithLabelValues("room_metrics").Add(float64(rep.RoomsPurged))
	if rep == (ReclaimReport{}) {
		return
	}
	log.Info().
		Str("module", "ledger").
		Int("closed", rep.ClosedPurged).
		Int("orphans", rep.OrphansPurged).
		Int("refs", rep.RefsDropped).
		Int("rooms", rep.RoomsPurged).
		Msg("reclaimed")
}
