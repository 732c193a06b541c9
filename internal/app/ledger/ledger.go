// Package ledger accounts for call sessions, per-room usage and process-wide
// counters, and reclaims them once they age out.
package ledger

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const DefaultMaxQualitySamples = 50

type Config struct {
	MaxQualitySamples    int
	SessionRetention     time.Duration
	OrphanTimeout        time.Duration
	RoomMetricsRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxQualitySamples:    DefaultMaxQualitySamples,
		SessionRetention:     72 * time.Hour,
		OrphanTimeout:        12 * time.Hour,
		RoomMetricsRetention: 7 * 24 * time.Hour,
	}
}

// QualitySample is a client-reported stats blob. It is stored and forwarded,
// never interpreted.
type QualitySample struct {
	ReceivedAt time.Time       `json:"receivedAt"`
	Stats      json.RawMessage `json:"stats"`
}

type session struct {
	id       core.SessionID
	conn     core.ConnID
	roomID   domain.RoomID
	user     domain.User
	start    time.Time
	end      time.Time
	duration time.Duration
	messages int64
	samples  *ring[QualitySample]
}

func (s *session) open() bool { return s.end.IsZero() }

type roomMetrics struct {
	roomID            domain.RoomID
	createdAt         time.Time
	lastActivity      time.Time
	totalParticipants int64
	peak              int
	totalMessages     int64
	totalDuration     time.Duration
	sessionIDs        []core.SessionID
}

type counters struct {
	totalRooms          int64
	totalSessions       int64
	totalMessages       int64
	peakConcurrentUsers int
	closedSessions      int64
	closedDuration      time.Duration
}

type Ledger struct {
	cfg   Config
	now   func() time.Time
	newID func() core.SessionID
	start time.Time

	mu       sync.RWMutex
	sessions map[core.SessionID]*session
	byConn   map[core.ConnID]core.SessionID
	rooms    map[domain.RoomID]*roomMetrics
	global   counters
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithIDGenerator(gen func() core.SessionID) Option {
	return func(l *Ledger) { l.newID = gen }
}

func New(cfg Config, opts ...Option) *Ledger {
	if cfg.MaxQualitySamples <= 0 {
		cfg.MaxQualitySamples = DefaultMaxQualitySamples
	}
	l := &Ledger{
		cfg:      cfg,
		now:      time.Now,
		newID:    func() core.SessionID { return core.SessionID(uuid.NewString()) },
		sessions: make(map[core.SessionID]*session),
		byConn:   make(map[core.ConnID]core.SessionID),
		rooms:    make(map[domain.RoomID]*roomMetrics),
	}
	for _, o := range opts {
		o(l)
	}
	l.start = l.now()
	return l
}

func (l *Ledger) StartTime() time.Time { return l.start }

// RoomCreated starts metrics for a room. Metrics left over from an earlier
// room with the same id keep accumulating.
func (l *Ledger) RoomCreated(roomID domain.RoomID, createdAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.global.totalRooms++
	if m, ok := l.rooms[roomID]; ok {
		m.lastActivity = createdAt
		return
	}
	l.rooms[roomID] = &roomMetrics{roomID: roomID, createdAt: createdAt, lastActivity: createdAt}
}

// OpenSession starts accounting for conn's tenure in roomID. liveMembers is
// the room size including the new member.
func (l *Ledger) OpenSession(conn core.ConnID, roomID domain.RoomID, user domain.User, liveMembers int) core.SessionID {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if prev, ok := l.byConn[conn]; ok {
		l.closeLocked(prev, now)
	}

	s := &session{
		id:      l.newID(),
		conn:    conn,
		roomID:  roomID,
		user:    user,
		start:   now,
		samples: newRing[QualitySample](l.cfg.MaxQualitySamples),
	}
	l.sessions[s.id] = s
	l.byConn[conn] = s.id

	m, ok := l.rooms[roomID]
	if !ok {
		m = &roomMetrics{roomID: roomID, createdAt: now}
		l.rooms[roomID] = m
	}
	m.totalParticipants++
	m.peak = max(m.peak, liveMembers)
	m.lastActivity = now
	m.sessionIDs = append(m.sessionIDs, s.id)

	l.global.totalSessions++
	l.global.peakConcurrentUsers = max(l.global.peakConcurrentUsers, len(l.byConn))

	log.Debug().Str("module", "ledger").Str("session", string(s.id)).Str("conn", string(conn)).Str("room_id", string(roomID)).Msg("session opened")
	return s.id
}

// CloseSession is idempotent; it reports whether an open session was closed.
func (l *Ledger) CloseSession(conn core.ConnID) (Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.byConn[conn]
	if !ok {
		return Session{}, false
	}
	s := l.closeLocked(id, l.now())
	return l.viewLocked(s, false), true
}

func (l *Ledger) closeLocked(id core.SessionID, now time.Time) *session {
	s := l.sessions[id]
	delete(l.byConn, s.conn)
	s.end = now
	s.duration = now.Sub(s.start)
	if m, ok := l.rooms[s.roomID]; ok {
		m.totalDuration += s.duration
		m.lastActivity = now
	}
	l.global.closedSessions++
	l.global.closedDuration += s.duration
	log.Debug().Str("module", "ledger").Str("session", string(id)).Dur("duration", s.duration).Msg("session closed")
	return s
}

// RecordMessage counts one chat message sent by conn.
func (l *Ledger) RecordMessage(conn core.ConnID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.global.totalMessages++
	id, ok := l.byConn[conn]
	if !ok {
		return
	}
	s := l.sessions[id]
	s.messages++
	if m, ok := l.rooms[s.roomID]; ok {
		m.totalMessages++
	}
}

// RecordQualitySample appends stats to conn's open session, evicting the
// oldest sample beyond the configured cap.
func (l *Ledger) RecordQualitySample(conn core.ConnID, stats json.RawMessage) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.byConn[conn]
	if !ok {
		return false
	}
	l.sessions[id].samples.push(QualitySample{
		ReceivedAt: l.now(),
		Stats:      append(json.RawMessage(nil), stats...),
	})
	return true
}

// SessionOf returns conn's open session.
func (l *Ledger) SessionOf(conn core.ConnID) (Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.byConn[conn]
	if !ok {
		return Session{}, false
	}
	return l.viewLocked(l.sessions[id], true), true
}

func (l *Ledger) Session(id core.SessionID) (Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sessions[id]
	if !ok {
		return Session{}, false
	}
	return l.viewLocked(s, true), true
}
