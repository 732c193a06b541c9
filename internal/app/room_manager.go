package app

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

type roomEntry struct {
	room *domain.Room
	gen  uint64
}

// RoomManagerImpl is the in-memory room registry.
type RoomManagerImpl struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomID]*roomEntry
	nextGen uint64

	cost int
	now  func() time.Time
}

type RoomManagerOption func(*RoomManagerImpl)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) RoomManagerOption {
	return func(f *RoomManagerImpl) { f.cost = cost }
}

func WithRoomClock(now func() time.Time) RoomManagerOption {
	return func(f *RoomManagerImpl) { f.now = now }
}

func NewRoomManager(opts ...RoomManagerOption) *RoomManagerImpl {
	f := &RoomManagerImpl{
		rooms: make(map[domain.RoomID]*roomEntry),
		cost:  bcrypt.DefaultCost,
		now:   time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

var _ core.RoomRegistry = (*RoomManagerImpl)(nil)

func (f *RoomManagerImpl) Exists(id domain.RoomID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.rooms[id]
	return ok
}

// HashPassword returns nil for an empty password.
func (f *RoomManagerImpl) HashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), f.cost)
	if err != nil {
		return nil, fmt.Errorf("hash room password: %w", err)
	}
	return hash, nil
}

func (f *RoomManagerImpl) CreateRoom(id domain.RoomID, owner domain.User, passwordHash []byte) (core.RoomInfo, error) {
	if err := id.Validate(); err != nil {
		return core.RoomInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[id]; ok {
		return core.RoomInfo{}, fmt.Errorf("create %q: %w", id, domain.ErrRoomExists)
	}
	f.nextGen++
	room := &domain.Room{
		ID:           id,
		Owner:        owner.ID,
		CreatedAt:    f.now(),
		PasswordHash: bytes.Clone(passwordHash),
		Members:      map[domain.UserID]string{owner.ID: owner.DisplayName},
	}
	f.rooms[id] = &roomEntry{room: room, gen: f.nextGen}
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Str("owner", string(owner.ID)).Bool("locked", room.HasPassword()).Msg("room created")
	return infoOf(room), nil
}

func (f *RoomManagerImpl) Authorize(id domain.RoomID, password string) (core.RoomTicket, error) {
	f.mu.RLock()
	e, ok := f.rooms[id]
	var (
		hash []byte
		gen  uint64
	)
	if ok {
		hash, gen = e.room.PasswordHash, e.gen
	}
	f.mu.RUnlock()
	if !ok {
		return core.RoomTicket{}, fmt.Errorf("join %q: %w", id, domain.ErrRoomNotFound)
	}

	if len(hash) > 0 {
		if password == "" {
			return core.RoomTicket{}, fmt.Errorf("join %q: %w", id, domain.ErrPasswordRequired)
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
			return core.RoomTicket{}, fmt.Errorf("join %q: %w", id, domain.ErrPasswordIncorrect)
		}
	}
	return core.RoomTicket{ID: id, Generation: gen}, nil
}

func (f *RoomManagerImpl) Admit(t core.RoomTicket, user domain.User) (core.JoinResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rooms[t.ID]
	if !ok || e.gen != t.Generation {
		return core.JoinResult{}, fmt.Errorf("join %q: %w", t.ID, domain.ErrRoomNotFound)
	}
	res := core.JoinResult{
		RoomID:  t.ID,
		IsOwner: e.room.Owner == user.ID,
	}
	for _, m := range e.room.MemberList() {
		if m.ID != user.ID {
			res.Existing = append(res.Existing, m)
		}
	}
	e.room.Members[user.ID] = user.DisplayName
	log.Info().Str("module", "app.rooms").Str("room_id", string(t.ID)).Str("user", string(user.ID)).Int("members", len(e.room.Members)).Msg("member joined")
	return res, nil
}

func (f *RoomManagerImpl) LeaveRoom(id domain.RoomID, user domain.UserID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rooms[id]
	if !ok {
		return false
	}
	if _, member := e.room.Members[user]; !member {
		return false
	}
	delete(e.room.Members, user)
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Str("user", string(user)).Msg("member left")
	if len(e.room.Members) > 0 {
		return false
	}
	delete(f.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Msg("room deleted")
	return true
}

func (f *RoomManagerImpl) MemberCount(id domain.RoomID) (int, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.rooms[id]
	if !ok {
		return 0, false
	}
	return len(e.room.Members), true
}

func (f *RoomManagerImpl) Members(id domain.RoomID) ([]domain.User, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.rooms[id]
	if !ok {
		return nil, false
	}
	return e.room.MemberList(), true
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for _, e := range f.rooms {
		out = append(out, infoOf(e.room))
	}
	return out
}

func infoOf(r *domain.Room) core.RoomInfo {
	return core.RoomInfo{
		ID:          r.ID,
		Owner:       r.Owner,
		CreatedAt:   r.CreatedAt,
		MemberCount: len(r.Members),
		Locked:      r.HasPassword(),
	}
}
