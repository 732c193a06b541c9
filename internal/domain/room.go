package domain

import (
	"maps"
	"slices"
	"time"
)

const MaxRoomIDLen = 64

type RoomID string

func (id RoomID) Validate() error {
	if len(id) == 0 {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return ErrRoomIDTooLong
	}
	return nil
}

// Room is the registry record of a live room. A room with zero members is
// never stored. Members maps user id to display name.
type Room struct {
	ID           RoomID
	Owner        UserID
	CreatedAt    time.Time
	PasswordHash []byte
	Members      map[UserID]string
}

func (r *Room) HasPassword() bool { return len(r.PasswordHash) > 0 }

// MemberList returns the members sorted by user id.
func (r *Room) MemberList() []User {
	ids := slices.Sorted(maps.Keys(r.Members))
	out := make([]User, 0, len(ids))
	for _, id := range ids {
		out = append(out, User{ID: id, DisplayName: r.Members[id]})
	}
	return out
}
