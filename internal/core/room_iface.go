package core

import (
	"time"

	"github.com/dkeye/huddle/internal/domain"
)

// RoomTicket is issued by Authorize and redeemed by Admit. It pins the room
// incarnation that was authorized so a room deleted and recreated in between
// is not joined with a stale password check.
type RoomTicket struct {
	ID         domain.RoomID
	Generation uint64
}

// JoinResult carries the membership snapshot taken right before admission.
type JoinResult struct {
	RoomID   domain.RoomID
	Existing []domain.User
	IsOwner  bool
}

type RoomInfo struct {
	ID          domain.RoomID `json:"roomId"`
	Owner       domain.UserID `json:"ownerUserId"`
	CreatedAt   time.Time     `json:"createdAt"`
	MemberCount int           `json:"memberCount"`
	Locked      bool          `json:"passwordProtected"`
}

// RoomRegistry is the core-facing API of the room registry.
// It owns room membership but never touches transport resources.
type RoomRegistry interface {
	Exists(id domain.RoomID) bool
	// HashPassword is slow; call it before taking any shared lock.
	HashPassword(password string) ([]byte, error)
	CreateRoom(id domain.RoomID, owner domain.User, passwordHash []byte) (RoomInfo, error)
	// Authorize checks the password outside of the registry lock.
	Authorize(id domain.RoomID, password string) (RoomTicket, error)
	Admit(t RoomTicket, user domain.User) (JoinResult, error)
	// LeaveRoom reports whether the room was deleted because it became empty.
	LeaveRoom(id domain.RoomID, user domain.UserID) bool
	MemberCount(id domain.RoomID) (int, bool)
	Members(id domain.RoomID) ([]domain.User, bool)
	List() []RoomInfo
}
