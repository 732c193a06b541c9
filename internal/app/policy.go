package app

import "github.com/dkeye/huddle/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a recipient whose send queue is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, member PresenceSnap) BackpressureAction
}

// SimplePolicy disconnects slow consumers.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, PresenceSnap) BackpressureAction {
	return KickMember
}

// DropPolicy drops the frame and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.RoomID, PresenceSnap) BackpressureAction {
	return DropFrame
}

// PolicyByName maps a config value to a Policy; unknown names drop.
func PolicyByName(name string) Policy {
	if name == "kick" {
		return SimplePolicy{}
	}
	return DropPolicy{}
}
