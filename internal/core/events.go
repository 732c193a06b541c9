package core

import (
	"encoding/json"

	"github.com/dkeye/huddle/internal/domain"
)

type EventType string

// Inbound events.
const (
	EventCreateRoom   EventType = "create-room"
	EventJoinRoom     EventType = "join-room"
	EventLeaveRoom    EventType = "leave-room"
	EventOffer        EventType = "offer"
	EventAnswer       EventType = "answer"
	EventICECandidate EventType = "ice-candidate"
	EventChatMessage  EventType = "chat-message"
	EventWebRTCStats  EventType = "webrtc-stats"
	EventPing         EventType = "ping"
)

// Outbound events.
const (
	EventRoomCreated       EventType = "room-created"
	EventRoomJoined        EventType = "room-joined"
	EventRoomLeft          EventType = "room-left"
	EventRoomError         EventType = "room-error"
	EventUserConnected     EventType = "user-connected"
	EventUserDisconnected  EventType = "user-disconnected"
	EventUserQualityUpdate EventType = "user-quality-update"
	EventPong              EventType = "pong"
)

// IsSignal reports whether t is one of the opaque negotiation kinds.
func (t EventType) IsSignal() bool {
	return t == EventOffer || t == EventAnswer || t == EventICECandidate
}

type Envelope struct {
	Type EventType `json:"type"`
}

type RoomRequest struct {
	RoomID      string `json:"roomId" validate:"required,max=64"`
	UserID      string `json:"userId" validate:"required,max=64"`
	DisplayName string `json:"displayName" validate:"max=64"`
	Password    string `json:"password,omitempty" validate:"max=128"`
}

// SignalRequest carries an offer, answer or ice-candidate body that is never
// parsed by the server.
type SignalRequest struct {
	Payload      json.RawMessage `json:"payload" validate:"required"`
	TargetUserID string          `json:"targetUserId,omitempty" validate:"max=64"`
}

type ChatMessage struct {
	Message     string        `json:"message" validate:"required,max=4096"`
	DisplayName string        `json:"displayName"`
	UserID      domain.UserID `json:"userId"`
	Timestamp   int64         `json:"timestamp"`
}

type ChatRequest struct {
	Message ChatMessage `json:"message"`
	RoomID  string      `json:"roomId" validate:"required,max=64"`
}

type StatsRequest struct {
	Stats json.RawMessage `json:"stats" validate:"required"`
}

type RoomCreated struct {
	Type   EventType     `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type RoomJoined struct {
	Type    EventType     `json:"type"`
	RoomID  domain.RoomID `json:"roomId"`
	IsOwner bool          `json:"isOwner"`
}

type RoomLeft struct {
	Type   EventType     `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type RoomError struct {
	Type    EventType        `json:"type"`
	Message string           `json:"message"`
	Code    domain.ErrorKind `json:"code"`
}

type UserConnected struct {
	Type        EventType     `json:"type"`
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName"`
}

type UserDisconnected struct {
	Type   EventType     `json:"type"`
	UserID domain.UserID `json:"userId"`
}

type SignalForward struct {
	Type         EventType       `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	FromUserID   domain.UserID   `json:"fromUserId"`
	TargetUserID domain.UserID   `json:"targetUserId,omitempty"`
}

type ChatForward struct {
	Type    EventType     `json:"type"`
	Message ChatMessage   `json:"message"`
	RoomID  domain.RoomID `json:"roomId"`
}

type QualityUpdate struct {
	Type        EventType       `json:"type"`
	UserID      domain.UserID   `json:"userId"`
	DisplayName string          `json:"displayName"`
	Stats       json.RawMessage `json:"stats"`
}

type Pong struct {
	Type EventType `json:"type"`
}

func Encode(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
