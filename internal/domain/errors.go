package domain

import "errors"

var (
	ErrUserIDEmpty        = errors.New("user id empty")
	ErrUserIDTooLong      = errors.New("user id too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrRoomIDEmpty        = errors.New("room id empty")
	ErrRoomIDTooLong      = errors.New("room id too long")
	ErrBadPayload         = errors.New("bad payload")

	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomMetricsNotFound = errors.New("room metrics not found")

	ErrPasswordRequired  = errors.New("password required")
	ErrPasswordIncorrect = errors.New("password incorrect")
	ErrUnauthenticated   = errors.New("unauthenticated")

	ErrRoomExists    = errors.New("room already exists")
	ErrAlreadyInRoom = errors.New("already in room")
	ErrNotInRoom     = errors.New("not in a room")
	ErrNotConnected  = errors.New("connection not registered")

	ErrRateLimited = errors.New("too many attempts")
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindAuth       ErrorKind = "auth"
	KindConflict   ErrorKind = "conflict"
	KindRateLimit  ErrorKind = "rate_limit"
	KindInternal   ErrorKind = "internal"
)

// Kind classifies err into the error taxonomy used for responses and logs.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrUserIDEmpty),
		errors.Is(err, ErrUserIDTooLong),
		errors.Is(err, ErrDisplayNameTooLong),
		errors.Is(err, ErrRoomIDEmpty),
		errors.Is(err, ErrRoomIDTooLong),
		errors.Is(err, ErrBadPayload):
		return KindValidation
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrRoomMetricsNotFound),
		errors.Is(err, ErrNotInRoom):
		return KindNotFound
	case errors.Is(err, ErrPasswordRequired),
		errors.Is(err, ErrPasswordIncorrect),
		errors.Is(err, ErrUnauthenticated):
		return KindAuth
	case errors.Is(err, ErrRoomExists), errors.Is(err, ErrAlreadyInRoom):
		return KindConflict
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	}
	return KindInternal
}
