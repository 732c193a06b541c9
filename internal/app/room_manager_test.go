package app_test

import (
	"errors"
	"testing"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

func newRooms() *app.RoomManagerImpl {
	return app.NewRoomManager(app.WithBcryptCost(bcrypt.MinCost))
}

func u(id string) domain.User {
	return domain.User{ID: domain.UserID(id), DisplayName: id}
}

func TestCreateRoomStoresOnlyHash(t *testing.T) {
	rooms := newRooms()
	hash, err := rooms.HashPassword("p1")
	if err != nil {
		t.Fatal(err)
	}
	if string(hash) == "p1" || len(hash) == 0 {
		t.Fatalf("hash = %q", hash)
	}
	info, err := rooms.CreateRoom("abc", u("owner"), hash)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Locked || info.MemberCount != 1 || info.Owner != "owner" {
		t.Fatalf("info = %+v", info)
	}
	if _, err := rooms.CreateRoom("abc", u("x"), nil); !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("duplicate create err = %v", err)
	}
	if nohash, _ := rooms.HashPassword(""); nohash != nil {
		t.Fatal("empty password must not be hashed")
	}
}

func TestAuthorizeAndAdmit(t *testing.T) {
	rooms := newRooms()
	hash, _ := rooms.HashPassword("p1")
	if _, err := rooms.CreateRoom("abc", u("A"), hash); err != nil {
		t.Fatal(err)
	}

	for pw, want := range map[string]error{
		"":   domain.ErrPasswordRequired,
		"p2": domain.ErrPasswordIncorrect,
	} {
		if _, err := rooms.Authorize("abc", pw); !errors.Is(err, want) {
			t.Fatalf("password %q: err = %v", pw, err)
		}
	}
	if _, err := rooms.Authorize("nope", ""); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("unknown room err = %v", err)
	}

	ticket, err := rooms.Authorize("abc", "p1")
	if err != nil {
		t.Fatal(err)
	}
	res, err := rooms.Admit(ticket, u("B"))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsOwner || len(res.Existing) != 1 || res.Existing[0].ID != "A" {
		t.Fatalf("join result = %+v", res)
	}

	ticket, _ = rooms.Authorize("abc", "p1")
	res, err = rooms.Admit(ticket, u("A"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsOwner || len(res.Existing) != 1 || res.Existing[0].ID != "B" {
		t.Fatalf("owner rejoin = %+v", res)
	}
}

func TestAdmitRejectsRecreatedRoom(t *testing.T) {
	rooms := newRooms()
	if _, err := rooms.CreateRoom("r", u("A"), nil); err != nil {
		t.Fatal(err)
	}
	ticket, err := rooms.Authorize("r", "")
	if err != nil {
		t.Fatal(err)
	}
	if !rooms.LeaveRoom("r", "A") {
		t.Fatal("last leave must delete the room")
	}
	if _, err := rooms.CreateRoom("r", u("C"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := rooms.Admit(ticket, u("B")); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("stale ticket err = %v", err)
	}
}

func TestLeaveRoomIdempotent(t *testing.T) {
	rooms := newRooms()
	if _, err := rooms.CreateRoom("r", u("A"), nil); err != nil {
		t.Fatal(err)
	}
	ticket, _ := rooms.Authorize("r", "")
	if _, err := rooms.Admit(ticket, u("B")); err != nil {
		t.Fatal(err)
	}
	if rooms.LeaveRoom("r", "A") || rooms.LeaveRoom("r", "A") {
		t.Fatal("room with members left must not be deleted")
	}
	if n, _ := rooms.MemberCount("r"); n != 1 {
		t.Fatalf("count = %d", n)
	}
	if !rooms.LeaveRoom("r", "B") {
		t.Fatal("room should be deleted")
	}
	if rooms.Exists("r") || rooms.LeaveRoom("r", "B") {
		t.Fatal("room still present")
	}
	if len(rooms.List()) != 0 {
		t.Fatal("list not empty")
	}
}
