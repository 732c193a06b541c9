package orch_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/ledger"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var errFull = errors.New("full")

type fakeConn struct {
	mu       sync.Mutex
	frames   []core.Frame
	full     bool
	canceled bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) ofType(t *testing.T, typ core.EventType) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, e := range c.events(t) {
		if e["type"] == string(typ) {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func newOrch(policy app.Policy) *orch.Orchestrator {
	return &orch.Orchestrator{
		Rooms:    app.NewRoomManager(app.WithBcryptCost(bcrypt.MinCost)),
		Presence: app.NewPresence(),
		Ledger:   ledger.New(ledger.DefaultConfig()),
		Policy:   policy,
	}
}

func connect(o *orch.Orchestrator, id string) *fakeConn {
	fc := &fakeConn{}
	o.Connect(core.NewParticipant(core.ConnID(id), fc), func() {
		fc.mu.Lock()
		fc.canceled = true
		fc.mu.Unlock()
	})
	return fc
}

func req(room, user, pw string) core.RoomRequest {
	return core.RoomRequest{RoomID: room, UserID: user, DisplayName: user, Password: pw}
}

func TestPasswordGatedJoin(t *testing.T) {
	o := newOrch(nil)
	a := connect(o, "ca")
	b := connect(o, "cb")

	if err := o.CreateRoom("ca", req("abc", "alice", "p1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := a.ofType(t, core.EventRoomCreated); len(got) != 1 || got[0]["roomId"] != "abc" {
		t.Fatalf("room-created = %v", got)
	}

	_, err := o.JoinRoom("cb", req("abc", "bob", "p2"))
	if !errors.Is(err, domain.ErrPasswordIncorrect) {
		t.Fatalf("wrong password err = %v", err)
	}
	_, err = o.JoinRoom("cb", req("abc", "bob", ""))
	if !errors.Is(err, domain.ErrPasswordRequired) {
		t.Fatalf("missing password err = %v", err)
	}
	if n, _ := o.Rooms.MemberCount("abc"); n != 1 {
		t.Fatalf("failed joins must not change membership, count = %d", n)
	}

	res, err := o.JoinRoom("cb", req("abc", "bob", "p1"))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if res.IsOwner {
		t.Fatal("joiner must not be owner")
	}
	joined := b.ofType(t, core.EventRoomJoined)
	if len(joined) != 1 || joined[0]["roomId"] != "abc" || joined[0]["isOwner"] != false {
		t.Fatalf("room-joined = %v", joined)
	}
	if got := b.ofType(t, core.EventUserConnected); len(got) != 1 || got[0]["userId"] != "alice" {
		t.Fatalf("joiner should learn about alice, got %v", got)
	}
	if got := a.ofType(t, core.EventUserConnected); len(got) != 1 || got[0]["userId"] != "bob" {
		t.Fatalf("alice should learn about bob, got %v", got)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	o := newOrch(nil)
	connect(o, "c1")
	_, err := o.JoinRoom("c1", req("nope", "u", ""))
	if !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("err = %v", err)
	}
	if domain.Kind(err) != domain.KindNotFound {
		t.Fatalf("kind = %s", domain.Kind(err))
	}
}

func TestCreateExistingRoom(t *testing.T) {
	o := newOrch(nil)
	connect(o, "c1")
	connect(o, "c2")
	if err := o.CreateRoom("c1", req("r", "a", "")); err != nil {
		t.Fatal(err)
	}
	err := o.CreateRoom("c2", req("r", "b", ""))
	if !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("err = %v", err)
	}
}

func TestInvalidRequest(t *testing.T) {
	o := newOrch(nil)
	connect(o, "c1")
	err := o.CreateRoom("c1", req("", "a", ""))
	if domain.Kind(err) != domain.KindValidation {
		t.Fatalf("empty room id: %v", err)
	}
	_, err = o.JoinRoom("c1", req("r", "", ""))
	if domain.Kind(err) != domain.KindValidation {
		t.Fatalf("empty user id: %v", err)
	}
}

func TestDisconnectLifecycle(t *testing.T) {
	o := newOrch(nil)
	connect(o, "ca")
	b := connect(o, "cb")

	if err := o.CreateRoom("ca", req("r1", "A", "")); err != nil {
		t.Fatal(err)
	}
	if _, err := o.JoinRoom("cb", req("r1", "B", "")); err != nil {
		t.Fatal(err)
	}

	o.Disconnect("ca")
	members, ok := o.Rooms.Members("r1")
	if !ok || len(members) != 1 || members[0].ID != "B" {
		t.Fatalf("members after A left = %v", members)
	}
	if got := b.ofType(t, core.EventUserDisconnected); len(got) != 1 || got[0]["userId"] != "A" {
		t.Fatalf("user-disconnected = %v", got)
	}

	o.Disconnect("cb")
	o.Disconnect("cb")
	if o.Rooms.Exists("r1") {
		t.Fatal("empty room must be deleted")
	}
	stats, err := o.RoomStats("r1")
	if err != nil {
		t.Fatalf("metrics must survive the room: %v", err)
	}
	if stats.TotalParticipants != 2 {
		t.Fatalf("totalParticipants = %d", stats.TotalParticipants)
	}
	if stats.Live {
		t.Fatal("deleted room reported live")
	}
	if o.Ledger.Global().ActiveSessions != 0 {
		t.Fatal("sessions left open after disconnect")
	}
}

func TestTargetedRelay(t *testing.T) {
	o := newOrch(nil)
	a := connect(o, "ca")
	b := connect(o, "cb")
	c := connect(o, "cc")
	if err := o.CreateRoom("ca", req("r", "A", "")); err != nil {
		t.Fatal(err)
	}
	for id, u := range map[string]string{"cb": "B", "cc": "C"} {
		if _, err := o.JoinRoom(core.ConnID(id), req("r", u, "")); err != nil {
			t.Fatal(err)
		}
	}
	a.reset()
	b.reset()
	c.reset()

	payload := json.RawMessage(`{"sdp":"v=0 opaque","type":"offer"}`)
	if n := o.Relay("ca", core.EventOffer, payload, "B"); n != 1 {
		t.Fatalf("delivered to %d", n)
	}
	got := b.ofType(t, core.EventOffer)
	if len(got) != 1 || got[0]["fromUserId"] != "A" || got[0]["targetUserId"] != "B" {
		t.Fatalf("offer at B = %v", got)
	}
	body, _ := json.Marshal(got[0]["payload"])
	var want, have map[string]any
	_ = json.Unmarshal(payload, &want)
	_ = json.Unmarshal(body, &have)
	if fmt.Sprint(want) != fmt.Sprint(have) {
		t.Fatalf("payload altered: %s", body)
	}
	if len(c.events(t)) != 0 {
		t.Fatalf("C received %v", c.events(t))
	}
	if len(a.events(t)) != 0 {
		t.Fatal("sender must not receive its own offer")
	}
}

func TestBroadcastRelayAndMissingTarget(t *testing.T) {
	o := newOrch(nil)
	a := connect(o, "ca")
	b := connect(o, "cb")
	c := connect(o, "cc")
	if err := o.CreateRoom("ca", req("r", "A", "")); err != nil {
		t.Fatal(err)
	}
	if _, err := o.JoinRoom("cb", req("r", "B", "")); err != nil {
		t.Fatal(err)
	}
	if err := o.CreateRoom("cc", req("other", "C", "")); err != nil {
		t.Fatal(err)
	}
	a.reset()
	b.reset()
	c.reset()

	if n := o.Relay("ca", core.EventICECandidate, json.RawMessage(`{}`), ""); n != 1 {
		t.Fatalf("broadcast delivered to %d", n)
	}
	if len(b.ofType(t, core.EventICECandidate)) != 1 {
		t.Fatal("B missed broadcast")
	}
	if len(c.events(t)) != 0 || len(a.events(t)) != 0 {
		t.Fatal("broadcast leaked outside room-minus-sender")
	}

	if n := o.Relay("ca", core.EventAnswer, json.RawMessage(`{}`), "C"); n != 0 {
		t.Fatal("target in another room must not be reached")
	}
	if n := o.Relay("ca", core.EventAnswer, json.RawMessage(`{}`), "ghost"); n != 0 {
		t.Fatal("missing target must be a silent drop")
	}

	connect(o, "cz")
	if n := o.Relay("cz", core.EventOffer, json.RawMessage(`{}`), ""); n != 0 {
		t.Fatal("sender without a room must be a no-op")
	}
}

func TestQualitySamplesBounded(t *testing.T) {
	o := newOrch(nil)
	connect(o, "ca")
	b := connect(o, "cb")
	if err := o.CreateRoom("ca", req("r", "A", "")); err != nil {
		t.Fatal(err)
	}
	if _, err := o.JoinRoom("cb", req("r", "B", "")); err != nil {
		t.Fatal(err)
	}
	b.reset()

	for i := range 51 {
		o.Quality("ca", json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)))
	}
	s, ok := o.Ledger.SessionOf("ca")
	if !ok {
		t.Fatal("no session")
	}
	if s.SampleCount != 50 {
		t.Fatalf("samples = %d", s.SampleCount)
	}
	if string(s.QualitySamples[0].Stats) != `{"seq":1}` {
		t.Fatalf("oldest sample = %s", s.QualitySamples[0].Stats)
	}
	got := b.ofType(t, core.EventUserQualityUpdate)
	if len(got) != 51 || got[0]["userId"] != "A" || got[0]["displayName"] != "A" {
		t.Fatalf("quality updates = %d", len(got))
	}
}

func TestChatOnlyForCurrentRoom(t *testing.T) {
	o := newOrch(nil)
	connect(o, "ca")
	b := connect(o, "cb")
	if err := o.CreateRoom("ca", req("r", "A", "")); err != nil {
		t.Fatal(err)
	}
	if _, err := o.JoinRoom("cb", req("r", "B", "")); err != nil {
		t.Fatal(err)
	}
	b.reset()

	if n := o.Chat("ca", "elsewhere", core.ChatMessage{Message: "hi"}); n != 0 {
		t.Fatal("chat for a foreign room relayed")
	}
	if n := o.Chat("ca", "r", core.ChatMessage{Message: "hi", UserID: "B", DisplayName: "spoof"}); n != 1 {
		t.Fatal("chat not relayed")
	}
	got := b.ofType(t, core.EventChatMessage)
	if len(got) != 1 {
		t.Fatalf("chat = %v", got)
	}
	msg := got[0]["message"].(map[string]any)
	if msg["userId"] != "A" || msg["displayName"] != "A" || msg["message"] != "hi" {
		t.Fatalf("chat message = %v", msg)
	}
	if g := o.Ledger.Global(); g.TotalMessages != 1 {
		t.Fatalf("totalMessages = %d", g.TotalMessages)
	}
}

func TestLeaveRoomKeepsConnection(t *testing.T) {
	o := newOrch(nil)
	connect(o, "ca")
	connect(o, "cb")
	if err := o.CreateRoom("ca", req("r", "A", "")); err != nil {
		t.Fatal(err)
	}
	if _, err := o.JoinRoom("cb", req("r", "B", "")); err != nil {
		t.Fatal(err)
	}

	room, err := o.LeaveRoom("cb")
	if err != nil || room != "r" {
		t.Fatalf("leave = %q, %v", room, err)
	}
	if _, err := o.LeaveRoom("cb"); !errors.Is(err, domain.ErrNotInRoom) {
		t.Fatalf("second leave err = %v", err)
	}
	if !o.Presence.Connected("cb") {
		t.Fatal("leave must keep the connection")
	}
	if _, err := o.JoinRoom("cb", req("r", "B", "")); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if _, err := o.JoinRoom("cb", req("r", "B", "")); !errors.Is(err, domain.ErrAlreadyInRoom) {
		t.Fatalf("double join err = %v", err)
	}
}

func TestSwitchingRoomsLeavesPrevious(t *testing.T) {
	o := newOrch(nil)
	connect(o, "ca")
	if err := o.CreateRoom("ca", req("r1", "A", "")); err != nil {
		t.Fatal(err)
	}
	if err := o.CreateRoom("ca", req("r2", "A", "")); err != nil {
		t.Fatal(err)
	}
	if o.Rooms.Exists("r1") {
		t.Fatal("previous room should be gone")
	}
	if room, _, _ := o.Presence.RoomOf("ca"); room != "r2" {
		t.Fatalf("room = %q", room)
	}
}

func TestDuplicateUserNewestWins(t *testing.T) {
	o := newOrch(nil)
	connect(o, "host")
	old := connect(o, "old")
	cur := connect(o, "new")
	if err := o.CreateRoom("host", req("r", "H", "")); err != nil {
		t.Fatal(err)
	}
	if _, err := o.JoinRoom("old", req("r", "U", "")); err != nil {
		t.Fatal(err)
	}
	if _, err := o.JoinRoom("new", req("r", "U", "")); err != nil {
		t.Fatal(err)
	}
	old.reset()
	cur.reset()

	o.Relay("host", core.EventOffer, json.RawMessage(`{}`), "U")
	if len(cur.events(t)) != 1 || len(old.events(t)) != 0 {
		t.Fatal("targeted relay must reach the most recent connection")
	}

	o.Disconnect("old")
	if n, _ := o.Rooms.MemberCount("r"); n != 2 {
		t.Fatalf("stale connection removed membership, count = %d", n)
	}
}

func TestSupersededConnectionCannotReachRoom(t *testing.T) {
	o := newOrch(nil)
	a := connect(o, "a")
	connect(o, "b")
	c := connect(o, "c")
	if err := o.CreateRoom("a", req("r", "U", "")); err != nil {
		t.Fatal(err)
	}
	if _, err := o.JoinRoom("b", req("r", "U", "")); err != nil {
		t.Fatal(err)
	}

	if got := a.ofType(t, core.EventRoomLeft); len(got) != 1 || got[0]["roomId"] != "r" {
		t.Fatalf("superseded connection notice = %v", got)
	}
	if _, ok := o.Ledger.SessionOf("a"); ok {
		t.Fatal("superseded session still open")
	}
	if g := o.Ledger.Global(); g.ActiveSessions != 1 {
		t.Fatalf("active sessions = %d", g.ActiveSessions)
	}

	o.Disconnect("b")
	if o.Rooms.Exists("r") {
		t.Fatal("room should be gone with its last member")
	}
	if err := o.CreateRoom("c", req("r", "V", "secret")); err != nil {
		t.Fatal(err)
	}
	c.reset()

	if n := o.Chat("a", "r", core.ChatMessage{Message: "hi"}); n != 0 {
		t.Fatalf("chat delivered to %d", n)
	}
	if n := o.Relay("a", core.EventOffer, json.RawMessage(`{}`), ""); n != 0 {
		t.Fatalf("relay delivered to %d", n)
	}
	if n := o.Quality("a", json.RawMessage(`{"rtt":1}`)); n != 0 {
		t.Fatalf("quality delivered to %d", n)
	}
	if got := c.events(t); len(got) != 0 {
		t.Fatalf("recreated room received %v", got)
	}
	if !o.Presence.Connected("a") {
		t.Fatal("superseded socket should stay registered")
	}
}

func TestBackpressurePolicies(t *testing.T) {
	for _, tc := range []struct {
		name   string
		policy app.Policy
		kicked bool
	}{
		{"drop", app.DropPolicy{}, false},
		{"kick", app.SimplePolicy{}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			o := newOrch(tc.policy)
			connect(o, "ca")
			b := connect(o, "cb")
			if err := o.CreateRoom("ca", req("r", "A", "")); err != nil {
				t.Fatal(err)
			}
			if _, err := o.JoinRoom("cb", req("r", "B", "")); err != nil {
				t.Fatal(err)
			}
			b.mu.Lock()
			b.full = true
			b.mu.Unlock()

			if n := o.Relay("ca", core.EventOffer, json.RawMessage(`{}`), "B"); n != 0 {
				t.Fatal("full queue reported delivery")
			}
			b.mu.Lock()
			kicked := b.canceled
			b.mu.Unlock()
			if kicked != tc.kicked {
				t.Fatalf("kicked = %v", kicked)
			}
		})
	}
}

func TestReclaimKeepsLiveState(t *testing.T) {
	o := newOrch(nil)
	connect(o, "ca")
	if err := o.CreateRoom("ca", req("r", "A", "")); err != nil {
		t.Fatal(err)
	}
	rep := o.Reclaim()
	if rep.OrphansPurged != 0 || rep.RoomsPurged != 0 {
		t.Fatalf("reclaim purged live state: %+v", rep)
	}
	if live := o.LiveRooms(); live["r"] != 1 {
		t.Fatalf("live rooms = %v", live)
	}
}

func TestConcurrentCreateFirstWriterWins(t *testing.T) {
	o := newOrch(nil)
	const n = 16
	for i := range n {
		connect(o, fmt.Sprintf("c%d", i))
	}
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- o.CreateRoom(core.ConnID(fmt.Sprintf("c%d", i)), req("race", fmt.Sprintf("u%d", i), ""))
		}()
	}
	wg.Wait()
	close(errs)
	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, domain.ErrRoomExists) {
			t.Fatalf("unexpected err %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d creators won", ok)
	}
}

func TestUnregisteredConnection(t *testing.T) {
	o := newOrch(nil)
	if err := o.CreateRoom("ghost", req("r", "A", "")); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("err = %v", err)
	}
	if o.Rooms.Exists("r") {
		t.Fatal("room created for unknown connection")
	}
}
