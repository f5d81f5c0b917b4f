package session

import (
	"strings"
	"sync"
	"testing"

	"github.com/talkround/backend/config"
)

type busEvent struct {
	kind    string // broadcast, publish, unicast, join, leave
	target  string // room code or client ID
	name    string
	payload interface{}
}

// fakeBus records everything the session core emits.
type fakeBus struct {
	mu     sync.Mutex
	events []busEvent
}

func (b *fakeBus) record(kind, target, name string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, busEvent{kind: kind, target: target, name: name, payload: payload})
}

func (b *fakeBus) Broadcast(roomCode, event string, payload interface{}) {
	b.record("broadcast", roomCode, event, payload)
}
func (b *fakeBus) Publish(roomCode, event string, payload interface{}) {
	b.record("publish", roomCode, event, payload)
}
func (b *fakeBus) Unicast(clientID, event string, payload interface{}) {
	b.record("unicast", clientID, event, payload)
}
func (b *fakeBus) Join(roomCode, clientID string)  { b.record("join", roomCode, clientID, nil) }
func (b *fakeBus) Leave(roomCode, clientID string) { b.record("leave", roomCode, clientID, nil) }

func (b *fakeBus) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.name == name {
			n++
		}
	}
	return n
}

func (b *fakeBus) last(name string) (busEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].name == name {
			return b.events[i], true
		}
	}
	return busEvent{}, false
}

func (b *fakeBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		RoomCapacity:    5,
		SpeakSeconds:    3,
		ExtendSeconds:   5,
		ExchangeSeconds: 2,
		PickSeconds:     2,
	}
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		MaxMessageLen:    1000,
		ModerationNotice: "message removed",
	}
}

func newTestService() (*Service, *fakeBus) {
	bus := &fakeBus{}
	return NewService(testConfig(), testChatConfig(), bus, nil), bus
}

// haltTicker stops the real 1 Hz ticker after an auto-start so tests can
// drive ticks by hand.
func haltTicker(r *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run != nil && r.run.ticker != nil {
		r.run.ticker.Stop()
	}
}

func currentRun(r *Room) *run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run
}

func TestJoinCreatesRoomAndRepliesRoster(t *testing.T) {
	s, bus := newTestService()
	s.Join("p1", "AB12", "alice", "fox")
	s.Join("p2", "AB12", "bob", "owl")

	r := s.registry.Get("AB12")
	if r == nil {
		t.Fatal("room should exist after first join")
	}
	if r.Size() != 2 {
		t.Fatalf("expected roster size 2, got %d", r.Size())
	}
	e, ok := bus.last(EventExistingUsers)
	if !ok {
		t.Fatal("expected existingUsers unicast")
	}
	roster, ok := e.payload.([]Participant)
	if !ok {
		t.Fatalf("unexpected existingUsers payload %T", e.payload)
	}
	if len(roster) != 2 {
		t.Fatalf("expected 2 roster entries in snapshot, got %d", len(roster))
	}
	if roster[0].ID != "p1" || roster[1].ID != "p2" {
		t.Fatalf("snapshot should preserve insertion order, got %v", roster)
	}
	if bus.count(EventUserJoined) != 2 {
		t.Fatalf("expected 2 userJoined broadcasts, got %d", bus.count(EventUserJoined))
	}
}

func TestJoinRejectsMissingFields(t *testing.T) {
	s, bus := newTestService()
	s.Join("p1", "AB12", "", "fox")
	if s.registry.Get("AB12") != nil {
		t.Fatal("invalid join must not create a room")
	}
	if bus.count(EventAdminNotice) != 1 {
		t.Fatal("invalid join should get an explicit negative reply")
	}
}

func TestRoomCapacity(t *testing.T) {
	s, bus := newTestService()
	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	for _, id := range ids {
		s.Join(id, "AB12", "name-"+id, "fox")
	}
	r := s.registry.Get("AB12")
	if r.Size() != 5 {
		t.Fatalf("roster must cap at 5, got %d", r.Size())
	}
	e, ok := bus.last(EventRoomFull)
	if !ok {
		t.Fatal("sixth join should be answered with roomFull")
	}
	if e.target != "p6" {
		t.Fatalf("roomFull should go to the rejected connection, got %s", e.target)
	}
}

func TestTryJoinReplies(t *testing.T) {
	s, bus := newTestService()

	s.TryJoin("c1", "FRESH")
	if e, ok := bus.last(EventJoinOK); !ok || e.target != "c1" {
		t.Fatal("unseen code should reply joinOK")
	}
	if s.registry.Get("FRESH") != nil {
		t.Fatal("tryJoin must not create the room")
	}

	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		s.Join(id, "FULL1", "n", "fox")
	}
	s.TryJoin("c2", "FULL1")
	if e, ok := bus.last(EventRoomFull); !ok || e.target != "c2" {
		t.Fatal("full room should reply roomFull")
	}

	for _, id := range []string{"a", "b", "c"} {
		s.Join(id, "LIVE1", "n", "fox")
	}
	for _, id := range []string{"a", "b", "c"} {
		s.ToggleReady("LIVE1", id, true)
	}
	haltTicker(s.registry.Get("LIVE1"))
	s.TryJoin("c3", "LIVE1")
	if e, ok := bus.last(EventRoomAlreadyStarted); !ok || e.target != "c3" {
		t.Fatal("active room should reply roomAlreadyStarted")
	}
	s.Join("late", "LIVE1", "n", "fox")
	if e, ok := bus.last(EventRoomAlreadyStarted); !ok || e.target != "late" {
		t.Fatal("late join into an active session must be rejected")
	}
}

func TestReadyCountMatchesRoster(t *testing.T) {
	s, _ := newTestService()
	check := func(r *Room) {
		t.Helper()
		r.mu.Lock()
		defer r.mu.Unlock()
		n := 0
		for _, p := range r.roster {
			if p.Ready {
				n++
			}
		}
		if r.readyCount != n {
			t.Fatalf("readyCount %d diverged from roster scan %d", r.readyCount, n)
		}
	}

	s.Join("p1", "RC", "a", "fox")
	s.Join("p2", "RC", "b", "owl")
	s.Join("p3", "RC", "c", "cat")
	s.Join("p4", "RC", "d", "dog")
	r := s.registry.Get("RC")
	check(r)

	s.ToggleReady("RC", "p1", true)
	s.ToggleReady("RC", "p2", true)
	check(r)
	s.ToggleReady("RC", "p2", false)
	check(r)
	s.Leave("RC", "p1")
	check(r)
	s.ToggleReady("RC", "ghost", true) // unknown participant: no-op
	check(r)
}

func TestAutoStartRequiresFullReadyQuorum(t *testing.T) {
	s, bus := newTestService()

	// Two ready participants never start a session.
	s.Join("p1", "TWO", "a", "fox")
	s.Join("p2", "TWO", "b", "owl")
	s.ToggleReady("TWO", "p1", true)
	s.ToggleReady("TWO", "p2", true)
	if s.registry.Get("TWO").State() != StateNotStarted {
		t.Fatal("session must not start with 2 participants")
	}

	// Three of four ready: not everyone, no start.
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		s.Join(id, "FOUR", "n", "fox")
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		s.ToggleReady("FOUR", id, true)
	}
	if s.registry.Get("FOUR").State() != StateNotStarted {
		t.Fatal("session must not start until every participant is ready")
	}

	bus.reset()
	s.ToggleReady("FOUR", "p4", true)
	r := s.registry.Get("FOUR")
	haltTicker(r)
	if r.State() != StateActive {
		t.Fatal("session should start when everyone is ready")
	}
	if bus.count(EventStartSession) != 1 {
		t.Fatal("expected a startSession broadcast")
	}
	e, _ := bus.last(EventUpdateSpeaker)
	sp := e.payload.(SpeakerPayload)
	if sp.SpeakerID != "p1" || !sp.IsOriginSpeaker {
		t.Fatalf("first origin speaker should be p1, got %+v", sp)
	}
}

func TestAutoStartWhenNonReadyParticipantLeaves(t *testing.T) {
	s, _ := newTestService()
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		s.Join(id, "LV", "n", "fox")
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		s.ToggleReady("LV", id, true)
	}
	s.Leave("LV", "p4")
	r := s.registry.Get("LV")
	haltTicker(r)
	if r.State() != StateActive {
		t.Fatal("departure of the only non-ready participant should start the session")
	}
}

func TestMessageModeration(t *testing.T) {
	s, bus := newTestService()
	s.Join("p1", "CH", "a", "fox")

	exact := strings.Repeat("a", 1000)
	s.Message("CH", "p1", exact)
	e, ok := bus.last(EventRoomMessage)
	if !ok {
		t.Fatal("1000-rune message should be broadcast verbatim")
	}
	if e.kind != "publish" {
		t.Fatalf("chat must go through the publish path, got %s", e.kind)
	}
	if got := e.payload.(MessagePayload).Message; got != exact {
		t.Fatal("1000-rune message must not be altered")
	}

	bus.reset()
	s.Message("CH", "p1", strings.Repeat("a", 1001))
	if bus.count(EventRoomMessage) != 0 {
		t.Fatal("over-length message must not go out as roomMessage")
	}
	n, ok := bus.last(EventAdminNotice)
	if !ok {
		t.Fatal("over-length message should be replaced by the moderation notice")
	}
	if n.payload.(NoticePayload).Message != "message removed" {
		t.Fatalf("unexpected notice %+v", n.payload)
	}

	// Multibyte runes count as one character each.
	bus.reset()
	s.Message("CH", "p1", strings.Repeat("한", 1000))
	if bus.count(EventRoomMessage) != 1 {
		t.Fatal("1000 multibyte runes should pass moderation")
	}
}

func TestUnknownRoomEventsAreNoops(t *testing.T) {
	s, bus := newTestService()
	s.ToggleReady("NOPE", "p1", true)
	s.SelectFeedback("NOPE", "p1")
	s.Skip("NOPE", "p1")
	s.RegisterInterest("NOPE", "p1")
	s.Message("NOPE", "p1", "hello")
	s.Leave("NOPE", "p1")
	if len(bus.events) != 0 {
		t.Fatalf("events for unknown rooms must be silent, got %v", bus.events)
	}
}

func TestDisconnectTearsDownActiveRoom(t *testing.T) {
	s, bus := newTestService()
	for _, id := range []string{"p1", "p2", "p3"} {
		s.Join(id, "GONE", "n", "fox")
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		s.ToggleReady("GONE", id, true)
	}
	r := s.registry.Get("GONE")
	haltTicker(r)
	ru := currentRun(r)

	s.Leave("GONE", "p1")
	if bus.count(EventRoomDestroyed) != 1 {
		t.Fatal("first mid-session departure should broadcast roomDestroyed")
	}
	s.Leave("GONE", "p2")
	s.Leave("GONE", "p3")
	if bus.count(EventRoomDestroyed) != 1 {
		t.Fatalf("roomDestroyed must go out exactly once, got %d", bus.count(EventRoomDestroyed))
	}
	if s.registry.Get("GONE") != nil {
		t.Fatal("room must be removed once the roster empties")
	}

	// A stale tick against the cancelled run must be inert.
	bus.reset()
	s.tick(r, ru)
	if len(bus.events) != 0 {
		t.Fatalf("no tick events may be observable after teardown, got %v", bus.events)
	}
}

func TestLeaveUnknownParticipantIsNoop(t *testing.T) {
	s, bus := newTestService()
	s.Join("p1", "RM", "a", "fox")
	bus.reset()
	s.Leave("RM", "ghost")
	if len(bus.events) != 0 {
		t.Fatal("leaving with an unknown id must not emit anything")
	}
	if s.registry.Get("RM") == nil {
		t.Fatal("room must survive a bogus leave")
	}
}
