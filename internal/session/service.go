package session

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/talkround/backend/config"
)

// Service routes participant events into rooms and drives the turn-taking
// state machine. It is the authoritative side of the session protocol: whose
// turn it is, how much time remains, and when a room ends are decided here.
//
// Events that reference an unknown room or participant are silent no-ops, and
// events that would violate a session invariant (skip from a non-floor-holder,
// selection outside the picking window) are dropped without reply.
type Service struct {
	cfg      config.SessionConfig
	chat     config.ChatConfig
	bus      Broadcaster
	registry *Registry
	logger   *zap.Logger
}

// NewService creates the session service.
func NewService(cfg config.SessionConfig, chat config.ChatConfig, bus Broadcaster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		chat:     chat,
		bus:      bus,
		registry: NewRegistry(),
		logger:   logger,
	}
}

// Registry exposes the room registry (read-side, e.g. health and tests).
func (s *Service) Registry() *Registry { return s.registry }

// TryJoin answers a join pre-check with joinOK, roomFull, or
// roomAlreadyStarted. An unseen code is joinable; the room itself is created
// lazily by Join.
func (s *Service) TryJoin(clientID, code string) {
	if code == "" {
		s.bus.Unicast(clientID, EventAdminNotice, NoticePayload{Message: "room code is required"})
		return
	}
	r := s.registry.Get(code)
	if r == nil {
		s.bus.Unicast(clientID, EventJoinOK, nil)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.state != StateNotStarted:
		s.bus.Unicast(clientID, EventRoomAlreadyStarted, nil)
	case len(r.roster) >= s.cfg.RoomCapacity:
		s.bus.Unicast(clientID, EventRoomFull, nil)
	default:
		s.bus.Unicast(clientID, EventJoinOK, nil)
	}
}

// Join adds a participant to a room, replying with the existing roster for
// late-join UI sync and broadcasting the arrival to everyone else.
func (s *Service) Join(clientID, code, name, animal string) {
	if code == "" || name == "" || animal == "" {
		s.bus.Unicast(clientID, EventAdminNotice, NoticePayload{Message: "roomCode, userName and animal are required"})
		return
	}

	for {
		r := s.registry.GetOrCreate(code)
		r.mu.Lock()
		if r.defunct() {
			// Lost a race with tear-down; the registry no longer holds this
			// room, so fetch a fresh one.
			r.mu.Unlock()
			continue
		}
		s.joinLocked(r, clientID, name, animal)
		r.mu.Unlock()
		return
	}
}

func (s *Service) joinLocked(r *Room, clientID, name, animal string) {
	if r.state != StateNotStarted {
		s.bus.Unicast(clientID, EventRoomAlreadyStarted, nil)
		return
	}
	if len(r.roster) >= s.cfg.RoomCapacity {
		s.bus.Unicast(clientID, EventRoomFull, nil)
		return
	}
	if r.find(clientID) != nil {
		// Duplicate join from the same connection: resend the roster.
		s.bus.Unicast(clientID, EventExistingUsers, r.rosterSnapshot())
		return
	}

	p := &Participant{ID: clientID, Name: name, Animal: animal}
	r.roster = append(r.roster, p)

	s.bus.Join(r.Code, clientID)
	s.bus.Unicast(clientID, EventExistingUsers, r.rosterSnapshot())
	s.bus.Broadcast(r.Code, EventUserJoined, *p)
	s.logger.Info("participant joined",
		zap.String("room", r.Code),
		zap.String("user", clientID),
		zap.Int("roster", len(r.roster)),
	)
}

// ToggleReady updates a participant's readiness. When every participant in a
// room of more than two is ready, the session starts.
func (s *Service) ToggleReady(code, userID string, ready bool) {
	r := s.registry.Get(code)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.find(userID)
	if p == nil {
		return
	}
	p.Ready = ready
	r.recountReady()
	s.bus.Broadcast(code, EventToggleReady, ReadyPayload{UserID: userID, IsReady: ready})
	if r.state == StateNotStarted && r.readyQuorum() {
		s.startSessionLocked(r)
	}
}

// ToggleMic mirrors a mic state change to the room. Cosmetic only.
func (s *Service) ToggleMic(code, userID string, on bool) {
	r := s.registry.Get(code)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.find(userID)
	if p == nil {
		return
	}
	p.MicOn = on
	s.bus.Broadcast(code, EventToggleMic, MicPayload{UserID: userID, MicOn: on})
}

// SelectFeedback moves the session from FeedbackPicking to FeedbackExchange
// with the chosen participant holding the floor. Outside the picking window,
// or with an id not in the roster, it is a no-op.
func (s *Service) SelectFeedback(code, feedbackID string) {
	r := s.registry.Get(code)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ru := r.run
	if r.state != StateActive || ru == nil || ru.phase != PhaseFeedbackPicking {
		return
	}
	if r.find(feedbackID) == nil {
		return
	}
	ru.phase = PhaseFeedbackExchange
	ru.remaining = s.cfg.ExchangeSeconds
	r.activeSpeakerID = feedbackID
	s.bus.Broadcast(code, EventPickButtonDisable, nil)
	s.bus.Broadcast(code, EventUpdateSpeaker, SpeakerPayload{
		SpeakerID:       feedbackID,
		IsOriginSpeaker: feedbackID == ru.originSpeakerID,
	})
	s.bus.Broadcast(code, EventUpdateTimer, TimerPayload{TimeLeft: ru.remaining, Phase: ru.phase, OriginID: ru.originSpeakerID})
}

// Skip lets the current floor-holder end their own slot early. The flag is
// consumed at the next tick boundary and overrides any extension votes.
// From anyone but the floor-holder it is a no-op.
func (s *Service) Skip(code, userID string) {
	r := s.registry.Get(code)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateActive || r.run == nil {
		return
	}
	if userID != r.activeSpeakerID {
		return
	}
	r.skip = true
}

// RegisterInterest records a participant's vote to extend the current phase.
// Idempotent; the vote takes effect at the next timer-boundary evaluation.
func (s *Service) RegisterInterest(code, userID string) {
	r := s.registry.Get(code)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateActive {
		return
	}
	p := r.find(userID)
	if p == nil {
		return
	}
	p.extendVote = true
	s.bus.Broadcast(code, EventInterestedSpeak, InterestPayload{UserID: userID})
}

// Message fans a chat message out to the room. Messages over the configured
// rune limit are replaced server-side with the fixed moderation notice; this
// is a content-length policy, not a truncation.
func (s *Service) Message(code, userID, text string) {
	r := s.registry.Get(code)
	if r == nil {
		return
	}
	if utf8.RuneCountInString(text) > s.chat.MaxMessageLen {
		s.bus.Publish(code, EventAdminNotice, NoticePayload{Message: s.chat.ModerationNotice})
		return
	}
	s.bus.Publish(code, EventRoomMessage, MessagePayload{UserID: userID, Message: text})
}

// Leave removes a participant, tearing the room down if a session was live and
// deleting the room once the roster empties. It is the disconnect cleanup path
// and is safe to invoke on an already-terminated room.
func (s *Service) Leave(code, userID string) {
	r := s.registry.Get(code)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.remove(userID) {
		return
	}
	s.bus.Leave(code, userID)
	s.bus.Broadcast(code, EventUserLeft, LeftPayload{UserID: userID})

	if r.state == StateActive && !r.destroyNotified {
		// An in-progress session cannot continue with a missing participant.
		r.destroyNotified = true
		s.bus.Broadcast(code, EventRoomDestroyed, nil)
	}

	if r.state == StateNotStarted && r.readyQuorum() {
		s.startSessionLocked(r)
	}

	if len(r.roster) == 0 {
		s.terminateLocked(r)
		s.registry.Remove(code)
		s.logger.Info("room removed", zap.String("room", code))
	}
}
