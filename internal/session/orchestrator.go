package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase is the live stage of a session run.
type Phase string

const (
	PhaseSpeaking         Phase = "Speaking"
	PhaseFeedbackPicking  Phase = "FeedbackPicking"
	PhaseFeedbackExchange Phase = "FeedbackExchange"
	PhaseEnded            Phase = "Ended"
)

// run is the per-room session state while a room is Active. It owns the single
// periodic timer; timer callbacks reach the room through the run identity, so
// a cancelled or replaced run can never act on live state.
type run struct {
	order           []string // roster snapshot at session start, in speaking order
	speakerIndex    int
	originSpeakerID string
	phase           Phase
	remaining       int

	ticker     *time.Ticker
	stop       chan struct{}
	cancelOnce sync.Once
}

// cancel stops the run's timer. Safe to call more than once and safe to call
// when no ticker was ever started.
func (ru *run) cancel() {
	ru.cancelOnce.Do(func() {
		if ru.ticker != nil {
			ru.ticker.Stop()
		}
		close(ru.stop)
	})
}

// extensionThreshold is the number of affirmative votes needed to extend the
// current phase: floor((rosterSize-1)/2), but never fewer than one actual
// vote, so a shrunken room cannot extend itself forever on zero votes.
func extensionThreshold(rosterSize int) int {
	t := (rosterSize - 1) / 2
	if t < 1 {
		t = 1
	}
	return t
}

// startSessionLocked transitions the room into an Active session with the
// first roster entry holding the floor. Caller holds room.mu.
func (s *Service) startSessionLocked(r *Room) {
	ru := &run{
		order:           r.speakingOrder(),
		speakerIndex:    0,
		originSpeakerID: r.roster[0].ID,
		phase:           PhaseSpeaking,
		remaining:       s.cfg.SpeakSeconds,
		stop:            make(chan struct{}),
	}
	r.state = StateActive
	r.activeSpeakerID = ru.originSpeakerID
	r.skip = false
	r.clearExtendVotes()
	r.run = ru

	s.logger.Info("session started",
		zap.String("room", r.Code),
		zap.Int("participants", len(ru.order)),
	)
	s.bus.Broadcast(r.Code, EventStartSession, nil)
	s.bus.Broadcast(r.Code, EventUpdateSpeaker, SpeakerPayload{SpeakerID: ru.originSpeakerID, IsOriginSpeaker: true})
	s.bus.Broadcast(r.Code, EventUpdateTimer, TimerPayload{TimeLeft: ru.remaining, Phase: ru.phase, OriginID: ru.originSpeakerID})

	ru.ticker = time.NewTicker(time.Second)
	go s.runTicker(r, ru)
}

func (s *Service) runTicker(r *Room, ru *run) {
	for {
		select {
		case <-ru.stop:
			return
		case <-ru.ticker.C:
			s.tick(r, ru)
		}
	}
}

// tick drives one second of session time. It re-derives the next action from
// current state, never from tick count, so a missed or duplicate tick cannot
// corrupt the machine.
func (s *Service) tick(r *Room, ru *run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Stale timer: the room moved on without this run.
	if r.run != ru || r.state != StateActive {
		return
	}

	ru.remaining--
	s.bus.Broadcast(r.Code, EventUpdateTimer, TimerPayload{TimeLeft: ru.remaining, Phase: ru.phase, OriginID: ru.originSpeakerID})

	if ru.remaining > 0 && !r.skip {
		return
	}

	// Extension is evaluated before the phase is allowed to end. A skip from
	// the floor-holder overrides any extension quorum.
	if !r.skip && r.extendVotes() >= extensionThreshold(len(r.roster)) {
		ru.remaining += s.cfg.ExtendSeconds
		r.clearExtendVotes()
		s.bus.Broadcast(r.Code, EventSpeakExtended, TimerPayload{TimeLeft: ru.remaining, Phase: ru.phase, OriginID: ru.originSpeakerID})
		return
	}

	r.skip = false
	s.advanceLocked(r, ru)
}

// advanceLocked performs the phase transition at a tick boundary.
// Caller holds room.mu.
func (s *Service) advanceLocked(r *Room, ru *run) {
	switch ru.phase {
	case PhaseSpeaking:
		// Speaking slot over: open the feedback-giver selection window.
		ru.phase = PhaseFeedbackPicking
		ru.remaining = s.cfg.PickSeconds
		r.activeSpeakerID = ru.originSpeakerID
		s.bus.Broadcast(r.Code, EventUpdateTimer, TimerPayload{TimeLeft: ru.remaining, Phase: ru.phase, OriginID: ru.originSpeakerID})

	case PhaseFeedbackPicking:
		// Window lapsed with no selection: move on to the next speaker.
		s.bus.Broadcast(r.Code, EventPickButtonDisable, nil)
		s.rotateLocked(r, ru)

	case PhaseFeedbackExchange:
		if r.activeSpeakerID != ru.originSpeakerID {
			// The feedback giver finished; hand the floor back to the
			// origin speaker for a response round.
			r.activeSpeakerID = ru.originSpeakerID
			ru.remaining = s.cfg.ExchangeSeconds
			s.bus.Broadcast(r.Code, EventUpdateSpeaker, SpeakerPayload{SpeakerID: ru.originSpeakerID, IsOriginSpeaker: true})
			s.bus.Broadcast(r.Code, EventUpdateTimer, TimerPayload{TimeLeft: ru.remaining, Phase: ru.phase, OriginID: ru.originSpeakerID})
		} else {
			// The origin speaker's own exchange turn lapsed: reopen selection.
			ru.phase = PhaseFeedbackPicking
			ru.remaining = s.cfg.PickSeconds
			s.bus.Broadcast(r.Code, EventUpdateTimer, TimerPayload{TimeLeft: ru.remaining, Phase: ru.phase, OriginID: ru.originSpeakerID})
		}
	}
}

// rotateLocked advances to the next origin speaker, or ends the session when
// the speaking order is exhausted. The order is a snapshot from session start;
// entries whose participant has since left are skipped. Caller holds room.mu.
func (s *Service) rotateLocked(r *Room, ru *run) {
	ru.speakerIndex++
	for ru.speakerIndex < len(ru.order) && r.find(ru.order[ru.speakerIndex]) == nil {
		ru.speakerIndex++
	}
	if ru.speakerIndex >= len(ru.order) {
		s.endSessionLocked(r, ru)
		return
	}
	ru.originSpeakerID = ru.order[ru.speakerIndex]
	ru.phase = PhaseSpeaking
	ru.remaining = s.cfg.SpeakSeconds
	r.activeSpeakerID = ru.originSpeakerID
	r.clearExtendVotes()
	s.bus.Broadcast(r.Code, EventUpdateSpeaker, SpeakerPayload{SpeakerID: ru.originSpeakerID, IsOriginSpeaker: true})
	s.bus.Broadcast(r.Code, EventUpdateTimer, TimerPayload{TimeLeft: ru.remaining, Phase: ru.phase, OriginID: ru.originSpeakerID})
}

// endSessionLocked completes a session normally. Caller holds room.mu.
func (s *Service) endSessionLocked(r *Room, ru *run) {
	ru.phase = PhaseEnded
	ru.cancel()
	r.run = nil
	r.state = StateTerminated
	r.activeSpeakerID = ""
	s.logger.Info("session ended", zap.String("room", r.Code))
	s.bus.Broadcast(r.Code, EventSessionEnded, nil)
}

// terminateLocked cancels any live timer for the room. Idempotent; cancelling
// an idle room is a no-op. Caller holds room.mu.
func (s *Service) terminateLocked(r *Room) {
	if r.run != nil {
		r.run.cancel()
		r.run = nil
	}
	r.state = StateTerminated
}
