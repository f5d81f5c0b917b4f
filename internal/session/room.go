package session

import "sync"

// State is the lifecycle of a room's session.
type State string

const (
	StateNotStarted State = "NotStarted"
	StateActive     State = "Active"
	StateTerminated State = "Terminated"
)

// Room is a coded group of participants sharing one discussion session.
// All mutation happens under mu; the mutex is the room's exclusive execution
// context, serializing participant events against timer ticks (rooms are
// independent and run in parallel).
type Room struct {
	Code string

	mu              sync.Mutex
	roster          []*Participant // insertion order = speaking order
	readyCount      int
	state           State
	destroyNotified bool   // roomDestroyed goes out at most once
	skip            bool   // set by the floor-holder, consumed at the next tick boundary
	activeSpeakerID string // current floor-holder while a session is live
	run             *run
}

func newRoom(code string) *Room {
	return &Room{Code: code, state: StateNotStarted}
}

// State returns the room's session state.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Size returns the current roster size.
func (r *Room) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.roster)
}

// ReadyCount returns the number of participants flagged ready.
func (r *Room) ReadyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readyCount
}

// Roster returns a snapshot of the current roster values.
func (r *Room) Roster() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterSnapshot()
}

// The helpers below assume r.mu is held by the caller.

func (r *Room) find(participantID string) *Participant {
	for _, p := range r.roster {
		if p.ID == participantID {
			return p
		}
	}
	return nil
}

func (r *Room) remove(participantID string) bool {
	for i, p := range r.roster {
		if p.ID == participantID {
			r.roster = append(r.roster[:i], r.roster[i+1:]...)
			r.recountReady()
			return true
		}
	}
	return false
}

// recountReady recomputes readyCount from the roster. A full scan keeps the
// counter idempotent under any interleaving of join, leave, and toggle.
func (r *Room) recountReady() {
	n := 0
	for _, p := range r.roster {
		if p.Ready {
			n++
		}
	}
	r.readyCount = n
}

// readyQuorum reports whether every participant is ready and there are enough
// of them to hold a session. Two people do not make a round table.
func (r *Room) readyQuorum() bool {
	return len(r.roster) > 2 && r.readyCount == len(r.roster)
}

func (r *Room) extendVotes() int {
	n := 0
	for _, p := range r.roster {
		if p.extendVote {
			n++
		}
	}
	return n
}

func (r *Room) clearExtendVotes() {
	for _, p := range r.roster {
		p.extendVote = false
	}
}

func (r *Room) rosterSnapshot() []Participant {
	out := make([]Participant, 0, len(r.roster))
	for _, p := range r.roster {
		out = append(out, *p)
	}
	return out
}

func (r *Room) speakingOrder() []string {
	ids := make([]string, 0, len(r.roster))
	for _, p := range r.roster {
		ids = append(ids, p.ID)
	}
	return ids
}

// defunct reports whether the room has been torn down and is (or is about to
// be) removed from the registry.
func (r *Room) defunct() bool {
	return r.state == StateTerminated && len(r.roster) == 0
}
