package session

import "sync"

// Registry owns the set of active rooms keyed by room code. A room is created
// on first join for an unseen code and removed when its roster empties.
// Create, lookup, and remove are atomic with respect to concurrent joins on
// the same code, so two rooms can never exist for one code.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// GetOrCreate returns the room for code, creating it if absent.
func (rg *Registry) GetOrCreate(code string) *Room {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if r, ok := rg.rooms[code]; ok {
		return r
	}
	r := newRoom(code)
	rg.rooms[code] = r
	return r
}

// Get returns the room for code, or nil if absent.
func (rg *Registry) Get(code string) *Room {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return rg.rooms[code]
}

// Remove deletes the room for code. Removing an absent code is a no-op.
func (rg *Registry) Remove(code string) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	delete(rg.rooms, code)
}

// Len returns the number of active rooms.
func (rg *Registry) Len() int {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return len(rg.rooms)
}
