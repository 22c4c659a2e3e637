package registry

import (
	"sort"
	"sync"
)

// room holds the member set and the last broadcast document state.
// Rooms are created implicitly on first join and never removed; an
// empty room simply has no members.
type room struct {
	members  map[string]struct{}
	code     string
	language string
}

// MemoryStore is the in-process Store implementation. All relay
// mutations arrive from the single hub loop, but the stats endpoint
// and metrics read concurrently, so access is guarded by a mutex.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*room)}
}

func (s *MemoryStore) Join(roomID, name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		r = &room{members: make(map[string]struct{})}
		s.rooms[roomID] = r
	}
	r.members[name] = struct{}{}
	return memberList(r)
}

func (s *MemoryStore) Leave(roomID, name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	delete(r.members, name)
	return memberList(r)
}

func (s *MemoryStore) Members(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return memberList(r)
}

func (s *MemoryStore) SetCode(roomID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rooms[roomID]; ok {
		r.code = code
	}
}

func (s *MemoryStore) SetLanguage(roomID, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rooms[roomID]; ok {
		r.language = language
	}
}

func (s *MemoryStore) Snapshot(roomID string) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return "", ""
	}
	return r.code, r.language
}

func (s *MemoryStore) RoomCount() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	occupied := 0
	for _, r := range s.rooms {
		if len(r.members) > 0 {
			occupied++
		}
	}
	return len(s.rooms), occupied
}

func (s *MemoryStore) MemberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, r := range s.rooms {
		total += len(r.members)
	}
	return total
}

func memberList(r *room) []string {
	members := make([]string, 0, len(r.members))
	for name := range r.members {
		members = append(members, name)
	}
	sort.Strings(members)
	return members
}
