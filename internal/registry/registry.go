package registry

// Store defines the interface for room membership and the last-broadcast
// document state. MemoryStore is the only implementation; the interface
// keeps the relay testable with a fresh store per test.
type Store interface {
	// Join adds name to the member set of roomID, creating the room if
	// absent. Idempotent for a name that is already a member. Returns the
	// updated member list, sorted, for broadcast.
	Join(roomID, name string) []string

	// Leave removes name from roomID's member set. No-op if the room or
	// the name does not exist. Returns the updated member list, sorted.
	Leave(roomID, name string) []string

	// Members returns the current member list of roomID, sorted.
	Members(roomID string) []string

	// SetCode records the last broadcast code buffer for roomID.
	SetCode(roomID, code string)

	// SetLanguage records the last broadcast language tag for roomID.
	SetLanguage(roomID, language string)

	// Snapshot returns the last broadcast code and language for roomID.
	// Both are empty for a room that has seen no broadcasts.
	Snapshot(roomID string) (code, language string)

	// RoomCount returns the number of known rooms and how many of them
	// currently have at least one member.
	RoomCount() (total, occupied int)

	// MemberCount returns the number of memberships across all rooms.
	MemberCount() int
}
