package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/codepair-live/codepair/internal/piston"
	"github.com/codepair-live/codepair/internal/registry"
)

// fakeExecutor returns a canned payload and records the last request.
type fakeExecutor struct {
	result  json.RawMessage
	lastReq piston.Request
}

func (f *fakeExecutor) Execute(_ context.Context, req piston.Request) json.RawMessage {
	f.lastReq = req
	return f.result
}

func newTestHub(exec Executor) *Hub {
	return NewHub(registry.NewMemoryStore(), exec, zerolog.Nop())
}

func newTestSession(id string) *Session {
	return &Session{id: id, send: make(chan []byte, 16)}
}

// inject runs one inbound event through the dispatch table and applies
// the resulting broadcasts, the way the hub loop would.
func inject(t *testing.T, h *Hub, s *Session, name string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	h.deliver(h.dispatch(s, Event{Name: name, Data: raw}))
}

func recv(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case payload := <-s.send:
		var ev Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	default:
		t.Fatalf("session %s: expected a message, queue empty", s.id)
		return Event{}
	}
}

func requireNoMessage(t *testing.T, s *Session) {
	t.Helper()
	select {
	case payload := <-s.send:
		t.Fatalf("session %s: unexpected message %s", s.id, payload)
	default:
	}
}

func drain(s *Session) {
	for {
		select {
		case <-s.send:
		default:
			return
		}
	}
}

func members(t *testing.T, ev Event) []string {
	t.Helper()
	require.Equal(t, EventUserJoined, ev.Name)
	var users []string
	require.NoError(t, json.Unmarshal(ev.Data, &users))
	return users
}

func TestJoin_BroadcastsMembersToWholeRoom(t *testing.T) {
	h := newTestHub(nil)
	s1 := newTestSession("s1")
	s2 := newTestSession("s2")

	inject(t, h, s1, EventJoin, JoinPayload{RoomID: "r1", UserName: "alice"})
	require.Equal(t, []string{"alice"}, members(t, recv(t, s1)))
	recv(t, s1) // sync
	drain(s1)

	inject(t, h, s2, EventJoin, JoinPayload{RoomID: "r1", UserName: "bob"})

	// Presence goes to everyone, including the actor.
	require.Equal(t, []string{"alice", "bob"}, members(t, recv(t, s1)))
	require.Equal(t, []string{"alice", "bob"}, members(t, recv(t, s2)))
}

func TestJoin_SendsSnapshotToJoinerOnly(t *testing.T) {
	h := newTestHub(nil)
	s1 := newTestSession("s1")
	s2 := newTestSession("s2")

	inject(t, h, s1, EventJoin, JoinPayload{RoomID: "r1", UserName: "alice"})
	drain(s1)
	inject(t, h, s1, EventCodeChange, CodeChangePayload{RoomID: "r1", Code: "print(1)"})
	inject(t, h, s1, EventLanguageChange, LanguageChangePayload{RoomID: "r1", Language: "python"})
	drain(s1)

	inject(t, h, s2, EventJoin, JoinPayload{RoomID: "r1", UserName: "bob"})

	recv(t, s2) // userJoined
	sync := recv(t, s2)
	require.Equal(t, EventSync, sync.Name)

	var snap SyncPayload
	require.NoError(t, json.Unmarshal(sync.Data, &snap))
	require.Equal(t, "print(1)", snap.Code)
	require.Equal(t, "python", snap.Language)
	require.Equal(t, []string{"alice", "bob"}, snap.Users)

	// The existing member sees presence only, no snapshot.
	members(t, recv(t, s1))
	requireNoMessage(t, s1)
}

func TestJoin_MissingFieldsIgnored(t *testing.T) {
	h := newTestHub(nil)
	s := newTestSession("s1")

	inject(t, h, s, EventJoin, JoinPayload{RoomID: "", UserName: "alice"})
	inject(t, h, s, EventJoin, JoinPayload{RoomID: "r1", UserName: "  "})
	inject(t, h, s, "bogusEvent", nil)

	requireNoMessage(t, s)
	total, _ := h.store.RoomCount()
	require.Zero(t, total)
	require.Empty(t, s.roomID)
}

func TestJoin_SecondRoomLeavesFirst(t *testing.T) {
	h := newTestHub(nil)
	s1 := newTestSession("s1")
	s2 := newTestSession("s2")

	inject(t, h, s1, EventJoin, JoinPayload{RoomID: "r1", UserName: "alice"})
	inject(t, h, s2, EventJoin, JoinPayload{RoomID: "r1", UserName: "bob"})
	drain(s1)
	drain(s2)

	inject(t, h, s2, EventJoin, JoinPayload{RoomID: "r2", UserName: "bob"})

	// The first room saw bob removed before the second saw him added.
	require.Equal(t, []string{"alice"}, members(t, recv(t, s1)))
	require.Equal(t, []string{"alice"}, h.store.Members("r1"))
	require.Equal(t, []string{"bob"}, h.store.Members("r2"))
	require.Equal(t, "r2", s2.roomID)
}

func TestCodeChange_ExcludesSenderAndOtherRooms(t *testing.T) {
	h := newTestHub(nil)
	s1 := newTestSession("s1")
	s2 := newTestSession("s2")
	s3 := newTestSession("s3")

	inject(t, h, s1, EventJoin, JoinPayload{RoomID: "r1", UserName: "alice"})
	inject(t, h, s2, EventJoin, JoinPayload{RoomID: "r1", UserName: "bob"})
	inject(t, h, s3, EventJoin, JoinPayload{RoomID: "r2", UserName: "carol"})
	drain(s1)
	drain(s2)
	drain(s3)

	inject(t, h, s1, EventCodeChange, CodeChangePayload{RoomID: "r1", Code: "x = 1"})

	ev := recv(t, s2)
	require.Equal(t, EventCodeUpdate, ev.Name)
	var code string
	require.NoError(t, json.Unmarshal(ev.Data, &code))
	require.Equal(t, "x = 1", code)

	requireNoMessage(t, s1)
	requireNoMessage(t, s3)
}

func TestLanguageChange_IncludesSender(t *testing.T) {
	h := newTestHub(nil)
	s1 := newTestSession("s1")
	s2 := newTestSession("s2")

	inject(t, h, s1, EventJoin, JoinPayload{RoomID: "r1", UserName: "alice"})
	inject(t, h, s2, EventJoin, JoinPayload{RoomID: "r1", UserName: "bob"})
	drain(s1)
	drain(s2)

	inject(t, h, s1, EventLanguageChange, LanguageChangePayload{RoomID: "r1", Language: "cpp"})

	for _, s := range []*Session{s1, s2} {
		ev := recv(t, s)
		require.Equal(t, EventLanguageUpdate, ev.Name)
		var language string
		require.NoError(t, json.Unmarshal(ev.Data, &language))
		require.Equal(t, "cpp", language)
	}
}

func TestTyping_ExcludesSender(t *testing.T) {
	h := newTestHub(nil)
	s1 := newTestSession("s1")
	s2 := newTestSession("s2")

	inject(t, h, s1, EventJoin, JoinPayload{RoomID: "r1", UserName: "alice"})
	inject(t, h, s2, EventJoin, JoinPayload{RoomID: "r1", UserName: "bob"})
	drain(s1)
	drain(s2)

	inject(t, h, s1, EventTyping, TypingPayload{RoomID: "r1", UserName: "alice"})

	ev := recv(t, s2)
	require.Equal(t, EventUserTyping, ev.Name)
	var name string
	require.NoError(t, json.Unmarshal(ev.Data, &name))
	require.Equal(t, "alice", name)

	requireNoMessage(t, s1)
}

func TestLeaveRoom_ClearsSessionAndBroadcasts(t *testing.T) {
	h := newTestHub(nil)
	s1 := newTestSession("s1")
	s2 := newTestSession("s2")

	inject(t, h, s1, EventJoin, JoinPayload{RoomID: "r1", UserName: "alice"})
	inject(t, h, s2, EventJoin, JoinPayload{RoomID: "r1", UserName: "bob"})
	drain(s1)
	drain(s2)

	inject(t, h, s2, EventLeaveRoom, struct{}{})

	require.Equal(t, []string{"alice"}, members(t, recv(t, s1)))
	require.Empty(t, s2.roomID)
	require.Empty(t, s2.userName)
	requireNoMessage(t, s2)
}

func TestDetach_ActsAsLeaveWithSinglePresenceBroadcast(t *testing.T) {
	h := newTestHub(nil)
	s1 := newTestSession("s1")
	s2 := newTestSession("s2")

	inject(t, h, s1, EventJoin, JoinPayload{RoomID: "r1", UserName: "alice"})
	inject(t, h, s2, EventJoin, JoinPayload{RoomID: "r1", UserName: "bob"})
	drain(s1)
	drain(s2)

	// The transport layer funnels abrupt disconnects through detach.
	h.deliver(h.detach(s2))

	require.Equal(t, []string{"alice"}, members(t, recv(t, s1)))
	requireNoMessage(t, s1)
	require.Equal(t, []string{"alice"}, h.store.Members("r1"))

	// A second detach is a no-op and produces no broadcast.
	h.deliver(h.detach(s2))
	requireNoMessage(t, s1)
}

func TestCompile_BroadcastsResultToWholeRoom(t *testing.T) {
	exec := &fakeExecutor{result: json.RawMessage(`{"run":{"output":"X"}}`)}
	h := newTestHub(exec)
	s1 := newTestSession("s1")
	s2 := newTestSession("s2")

	inject(t, h, s1, EventJoin, JoinPayload{RoomID: "r1", UserName: "alice"})
	inject(t, h, s2, EventJoin, JoinPayload{RoomID: "r1", UserName: "bob"})
	drain(s1)
	drain(s2)

	inject(t, h, s1, EventCompileCode, CompilePayload{
		RoomID:   "r1",
		Code:     "print(1)",
		Language: "python",
		Version:  "*",
		Input:    "stdin",
	})

	res := awaitResult(t, h)
	h.deliver(h.resultOutbound(res))

	require.Equal(t, "python", exec.lastReq.Language)
	require.Equal(t, "print(1)", exec.lastReq.Code)
	require.Equal(t, "stdin", exec.lastReq.Stdin)

	for _, s := range []*Session{s1, s2} {
		ev := recv(t, s)
		require.Equal(t, EventCodeResponse, ev.Name)
		require.JSONEq(t, `{"run":{"output":"X"}}`, string(ev.Data))
	}
	require.EqualValues(t, 1, h.ExecutionCount())
}

func TestCompile_ResultDeliveredAfterRequesterLeft(t *testing.T) {
	exec := &fakeExecutor{result: json.RawMessage(`{"run":{"output":"late"}}`)}
	h := newTestHub(exec)
	s1 := newTestSession("s1")
	s2 := newTestSession("s2")

	inject(t, h, s1, EventJoin, JoinPayload{RoomID: "r1", UserName: "alice"})
	inject(t, h, s2, EventJoin, JoinPayload{RoomID: "r1", UserName: "bob"})
	drain(s1)
	drain(s2)

	inject(t, h, s1, EventCompileCode, CompilePayload{RoomID: "r1", Code: "slow", Language: "python"})
	res := awaitResult(t, h)

	// Requester disconnects before the response arrives.
	h.deliver(h.detach(s1))
	drain(s1)
	drain(s2)

	h.deliver(h.resultOutbound(res))

	ev := recv(t, s2)
	require.Equal(t, EventCodeResponse, ev.Name)
	requireNoMessage(t, s1)
}

func awaitResult(t *testing.T, h *Hub) execResult {
	t.Helper()
	select {
	case res := <-h.results:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for execution result")
		return execResult{}
	}
}
