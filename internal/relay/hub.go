// Package relay fans events out between the members of a room. All
// membership mutations run on a single hub goroutine, so joins and
// leaves for the same room are totally ordered without locks.
package relay

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/codepair-live/codepair/internal/metrics"
	"github.com/codepair-live/codepair/internal/piston"
	"github.com/codepair-live/codepair/internal/registry"
)

// Executor runs a code submission against the execution backend. It is
// an interface so hub tests can stub the gateway.
type Executor interface {
	Execute(ctx context.Context, req piston.Request) json.RawMessage
}

type inboundEvent struct {
	sess *Session
	ev   Event
}

type execResult struct {
	roomID  string
	payload json.RawMessage
}

// outbound is one broadcast instruction produced by an event handler.
// only takes precedence over roomID/exclude when set.
type outbound struct {
	roomID  string
	exclude *Session
	only    *Session
	payload []byte
}

type handlerFunc func(*Session, json.RawMessage) []outbound

// Hub binds sessions to rooms and dispatches events. The registry store
// tracks membership by display name; the hub's own room index tracks
// delivery by connection, so two connections sharing a name collapse
// into one membership entry but both receive broadcasts.
type Hub struct {
	store  registry.Store
	exec   Executor
	logger zerolog.Logger

	register   chan *Session
	unregister chan *Session
	events     chan inboundEvent
	results    chan execResult

	sessions map[*Session]struct{}
	rooms    map[string]map[*Session]struct{}
	handlers map[string]handlerFunc

	connections atomic.Int64
	executions  atomic.Int64
}

// NewHub creates a Hub around the given store and execution gateway.
// Call Run before serving connections.
func NewHub(store registry.Store, exec Executor, logger zerolog.Logger) *Hub {
	h := &Hub{
		store:      store,
		exec:       exec,
		logger:     logger.With().Str("component", "relay").Logger(),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		events:     make(chan inboundEvent),
		results:    make(chan execResult, 16),
		sessions:   make(map[*Session]struct{}),
		rooms:      make(map[string]map[*Session]struct{}),
	}
	h.handlers = map[string]handlerFunc{
		EventJoin:           h.handleJoin,
		EventCodeChange:     h.handleCodeChange,
		EventLanguageChange: h.handleLanguageChange,
		EventTyping:         h.handleTyping,
		EventCompileCode:    h.handleCompile,
		EventLeaveRoom:      h.handleLeave,
	}
	return h
}

// Run processes session lifecycle and events until ctx is cancelled.
// Everything that mutates membership happens here, sequentially.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.register:
			h.sessions[s] = struct{}{}
			h.connections.Add(1)
			metrics.ConnectionsActive.Inc()
			h.logger.Debug().Str("session", s.id).Msg("connection opened")

		case s := <-h.unregister:
			if _, ok := h.sessions[s]; !ok {
				break
			}
			delete(h.sessions, s)
			h.deliver(h.detach(s))
			close(s.send)
			h.connections.Add(-1)
			metrics.ConnectionsActive.Dec()
			h.logger.Debug().Str("session", s.id).Msg("connection closed")

		case in := <-h.events:
			h.deliver(h.dispatch(in.sess, in.ev))

		case res := <-h.results:
			h.deliver(h.resultOutbound(res))
		}
	}
}

// dispatch routes one inbound event through the handler table. Unknown
// events are dropped.
func (h *Hub) dispatch(s *Session, ev Event) []outbound {
	handler, ok := h.handlers[ev.Name]
	if !ok {
		h.logger.Debug().Str("event", ev.Name).Str("session", s.id).Msg("unknown event")
		return nil
	}
	metrics.RelayEventsTotal.WithLabelValues(ev.Name).Inc()
	return handler(s, ev.Data)
}

func (h *Hub) handleJoin(s *Session, data json.RawMessage) []outbound {
	var p JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	p.RoomID = strings.TrimSpace(p.RoomID)
	p.UserName = strings.TrimSpace(p.UserName)
	if p.RoomID == "" || p.UserName == "" {
		// Malformed joins are dropped without creating a room.
		return nil
	}

	// A connection holds at most one room; switching is leave-then-join.
	outs := h.detach(s)

	s.roomID = p.RoomID
	s.userName = p.UserName
	if h.rooms[p.RoomID] == nil {
		h.rooms[p.RoomID] = make(map[*Session]struct{})
	}
	h.rooms[p.RoomID][s] = struct{}{}

	members := h.store.Join(p.RoomID, p.UserName)
	h.updateRoomGauge()
	h.logger.Debug().Str("room", p.RoomID).Str("user", p.UserName).Str("session", s.id).Msg("joined room")

	outs = append(outs, outbound{roomID: p.RoomID, payload: h.encode(EventUserJoined, members)})

	code, language := h.store.Snapshot(p.RoomID)
	outs = append(outs, outbound{only: s, payload: h.encode(EventSync, SyncPayload{
		Code:     code,
		Language: language,
		Users:    members,
	})})
	return outs
}

func (h *Hub) handleCodeChange(s *Session, data json.RawMessage) []outbound {
	var p CodeChangePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	h.store.SetCode(p.RoomID, p.Code)
	// The sender's editor already reflects the edit; echoing it back
	// would jump the cursor.
	return []outbound{{roomID: p.RoomID, exclude: s, payload: h.encode(EventCodeUpdate, p.Code)}}
}

func (h *Hub) handleLanguageChange(s *Session, data json.RawMessage) []outbound {
	var p LanguageChangePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	h.store.SetLanguage(p.RoomID, p.Language)
	// Everyone, including the actor, re-renders from the broadcast.
	return []outbound{{roomID: p.RoomID, payload: h.encode(EventLanguageUpdate, p.Language)}}
}

func (h *Hub) handleTyping(s *Session, data json.RawMessage) []outbound {
	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	return []outbound{{roomID: p.RoomID, exclude: s, payload: h.encode(EventUserTyping, p.UserName)}}
}

func (h *Hub) handleCompile(s *Session, data json.RawMessage) []outbound {
	var p CompilePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	h.executions.Add(1)

	// The gateway call must not block the loop. The result is addressed
	// to the room id, not the session: whoever is in the room when the
	// response arrives receives it, even if the requester is gone.
	go func() {
		res := h.exec.Execute(context.Background(), piston.Request{
			Language: p.Language,
			Version:  p.Version,
			Code:     p.Code,
			Stdin:    p.Input,
		})
		h.results <- execResult{roomID: p.RoomID, payload: res}
	}()
	return nil
}

func (h *Hub) handleLeave(s *Session, _ json.RawMessage) []outbound {
	return h.detach(s)
}

// detach removes s from its current room, updates the registry and
// produces the presence broadcast for the remaining members. No-op for
// a session that is not in a room.
func (h *Hub) detach(s *Session) []outbound {
	if s.roomID == "" {
		return nil
	}
	roomID, name := s.roomID, s.userName
	s.roomID, s.userName = "", ""

	delete(h.rooms[roomID], s)
	members := h.store.Leave(roomID, name)
	h.updateRoomGauge()
	h.logger.Debug().Str("room", roomID).Str("user", name).Str("session", s.id).Msg("left room")

	return []outbound{{roomID: roomID, payload: h.encode(EventUserJoined, members)}}
}

func (h *Hub) resultOutbound(res execResult) []outbound {
	payload, err := json.Marshal(Event{Name: EventCodeResponse, Data: res.payload})
	if err != nil {
		h.logger.Error().Err(err).Msg("encoding execution result failed")
		return nil
	}
	return []outbound{{roomID: res.roomID, payload: payload}}
}

// deliver applies broadcast instructions to session send queues. A full
// queue drops the message rather than block the loop.
func (h *Hub) deliver(outs []outbound) {
	for _, out := range outs {
		if out.payload == nil {
			continue
		}
		if out.only != nil {
			h.send(out.only, out.payload)
			continue
		}
		for s := range h.rooms[out.roomID] {
			if s == out.exclude {
				continue
			}
			h.send(s, out.payload)
		}
	}
}

func (h *Hub) send(s *Session, payload []byte) {
	select {
	case s.send <- payload:
	default:
		h.logger.Warn().Str("session", s.id).Msg("send queue full, dropping message")
	}
}

func (h *Hub) encode(name string, data any) []byte {
	payload, err := encodeEvent(name, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", name).Msg("encoding event failed")
		return nil
	}
	return payload
}

func (h *Hub) updateRoomGauge() {
	_, occupied := h.store.RoomCount()
	metrics.RoomsOccupied.Set(float64(occupied))
}

// ConnectionCount reports the number of open connections. Safe to call
// from outside the hub loop.
func (h *Hub) ConnectionCount() int64 { return h.connections.Load() }

// ExecutionCount reports the number of execution requests accepted.
func (h *Hub) ExecutionCount() int64 { return h.executions.Load() }
