package relay

import "encoding/json"

// Event is the wire envelope for both directions of the websocket
// channel. Event names match what the browser client emits and listens
// for.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Inbound event names.
const (
	EventJoin           = "join"
	EventCodeChange     = "codeChange"
	EventLanguageChange = "languageChange"
	EventTyping         = "typing"
	EventCompileCode    = "compileCode"
	EventLeaveRoom      = "leaveRoom"
)

// Outbound event names.
const (
	EventUserJoined     = "userJoined"
	EventCodeUpdate     = "codeUpdate"
	EventLanguageUpdate = "languageUpdate"
	EventUserTyping     = "userTyping"
	EventCodeResponse   = "codeResponse"
	EventSync           = "sync"
)

// JoinPayload asks to enter a room under a display name.
type JoinPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// CodeChangePayload carries the full buffer after an edit.
type CodeChangePayload struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// LanguageChangePayload carries a new language selection.
type LanguageChangePayload struct {
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
}

// TypingPayload signals that a member is editing.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// CompilePayload asks for the buffer to be executed.
type CompilePayload struct {
	RoomID   string `json:"roomId"`
	Code     string `json:"code"`
	Language string `json:"language"`
	Version  string `json:"version"`
	Input    string `json:"input"`
}

// SyncPayload is sent to a session right after it joins, carrying the
// room's last broadcast document state so late joiners do not start
// from the client default.
type SyncPayload struct {
	Code     string   `json:"code"`
	Language string   `json:"language"`
	Users    []string `json:"users"`
}

// encodeEvent marshals a full envelope ready for a session send queue.
func encodeEvent(name string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Name: name, Data: raw})
}
