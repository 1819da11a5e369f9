package gateway

import (
	"encoding/json"

	"github.com/yndnr/roomrelay/internal/core/domain"
)

// Frame types.
const (
	FrameJoinRoom   = "join-room"
	FrameRoomUpdate = "room-update"
	FrameJoined     = "joined"
	FrameConnected  = "connected"
	FrameError      = "error"
)

// inboundFrame is a client to server frame.
type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outboundFrame is a server to client frame.
type outboundFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// parseJoinRoom extracts the room from a join-room payload. Both the bare
// string form and {"room": "..."} are accepted.
func parseJoinRoom(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", domain.ErrInvalidGroup.WithDetails("missing room")
	}

	var room string
	if err := json.Unmarshal(raw, &room); err == nil {
		return domain.NormalizeGroup(room)
	}

	var obj struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", domain.ErrInvalidFrame.WithDetails("join-room payload must be a string or {\"room\": ...}")
	}
	return domain.NormalizeGroup(obj.Room)
}

// updatePayload embeds a published message in a room-update frame. JSON
// messages are forwarded as-is; anything else becomes a JSON string.
func updatePayload(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	b, _ := json.Marshal(string(payload))
	return b
}

// errorFrame reports err to the client. Causes stay in the server log.
func errorFrame(err error) outboundFrame {
	de, ok := domain.AsError(err)
	if !ok {
		de = domain.ErrInternalServer
	}
	return outboundFrame{
		Type:    FrameError,
		Code:    de.Code,
		Message: de.Public(),
	}
}
