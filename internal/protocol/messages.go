// Package protocol defines the WebSocket message types exchanged between
// clients and the pairing server. Every message is a JSON object with a
// "type" discriminator; client payloads are decoded into explicit typed
// structs at the transport boundary before they reach the core.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Session modes declared on join. Video mode enters the matchmaking queue
// immediately; text mode waits for an explicit queue:retry.
const (
	ModeVideo = "video"
	ModeText  = "text"
)

// Client -> Server message types.
const (
	TypeJoin         = "join"
	TypeQueueNext    = "queue:next"
	TypeQueueLeave   = "queue:leave"
	TypeQueueRetry   = "queue:retry"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeMediaState   = "media:state"
	TypeChatMessage  = "chat:message"
	TypeChatTyping   = "chat:typing"
	TypeReport       = "report"
	TypePing         = "ping"
)

// Server -> Client message types.
const (
	TypeSession        = "session"
	TypeLobby          = "lobby"
	TypeQueueWaiting   = "queue:waiting"
	TypeQueueTimeout   = "queue:timeout"
	TypeRoomCreated    = "room-created"
	TypePartnerLeft    = "partner:left"
	TypePeerMediaState = "peer:media-state"
	TypeChatPreview    = "chat:preview"
	TypeChatSystem     = "chat:system"
	TypeRateLimited    = "rate-limited"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — initial parse extracting only the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// decoding into the concrete struct for that type.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the payload can be decoded later into the appropriate struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinMsg registers the connection with a display name and session mode.
type JoinMsg struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Mode        string `json:"mode"`
}

// QueueNextMsg rotates to a new partner (or joins the queue if unpaired).
type QueueNextMsg struct {
	Type string `json:"type"`
}

// QueueLeaveMsg exits the queue and any active room.
type QueueLeaveMsg struct {
	Type string `json:"type"`
}

// QueueRetryMsg re-enters the queue after a leave, separation or timeout.
type QueueRetryMsg struct {
	Type string `json:"type"`
}

// OfferMsg carries a WebRTC SDP offer for the peer in the given room. The
// SDP body is opaque to the server.
type OfferMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	SDP    string `json:"sdp"`
}

// AnswerMsg carries a WebRTC SDP answer for the peer in the given room.
type AnswerMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	SDP    string `json:"sdp"`
}

// ICECandidateMsg carries an ICE candidate for the peer. Role distinguishes
// the sender/receiver leg on the client; the server forwards it untouched.
type ICECandidateMsg struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Candidate json.RawMessage `json:"candidate"`
	Role      string          `json:"role,omitempty"`
}

// MediaStateMsg announces the sender's mic/camera toggles. Omitted fields
// keep their previous value.
type MediaStateMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	MicOn  *bool  `json:"mic_on,omitempty"`
	CamOn  *bool  `json:"cam_on,omitempty"`
}

// ChatMessageMsg is a text message for the current room's partner.
type ChatMessageMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
}

// ChatTypingMsg signals whether the sender is typing.
type ChatTypingMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

// ReportMsg reports the current partner for abuse.
type ReportMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// PingMsg is a client-initiated keepalive.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionMsg is sent once after the upgrade with the participant's id.
type SessionMsg struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id"`
}

// LobbyMsg confirms registration for modes that auto-queue.
type LobbyMsg struct {
	Type string `json:"type"`
}

// QueueWaitingMsg confirms a retry was accepted.
type QueueWaitingMsg struct {
	Type string `json:"type"`
}

// QueueTimeoutMsg is terminal for a queue entry: the client must issue a
// fresh queue:retry to requeue.
type QueueTimeoutMsg struct {
	Type       string `json:"type"`
	WaitTimeMs int64  `json:"wait_time_ms"`
	Message    string `json:"message,omitempty"`
}

// RoomCreatedMsg is sent to both members of a fresh pairing. It is the cue
// for the signaling handshake to begin.
type RoomCreatedMsg struct {
	Type        string `json:"type"`
	RoomID      string `json:"room_id"`
	PartnerID   string `json:"partner_id"`
	PartnerName string `json:"partner_name"`
}

// PartnerLeftMsg tells the remaining member the pair separated.
type PartnerLeftMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"` // "next", "leave" or "disconnect"
}

// ForwardedOfferMsg relays an SDP offer from the room partner.
type ForwardedOfferMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	SDP    string `json:"sdp"`
	From   string `json:"from"`
}

// ForwardedAnswerMsg relays an SDP answer from the room partner.
type ForwardedAnswerMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	SDP    string `json:"sdp"`
	From   string `json:"from"`
}

// ForwardedICEMsg relays an ICE candidate from the room partner.
type ForwardedICEMsg struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Candidate json.RawMessage `json:"candidate"`
	Role      string          `json:"role,omitempty"`
	From      string          `json:"from"`
}

// PeerMediaStateMsg announces a room peer's current mic/camera state.
type PeerMediaStateMsg struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	MicOn bool   `json:"mic_on"`
	CamOn bool   `json:"cam_on"`
}

// ServerChatMsg relays a partner's chat message.
type ServerChatMsg struct {
	Type string `json:"type"`
	From string `json:"from"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// ServerTypingMsg relays the partner's typing indicator.
type ServerTypingMsg struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// ChatPreviewMsg delivers the link preview extracted from a recent message.
type ChatPreviewMsg struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// ChatSystemMsg is a server-originated line in the chat transcript.
type ChatSystemMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// RateLimitedMsg tells the client an action was throttled.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg communicates a rejected command.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg answers a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the type string, the decoded struct, and any parse error. An
// error is returned for unknown or server-only types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoin:
		var m JoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeQueueNext:
		var m QueueNextMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeQueueLeave:
		var m QueueLeaveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeQueueRetry:
		var m QueueRetryMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeOffer:
		var m OfferMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAnswer:
		var m AnswerMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeICECandidate:
		var m ICECandidateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMediaState:
		var m MediaStateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatTyping:
		var m ChatTypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded server message. The msgType is
// injected into the payload under the "type" key so the payload structs
// never need their Type fields pre-filled.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
