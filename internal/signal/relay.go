// Package signal relays WebRTC signaling payloads (SDP offers/answers, ICE
// candidates) and media state between the two members of a room. The server
// never inspects SDP or candidate bodies; it only validates that the sender
// actually belongs to the room it names.
package signal

import (
	"errors"
	"log"
	"sync"

	"github.com/helixque/realtime/internal/protocol"
)

// Relay errors returned to handlers for translation into client error messages.
var (
	ErrNotInRoom    = errors.New("signal: sender is not in the named room")
	ErrPartnerGone  = errors.New("signal: partner connection unavailable")
	ErrEmptyPayload = errors.New("signal: empty signaling payload")
)

// Membership resolves a participant's current room. Implemented by the
// pairing coordinator.
type Membership interface {
	RoomMembership(id string) (roomID, partnerID string, ok bool)
}

// Sender delivers an encoded server message to a participant's connection.
// Implemented by the WebSocket server.
type Sender interface {
	SendMessage(participantID string, data []byte) error
}

// mediaState tracks one participant's mic/camera toggles. Defaults are on.
type mediaState struct {
	micOn bool
	camOn bool
}

// Relay forwards signaling messages between room partners and remembers each
// participant's last announced media state so it can be replayed to a fresh
// partner on pairing.
type Relay struct {
	membership Membership
	sender     Sender

	mu     sync.Mutex
	states map[string]mediaState // participant id -> last announced state
}

// NewRelay creates a Relay over the given membership source and sender.
func NewRelay(membership Membership, sender Sender) *Relay {
	return &Relay{
		membership: membership,
		sender:     sender,
		states:     make(map[string]mediaState),
	}
}

// ForwardOffer relays an SDP offer from the sender to their room partner.
func (r *Relay) ForwardOffer(from string, msg protocol.OfferMsg) error {
	if msg.SDP == "" {
		return ErrEmptyPayload
	}
	partner, err := r.resolve(from, msg.RoomID)
	if err != nil {
		return err
	}

	data, err := protocol.NewServerMessage(protocol.TypeOffer, protocol.ForwardedOfferMsg{
		RoomID: msg.RoomID,
		SDP:    msg.SDP,
		From:   from,
	})
	if err != nil {
		return err
	}
	return r.deliver(partner, data)
}

// ForwardAnswer relays an SDP answer from the sender to their room partner.
func (r *Relay) ForwardAnswer(from string, msg protocol.AnswerMsg) error {
	if msg.SDP == "" {
		return ErrEmptyPayload
	}
	partner, err := r.resolve(from, msg.RoomID)
	if err != nil {
		return err
	}

	data, err := protocol.NewServerMessage(protocol.TypeAnswer, protocol.ForwardedAnswerMsg{
		RoomID: msg.RoomID,
		SDP:    msg.SDP,
		From:   from,
	})
	if err != nil {
		return err
	}
	return r.deliver(partner, data)
}

// ForwardICE relays an ICE candidate from the sender to their room partner.
// The candidate body is passed through untouched.
func (r *Relay) ForwardICE(from string, msg protocol.ICECandidateMsg) error {
	if len(msg.Candidate) == 0 {
		return ErrEmptyPayload
	}
	partner, err := r.resolve(from, msg.RoomID)
	if err != nil {
		return err
	}

	data, err := protocol.NewServerMessage(protocol.TypeICECandidate, protocol.ForwardedICEMsg{
		RoomID:    msg.RoomID,
		Candidate: msg.Candidate,
		Role:      msg.Role,
		From:      from,
	})
	if err != nil {
		return err
	}
	return r.deliver(partner, data)
}

// UpdateMediaState records the sender's mic/camera toggles and announces the
// new state to the room partner. Omitted fields keep their previous value.
func (r *Relay) UpdateMediaState(from string, msg protocol.MediaStateMsg) error {
	partner, err := r.resolve(from, msg.RoomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	st, ok := r.states[from]
	if !ok {
		st = mediaState{micOn: true, camOn: true}
	}
	if msg.MicOn != nil {
		st.micOn = *msg.MicOn
	}
	if msg.CamOn != nil {
		st.camOn = *msg.CamOn
	}
	r.states[from] = st
	r.mu.Unlock()

	data, err := protocol.NewServerMessage(protocol.TypePeerMediaState, protocol.PeerMediaStateMsg{
		ID:    from,
		MicOn: st.micOn,
		CamOn: st.camOn,
	})
	if err != nil {
		return err
	}
	return r.deliver(partner, data)
}

// SyncStates replays both members' current media state to each other. Called
// right after a room is created so each side renders the partner's mute state
// without waiting for the next toggle.
func (r *Relay) SyncStates(a, b string) {
	r.mu.Lock()
	sa, okA := r.states[a]
	sb, okB := r.states[b]
	r.mu.Unlock()

	if okA {
		r.announce(b, a, sa)
	}
	if okB {
		r.announce(a, b, sb)
	}
}

// Forget drops the remembered media state for a departed participant.
func (r *Relay) Forget(id string) {
	r.mu.Lock()
	delete(r.states, id)
	r.mu.Unlock()
}

func (r *Relay) announce(to, about string, st mediaState) {
	data, err := protocol.NewServerMessage(protocol.TypePeerMediaState, protocol.PeerMediaStateMsg{
		ID:    about,
		MicOn: st.micOn,
		CamOn: st.camOn,
	})
	if err != nil {
		log.Printf("[signal] failed to build media state for %s: %v", about, err)
		return
	}
	if err := r.sender.SendMessage(to, data); err != nil {
		log.Printf("[signal] media state delivery to %s failed: %v", to, err)
	}
}

// resolve validates that from is currently in roomID and returns the partner.
// A stale room id (the pair separated before the message arrived) fails the
// check, so late signaling can never leak across pairings.
func (r *Relay) resolve(from, roomID string) (string, error) {
	currentRoom, partner, ok := r.membership.RoomMembership(from)
	if !ok || currentRoom != roomID || partner == "" {
		return "", ErrNotInRoom
	}
	return partner, nil
}

func (r *Relay) deliver(to string, data []byte) error {
	if err := r.sender.SendMessage(to, data); err != nil {
		return ErrPartnerGone
	}
	return nil
}
