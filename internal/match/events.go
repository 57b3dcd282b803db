package match

import "time"

// Separation reasons carried on partner-left notifications.
const (
	ReasonNext       = "next"
	ReasonLeave      = "leave"
	ReasonDisconnect = "disconnect"
)

// Notifier receives the outward-facing events produced by the Coordinator.
// Implementations translate them to wire messages (and metrics). Calls are
// made after the triggering mutation has been committed and outside the
// coordinator lock, so an implementation may block briefly without stalling
// matchmaking, though it should not for long.
type Notifier interface {
	// Lobby is sent once on registration when the mode auto-queues.
	Lobby(participantID string)

	// QueueWaiting confirms a retry was accepted and the participant is
	// back in the waiting line.
	QueueWaiting(participantID string)

	// QueueTimeout is terminal for the queue entry: the participant must
	// explicitly retry to requeue.
	QueueTimeout(participantID string, wait time.Duration)

	// RoomCreated is delivered to both members of a fresh pairing. Wait is
	// how long this member sat in the queue before the match.
	RoomCreated(participantID string, room Room, partnerID, partnerName string, wait time.Duration)

	// RoomClosed is delivered once per torn-down room, before any
	// PartnerLeft for the same separation.
	RoomClosed(room Room, reason string)

	// PartnerLeft tells the remaining member that the pair separated.
	// Reason is one of ReasonNext, ReasonLeave, ReasonDisconnect.
	PartnerLeft(participantID, reason string)
}

// NopNotifier discards all events. Useful as a default and in tests that
// only assert on state.
type NopNotifier struct{}

func (NopNotifier) Lobby(string)                                          {}
func (NopNotifier) QueueWaiting(string)                                   {}
func (NopNotifier) QueueTimeout(string, time.Duration)                    {}
func (NopNotifier) RoomCreated(string, Room, string, string, time.Duration) {}
func (NopNotifier) RoomClosed(Room, string)                               {}
func (NopNotifier) PartnerLeft(string, string)                            {}
