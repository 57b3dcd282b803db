package match

import "time"

// eventQueue accumulates notifications while the coordinator lock is held
// and delivers them afterwards. Local state is therefore always final before
// any network write starts, which keeps a second command from ever observing
// a half-applied mutation through a notification round-trip.
type eventQueue struct {
	events []func(Notifier)
}

func (q *eventQueue) lobby(id string) {
	q.events = append(q.events, func(n Notifier) { n.Lobby(id) })
}

func (q *eventQueue) queueWaiting(id string) {
	q.events = append(q.events, func(n Notifier) { n.QueueWaiting(id) })
}

func (q *eventQueue) queueTimeout(id string, wait time.Duration) {
	q.events = append(q.events, func(n Notifier) { n.QueueTimeout(id, wait) })
}

func (q *eventQueue) roomCreated(id string, room Room, partnerID, partnerName string, wait time.Duration) {
	q.events = append(q.events, func(n Notifier) {
		n.RoomCreated(id, room, partnerID, partnerName, wait)
	})
}

func (q *eventQueue) roomClosed(room Room, reason string) {
	q.events = append(q.events, func(n Notifier) { n.RoomClosed(room, reason) })
}

func (q *eventQueue) partnerLeft(id, reason string) {
	q.events = append(q.events, func(n Notifier) { n.PartnerLeft(id, reason) })
}

// deliver replays the queued notifications in order. Must be called after
// the coordinator lock has been released.
func (q *eventQueue) deliver(n Notifier) {
	for _, fire := range q.events {
		fire(n)
	}
	q.events = nil
}
