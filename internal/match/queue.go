package match

import "time"

// Entry is a participant's position in the waiting line.
type Entry struct {
	ParticipantID string
	EnqueuedAt    time.Time

	timer Timer // pending queue-timeout, nil once fired or cancelled
}

// Queue is the ordered waiting line. Ordering is FIFO but membership is a
// set: an id appears at most once no matter how often it is pushed. The
// Coordinator's mutex serializes all access.
type Queue struct {
	entries []*Entry
	index   map[string]*Entry
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{index: make(map[string]*Entry)}
}

// Push appends id to the tail of the queue. It returns the new entry, or nil
// if the id was already queued (idempotent enqueue).
func (q *Queue) Push(id string, at time.Time) *Entry {
	if _, ok := q.index[id]; ok {
		return nil
	}
	e := &Entry{ParticipantID: id, EnqueuedAt: at}
	q.entries = append(q.entries, e)
	q.index[id] = e
	return e
}

// Remove takes id out of the queue, stopping its pending timeout. It returns
// the removed entry, or nil if the id was not queued.
func (q *Queue) Remove(id string) *Entry {
	e, ok := q.index[id]
	if !ok {
		return nil
	}
	delete(q.index, id)
	for i, cur := range q.entries {
		if cur == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	return e
}

// Contains reports whether id is currently queued.
func (q *Queue) Contains(id string) bool {
	_, ok := q.index[id]
	return ok
}

// Entry returns the queue entry for id, or nil.
func (q *Queue) Entry(id string) *Entry {
	return q.index[id]
}

// IDs returns the queued ids in FIFO order. The slice is a snapshot; the
// pairing scan iterates it while removing matched entries from the queue.
func (q *Queue) IDs() []string {
	ids := make([]string, len(q.entries))
	for i, e := range q.entries {
		ids[i] = e.ParticipantID
	}
	return ids
}

// Len returns the number of queued participants.
func (q *Queue) Len() int { return len(q.entries) }
