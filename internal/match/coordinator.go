package match

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixque/realtime/internal/registry"
)

// DefaultQueueTimeout is how long a participant may wait unmatched before
// receiving a terminal queue-timeout notification.
const DefaultQueueTimeout = 5 * time.Minute

// Config holds Coordinator tunables.
type Config struct {
	QueueTimeout time.Duration
	Clock        Clock
}

// DefaultConfig returns production defaults: five-minute queue timeout on
// the system clock.
func DefaultConfig() Config {
	return Config{
		QueueTimeout: DefaultQueueTimeout,
		Clock:        SystemClock(),
	}
}

// Coordinator is the session lifecycle controller. It owns all writes to the
// queue, ban ledger and session directory, and runs the pairing drain after
// every queue mutation. One mutex serializes commands, so a command handler
// (including its recursive drain) always runs to completion before the next
// command or timer callback touches the same structures.
type Coordinator struct {
	mu  sync.Mutex
	cfg Config

	reg   *registry.Registry
	queue *Queue
	bans  *BanLedger
	dir   *Directory

	notifier Notifier
}

// NewCoordinator creates a Coordinator over the given registry. Events go to
// notifier; pass NopNotifier{} to discard them.
func NewCoordinator(reg *registry.Registry, notifier Notifier, cfg Config) *Coordinator {
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultQueueTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Coordinator{
		cfg:      cfg,
		reg:      reg,
		queue:    NewQueue(),
		bans:     NewBanLedger(),
		dir:      NewDirectory(),
		notifier: notifier,
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// Join admits a freshly registered participant. When autoQueue is set (video
// mode) the participant is enqueued immediately, gets a lobby notification,
// and a pairing drain runs; text mode waits for an explicit retry.
func (c *Coordinator) Join(id string, autoQueue bool) {
	if c.reg.Lookup(id) == nil {
		return
	}

	c.mu.Lock()
	var ev eventQueue
	if autoQueue {
		c.enqueueLocked(id)
		ev.lobby(id)
		c.drainLocked(&ev)
	}
	c.mu.Unlock()
	ev.deliver(c.notifier)
}

// Next rotates the caller to a new partner. Unpaired callers are simply
// (re-)queued. Paired callers get a mutual permanent ban with their current
// partner, the room is torn down, the partner is notified and re-queued, and
// the drain runs for the caller's side; the fresh ban guarantees the two
// cannot land back in the same room.
func (c *Coordinator) Next(id string) {
	if c.reg.Lookup(id) == nil {
		return
	}

	c.mu.Lock()
	var ev eventQueue

	partner := c.dir.Partner(id)
	if partner == "" {
		c.enqueueLocked(id)
		c.drainLocked(&ev)
		c.mu.Unlock()
		ev.deliver(c.notifier)
		return
	}

	c.bans.Add(id, partner)
	c.teardownLocked(id, partner, ReasonNext, &ev)

	c.enqueueLocked(id)
	if c.reg.IsOnline(partner) {
		ev.partnerLeft(partner, ReasonNext)
		c.enqueueLocked(partner)
	}
	c.drainLocked(&ev)

	c.mu.Unlock()
	ev.deliver(c.notifier)
}

// LeaveExplicit handles the leave command: the caller exits the queue and any
// active room, the partner (if any) is banned against the caller, notified
// and re-queued. The caller stays registered but is not re-queued.
func (c *Coordinator) LeaveExplicit(id string) {
	c.mu.Lock()
	var ev eventQueue
	c.separateLocked(id, ReasonLeave, &ev)
	c.mu.Unlock()
	ev.deliver(c.notifier)
}

// Disconnect handles a closed connection: same separation as an explicit
// leave, plus the participant is purged from the registry along with every
// ban involving it. Safe to call more than once for the same id.
func (c *Coordinator) Disconnect(id string) {
	if c.reg.Lookup(id) == nil {
		return // already purged; a doubly-reported close is a no-op
	}

	// Mark offline first so a pairing drain scheduled concurrently skips
	// this id even before the queue entry is removed.
	c.reg.MarkOffline(id)

	c.mu.Lock()
	var ev eventQueue
	c.separateLocked(id, ReasonDisconnect, &ev)
	c.bans.Purge(id)
	c.mu.Unlock()

	c.reg.Unregister(id)
	ev.deliver(c.notifier)
}

// Retry re-enters the queue after a leave, decline or timeout. It is a no-op
// for offline or already-queued participants.
func (c *Coordinator) Retry(id string) {
	if !c.reg.IsOnline(id) {
		return
	}

	c.mu.Lock()
	var ev eventQueue
	if c.enqueueLocked(id) {
		ev.queueWaiting(id)
		c.drainLocked(&ev)
	}
	c.mu.Unlock()
	ev.deliver(c.notifier)
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// Partner returns the caller's current partner id, or "".
func (c *Coordinator) Partner(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir.Partner(id)
}

// RoomMembership returns the room id and partner for a participant, with
// ok=false when unpaired. Used by the signaling relay and chat to validate
// room references without reaching into coordinator internals.
func (c *Coordinator) RoomMembership(id string) (roomID, partnerID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	roomID = c.dir.RoomOf(id)
	if roomID == "" {
		return "", "", false
	}
	return roomID, c.dir.Partner(id), true
}

// QueueLen returns the current queue depth.
func (c *Coordinator) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// RoomCount returns the number of active rooms.
func (c *Coordinator) RoomCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir.RoomCount()
}

// IsQueued reports whether the participant is waiting in the queue.
func (c *Coordinator) IsQueued(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Contains(id)
}

// ---------------------------------------------------------------------------
// Internals (all *Locked methods require c.mu)
// ---------------------------------------------------------------------------

// enqueueLocked adds id to the queue tail with a fresh timeout. Returns
// false when the id was already queued; membership is a set.
func (c *Coordinator) enqueueLocked(id string) bool {
	now := c.cfg.Clock.Now()
	e := c.queue.Push(id, now)
	if e == nil {
		return false
	}
	e.timer = c.cfg.Clock.AfterFunc(c.cfg.QueueTimeout, func() {
		c.onQueueTimeout(id, e)
	})
	return true
}

// separateLocked removes id from the queue and tears down its pairing, if
// any: mutual ban, partner notification, partner re-queue + drain. The
// caller decides what happens to id afterwards (nothing for leave,
// registry purge for disconnect).
func (c *Coordinator) separateLocked(id, reason string, ev *eventQueue) {
	c.queue.Remove(id)

	partner := c.dir.Partner(id)
	if partner == "" {
		// Not paired; still drop a dangling room mapping defensively.
		if roomID := c.dir.RoomOf(id); roomID != "" {
			c.dir.DeleteRoom(roomID)
		}
		c.dir.Drop(id)
		return
	}

	c.bans.Add(id, partner)
	c.teardownLocked(id, partner, reason, ev)

	if c.reg.IsOnline(partner) {
		ev.partnerLeft(partner, reason)
		c.enqueueLocked(partner)
		c.drainLocked(ev)
	}
}

// teardownLocked destroys the room shared by a and b and both partner links,
// emitting one room-closed event. Both sides' room ids are looked up
// independently so a half-torn-down state (from a prior defensive cleanup)
// cannot leave a stale record behind.
func (c *Coordinator) teardownLocked(a, b, reason string, ev *eventQueue) {
	if roomID := c.dir.RoomOf(a); roomID != "" {
		if room, ok := c.dir.Room(roomID); ok {
			ev.roomClosed(room, reason)
		}
		c.dir.DeleteRoom(roomID)
	}
	if roomID := c.dir.RoomOf(b); roomID != "" {
		c.dir.DeleteRoom(roomID)
	}
	c.dir.Drop(a)
	c.dir.Drop(b)
}

// drainLocked pairs queued participants until no compatible pair remains.
// The scan is FIFO outer-then-inner: the earliest-queued online participant
// anchors, and the earliest-queued compatible candidate wins. Offline or
// already-paired entries are skipped but never removed here; removal is the
// lifecycle's job.
func (c *Coordinator) drainLocked(ev *eventQueue) {
	for {
		a, b, ok := c.findPairLocked()
		if !ok {
			return
		}

		entryA := c.queue.Remove(a)
		entryB := c.queue.Remove(b)

		now := c.cfg.Clock.Now()
		room := Room{
			ID:        uuid.New().String(),
			A:         a,
			B:         b,
			CreatedAt: now,
		}
		c.dir.Link(room)

		ev.roomCreated(a, room, b, c.reg.DisplayName(b), now.Sub(entryA.EnqueuedAt))
		ev.roomCreated(b, room, a, c.reg.DisplayName(a), now.Sub(entryB.EnqueuedAt))
		log.Printf("[match] paired room=%s a=%s b=%s queue=%d", room.ID, a, b, c.queue.Len())
	}
}

func (c *Coordinator) findPairLocked() (a, b string, ok bool) {
	ids := c.queue.IDs()
	for i := 0; i < len(ids); i++ {
		first := ids[i]
		if !c.reg.IsOnline(first) || c.dir.InRoom(first) {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			second := ids[j]
			if !c.reg.IsOnline(second) || c.dir.InRoom(second) {
				continue
			}
			if c.bans.Banned(first, second) {
				continue
			}
			return first, second, true
		}
	}
	return "", "", false
}

// onQueueTimeout fires from the clock when a queue entry expires. It re-enters
// the coordinator through the same lock as commands. The expired entry is
// compared by identity, not by id: a callback already in flight when its timer
// was stopped still runs, and by the time it acquires the lock the id may have
// been paired, separated and re-queued under a fresh entry with its own timer.
// Such a stale callback must not touch the fresh entry. A pairing that raced
// the timer likewise never loses its room, and an expired entry can never be
// paired afterwards.
func (c *Coordinator) onQueueTimeout(id string, expired *Entry) {
	c.mu.Lock()
	var ev eventQueue

	if c.queue.Entry(id) != expired || !c.reg.IsOnline(id) {
		c.mu.Unlock()
		return
	}

	wait := c.cfg.Clock.Now().Sub(expired.EnqueuedAt)
	c.queue.Remove(id)
	ev.queueTimeout(id, wait)
	log.Printf("[match] queue timeout id=%s wait=%s", id, wait.Round(time.Second))

	c.mu.Unlock()
	ev.deliver(c.notifier)
}
