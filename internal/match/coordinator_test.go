package match

import (
	"sync"
	"testing"
	"time"

	"github.com/helixque/realtime/internal/registry"
)

// ---------- test fixtures ----------

// manualClock lets tests fire queue timeouts deterministically.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock    *manualClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and fires every due timer synchronously.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.deadline.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// recorder captures coordinator notifications for assertions.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	kind    string
	to      string
	reason  string
	roomID  string
	partner string
	wait    time.Duration
}

func (r *recorder) add(e recordedEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) Lobby(id string)        { r.add(recordedEvent{kind: "lobby", to: id}) }
func (r *recorder) QueueWaiting(id string) { r.add(recordedEvent{kind: "waiting", to: id}) }

func (r *recorder) QueueTimeout(id string, wait time.Duration) {
	r.add(recordedEvent{kind: "timeout", to: id, wait: wait})
}

func (r *recorder) RoomCreated(id string, room Room, partnerID, partnerName string, wait time.Duration) {
	r.add(recordedEvent{kind: "room", to: id, roomID: room.ID, partner: partnerID, wait: wait})
}

func (r *recorder) RoomClosed(room Room, reason string) {
	r.add(recordedEvent{kind: "room-closed", roomID: room.ID, reason: reason})
}

func (r *recorder) PartnerLeft(id, reason string) {
	r.add(recordedEvent{kind: "partner-left", to: id, reason: reason})
}

func (r *recorder) byKind(kind string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) countFor(kind, to string) int {
	n := 0
	for _, e := range r.byKind(kind) {
		if e.to == to {
			n++
		}
	}
	return n
}

// setupCoordinator builds a coordinator with a manual clock and recorder.
func setupCoordinator(t *testing.T) (*Coordinator, *registry.Registry, *recorder, *manualClock) {
	t.Helper()
	reg := registry.New()
	rec := &recorder{}
	clock := newManualClock()
	c := NewCoordinator(reg, rec, Config{QueueTimeout: DefaultQueueTimeout, Clock: clock})
	return c, reg, rec, clock
}

// joinVideo registers a participant and admits it with auto-queue on.
func joinVideo(t *testing.T, c *Coordinator, reg *registry.Registry, id string) {
	t.Helper()
	reg.Register(id, "user-"+id, nil)
	c.Join(id, true)
}

// ---------- pairing engine ----------

func TestPairingDeterminism(t *testing.T) {
	c, reg, rec, _ := setupCoordinator(t)

	for _, id := range []string{"a", "b", "c", "d"} {
		joinVideo(t, c, reg, id)
	}

	rooms := rec.byKind("room")
	if len(rooms) != 4 {
		t.Fatalf("expected 4 room-created events, got %d", len(rooms))
	}

	// Anchor-first: a pairs with b, then c with d.
	if rooms[0].to != "a" || rooms[0].partner != "b" {
		t.Errorf("first pairing: got to=%s partner=%s, want a/b", rooms[0].to, rooms[0].partner)
	}
	if rooms[2].to != "c" || rooms[2].partner != "d" {
		t.Errorf("second pairing: got to=%s partner=%s, want c/d", rooms[2].to, rooms[2].partner)
	}
	if rooms[0].roomID == rooms[2].roomID {
		t.Error("the two pairs share a room id")
	}

	if c.QueueLen() != 0 {
		t.Errorf("queue not drained: len=%d", c.QueueLen())
	}
	if c.RoomCount() != 2 {
		t.Errorf("expected 2 rooms, got %d", c.RoomCount())
	}
}

func TestPairingSkipsBannedCombination(t *testing.T) {
	c, reg, _, _ := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	joinVideo(t, c, reg, "b")
	c.Next("a") // separate and ban a<->b; both re-queued

	// Only banned combinations remain: nobody is paired, nobody dropped.
	if c.RoomCount() != 0 {
		t.Fatalf("banned pair was rematched")
	}
	if !c.IsQueued("a") || !c.IsQueued("b") {
		t.Fatal("queue entries dropped for lack of a match")
	}

	// A third participant unblocks both.
	joinVideo(t, c, reg, "c")
	if c.RoomCount() != 1 {
		t.Fatalf("expected one room after third join, got %d", c.RoomCount())
	}
}

func TestPairingSkipsOfflineEntries(t *testing.T) {
	c, reg, _, _ := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	reg.MarkOffline("a") // disconnected but cleanup not yet processed
	joinVideo(t, c, reg, "b")
	joinVideo(t, c, reg, "c")

	if partner := c.Partner("b"); partner != "c" {
		t.Errorf("expected b paired with c, got %q", partner)
	}
	// The offline entry is skipped, not removed; removal is the
	// lifecycle's job.
	if !c.IsQueued("a") {
		t.Error("offline entry removed by the pairing scan")
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	c, reg, _, _ := setupCoordinator(t)

	reg.Register("a", "Alice", nil)
	c.Join("a", true)
	c.Next("a")  // unpaired: ensure-queued path
	c.Retry("a") // already queued: no-op

	if got := c.QueueLen(); got != 1 {
		t.Fatalf("participant queued %d times, want 1", got)
	}
}

// ---------- separation semantics ----------

func TestNextBansAndNotifiesPartner(t *testing.T) {
	c, reg, rec, _ := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	joinVideo(t, c, reg, "b")
	if c.Partner("a") != "b" {
		t.Fatal("precondition: a and b should be paired")
	}

	c.Next("a")

	left := rec.byKind("partner-left")
	if len(left) != 1 || left[0].to != "b" || left[0].reason != ReasonNext {
		t.Fatalf("expected one partner-left{next} to b, got %+v", left)
	}
	if c.Partner("a") != "" || c.Partner("b") != "" {
		t.Error("partner links survived separation")
	}
	if c.RoomCount() != 0 {
		t.Error("room survived separation")
	}
	// Both wait in the queue but the mutual ban keeps them apart.
	if !c.IsQueued("a") || !c.IsQueued("b") {
		t.Error("expected both re-queued after next")
	}
}

func TestRoomClosedEmittedOncePerSeparation(t *testing.T) {
	c, reg, rec, _ := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	joinVideo(t, c, reg, "b")
	roomID := rec.byKind("room")[0].roomID

	c.Next("a")

	closed := rec.byKind("room-closed")
	if len(closed) != 1 {
		t.Fatalf("expected one room-closed event, got %d", len(closed))
	}
	if closed[0].roomID != roomID || closed[0].reason != ReasonNext {
		t.Errorf("room-closed = %+v, want room=%s reason=%s", closed[0], roomID, ReasonNext)
	}
}

func TestLeaveRequeuesOnlyPartner(t *testing.T) {
	c, reg, rec, _ := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	joinVideo(t, c, reg, "b")

	c.LeaveExplicit("a")

	if got := rec.countFor("partner-left", "b"); got != 1 {
		t.Fatalf("b received %d partner-left events, want 1", got)
	}
	if reason := rec.byKind("partner-left")[0].reason; reason != ReasonLeave {
		t.Errorf("reason = %q, want %q", reason, ReasonLeave)
	}
	if c.IsQueued("a") {
		t.Error("leaver was re-queued")
	}
	if !c.IsQueued("b") {
		t.Error("partner was not re-queued")
	}
	// Leaving does not unregister.
	if reg.Lookup("a") == nil {
		t.Error("explicit leave purged the registry entry")
	}
}

func TestNoRematchAfterAnySeparation(t *testing.T) {
	separations := map[string]func(c *Coordinator, id string){
		"next":       func(c *Coordinator, id string) { c.Next(id) },
		"leave":      func(c *Coordinator, id string) { c.LeaveExplicit(id) },
		"disconnect": func(c *Coordinator, id string) { c.Disconnect(id) },
	}

	for name, separate := range separations {
		t.Run(name, func(t *testing.T) {
			c, reg, _, _ := setupCoordinator(t)

			joinVideo(t, c, reg, "a")
			joinVideo(t, c, reg, "b")
			separate(c, "a")

			// Force both back into the queue.
			c.Retry("a")
			c.Retry("b")

			if name == "disconnect" {
				// a is gone entirely; b must simply wait.
				if c.RoomCount() != 0 {
					t.Fatal("room created involving a purged id")
				}
				return
			}
			if c.Partner("a") == "b" || c.Partner("b") == "a" {
				t.Fatal("separated pair was rematched")
			}
		})
	}
}

func TestBanSymmetryAfterSeparation(t *testing.T) {
	c, reg, _, _ := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	joinVideo(t, c, reg, "b")
	c.LeaveExplicit("a")

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.bans.Banned("a", "b") || !c.bans.Banned("b", "a") {
		t.Error("ban relation is asymmetric after separation")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c, reg, rec, _ := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	joinVideo(t, c, reg, "b")

	c.Disconnect("a")
	c.Disconnect("a") // double network error

	if got := rec.countFor("partner-left", "b"); got != 1 {
		t.Fatalf("partner notified %d times, want 1", got)
	}
	if reg.Lookup("a") != nil {
		t.Error("disconnected participant still registered")
	}
}

func TestDisconnectPurgesBans(t *testing.T) {
	c, reg, _, _ := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	joinVideo(t, c, reg, "b")
	c.Next("a")
	c.Disconnect("a")

	c.mu.Lock()
	banned := c.bans.Banned("a", "b")
	remaining := c.bans.Len()
	c.mu.Unlock()
	if banned || remaining != 0 {
		t.Error("bans involving a purged id survived")
	}
}

// ---------- queue timeout ----------

func TestQueueTimeoutFiresOnceAndRemoves(t *testing.T) {
	c, reg, rec, clock := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	clock.Advance(DefaultQueueTimeout + time.Second)

	timeouts := rec.byKind("timeout")
	if len(timeouts) != 1 || timeouts[0].to != "a" {
		t.Fatalf("expected one queue-timeout for a, got %+v", timeouts)
	}
	if timeouts[0].wait < DefaultQueueTimeout {
		t.Errorf("reported wait %s shorter than the window", timeouts[0].wait)
	}
	if c.IsQueued("a") {
		t.Error("expired entry still queued")
	}

	// A late arrival must not pair with the expired id.
	joinVideo(t, c, reg, "b")
	if c.RoomCount() != 0 {
		t.Error("room created for an id whose queue entry expired")
	}
	if got := rec.countFor("room", "a"); got != 0 {
		t.Errorf("expired id received %d room-created events", got)
	}
}

func TestQueueTimeoutCancelledByPairing(t *testing.T) {
	c, reg, rec, clock := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	clock.Advance(DefaultQueueTimeout / 2)
	joinVideo(t, c, reg, "b") // pairs immediately, cancels both timers

	clock.Advance(DefaultQueueTimeout)
	if got := len(rec.byKind("timeout")); got != 0 {
		t.Errorf("cancelled timers still fired %d timeout(s)", got)
	}
}

// inflightClock models the worst timer race: Stop always reports the callback
// as already in flight, and the callback can still be invoked afterwards,
// exactly like a time.AfterFunc goroutine that is blocked on the coordinator
// lock while its entry is being removed.
type inflightClock struct {
	now    time.Time
	timers []*inflightTimer
}

type inflightTimer struct{ fn func() }

func (t *inflightTimer) Stop() bool { return false }

func newInflightClock() *inflightClock {
	return &inflightClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *inflightClock) Now() time.Time { return c.now }

func (c *inflightClock) AfterFunc(d time.Duration, fn func()) Timer {
	t := &inflightTimer{fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func TestQueueTimeoutStaleCallbackAfterRequeue(t *testing.T) {
	reg := registry.New()
	rec := &recorder{}
	clock := newInflightClock()
	c := NewCoordinator(reg, rec, Config{QueueTimeout: DefaultQueueTimeout, Clock: clock})

	// a's first queue entry arms timer 0; pairing with b removes that entry,
	// but the callback is treated as already in flight and cannot be stopped.
	joinVideo(t, c, reg, "a")
	joinVideo(t, c, reg, "b")
	if c.Partner("a") != "b" {
		t.Fatal("precondition: a and b should be paired")
	}

	// b leaves, re-queuing a under a fresh entry with its own timer.
	c.LeaveExplicit("b")
	if !c.IsQueued("a") {
		t.Fatal("precondition: a should be re-queued after the partner left")
	}

	// The original callback finally acquires the lock. It was armed for the
	// first entry, which left the queue on pairing, so it must leave the
	// fresh entry alone.
	clock.timers[0].fn()

	if !c.IsQueued("a") {
		t.Error("stale timeout removed the fresh queue entry")
	}
	if got := len(rec.byKind("timeout")); got != 0 {
		t.Errorf("stale timeout emitted %d queue-timeout event(s)", got)
	}
}

func TestQueueTimeoutRequiresExplicitRetry(t *testing.T) {
	c, reg, rec, clock := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	clock.Advance(DefaultQueueTimeout + time.Second)
	if c.IsQueued("a") {
		t.Fatal("timeout did not dequeue")
	}

	// Timeout is terminal; only retry re-admits.
	c.Retry("a")
	if !c.IsQueued("a") {
		t.Fatal("retry after timeout did not requeue")
	}
	if got := rec.countFor("waiting", "a"); got != 1 {
		t.Errorf("expected one queue-waiting on retry, got %d", got)
	}
}

// ---------- end-to-end scenario from the product flow ----------

func TestNextAloneWaitsForNewJoiner(t *testing.T) {
	c, reg, rec, _ := setupCoordinator(t)

	joinVideo(t, c, reg, "a")
	joinVideo(t, c, reg, "b")
	if got := len(rec.byKind("room")); got != 2 {
		t.Fatalf("expected immediate pairing on second enqueue, got %d events", got)
	}

	c.Next("a")
	if got := rec.countFor("partner-left", "b"); got != 1 {
		t.Fatal("partner not notified on next")
	}
	if c.RoomCount() != 0 {
		t.Fatal("room survived next")
	}

	// a and b are mutually banned: no room until a third joins.
	joinVideo(t, c, reg, "c")
	if c.RoomCount() != 1 {
		t.Fatalf("expected new joiner to unblock pairing, rooms=%d", c.RoomCount())
	}
}

func TestJoinTextModeDefersQueueing(t *testing.T) {
	c, reg, rec, _ := setupCoordinator(t)

	reg.Register("a", "Alice", nil)
	c.Join("a", false)

	if c.IsQueued("a") {
		t.Fatal("text mode joined the queue without an explicit retry")
	}
	if got := rec.countFor("lobby", "a"); got != 0 {
		t.Errorf("lobby emitted for a non-auto-queue mode")
	}

	c.Retry("a")
	if !c.IsQueued("a") {
		t.Fatal("explicit retry did not enqueue")
	}
}

func TestStaleCommandsAreNoOps(t *testing.T) {
	c, _, rec, _ := setupCoordinator(t)

	// Commands referencing ids the registry has never seen (or already
	// purged) must not panic or emit anything.
	c.Next("ghost")
	c.LeaveExplicit("ghost")
	c.Disconnect("ghost")
	c.Retry("ghost")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, e := range rec.events {
		if e.kind != "lobby" {
			t.Fatalf("stale command produced event %+v", e)
		}
	}
}
