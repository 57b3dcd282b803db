// Package match implements the matchmaking and session-lifecycle core: the
// FIFO waiting queue, the symmetric no-rematch ban ledger, the session
// directory mapping participants to rooms and partners, and the lifecycle
// coordinator that drives pairing on every queue mutation.
//
// All core state is in-memory and guarded by a single mutex on the
// Coordinator, so every command (including the recursive pairing drain it
// triggers) runs to completion before the next one mutates the queue. Queue
// timeouts re-enter through the same lock. Outbound notifications are
// collected during the mutation and delivered only after local state is
// final, so a slow client write can never stall or reorder pairing.
package match
