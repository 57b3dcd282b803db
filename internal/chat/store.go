package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// TranscriptPrefix is the Redis key prefix for per-room transcripts.
	TranscriptPrefix = "transcript:"

	// TranscriptTTL is how long a room transcript survives after the last
	// message. Expired transcripts are unrecoverable; nothing is archived.
	TranscriptTTL = 2 * time.Hour

	// TranscriptMaxLen caps the number of messages retained per room.
	TranscriptMaxLen = 500
)

// TranscriptStore persists room transcripts in Redis lists. Transcripts back
// the message snapshot attached to abuse reports and let a reconnecting
// moderator tool pull recent context; they are never replayed to clients.
type TranscriptStore struct {
	rdb *redis.Client
}

// NewTranscriptStore creates a transcript store backed by Redis.
func NewTranscriptStore(rdb *redis.Client) *TranscriptStore {
	return &TranscriptStore{rdb: rdb}
}

// Append adds a message to the room's transcript, refreshes the TTL and trims
// the list to the retention cap. All three operations ride one pipeline.
func (s *TranscriptStore) Append(ctx context.Context, roomID string, msg BufferedMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chat: marshal transcript entry: %w", err)
	}

	key := TranscriptPrefix + roomID
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -TranscriptMaxLen, -1)
	pipe.Expire(ctx, key, TranscriptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("chat: append transcript entry: %w", err)
	}
	return nil
}

// Recent returns the last n messages of a room's transcript in chronological
// order. A missing transcript yields an empty slice.
func (s *TranscriptStore) Recent(ctx context.Context, roomID string, n int64) ([]BufferedMessage, error) {
	key := TranscriptPrefix + roomID
	raw, err := s.rdb.LRange(ctx, key, -n, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("chat: read transcript: %w", err)
	}

	msgs := make([]BufferedMessage, 0, len(raw))
	for _, item := range raw {
		var m BufferedMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			// Skip unreadable entries rather than failing the whole read.
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Delete removes a room's transcript immediately, without waiting for the TTL.
func (s *TranscriptStore) Delete(ctx context.Context, roomID string) error {
	return s.rdb.Del(ctx, TranscriptPrefix+roomID).Err()
}
