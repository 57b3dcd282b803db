// Package chat implements in-room text messaging: validation, content
// screening, rate limiting, short-term buffering for abuse reports, Redis
// transcripts and link previews.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/helixque/realtime/internal/metrics"
	"github.com/helixque/realtime/internal/moderation"
	"github.com/helixque/realtime/internal/protocol"
	"github.com/helixque/realtime/internal/ratelimit"
)

// Service errors surfaced to the transport layer.
var (
	ErrNotInRoom   = errors.New("chat: sender is not in the named room")
	ErrRateLimited = errors.New("chat: message rate limit exceeded")
)

// BlockedError reports a message rejected by the content filter.
type BlockedError struct {
	Reason string
	Term   string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("chat: message blocked (%s: %s)", e.Reason, e.Term)
}

// Membership resolves a participant's current room. Implemented by the
// pairing coordinator.
type Membership interface {
	RoomMembership(id string) (roomID, partnerID string, ok bool)
}

// Sender delivers an encoded server message to a participant's connection.
type Sender interface {
	SendMessage(participantID string, data []byte) error
}

// ServiceConfig wires the Service's collaborators. Limiter, Transcripts and
// Previews are optional; a nil Filter gets the default blocklist.
type ServiceConfig struct {
	Membership  Membership
	Sender      Sender
	Filter      *moderation.Filter
	Limiter     *ratelimit.Limiter
	Transcripts *TranscriptStore
	Previews    *PreviewFetcher
}

// Service routes chat traffic between room partners.
type Service struct {
	membership  Membership
	sender      Sender
	filter      *moderation.Filter
	limiter     *ratelimit.Limiter
	buffer      *MessageBuffer
	transcripts *TranscriptStore
	previews    *PreviewFetcher
}

// NewService creates a chat Service from the given config.
func NewService(cfg ServiceConfig) *Service {
	filter := cfg.Filter
	if filter == nil {
		filter = moderation.NewFilter()
	}
	return &Service{
		membership:  cfg.Membership,
		sender:      cfg.Sender,
		filter:      filter,
		limiter:     cfg.Limiter,
		buffer:      NewMessageBuffer(),
		transcripts: cfg.Transcripts,
		previews:    cfg.Previews,
	}
}

// HandleMessage processes a chat message from a participant: membership and
// content checks first, then buffering, transcript append and delivery to the
// partner. When the text contains a URL, a link preview is fetched in the
// background and sent to both sides.
func (s *Service) HandleMessage(ctx context.Context, from string, msg protocol.ChatMessageMsg) error {
	roomID, partner, ok := s.membership.RoomMembership(from)
	if !ok || roomID != msg.RoomID {
		return ErrNotInRoom
	}

	if err := ValidateMessage(msg.Text); err != nil {
		return err
	}

	if s.limiter != nil {
		allowed, _ := s.limiter.Allow(ctx, from, ratelimit.RuleMessage)
		if !allowed {
			metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
			return ErrRateLimited
		}
	}

	if result := s.filter.Check(msg.Text); result.Blocked {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		log.Printf("[chat] blocked message room=%s from=%s reason=%s term=%s",
			roomID, from, result.Reason, result.Term)
		return &BlockedError{Reason: result.Reason, Term: result.Term}
	}

	entry := BufferedMessage{From: from, Text: msg.Text, Ts: time.Now().UnixMilli()}
	s.buffer.Add(roomID, entry)

	if s.transcripts != nil {
		if err := s.transcripts.Append(ctx, roomID, entry); err != nil {
			log.Printf("[chat] transcript append failed room=%s: %v", roomID, err)
		}
	}

	data, err := protocol.NewServerMessage(protocol.TypeChatMessage, protocol.ServerChatMsg{
		From: from,
		Text: msg.Text,
		Ts:   entry.Ts,
	})
	if err != nil {
		return err
	}
	if err := s.sender.SendMessage(partner, data); err != nil {
		return err
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	if s.previews != nil {
		if url := ExtractURL(msg.Text); url != "" {
			go s.sendPreview(url, from, partner)
		}
	}
	return nil
}

// HandleTyping forwards a typing indicator to the room partner.
func (s *Service) HandleTyping(from string, msg protocol.ChatTypingMsg) error {
	roomID, partner, ok := s.membership.RoomMembership(from)
	if !ok || roomID != msg.RoomID {
		return ErrNotInRoom
	}

	data, err := protocol.NewServerMessage(protocol.TypeChatTyping, protocol.ServerTypingMsg{
		IsTyping: msg.IsTyping,
	})
	if err != nil {
		return err
	}
	return s.sender.SendMessage(partner, data)
}

// Snapshot returns the recent message buffer for a room, used as context on
// abuse reports.
func (s *Service) Snapshot(roomID string) []BufferedMessage {
	return s.buffer.Get(roomID)
}

// RoomClosed drops the in-memory buffer and the Redis transcript for a
// torn-down room.
func (s *Service) RoomClosed(ctx context.Context, roomID string) {
	s.buffer.Remove(roomID)
	if s.transcripts != nil {
		if err := s.transcripts.Delete(ctx, roomID); err != nil {
			log.Printf("[chat] transcript delete failed room=%s: %v", roomID, err)
		}
	}
}

// sendPreview fetches a link preview and delivers it to both room members.
// Failures are logged and dropped; a preview is best-effort decoration.
func (s *Service) sendPreview(url, from, partner string) {
	ctx, cancel := context.WithTimeout(context.Background(), previewTimeout+time.Second)
	defer cancel()

	preview, err := s.previews.Fetch(ctx, url)
	if err != nil {
		log.Printf("[chat] preview fetch failed url=%s: %v", url, err)
		return
	}
	if preview.Title == "" && preview.Description == "" {
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeChatPreview, protocol.ChatPreviewMsg{
		URL:         preview.URL,
		Title:       preview.Title,
		Description: preview.Description,
		Image:       preview.Image,
	})
	if err != nil {
		return
	}
	for _, id := range []string{from, partner} {
		if err := s.sender.SendMessage(id, data); err != nil {
			log.Printf("[chat] preview delivery to %s failed: %v", id, err)
		}
	}
}
