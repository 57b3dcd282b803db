// Package messaging provides a NATS client wrapper for pub/sub messaging
// between the pairing server and the moderator service. It handles connection
// lifecycle, subject-based subscriptions, and convenience methods for the
// report and room lifecycle channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used across Helixque services.
const (
	SubjectReportCreated = "report.created"
	SubjectRoomCreated   = "room.created"
	SubjectRoomClosed    = "room.closed"
)

// ReportEvent is published on report.created when a participant reports
// their partner. The moderator service persists it and decides whether the
// report warrants an email alert.
type ReportEvent struct {
	ReportID   string            `json:"report_id"`
	ReporterID string            `json:"reporter_id"`
	ReportedID string            `json:"reported_id"`
	RoomID     string            `json:"room_id"`
	Reason     string            `json:"reason"`
	Messages   []ReportedMessage `json:"messages,omitempty"`
	Ts         int64             `json:"ts"`
}

// ReportedMessage is one line of chat context attached to a report.
type ReportedMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// RoomEvent is published on room.created and room.closed for downstream
// consumers (analytics, moderation tooling).
type RoomEvent struct {
	RoomID string `json:"room_id"`
	A      string `json:"a"`
	B      string `json:"b"`
	Reason string `json:"reason,omitempty"` // set on room.closed
	Ts     int64  `json:"ts"`
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "helixque",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishReportCreated publishes an encoded ReportEvent.
func (c *NATSClient) PublishReportCreated(data []byte) error {
	return c.Publish(SubjectReportCreated, data)
}

// SubscribeReportCreated subscribes to report.created. The moderator service
// uses a queue subscription so multiple instances share the stream.
func (c *NATSClient) SubscribeReportCreated(queue string, handler func(data []byte)) error {
	sub, err := c.conn.QueueSubscribe(SubjectReportCreated, queue, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectReportCreated, err)
	}

	c.mu.Lock()
	c.subs[SubjectReportCreated] = sub
	c.mu.Unlock()
	return nil
}

// PublishRoomCreated publishes an encoded RoomEvent on room.created.
func (c *NATSClient) PublishRoomCreated(data []byte) error {
	return c.Publish(SubjectRoomCreated, data)
}

// PublishRoomClosed publishes an encoded RoomEvent on room.closed.
func (c *NATSClient) PublishRoomClosed(data []byte) error {
	return c.Publish(SubjectRoomClosed, data)
}

// SubscribeRoomEvents subscribes to both room lifecycle subjects.
func (c *NATSClient) SubscribeRoomEvents(handler func(subject string, data []byte)) error {
	for _, subject := range []string{SubjectRoomCreated, SubjectRoomClosed} {
		subject := subject
		if err := c.Subscribe(subject, func(msg *nats.Msg) {
			handler(subject, msg.Data)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
