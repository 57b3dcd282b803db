package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/helixque/realtime/internal/chat"
	"github.com/helixque/realtime/internal/match"
	"github.com/helixque/realtime/internal/messaging"
	"github.com/helixque/realtime/internal/metrics"
	"github.com/helixque/realtime/internal/moderation"
	"github.com/helixque/realtime/internal/protocol"
	"github.com/helixque/realtime/internal/ratelimit"
	"github.com/helixque/realtime/internal/registry"
	"github.com/helixque/realtime/internal/report"
	sigrelay "github.com/helixque/realtime/internal/signal"
	"github.com/helixque/realtime/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	matchConfig := match.DefaultConfig()
	if v := os.Getenv("QUEUE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			matchConfig.QueueTimeout = d
		}
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsConfig.Name = "helixque-server"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	log.Printf("Helixque pairing server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  queue_timeout:   %s", matchConfig.QueueTimeout)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  redis_addr:      %s", redisAddr)

	dispatcher := ws.NewMessageDispatcher(nil)
	server := ws.NewServer(config, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	limiter := ratelimit.NewLimiter(rdb)
	filter := moderation.NewFilter()
	reg := registry.New()

	notifier := &wsNotifier{
		server: server,
		nats:   natsClient,
	}
	coordinator := match.NewCoordinator(reg, notifier, matchConfig)
	relay := sigrelay.NewRelay(coordinator, server)
	chatSvc := chat.NewService(chat.ServiceConfig{
		Membership:  coordinator,
		Sender:      server,
		Filter:      filter,
		Limiter:     limiter,
		Transcripts: chat.NewTranscriptStore(rdb),
		Previews:    chat.NewPreviewFetcher(),
	})
	notifier.relay = relay
	notifier.chat = chatSvc

	server.SetConnectGate(func(ip string) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		allowed, _ := limiter.Allow(ctx, ip, ratelimit.RuleConnect)
		return allowed
	})

	server.SetOnDisconnect(func(participantID string) {
		relay.Forget(participantID)
		coordinator.Disconnect(participantID)
	})

	// -----------------------------------------------------------------------
	// join — register with a display name and session mode
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeJoin, func(conn *ws.Connection, msg interface{}) {
		joinMsg, ok := msg.(protocol.JoinMsg)
		if !ok {
			return
		}

		name := strings.TrimSpace(joinMsg.DisplayName)
		if name == "" {
			sendError(conn, "invalid_display_name", "display name must not be empty")
			return
		}
		if result := filter.CheckDisplayName(name); result.Blocked {
			sendError(conn, "display_name_rejected", "display name is not allowed")
			return
		}

		mode := joinMsg.Mode
		if mode != protocol.ModeText {
			mode = protocol.ModeVideo
		}

		reg.Register(conn.ID, name, map[string]string{"mode": mode})
		coordinator.Join(conn.ID, mode == protocol.ModeVideo)
		log.Printf("join participant=%s name=%q mode=%s", conn.ID, name, mode)
	})

	// -----------------------------------------------------------------------
	// queue:next / queue:leave / queue:retry — lifecycle commands
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeQueueNext, func(conn *ws.Connection, msg interface{}) {
		coordinator.Next(conn.ID)
	})

	dispatcher.Register(protocol.TypeQueueLeave, func(conn *ws.Connection, msg interface{}) {
		coordinator.LeaveExplicit(conn.ID)
	})

	dispatcher.Register(protocol.TypeQueueRetry, func(conn *ws.Connection, msg interface{}) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if allowed, _ := limiter.Allow(ctx, conn.ID, ratelimit.RuleRetry); !allowed {
			sendRateLimited(conn, int(ratelimit.RuleRetry.Window.Seconds()))
			return
		}
		coordinator.Retry(conn.ID)
	})

	// -----------------------------------------------------------------------
	// offer / answer / ice-candidate / media:state — signaling relay
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeOffer, func(conn *ws.Connection, msg interface{}) {
		offerMsg, ok := msg.(protocol.OfferMsg)
		if !ok {
			return
		}
		if err := relay.ForwardOffer(conn.ID, offerMsg); err != nil {
			sendSignalError(conn, err)
		}
	})

	dispatcher.Register(protocol.TypeAnswer, func(conn *ws.Connection, msg interface{}) {
		answerMsg, ok := msg.(protocol.AnswerMsg)
		if !ok {
			return
		}
		if err := relay.ForwardAnswer(conn.ID, answerMsg); err != nil {
			sendSignalError(conn, err)
		}
	})

	dispatcher.Register(protocol.TypeICECandidate, func(conn *ws.Connection, msg interface{}) {
		iceMsg, ok := msg.(protocol.ICECandidateMsg)
		if !ok {
			return
		}
		if err := relay.ForwardICE(conn.ID, iceMsg); err != nil {
			sendSignalError(conn, err)
		}
	})

	dispatcher.Register(protocol.TypeMediaState, func(conn *ws.Connection, msg interface{}) {
		stateMsg, ok := msg.(protocol.MediaStateMsg)
		if !ok {
			return
		}
		if err := relay.UpdateMediaState(conn.ID, stateMsg); err != nil {
			sendSignalError(conn, err)
		}
	})

	// -----------------------------------------------------------------------
	// chat:message / chat:typing — in-room text chat
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeChatMessage, func(conn *ws.Connection, msg interface{}) {
		chatMsg, ok := msg.(protocol.ChatMessageMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := chatSvc.HandleMessage(ctx, conn.ID, chatMsg)
		var blocked *chat.BlockedError
		switch {
		case err == nil:
		case errors.As(err, &blocked):
			sendSystem(conn, "Your message was not delivered: it violates the community guidelines.")
		case errors.Is(err, chat.ErrRateLimited):
			sendRateLimited(conn, int(ratelimit.RuleMessage.Window.Seconds()))
		case errors.Is(err, chat.ErrNotInRoom):
			sendError(conn, "invalid_room", "not in that room")
		default:
			sendError(conn, "invalid_message", err.Error())
		}
	})

	dispatcher.Register(protocol.TypeChatTyping, func(conn *ws.Connection, msg interface{}) {
		typingMsg, ok := msg.(protocol.ChatTypingMsg)
		if !ok {
			return
		}
		_ = chatSvc.HandleTyping(conn.ID, typingMsg)
	})

	// -----------------------------------------------------------------------
	// report — report the current partner for abuse
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeReport, func(conn *ws.Connection, msg interface{}) {
		reportMsg, ok := msg.(protocol.ReportMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if allowed, _ := limiter.Allow(ctx, conn.ID, ratelimit.RuleReport); !allowed {
			sendRateLimited(conn, int(ratelimit.RuleReport.Window.Seconds()))
			return
		}
		if !report.ValidReason(reportMsg.Reason) {
			sendError(conn, "invalid_reason", "unknown report reason")
			return
		}
		roomID, partner, ok := coordinator.RoomMembership(conn.ID)
		if !ok {
			sendError(conn, "invalid_room", "no active partner to report")
			return
		}

		event := messaging.ReportEvent{
			ReportID:   uuid.New().String(),
			ReporterID: conn.ID,
			ReportedID: partner,
			RoomID:     roomID,
			Reason:     reportMsg.Reason,
			Ts:         time.Now().Unix(),
		}
		for _, m := range chatSvc.Snapshot(roomID) {
			event.Messages = append(event.Messages, messaging.ReportedMessage{
				From: m.From, Text: m.Text, Ts: m.Ts,
			})
		}

		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("report marshal failed participant=%s: %v", conn.ID, err)
			return
		}
		if err := natsClient.PublishReportCreated(data); err != nil {
			log.Printf("report publish failed participant=%s: %v", conn.ID, err)
			sendError(conn, "report_failed", "could not submit report")
			return
		}
		metrics.ReportsTotal.Inc()
		sendSystem(conn, "Report submitted. Thank you.")
		log.Printf("report participant=%s reported=%s room=%s reason=%s",
			conn.ID, partner, roomID, reportMsg.Reason)
	})

	// Periodically refresh the state gauges.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.ConnectionsTotal.Set(float64(server.Connections().Count()))
			metrics.QueueSize.Set(float64(coordinator.QueueLen()))
			metrics.ActiveRooms.Set(float64(coordinator.RoomCount()))
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		natsClient.Close()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Coordinator event delivery
// ---------------------------------------------------------------------------

// wsNotifier translates coordinator events into wire messages, media state
// replay, transcript cleanup, NATS room events and metrics.
type wsNotifier struct {
	server *ws.Server
	nats   *messaging.NATSClient
	relay  *sigrelay.Relay
	chat   *chat.Service
}

func (n *wsNotifier) send(id, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("notify: build %s for %s failed: %v", msgType, id, err)
		return
	}
	if err := n.server.SendMessage(id, data); err != nil {
		log.Printf("notify: send %s to %s failed: %v", msgType, id, err)
	}
}

func (n *wsNotifier) Lobby(id string) {
	n.send(id, protocol.TypeLobby, protocol.LobbyMsg{})
}

func (n *wsNotifier) QueueWaiting(id string) {
	n.send(id, protocol.TypeQueueWaiting, protocol.QueueWaitingMsg{})
}

func (n *wsNotifier) QueueTimeout(id string, wait time.Duration) {
	metrics.QueueTimeoutsTotal.Inc()
	n.send(id, protocol.TypeQueueTimeout, protocol.QueueTimeoutMsg{
		WaitTimeMs: wait.Milliseconds(),
		Message:    "No partner found. Retry to keep waiting.",
	})
}

func (n *wsNotifier) RoomCreated(id string, room match.Room, partnerID, partnerName string, wait time.Duration) {
	metrics.TimeToMatch.Observe(wait.Seconds())
	n.send(id, protocol.TypeRoomCreated, protocol.RoomCreatedMsg{
		RoomID:      room.ID,
		PartnerID:   partnerID,
		PartnerName: partnerName,
	})

	// The second member's event closes out the pairing: replay media state
	// both ways and announce the room downstream exactly once.
	if id == room.B {
		metrics.PairingsTotal.Inc()
		n.relay.SyncStates(room.A, room.B)

		data, err := json.Marshal(messaging.RoomEvent{
			RoomID: room.ID, A: room.A, B: room.B, Ts: time.Now().Unix(),
		})
		if err == nil {
			if err := n.nats.PublishRoomCreated(data); err != nil {
				log.Printf("notify: publish room.created failed: %v", err)
			}
		}
	}
}

func (n *wsNotifier) RoomClosed(room match.Room, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	n.chat.RoomClosed(ctx, room.ID)

	data, err := json.Marshal(messaging.RoomEvent{
		RoomID: room.ID, A: room.A, B: room.B, Reason: reason, Ts: time.Now().Unix(),
	})
	if err == nil {
		if err := n.nats.PublishRoomClosed(data); err != nil {
			log.Printf("notify: publish room.closed failed: %v", err)
		}
	}
}

func (n *wsNotifier) PartnerLeft(id, reason string) {
	n.send(id, protocol.TypePartnerLeft, protocol.PartnerLeftMsg{Reason: reason})
}

// ---------------------------------------------------------------------------
// Error helpers
// ---------------------------------------------------------------------------

func sendError(conn *ws.Connection, code, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code: code, Message: message,
	})
	if err != nil {
		return
	}
	_ = conn.WriteMessage(data)
}

func sendSignalError(conn *ws.Connection, err error) {
	switch {
	case errors.Is(err, sigrelay.ErrNotInRoom):
		sendError(conn, "invalid_room", "not in that room")
	case errors.Is(err, sigrelay.ErrPartnerGone):
		// Partner's connection dropped mid-handshake; the lifecycle
		// cleanup will deliver partner:left shortly.
	default:
		sendError(conn, "signal_failed", "could not relay signaling message")
	}
}

func sendRateLimited(conn *ws.Connection, retryAfter int) {
	data, err := protocol.NewServerMessage(protocol.TypeRateLimited, protocol.RateLimitedMsg{
		RetryAfter: retryAfter,
	})
	if err != nil {
		return
	}
	_ = conn.WriteMessage(data)
}

func sendSystem(conn *ws.Connection, text string) {
	data, err := protocol.NewServerMessage(protocol.TypeChatSystem, protocol.ChatSystemMsg{
		Text: text, Ts: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	_ = conn.WriteMessage(data)
}
