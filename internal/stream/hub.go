package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix = "runshare:session:"
	channelSuffix = ":events"

	relayQueueSize = 256
	publishTimeout = 2 * time.Second
)

type publishFunc func(ctx context.Context, channel string, msg []byte) error

type relayMsg struct {
	channel string
	body    []byte
}

// Hub fans session events out to websocket clients. With redis configured,
// events are also relayed to clients connected to other API instances.
// Broadcast never waits on redis: relays are queued for a publisher
// goroutine and dropped when the queue is full.
type Hub struct {
	redis    *redis.Client
	instance string
	clients  map[string]map[*Client]struct{}
	mu       sync.RWMutex

	pubsub *redis.PubSub
	done   chan struct{}

	publish       publishFunc
	outbound      chan relayMsg
	quit          chan struct{}
	publisherDone chan struct{}
	closeOnce     sync.Once
}

type Client struct {
	SessionID string
	Send      chan []byte
}

// envelope tags relayed events with the publishing instance so a hub does
// not deliver its own broadcasts twice.
type envelope struct {
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

func NewHub(redisClient *redis.Client) *Hub {
	var publish publishFunc
	if redisClient != nil {
		publish = func(ctx context.Context, channel string, msg []byte) error {
			return redisClient.Publish(ctx, channel, msg).Err()
		}
	}
	return newHub(redisClient, publish)
}

func newHub(redisClient *redis.Client, publish publishFunc) *Hub {
	h := &Hub{
		redis:         redisClient,
		instance:      uuid.NewString(),
		clients:       map[string]map[*Client]struct{}{},
		done:          make(chan struct{}),
		publish:       publish,
		quit:          make(chan struct{}),
		publisherDone: make(chan struct{}),
	}

	if redisClient == nil {
		close(h.done)
		close(h.publisherDone)
		return h
	}

	h.outbound = make(chan relayMsg, relayQueueSize)
	go h.publishLoop()

	ctx := context.Background()
	pubsub := redisClient.PSubscribe(ctx, redisChannel("*"))
	if _, err := pubsub.Receive(ctx); err != nil {
		slog.Warn("redis subscribe failed, relaying disabled", "error", err)
		_ = pubsub.Close()
		close(h.done)
		return h
	}
	h.pubsub = pubsub
	go h.subscribeRedis()
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionClients, ok := h.clients[client.SessionID]
	if !ok {
		return
	}
	if _, registered := sessionClients[client]; !registered {
		return
	}
	delete(sessionClients, client)
	if len(sessionClients) == 0 {
		delete(h.clients, client.SessionID)
	}
	close(client.Send)
}

// Clients reports how many local clients watch sessionID.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

func (h *Hub) Broadcast(sessionID string, payload []byte) {
	h.deliver(sessionID, payload)

	if h.outbound == nil {
		return
	}
	msg, err := json.Marshal(envelope{Origin: h.instance, Payload: payload})
	if err != nil {
		return
	}
	select {
	case h.outbound <- relayMsg{channel: redisChannel(sessionID), body: msg}:
	default:
		slog.Warn("redis relay queue full, dropping event", "session_id", sessionID)
	}
}

func (h *Hub) publishLoop() {
	defer close(h.publisherDone)
	for {
		select {
		case <-h.quit:
			return
		case m := <-h.outbound:
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err := h.publish(ctx, m.channel, m.body)
			cancel()
			if err != nil {
				slog.Warn("redis publish error", "channel", m.channel, "error", err)
			}
		}
	}
}

// Close stops relaying redis events. Queued relays that were not published
// yet are dropped. Local clients stay registered.
func (h *Hub) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.quit)
		<-h.publisherDone
		if h.pubsub != nil {
			err = h.pubsub.Close()
			<-h.done
		}
	})
	return err
}

// deliver drops the payload for clients whose buffer is full; they catch up
// on the next snapshot.
func (h *Hub) deliver(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	defer close(h.done)
	for msg := range h.pubsub.Channel() {
		sessionID := sessionIDFromChannel(msg.Channel)
		if sessionID == "" {
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			slog.Warn("dropping malformed relay message", "channel", msg.Channel, "error", err)
			continue
		}
		if env.Origin == h.instance {
			continue
		}
		h.deliver(sessionID, env.Payload)
	}
}

func redisChannel(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionIDFromChannel(ch string) string {
	// runshare:session:{id}:events
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
