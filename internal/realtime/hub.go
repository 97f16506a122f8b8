// Package realtime tracks live connections and fans ride events out to them.
//
// Connections are grouped into logical channels:
//
//	user:{userId}   joined on connect
//	drivers         joined on connect when the user is a driver
//	ride:{rideId}   joined and left on client request
//
// The Hub is an owned registry: it is created at startup, swept periodically
// for idle connections and closed at shutdown.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shiva/medride/internal/model"
)

const (
	// DriversChannel is the pool every connected driver belongs to.
	DriversChannel = "drivers"

	DefaultIdleTimeout   = 2 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultSendBuffer    = 64
)

// UserChannel names the private channel of a user.
func UserChannel(id uuid.UUID) string { return "user:" + id.String() }

// RideChannel names the channel of a ride's viewers.
func RideChannel(id string) string { return "ride:" + id }

// ─── Conn ───────────────────────────────────────────────────

// Conn is the presence record of one live connection.
type Conn struct {
	ID   string
	User model.User

	send     chan []byte
	channels map[string]struct{}
	lastSeen time.Time
	closed   bool
}

// Send returns the outbound frame queue. It is closed when the hub drops the
// connection, after which the transport must be closed.
func (c *Conn) Send() <-chan []byte { return c.send }

// ─── Hub ────────────────────────────────────────────────────

// Hub is the process-local presence registry. All methods are safe for
// concurrent use.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Conn
	channels map[string]map[*Conn]struct{}

	sendBuffer int
	now        func() time.Time
	log        zerolog.Logger
}

// NewHub creates an empty hub. A non-positive sendBuffer selects DefaultSendBuffer.
func NewHub(sendBuffer int, log zerolog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{
		conns:      make(map[string]*Conn),
		channels:   make(map[string]map[*Conn]struct{}),
		sendBuffer: sendBuffer,
		now:        time.Now,
		log:        log,
	}
}

// Register creates the presence record for an authenticated user and joins
// its default channels.
func (h *Hub) Register(u model.User) *Conn {
	c := &Conn{
		ID:       uuid.NewString(),
		User:     u,
		send:     make(chan []byte, h.sendBuffer),
		channels: make(map[string]struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c.lastSeen = h.now()
	h.conns[c.ID] = c
	h.join(c, UserChannel(u.ID))
	if u.Role == model.RoleDriver {
		h.join(c, DriversChannel)
	}

	h.log.Debug().Str("conn_id", c.ID).Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("connection registered")
	return c
}

// Unregister removes c from every channel and closes its send queue.
// Calling it more than once is harmless.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c)
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *Conn) {
	if c.closed {
		return
	}
	for ch := range c.channels {
		h.leave(c, ch)
	}
	delete(h.conns, c.ID)
	c.closed = true
	close(c.send)
}

func (h *Hub) join(c *Conn, ch string) {
	members := h.channels[ch]
	if members == nil {
		members = make(map[*Conn]struct{})
		h.channels[ch] = members
	}
	members[c] = struct{}{}
	c.channels[ch] = struct{}{}
}

func (h *Hub) leave(c *Conn, ch string) {
	if members, ok := h.channels[ch]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.channels, ch)
		}
	}
	delete(c.channels, ch)
}

// JoinRide subscribes c to a ride's channel. Empty ids are ignored.
func (h *Hub) JoinRide(c *Conn, rideID string) {
	if rideID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	h.join(c, RideChannel(rideID))
	c.lastSeen = h.now()
}

// LeaveRide unsubscribes c from a ride's channel. Empty ids are ignored.
func (h *Hub) LeaveRide(c *Conn, rideID string) {
	if rideID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	h.leave(c, RideChannel(rideID))
	c.lastSeen = h.now()
}

// Heartbeat records activity on c.
func (h *Hub) Heartbeat(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.lastSeen = h.now()
}

// Deliver queues frame on every member of channel and returns how many
// connections accepted it. A member whose queue is full misses the frame.
// Delivering to an empty channel is a no-op.
func (h *Hub) Deliver(channel string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.channels[channel] {
		if h.offer(c, frame) {
			delivered++
		}
	}
	return delivered
}

// SendTo queues frame on a single connection.
func (h *Hub) SendTo(c *Conn, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c.closed {
		return false
	}
	return h.offer(c, frame)
}

func (h *Hub) offer(c *Conn, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		h.log.Warn().Str("conn_id", c.ID).Str("user_id", c.User.ID.String()).Msg("send buffer full; frame dropped")
		return false
	}
}

// Publish implements Publisher by delivering to the local hub.
func (h *Hub) Publish(_ context.Context, channel string, frame []byte) error {
	h.Deliver(channel, frame)
	return nil
}

// Sweep disconnects every connection idle for longer than idle and returns
// their ids.
func (h *Hub) Sweep(idle time.Duration) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-idle)
	var evicted []string
	for id, c := range h.conns {
		if c.lastSeen.Before(cutoff) {
			h.drop(c)
			evicted = append(evicted, id)
		}
	}
	if len(evicted) > 0 {
		h.log.Info().Int("evicted", len(evicted)).Int("remaining", len(h.conns)).Msg("idle connections evicted")
	}
	return evicted
}

// Run sweeps every interval until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep(idle)
		}
	}
}

// Close disconnects every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		h.drop(c)
	}
}

// ConnCount returns the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ChannelCount returns the number of members of channel.
func (h *Hub) ChannelCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Channels returns the channels c has joined.
func (h *Hub) Channels(c *Conn) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}
