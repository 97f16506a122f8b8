package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/shiva/medride/internal/auth"
	"github.com/shiva/medride/internal/httperr"
	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	maxInboundSize = 4096
)

// Authenticator resolves a bearer token to a live user.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*model.User, error)
}

// RideViewer checks that a user may watch a ride.
type RideViewer interface {
	Get(ctx context.Context, actor service.Actor, id uuid.UUID) (*model.Ride, error)
}

// Handler upgrades authenticated requests to websocket connections and runs
// their read and write pumps.
type Handler struct {
	hub      *Hub
	authn    Authenticator
	rides    RideViewer
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler creates the /ws handler.
func NewHandler(hub *Hub, authn Authenticator, rides RideViewer, log zerolog.Logger) *Handler {
	return &Handler{
		hub:   hub,
		authn: authn,
		rides: rides,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP authenticates before upgrading so a bad credential gets a plain
// 401 rather than an opened-then-closed socket.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := h.authn.Authenticate(r.Context(), auth.BearerFromRequest(r))
	if err != nil {
		if errors.Is(err, service.ErrAuth) {
			httperr.Write(w, http.StatusUnauthorized, httperr.Unauthorized)
			return
		}
		h.log.Error().Err(err).Msg("identity lookup failed")
		httperr.Write(w, http.StatusInternalServerError, httperr.Internal)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := h.hub.Register(*user)
	h.log.Info().Str("conn_id", c.ID).Str("user_id", user.ID.String()).Msg("websocket connected")

	go h.writePump(c, ws)
	h.readPump(c, ws)
}

// readPump handles inbound frames until the socket fails, then unregisters c.
func (h *Handler) readPump(c *Conn, ws *websocket.Conn) {
	defer func() {
		h.hub.Unregister(c)
		_ = ws.Close()
		h.log.Info().Str("conn_id", c.ID).Msg("websocket disconnected")
	}()

	ws.SetReadLimit(maxInboundSize)
	ws.SetPongHandler(func(string) error {
		h.hub.Heartbeat(c)
		return nil
	})

	ctx := context.Background()
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		h.hub.Heartbeat(c)

		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			h.reply(c, EventError, errorPayload{Message: "malformed frame"})
			continue
		}
		h.handle(ctx, c, f)
	}
}

func (h *Handler) handle(ctx context.Context, c *Conn, f Frame) {
	switch f.Event {
	case EventPing:
		h.reply(c, EventPong, nil)

	case EventJoinRide, EventLeaveRide:
		var ref rideRef
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &ref); err != nil {
				h.reply(c, EventError, errorPayload{Message: "malformed " + f.Event})
				return
			}
		}
		if ref.RideID == "" {
			return
		}
		if f.Event == EventLeaveRide {
			h.hub.LeaveRide(c, ref.RideID)
			return
		}
		id, err := uuid.Parse(ref.RideID)
		if err != nil {
			h.reply(c, EventError, errorPayload{Message: "unknown ride"})
			return
		}
		if _, err := h.rides.Get(ctx, service.ActorFromUser(&c.User), id); err != nil {
			h.reply(c, EventError, errorPayload{Message: "cannot watch ride " + ref.RideID})
			return
		}
		h.hub.JoinRide(c, id.String())

	default:
		h.reply(c, EventError, errorPayload{Message: "unknown event " + f.Event})
	}
}

func (h *Handler) reply(c *Conn, event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		return
	}
	h.hub.SendTo(c, frame)
}

// writePump drains c's queue onto the socket and pings the peer. It returns,
// closing the socket, when the hub closes the queue or a write fails.
func (h *Handler) writePump(c *Conn, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
