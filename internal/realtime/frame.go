package realtime

import (
	"encoding/json"

	"github.com/shiva/medride/internal/model"
)

// Event names on the wire.
const (
	EventNewRide          = "newRide"
	EventRideUpdate       = "rideUpdate"
	EventRideStatusChange = "rideStatusChange"
	EventRideRated        = "ride-rated"
	EventPong             = "pong"
	EventError            = "error"

	EventJoinRide  = "joinRide"
	EventLeaveRide = "leaveRide"
	EventPing      = "ping"
)

// Frame is the envelope of every message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RideUpdate is the payload of rideUpdate.
type RideUpdate struct {
	RideID    string           `json:"rideId"`
	Type      string           `json:"type"`
	OldStatus model.RideStatus `json:"oldStatus,omitempty"`
	NewStatus model.RideStatus `json:"newStatus,omitempty"`
	Ride      *model.Ride      `json:"ride"`
}

// StatusChange is the payload of rideStatusChange.
type StatusChange struct {
	RideID string           `json:"rideId"`
	Status model.RideStatus `json:"status"`
}

// Rated is the payload of ride-rated.
type Rated struct {
	RideID  string `json:"rideId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

type rideRef struct {
	RideID string `json:"rideId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// encode marshals an outbound frame. data may be nil.
func encode(event string, data any) ([]byte, error) {
	f := Frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		f.Data = raw
	}
	return json.Marshal(f)
}
