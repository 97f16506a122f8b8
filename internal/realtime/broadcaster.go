package realtime

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/shiva/medride/internal/model"
)

// Publisher delivers an encoded frame to every member of a channel, on this
// node or across the cluster.
type Publisher interface {
	Publish(ctx context.Context, channel string, frame []byte) error
}

// TypeStatusChange tags the rideUpdate sent alongside every status change.
const TypeStatusChange = "status_change"

// Broadcaster turns ride lifecycle events into frames. It implements
// service.Notifier; publish failures are logged and never surface to the
// ride operation that triggered them.
type Broadcaster struct {
	pub Publisher
	log zerolog.Logger
}

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(pub Publisher, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{pub: pub, log: log}
}

func (b *Broadcaster) send(ctx context.Context, event string, data any, channels ...string) {
	frame, err := encode(event, data)
	if err != nil {
		b.log.Error().Err(err).Str("event", event).Msg("encode frame failed")
		return
	}
	for _, ch := range channels {
		if err := b.pub.Publish(ctx, ch, frame); err != nil {
			b.log.Error().Err(err).Str("event", event).Str("channel", ch).Msg("publish failed")
		}
	}
}

// RideCreated announces a new pending ride to the driver pool.
func (b *Broadcaster) RideCreated(ctx context.Context, ride *model.Ride) {
	b.send(ctx, EventNewRide, ride, DriversChannel)
}

// RideStatusChanged notifies the ride's viewers, the driver pool and the patient.
func (b *Broadcaster) RideStatusChanged(ctx context.Context, ride *model.Ride, old model.RideStatus) {
	id := ride.ID.String()
	b.send(ctx, EventRideUpdate, RideUpdate{
		RideID:    id,
		Type:      TypeStatusChange,
		OldStatus: old,
		NewStatus: ride.Status,
		Ride:      ride,
	}, RideChannel(id), DriversChannel)
	b.send(ctx, EventRideStatusChange, StatusChange{RideID: id, Status: ride.Status},
		RideChannel(id), DriversChannel, UserChannel(ride.PatientID))
}

// RideUpdated notifies the ride's viewers and the driver pool of a non-status change.
func (b *Broadcaster) RideUpdated(ctx context.Context, ride *model.Ride, kind string) {
	id := ride.ID.String()
	b.send(ctx, EventRideUpdate, RideUpdate{RideID: id, Type: kind, Ride: ride}, RideChannel(id), DriversChannel)
}

// RideRated tells the assigned driver and the ride's viewers about a new rating.
func (b *Broadcaster) RideRated(ctx context.Context, ride *model.Ride) {
	if ride.Rating == nil {
		return
	}
	id := ride.ID.String()
	channels := []string{RideChannel(id)}
	if ride.DriverID != nil {
		channels = append(channels, UserChannel(*ride.DriverID))
	}
	b.send(ctx, EventRideRated, Rated{RideID: id, Rating: ride.Rating.Score, Comment: ride.Rating.Comment}, channels...)
}
