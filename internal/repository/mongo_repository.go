package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/pkg/geo"
)

// Collection names.
const (
	mongoRides   = "rides"
	mongoUsers   = "users"
	mongoPricing = "pricing_config"

	pricingDocID = "current"
)

// EnsureMongoIndexes creates the indexes the ride queries rely on.
// The 2dsphere index on pickup.location backs NearbyPending.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(mongoRides).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pickup.location", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduledTime", Value: 1}}},
		{Keys: bson.D{{Key: "driverId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "patientId", Value: 1}}},
		{Keys: bson.D{{Key: "facilityId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create ride indexes: %w", err)
	}
	return nil
}

// ─── Documents ──────────────────────────────────────────────

type geoJSONPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"` // [lon, lat]
}

type placeDoc struct {
	Address  string       `bson:"address"`
	Location geoJSONPoint `bson:"location"`
}

type rideDoc struct {
	ID                  string                    `bson:"_id"`
	PatientID           string                    `bson:"patientId"`
	DriverID            *string                   `bson:"driverId"`
	FacilityID          *string                   `bson:"facilityId,omitempty"`
	Pickup              placeDoc                  `bson:"pickup"`
	Dropoff             placeDoc                  `bson:"dropoff"`
	Distance            float64                   `bson:"distance"`
	ScheduledTime       time.Time                 `bson:"scheduledTime"`
	Status              string                    `bson:"status"`
	SpecialRequirements model.SpecialRequirements `bson:"specialRequirements"`
	Notes               string                    `bson:"notes"`
	Fare                model.Fare                `bson:"fare"`
	StartTime           *time.Time                `bson:"startTime,omitempty"`
	CompletedBy         *string                   `bson:"completedBy,omitempty"`
	CompletedAt         *time.Time                `bson:"completedAt,omitempty"`
	CancelledBy         *string                   `bson:"cancelledBy,omitempty"`
	CancelledAt         *time.Time                `bson:"cancelledAt,omitempty"`
	CancellationReason  string                    `bson:"cancellationReason,omitempty"`
	Rating              *model.Rating             `bson:"rating,omitempty"`
	PaymentStatus       string                    `bson:"paymentStatus"`
	PaymentDetails      *model.PaymentDetails     `bson:"paymentDetails,omitempty"`
	CreatedAt           time.Time                 `bson:"createdAt"`
	UpdatedAt           time.Time                 `bson:"updatedAt"`
}

func toPoint(p model.Point) geoJSONPoint {
	return geoJSONPoint{Type: "Point", Coordinates: []float64{p.Lon, p.Lat}}
}

func fromPoint(g geoJSONPoint) model.Point {
	if len(g.Coordinates) != 2 {
		return model.Point{}
	}
	return model.Point{Lon: g.Coordinates[0], Lat: g.Coordinates[1]}
}

func idString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseOptionalID(s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func toRideDoc(r *model.Ride) rideDoc {
	return rideDoc{
		ID:                  r.ID.String(),
		PatientID:           r.PatientID.String(),
		DriverID:            idString(r.DriverID),
		FacilityID:          idString(r.FacilityID),
		Pickup:              placeDoc{Address: r.Pickup.Address, Location: toPoint(r.Pickup.Location)},
		Dropoff:             placeDoc{Address: r.Dropoff.Address, Location: toPoint(r.Dropoff.Location)},
		Distance:            r.Distance,
		ScheduledTime:       r.ScheduledTime,
		Status:              string(r.Status),
		SpecialRequirements: r.SpecialRequirements,
		Notes:               r.Notes,
		Fare:                r.Fare,
		StartTime:           r.StartTime,
		CompletedBy:         idString(r.CompletedBy),
		CompletedAt:         r.CompletedAt,
		CancelledBy:         idString(r.CancelledBy),
		CancelledAt:         r.CancelledAt,
		CancellationReason:  r.CancellationReason,
		Rating:              r.Rating,
		PaymentStatus:       string(r.PaymentStatus),
		PaymentDetails:      r.PaymentDetails,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func (d *rideDoc) toModel() (*model.Ride, error) {
	var err error
	r := &model.Ride{
		Pickup:              model.Place{Address: d.Pickup.Address, Location: fromPoint(d.Pickup.Location)},
		Dropoff:             model.Place{Address: d.Dropoff.Address, Location: fromPoint(d.Dropoff.Location)},
		Distance:            d.Distance,
		ScheduledTime:       d.ScheduledTime,
		Status:              model.RideStatus(d.Status),
		SpecialRequirements: d.SpecialRequirements,
		Notes:               d.Notes,
		Fare:                d.Fare,
		StartTime:           d.StartTime,
		CompletedAt:         d.CompletedAt,
		CancelledAt:         d.CancelledAt,
		CancellationReason:  d.CancellationReason,
		Rating:              d.Rating,
		PaymentStatus:       model.PaymentStatus(d.PaymentStatus),
		PaymentDetails:      d.PaymentDetails,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
	if r.ID, err = uuid.Parse(d.ID); err != nil {
		return nil, fmt.Errorf("ride id %q: %w", d.ID, err)
	}
	if r.PatientID, err = uuid.Parse(d.PatientID); err != nil {
		return nil, fmt.Errorf("ride %s patient id: %w", d.ID, err)
	}
	for _, f := range []struct {
		src *string
		dst **uuid.UUID
	}{
		{d.DriverID, &r.DriverID},
		{d.FacilityID, &r.FacilityID},
		{d.CompletedBy, &r.CompletedBy},
		{d.CancelledBy, &r.CancelledBy},
	} {
		if *f.dst, err = parseOptionalID(f.src); err != nil {
			return nil, fmt.Errorf("ride %s reference: %w", d.ID, err)
		}
	}
	return r, nil
}

// ─── Rides ──────────────────────────────────────────────────

// MongoRideRepository is the MongoDB-backed ride store.
// Conditional updates use FindOneAndUpdate, which is atomic per document.
type MongoRideRepository struct {
	col *mongo.Collection
}

func NewMongoRideRepository(db *mongo.Database) *MongoRideRepository {
	return &MongoRideRepository{col: db.Collection(mongoRides)}
}

func (r *MongoRideRepository) Insert(ctx context.Context, ride *model.Ride) error {
	if _, err := r.col.InsertOne(ctx, toRideDoc(ride)); err != nil {
		return fmt.Errorf("insert ride %s: %w", ride.ID, err)
	}
	return nil
}

func (r *MongoRideRepository) Get(ctx context.Context, id uuid.UUID) (*model.Ride, error) {
	var doc rideDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ride %s: %w", id, err)
	}
	return doc.toModel()
}

// findAndSet applies $set to the single document matching filter and returns it post-update.
func (r *MongoRideRepository) findAndSet(ctx context.Context, filter, set bson.M, missing error, op string) (*model.Ride, error) {
	var doc rideDoc
	err := r.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, missing
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toModel()
}

// Claim awards a pending, unassigned ride to driverID. Returns ErrNoMatch when
// the ride is no longer claimable.
func (r *MongoRideRepository) Claim(ctx context.Context, id, driverID uuid.UUID, at time.Time) (*model.Ride, error) {
	return r.findAndSet(ctx,
		bson.M{"_id": id.String(), "status": string(model.StatusPending), "driverId": nil},
		bson.M{"status": string(model.StatusAccepted), "driverId": driverID.String(), "updatedAt": at},
		ErrNoMatch, "claim ride "+id.String(),
	)
}

func (r *MongoRideRepository) Transition(ctx context.Context, id uuid.UUID, p model.TransitionPatch, at time.Time) (*model.Ride, error) {
	set := bson.M{"status": string(p.To), "updatedAt": at}
	if p.StartTime != nil {
		set["startTime"] = *p.StartTime
	}
	if p.CompletedBy != nil {
		set["completedBy"] = p.CompletedBy.String()
	}
	if p.CompletedAt != nil {
		set["completedAt"] = *p.CompletedAt
	}
	if p.CancelledBy != nil {
		set["cancelledBy"] = p.CancelledBy.String()
	}
	if p.CancelledAt != nil {
		set["cancelledAt"] = *p.CancelledAt
	}
	if p.CancellationReason != nil {
		set["cancellationReason"] = *p.CancellationReason
	}
	return r.findAndSet(ctx,
		bson.M{"_id": id.String(), "status": string(p.From)},
		set, ErrNoMatch, fmt.Sprintf("transition ride %s %s->%s", id, p.From, p.To),
	)
}

func (r *MongoRideRepository) SetRating(ctx context.Context, id uuid.UUID, rating model.Rating) (*model.Ride, error) {
	return r.findAndSet(ctx,
		bson.M{"_id": id.String(), "status": string(model.StatusCompleted)},
		bson.M{"rating": rating, "updatedAt": rating.CreatedAt},
		ErrNoMatch, "rate ride "+id.String(),
	)
}

func (r *MongoRideRepository) SetFare(ctx context.Context, id uuid.UUID, expected model.RideStatus, distance float64, scheduled time.Time, fare model.Fare, at time.Time) (*model.Ride, error) {
	return r.findAndSet(ctx,
		bson.M{"_id": id.String(), "status": string(expected)},
		bson.M{"distance": distance, "scheduledTime": scheduled, "fare": fare, "updatedAt": at},
		ErrNoMatch, "set fare for ride "+id.String(),
	)
}

func (r *MongoRideRepository) SetPayment(ctx context.Context, id uuid.UUID, status model.PaymentStatus, details *model.PaymentDetails, at time.Time) (*model.Ride, error) {
	set := bson.M{"paymentStatus": string(status), "updatedAt": at}
	if details != nil {
		set["paymentDetails"] = details
	}
	return r.findAndSet(ctx, bson.M{"_id": id.String()}, set, ErrNotFound, "set payment for ride "+id.String())
}

// NearbyPending uses $geoWithin/$centerSphere so the 2dsphere index filters and
// the result can be sorted by scheduled time rather than by distance.
func (r *MongoRideRepository) NearbyPending(ctx context.Context, p model.Point, radiusMeters float64, limit int) ([]model.Ride, error) {
	filter := bson.M{
		"status": string(model.StatusPending),
		"pickup.location": bson.M{
			"$geoWithin": bson.M{
				"$centerSphere": bson.A{bson.A{p.Lon, p.Lat}, radiusMeters / geo.EarthRadiusM},
			},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduledTime", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts, "find nearby pending rides")
}

func (r *MongoRideRepository) List(ctx context.Context, f model.RideFilter) ([]model.Ride, error) {
	filter := bson.M{}
	if f.PatientID != nil {
		filter["patientId"] = f.PatientID.String()
	}
	if f.DriverID != nil {
		filter["driverId"] = f.DriverID.String()
	}
	if f.FacilityID != nil {
		filter["facilityId"] = f.FacilityID.String()
	}
	if f.UnassignedOnly {
		filter["driverId"] = nil
	}
	if len(f.Statuses) > 0 {
		statuses := make(bson.A, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		filter["status"] = bson.M{"$in": statuses}
	}

	order := -1
	if f.Ascending {
		order = 1
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduledTime", Value: order}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	return r.find(ctx, filter, opts, "list rides")
}

func (r *MongoRideRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions, op string) ([]model.Ride, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cur.Close(ctx)

	rides := make([]model.Ride, 0)
	for cur.Next(ctx) {
		var doc rideDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
		ride, err := doc.toModel()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rides = append(rides, *ride)
	}
	return rides, cur.Err()
}

func (r *MongoRideRepository) PatientRefs(ctx context.Context) ([]model.RideRef, error) {
	cur, err := r.col.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1, "patientId": 1, "status": 1}))
	if err != nil {
		return nil, fmt.Errorf("scan ride patient refs: %w", err)
	}
	defer cur.Close(ctx)

	var refs []model.RideRef
	for cur.Next(ctx) {
		var doc struct {
			ID        string `bson:"_id"`
			PatientID string `bson:"patientId"`
			Status    string `bson:"status"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode ride ref: %w", err)
		}
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("ride ref id %q: %w", doc.ID, err)
		}
		patientID, err := uuid.Parse(doc.PatientID)
		if err != nil {
			return nil, fmt.Errorf("ride %s patient id: %w", doc.ID, err)
		}
		refs = append(refs, model.RideRef{ID: id, PatientID: patientID, Status: model.RideStatus(doc.Status)})
	}
	return refs, cur.Err()
}

func (r *MongoRideRepository) DeleteOrphan(ctx context.Context, id, patientID uuid.UUID) (model.RideStatus, error) {
	var doc struct {
		Status string `bson:"status"`
	}
	err := r.col.FindOneAndDelete(ctx, bson.M{"_id": id.String(), "patientId": patientID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNoMatch
	}
	if err != nil {
		return "", fmt.Errorf("delete orphan ride %s: %w", id, err)
	}
	return model.RideStatus(doc.Status), nil
}

// ─── Users ──────────────────────────────────────────────────

// MongoUserRepository reads identities from the users collection.
type MongoUserRepository struct {
	col *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{col: db.Collection(mongoUsers)}
}

func (r *MongoUserRepository) Lookup(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var doc struct {
		Email     string    `bson:"email"`
		FirstName string    `bson:"firstName"`
		LastName  string    `bson:"lastName"`
		Role      string    `bson:"role"`
		CreatedAt time.Time `bson:"createdAt"`
	}
	err := r.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", id, err)
	}
	return &model.User{
		ID:        id,
		Email:     doc.Email,
		FirstName: doc.FirstName,
		LastName:  doc.LastName,
		Role:      model.Role(doc.Role),
		CreatedAt: doc.CreatedAt,
	}, nil
}

// ─── Pricing ────────────────────────────────────────────────

type pricingDoc struct {
	ID                 string           `bson:"_id,omitempty"`
	BaseFare           float64          `bson:"baseFare"`
	PerMileRate        float64          `bson:"perMileRate"`
	MinimumFare        float64          `bson:"minimumFare"`
	CancellationFee    float64          `bson:"cancellationFee"`
	SurgeMultiplierMin float64          `bson:"surgeMultiplierMin"`
	SurgeMultiplierMax float64          `bson:"surgeMultiplierMax"`
	AdditionalFees     model.Surcharges `bson:"additionalFees"`
	LastUpdated        time.Time        `bson:"lastUpdated"`
	UpdatedBy          *string          `bson:"updatedBy,omitempty"`
}

// MongoPricingRepository stores the singleton pricing document.
type MongoPricingRepository struct {
	col *mongo.Collection
}

func NewMongoPricingRepository(db *mongo.Database) *MongoPricingRepository {
	return &MongoPricingRepository{col: db.Collection(mongoPricing)}
}

func (r *MongoPricingRepository) Load(ctx context.Context) (*model.PricingConfig, error) {
	var doc pricingDoc
	err := r.col.FindOne(ctx, bson.M{"_id": pricingDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pricing config: %w", err)
	}
	updatedBy, err := parseOptionalID(doc.UpdatedBy)
	if err != nil {
		return nil, fmt.Errorf("pricing updatedBy: %w", err)
	}
	return &model.PricingConfig{
		BaseFare:           doc.BaseFare,
		PerMileRate:        doc.PerMileRate,
		MinimumFare:        doc.MinimumFare,
		CancellationFee:    doc.CancellationFee,
		SurgeMultiplierMin: doc.SurgeMultiplierMin,
		SurgeMultiplierMax: doc.SurgeMultiplierMax,
		AdditionalFees:     doc.AdditionalFees,
		LastUpdated:        doc.LastUpdated,
		UpdatedBy:          updatedBy,
	}, nil
}

func (r *MongoPricingRepository) Save(ctx context.Context, c model.PricingConfig) error {
	doc := newPricingDoc(c)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": pricingDocID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save pricing config: %w", err)
	}
	return nil
}

// SaveIfAbsent upserts with $setOnInsert, so an existing document is left untouched.
func (r *MongoPricingRepository) SaveIfAbsent(ctx context.Context, c model.PricingConfig) (bool, error) {
	doc := newPricingDoc(c)
	doc.ID = ""
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": pricingDocID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("insert default pricing config: %w", err)
	}
	return res.UpsertedCount == 1, nil
}

func newPricingDoc(c model.PricingConfig) pricingDoc {
	return pricingDoc{
		ID:                 pricingDocID,
		BaseFare:           c.BaseFare,
		PerMileRate:        c.PerMileRate,
		MinimumFare:        c.MinimumFare,
		CancellationFee:    c.CancellationFee,
		SurgeMultiplierMin: c.SurgeMultiplierMin,
		SurgeMultiplierMax: c.SurgeMultiplierMax,
		AdditionalFees:     c.AdditionalFees,
		LastUpdated:        c.LastUpdated,
		UpdatedBy:          idString(c.UpdatedBy),
	}
}
