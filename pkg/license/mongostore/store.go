// Package mongostore keeps license records in MongoDB.
//
// MongoDB without a replica set has no multi-document transactions, so Issue
// inserts the new record first and supersedes the older ones second. A crash
// in between leaves two unsuperseded active records; resolution still picks
// the newest one.
package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/licensekit/pkg/license"
)

// DefaultCollection is used when New is given an empty name.
const DefaultCollection = "license_records"

type recordDoc struct {
	ID              string     `bson:"_id"`
	UserID          string     `bson:"user_id"`
	Type            string     `bson:"license_type"`
	Status          string     `bson:"status"`
	CreatedAt       time.Time  `bson:"created_at"`
	ExpiresAt       *time.Time `bson:"expires_at,omitempty"`
	AnalysesUsed    int64      `bson:"analyses_used"`
	SetupsSaved     int64      `bson:"setups_saved"`
	VehiclesCreated int64      `bson:"vehicles_created"`
	OrderID         string     `bson:"order_id,omitempty"`
	SupersededBy    string     `bson:"superseded_by,omitempty"`
}

// Store implements license.Store.
type Store struct {
	coll *mongo.Collection
}

// New panics if db is nil.
func New(db *mongo.Database, collection string) *Store {
	if db == nil {
		panic("mongostore: database is required")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{coll: db.Collection(collection)}
}

// EnsureIndexes creates the lookup index and the unique order index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "order_id", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
	})
	if err != nil {
		return errors.Join(license.ErrStoreFailure, err)
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]license.Record, error) {
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "user_id", Value: userID}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Join(license.ErrStoreFailure, err)
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Join(license.ErrStoreFailure, err)
	}

	out := make([]license.Record, 0, len(docs))
	for _, d := range docs {
		rec, err := d.record()
		if err != nil {
			return nil, errors.Join(license.ErrStoreFailure, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Issue(ctx context.Context, rec license.Record) (license.Record, error) {
	if err := license.ValidateRecord(rec); err != nil {
		return license.Record{}, err
	}

	if rec.OrderID != "" {
		existing, err := s.byOrder(ctx, rec.OrderID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return license.Record{}, errors.Join(license.ErrStoreFailure, err)
		}
	}

	doc := toDoc(rec)
	doc.SupersededBy = ""
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) && rec.OrderID != "" {
			if existing, ferr := s.byOrder(ctx, rec.OrderID); ferr == nil {
				return existing, nil
			}
		}
		return license.Record{}, errors.Join(license.ErrStoreFailure, err)
	}

	_, err := s.coll.UpdateMany(ctx,
		bson.D{
			{Key: "user_id", Value: rec.UserID},
			{Key: "status", Value: string(license.StatusActive)},
			{Key: "_id", Value: bson.D{{Key: "$ne", Value: doc.ID}}},
			{Key: "superseded_by", Value: bson.D{{Key: "$exists", Value: false}}},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "superseded_by", Value: doc.ID}}}},
	)
	if err != nil {
		return license.Record{}, errors.Join(license.ErrStoreFailure, err)
	}

	return doc.record()
}

func (s *Store) HasType(ctx context.Context, userID string, t license.Type) (bool, error) {
	n, err := s.coll.CountDocuments(ctx,
		bson.D{{Key: "user_id", Value: userID}, {Key: "license_type", Value: string(t)}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, errors.Join(license.ErrStoreFailure, err)
	}
	return n > 0, nil
}

func (s *Store) IncrementUsage(ctx context.Context, licenseID uuid.UUID, action license.Action, delta, limit int64) (int64, error) {
	if err := license.ValidateIncrement(action, delta); err != nil {
		return 0, err
	}
	field := usageFields[action]

	filter := bson.D{{Key: "_id", Value: licenseID.String()}}
	if limit != license.Unlimited {
		filter = append(filter, bson.E{Key: field, Value: bson.D{{Key: "$lte", Value: limit - delta}}})
	}

	var doc recordDoc
	err := s.coll.FindOneAndUpdate(ctx,
		filter,
		bson.D{{Key: "$inc", Value: bson.D{{Key: field, Value: delta}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return s.refusedIncrement(ctx, licenseID, action)
	}
	if err != nil {
		return 0, errors.Join(license.ErrStoreFailure, err)
	}
	return doc.usage(action), nil
}

// refusedIncrement tells a missing record from a full counter after the
// guarded update matched nothing.
func (s *Store) refusedIncrement(ctx context.Context, licenseID uuid.UUID, action license.Action) (int64, error) {
	var doc recordDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: licenseID.String()}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, license.ErrRecordNotFound
	}
	if err != nil {
		return 0, errors.Join(license.ErrStoreFailure, err)
	}
	return doc.usage(action), license.ErrLimitReached
}

func (d recordDoc) usage(action license.Action) int64 {
	switch action {
	case license.ActionVehicle:
		return d.VehiclesCreated
	case license.ActionAnalysis:
		return d.AnalysesUsed
	default:
		return d.SetupsSaved
	}
}

var usageFields = map[license.Action]string{
	license.ActionVehicle:  "vehicles_created",
	license.ActionAnalysis: "analyses_used",
	license.ActionSetup:    "setups_saved",
}

func (s *Store) byOrder(ctx context.Context, orderID string) (license.Record, error) {
	var doc recordDoc
	if err := s.coll.FindOne(ctx, bson.D{{Key: "order_id", Value: orderID}}).Decode(&doc); err != nil {
		return license.Record{}, err
	}
	return doc.record()
}

func toDoc(rec license.Record) recordDoc {
	d := recordDoc{
		ID:              rec.ID.String(),
		UserID:          rec.UserID,
		Type:            string(rec.Type),
		Status:          string(rec.Status),
		CreatedAt:       rec.CreatedAt.UTC(),
		AnalysesUsed:    rec.AnalysesUsed,
		SetupsSaved:     rec.SetupsSaved,
		VehiclesCreated: rec.VehiclesCreated,
		OrderID:         rec.OrderID,
	}
	if rec.ExpiresAt != nil {
		t := rec.ExpiresAt.UTC()
		d.ExpiresAt = &t
	}
	if rec.SupersededBy != nil {
		d.SupersededBy = rec.SupersededBy.String()
	}
	return d
}

func (d recordDoc) record() (license.Record, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return license.Record{}, err
	}
	rec := license.Record{
		ID:              id,
		UserID:          d.UserID,
		Type:            license.Type(d.Type),
		Status:          license.Status(d.Status),
		CreatedAt:       d.CreatedAt.UTC(),
		AnalysesUsed:    d.AnalysesUsed,
		SetupsSaved:     d.SetupsSaved,
		VehiclesCreated: d.VehiclesCreated,
		OrderID:         d.OrderID,
	}
	if d.ExpiresAt != nil {
		t := d.ExpiresAt.UTC()
		rec.ExpiresAt = &t
	}
	if d.SupersededBy != "" {
		sup, err := uuid.Parse(d.SupersededBy)
		if err != nil {
			return license.Record{}, err
		}
		rec.SupersededBy = &sup
	}
	return rec, nil
}
