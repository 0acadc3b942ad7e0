package reading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nerrad567/storefront-telemetry/internal/alert"
	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

// MongoRepository implements Repository on a MongoDB collection.
// It is used instead of SQLite when mongodb.enabled is set, for
// deployments that keep high-volume telemetry in a document store.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository wraps a collection. Call EnsureIndexes once at startup.
func NewMongoRepository(coll *mongo.Collection) *MongoRepository {
	return &MongoRepository{coll: coll}
}

// mongoDocument is the stored form of a Reading.
type mongoDocument struct {
	ID             string          `bson:"_id"`
	DeviceID       string          `bson:"device_id"`
	SensorKind     string          `bson:"sensor_type"`
	CatalogItemID  *string         `bson:"catalog_item_id,omitempty"`
	ValueNum       *float64        `bson:"value_num,omitempty"`
	ValueText      *string         `bson:"value_text,omitempty"`
	Unit           string          `bson:"unit"`
	Location       sensor.Location `bson:"location"`
	Metadata       bson.M          `bson:"metadata,omitempty"`
	Alert          *alert.Alert    `bson:"alert,omitempty"`
	AlertTriggered bool            `bson:"alert_triggered"`
	Processed      bool            `bson:"processed"`
	CreatedAt      time.Time       `bson:"created_at"`
}

func toDocument(rd *Reading) mongoDocument {
	doc := mongoDocument{
		ID:            rd.ID,
		DeviceID:      rd.DeviceID,
		SensorKind:    string(rd.SensorKind),
		CatalogItemID: rd.CatalogItemID,
		Unit:          rd.Unit,
		Location:      rd.Location,
		Alert:         rd.Alert,
		Processed:     rd.Processed,
		CreatedAt:     rd.CreatedAt.UTC(),
	}
	if f, ok := rd.Value.Float(); ok {
		doc.ValueNum = &f
	} else {
		s, _ := rd.Value.Text()
		doc.ValueText = &s
	}
	if !rd.Metadata.IsZero() {
		doc.Metadata = bson.M(rd.Metadata.Flatten())
	}
	if rd.Alert != nil {
		doc.AlertTriggered = rd.Alert.Triggered
	}
	return doc
}

func (d mongoDocument) toReading() *Reading {
	rd := &Reading{
		ID:            d.ID,
		DeviceID:      d.DeviceID,
		SensorKind:    sensor.Kind(d.SensorKind),
		CatalogItemID: d.CatalogItemID,
		Unit:          d.Unit,
		Location:      d.Location,
		Alert:         d.Alert,
		Processed:     d.Processed,
		CreatedAt:     d.CreatedAt.UTC(),
	}
	switch {
	case d.ValueNum != nil:
		rd.Value = sensor.Number(*d.ValueNum)
	case d.ValueText != nil:
		rd.Value = sensor.Text(*d.ValueText)
	}
	if len(d.Metadata) > 0 {
		rd.Metadata = ParseMetadata(rd.SensorKind, map[string]any(d.Metadata))
	}
	return rd
}

// EnsureIndexes creates the indexes Query relies on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "catalog_item_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "alert_triggered", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating reading indexes: %w", err)
	}
	return nil
}

// Insert stores a new reading.
func (r *MongoRepository) Insert(ctx context.Context, rd *Reading) error {
	if rd.CreatedAt.IsZero() {
		rd.CreatedAt = time.Now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, toDocument(rd)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrReadingExists
		}
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// GetByID retrieves a reading by ID.
func (r *MongoRepository) GetByID(ctx context.Context, id string) (*Reading, error) {
	var doc mongoDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrReadingNotFound
		}
		return nil, fmt.Errorf("querying reading by id: %w", err)
	}
	return doc.toReading(), nil
}

// Query returns readings matching f, newest first.
func (r *MongoRepository) Query(ctx context.Context, f Filter) ([]Reading, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(f.EffectiveLimit()))

	cur, err := r.coll.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer cur.Close(ctx)

	var readings []Reading
	for cur.Next(ctx) {
		var doc mongoDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding reading: %w", err)
		}
		readings = append(readings, *doc.toReading())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

func mongoFilter(f Filter) bson.M {
	q := bson.M{}
	if f.DeviceID != "" {
		q["device_id"] = f.DeviceID
	}
	if f.CatalogItemID != "" {
		q["catalog_item_id"] = f.CatalogItemID
	}
	if f.AlertTriggered != nil {
		q["alert_triggered"] = *f.AlertTriggered
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		window := bson.M{}
		if !f.From.IsZero() {
			window["$gte"] = f.From.UTC()
		}
		if !f.To.IsZero() {
			window["$lte"] = f.To.UTC()
		}
		q["created_at"] = window
	}
	return q
}

// MarkProcessed flips processed to true exactly once.
func (r *MongoRepository) MarkProcessed(ctx context.Context, id string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "processed": false},
		bson.M{"$set": bson.M{"processed": true}},
	)
	if err != nil {
		return fmt.Errorf("marking reading processed: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("checking reading exists: %w", err)
	}
	if n == 0 {
		return ErrReadingNotFound
	}
	return ErrAlreadyProcessed
}

// Delete removes a reading.
func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting reading: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrReadingNotFound
	}
	return nil
}
