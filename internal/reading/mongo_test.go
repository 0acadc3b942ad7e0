package reading

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nerrad567/storefront-telemetry/internal/alert"
	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

func TestMongoDocumentConversion(t *testing.T) {
	item := "sku-3"
	est := 7
	rd := &Reading{
		ID:            "r1",
		DeviceID:      "scale-1",
		SensorKind:    sensor.KindWeight,
		CatalogItemID: &item,
		Value:         sensor.Number(14),
		Unit:          "kg",
		Location:      sensor.Location{Warehouse: "WH-1"},
		Metadata:      Metadata{Weight: &WeightSample{EstimatedQuantity: &est}},
		Alert:         &alert.Alert{Triggered: true, Severity: alert.SeverityMedium, Origin: alert.OriginLowStock},
		CreatedAt:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	doc := toDocument(rd)
	if doc.ValueNum == nil || *doc.ValueNum != 14 || doc.ValueText != nil {
		t.Errorf("value columns = %v / %v", doc.ValueNum, doc.ValueText)
	}
	if !doc.AlertTriggered {
		t.Error("alert_triggered not denormalised")
	}

	back := doc.toReading()
	if f, _ := back.Value.Float(); f != 14 {
		t.Errorf("Value = %v", back.Value)
	}
	if back.Metadata.Weight == nil || *back.Metadata.Weight.EstimatedQuantity != 7 {
		t.Errorf("Metadata = %+v", back.Metadata)
	}

	text := toDocument(&Reading{ID: "r2", SensorKind: sensor.KindRFID, Value: sensor.Text("T")})
	if text.ValueText == nil || *text.ValueText != "T" || text.ValueNum != nil {
		t.Errorf("text value columns = %v / %v", text.ValueNum, text.ValueText)
	}
}

func TestMongoFilter(t *testing.T) {
	tru := true
	q := mongoFilter(Filter{DeviceID: "d", AlertTriggered: &tru, From: time.Unix(0, 0)})
	if q["device_id"] != "d" || q["alert_triggered"] != true {
		t.Errorf("filter = %v", q)
	}
	if _, ok := q["created_at"]; !ok {
		t.Error("time window missing")
	}
	if len(mongoFilter(Filter{})) != 0 {
		t.Error("empty filter should match everything")
	}
}

// TestMongoRepository_Integration runs against a live server when
// STOREFRONT_TEST_MONGODB_URI is set.
func TestMongoRepository_Integration(t *testing.T) {
	uri := os.Getenv("STOREFRONT_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("STOREFRONT_TEST_MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Disconnect(ctx) //nolint:errcheck // test cleanup

	coll := client.Database("storefront_test").Collection("readings_" + time.Now().Format("150405.000000"))
	defer coll.Drop(ctx) //nolint:errcheck // test cleanup

	repo := NewMongoRepository(coll)
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}

	for i, id := range []string{"m1", "m2"} {
		if err := repo.Insert(ctx, sample(id, "dev", time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Insert(%s) error = %v", id, err)
		}
	}
	if err := repo.Insert(ctx, sample("m1", "dev", 0)); !errors.Is(err, ErrReadingExists) {
		t.Errorf("duplicate Insert() error = %v", err)
	}

	got, err := repo.Query(ctx, Filter{DeviceID: "dev"})
	if err != nil || len(got) != 2 || got[0].ID != "m2" {
		t.Fatalf("Query() = %+v, %v", got, err)
	}

	if err := repo.MarkProcessed(ctx, "m1"); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if err := repo.MarkProcessed(ctx, "m1"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("second MarkProcessed() error = %v", err)
	}
	if err := repo.Delete(ctx, "m2"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "m2"); !errors.Is(err, ErrReadingNotFound) {
		t.Errorf("GetByID after delete error = %v", err)
	}
}
