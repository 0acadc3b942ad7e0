package mongodb

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(context.Background(), config.MongoDBConfig{URI: "mongodb://localhost:27017"})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectBadURI(t *testing.T) {
	_, err := Connect(context.Background(), config.MongoDBConfig{Enabled: true, URI: "not-a-uri", ConnectTimeout: 1})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectLive(t *testing.T) {
	uri := os.Getenv("STOREFRONT_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("STOREFRONT_TEST_MONGODB_URI not set")
	}

	c, err := Connect(context.Background(), config.MongoDBConfig{
		Enabled:        true,
		URI:            uri,
		Database:       "storefront_test",
		Collection:     "readings",
		ConnectTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if c.Collection().Name() != "readings" {
		t.Errorf("Collection() = %q", c.Collection().Name())
	}
}
