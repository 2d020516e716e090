//go:build integration
// +build integration

package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envdash/internal/agent"
	"github.com/afroash/envdash/internal/config"
	"github.com/afroash/envdash/internal/models"
	"github.com/afroash/envdash/internal/sensor"
)

// TestFullSystem reads the real DHT11 and buffers offline.
// Run on the device with: go test -tags=integration -v ./cmd/sensor/
func TestFullSystem(t *testing.T) {
	cfg, err := config.LoadConfig("../../configs/sensor.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	dhtSensor, err := sensor.NewDHT11Reader(cfg.Sensor.GPIOPin)
	if err != nil {
		t.Fatalf("Failed to open sensor: %v", err)
	}

	device := models.NewDeviceInfo(cfg.Sensor.ID, cfg.Sensor.Location, cfg.Sensor.Type, version)
	reader := sensor.NewReader(dhtSensor, device, cfg.Sensor.ReadInterval, logger)
	defer reader.Close()

	buffer := agent.NewBuffer(cfg.Buffer.Size, cfg.Buffer.DropOldest)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, reader, buffer, nil, logger); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if buffer.Size() == 0 {
		t.Errorf("No readings collected (%d sensor failures)", reader.Failures())
	}
	t.Logf("System test passed: %d readings collected", buffer.Size())
}
