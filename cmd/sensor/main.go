package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/afroash/envdash/internal/agent"
	"github.com/afroash/envdash/internal/config"
	"github.com/afroash/envdash/internal/logging"
	"github.com/afroash/envdash/internal/models"
	"github.com/afroash/envdash/internal/sensor"
)

const version = "v0.3.0"

func main() {
	configPath := flag.String("config", "configs/sensor.yaml", "path to config file")
	offline := flag.Bool("offline", false, "read and buffer only, never connect to the server")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.Logging, "sensor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	logger.Info().
		Str("version", version).
		Str("sensor_id", cfg.Sensor.ID).
		Str("location", cfg.Sensor.Location).
		Bool("offline", *offline).
		Msg("Starting sensor agent")
	logger.Debug().Msg(cfg.String())

	dhtSensor, err := sensor.NewDHT11Reader(cfg.Sensor.GPIOPin)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open sensor")
		closer.Close()
		os.Exit(1)
	}

	device := models.NewDeviceInfo(cfg.Sensor.ID, cfg.Sensor.Location, cfg.Sensor.Type, version)
	reader := sensor.NewReader(dhtSensor, device, cfg.Sensor.ReadInterval, logger).
		WithExtras(sensor.NetworkStatus)
	defer reader.Close()

	buffer := agent.NewBuffer(cfg.Buffer.Size, cfg.Buffer.DropOldest)

	var uploader *agent.Uploader
	if !*offline {
		uploader = newUploader(cfg, buffer, device, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, reader, buffer, uploader, logger)
	logger.Info().
		Int64("sensor_failures", reader.Failures()).
		Str("buffer", buffer.String()).
		Msg("Sensor agent stopped")
	if err != nil {
		logger.Error().Err(err).Msg("Sensor agent failed")
		reader.Close()
		closer.Close()
		os.Exit(1)
	}
}

// newUploader builds the uploader from the agent config
func newUploader(cfg *config.Config, buffer *agent.Buffer, device *models.DeviceInfo, logger zerolog.Logger) *agent.Uploader {
	return agent.NewUploader(agent.UploaderConfig{
		URL:                  cfg.Server.URL,
		AuthToken:            cfg.Server.AuthToken,
		ConnectTimeout:       cfg.Server.ConnectTimeout,
		ReconnectInterval:    cfg.Server.ReconnectInterval,
		MaxReconnectInterval: cfg.Server.MaxReconnectInterval,
		PingInterval:         cfg.Server.PingInterval,
		PongTimeout:          cfg.Server.PongTimeout,
		HeartbeatInterval:    cfg.Server.HeartbeatInterval,
		BatchSize:            cfg.Buffer.BatchSize,
	}, buffer, device, logger)
}

// run blocks until ctx is cancelled. A nil uploader runs offline.
func run(ctx context.Context, source agent.Source, buffer *agent.Buffer, uploader *agent.Uploader, logger zerolog.Logger) error {
	err := agent.New(source, buffer, uploader, logger).Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
