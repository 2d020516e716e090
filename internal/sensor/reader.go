package sensor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envdash/internal/models"
)

// Reader orchestrates periodic sensor readings
type Reader struct {
	sensor   DHTSensor
	device   *models.DeviceInfo
	interval time.Duration
	logger   zerolog.Logger
	readings chan *models.Reading
	failures atomic.Int64
	extras   func() map[string]any
}

// NewReader creates a new sensor reader
func NewReader(sensor DHTSensor, device *models.DeviceInfo, interval time.Duration, logger zerolog.Logger) *Reader {
	return &Reader{
		sensor:   sensor,
		device:   device,
		interval: interval,
		logger:   logger,
		readings: make(chan *models.Reading, 10),
	}
}

// Start reads the sensor every interval until ctx is cancelled.
// The readings channel is closed when Start returns.
func (r *Reader) Start(ctx context.Context) error {
	defer close(r.readings)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.readAndPublish(ctx)
		}
	}
}

// WithExtras attaches the auxiliary fields returned by fn to every reading.
// Call it before Start.
func (r *Reader) WithExtras(fn func() map[string]any) *Reader {
	r.extras = fn
	return r
}

// ReadOnce performs a single reading. The DHT11 carries no microphone, so
// sound is always 0. ID and timestamp are assigned by the server.
func (r *Reader) ReadOnce() (*models.Reading, error) {
	temperature, humidity, err := r.sensor.Read()
	if err != nil {
		return nil, err
	}
	reading := models.NewReading(temperature, humidity, 0)
	if r.extras != nil {
		reading.Ext.Fields = r.extras()
	}
	return reading, nil
}

// readAndPublish performs a read and publishes to the channel
func (r *Reader) readAndPublish(ctx context.Context) {
	reading, err := r.ReadOnce()
	if err != nil {
		failures := r.failures.Add(1)
		r.logger.Error().Err(err).Str("device_id", r.device.ID).Int64("failures", failures).Msg("Failed to read from sensor")
		return
	}

	select {
	case r.readings <- reading:
		r.logger.Debug().
			Float64("temp", reading.Temperature).
			Float64("humidity", reading.Humidity).
			Msg("Read from sensor")
	case <-ctx.Done():
	}
}

// Readings returns the channel where readings are published
func (r *Reader) Readings() <-chan *models.Reading {
	return r.readings
}

// Failures returns the number of failed sensor reads
func (r *Reader) Failures() int64 {
	return r.failures.Load()
}

// Close stops the reader and cleans up resources
func (r *Reader) Close() error {
	return r.sensor.Close()
}
