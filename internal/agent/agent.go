// Package agent runs on the sensor device: it buffers readings and uploads
// them to the dashboard server.
package agent

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/afroash/envdash/internal/models"
)

// Source publishes readings until it stops, then closes the channel
type Source interface {
	Start(ctx context.Context) error
	Readings() <-chan *models.Reading
}

// Agent wires a reading source to the buffer and the uploader
type Agent struct {
	source   Source
	buffer   *Buffer
	uploader *Uploader // nil runs offline, buffering only
	logger   zerolog.Logger
}

// New creates an agent
func New(source Source, buffer *Buffer, uploader *Uploader, logger zerolog.Logger) *Agent {
	return &Agent{
		source:   source,
		buffer:   buffer,
		uploader: uploader,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled or a component fails
func (a *Agent) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.source.Start(ctx)
	})
	g.Go(func() error {
		return a.collect(ctx)
	})
	if a.uploader != nil {
		g.Go(func() error {
			return a.uploader.Run(ctx)
		})
	}

	return g.Wait()
}

// collect encodes readings into the buffer
func (a *Agent) collect(ctx context.Context) error {
	readings := a.source.Readings()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reading, ok := <-readings:
			if !ok {
				return nil
			}
			payload, err := EncodePayload(reading)
			if err != nil {
				a.logger.Error().Err(err).Msg("Dropping reading")
				continue
			}
			if !a.buffer.Push(payload) {
				a.logger.Warn().Str("buffer", a.buffer.String()).Msg("Buffer full, reading dropped")
				continue
			}
			if a.uploader != nil {
				a.uploader.Notify()
			}
		}
	}
}
