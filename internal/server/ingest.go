package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/afroash/envdash/internal/ingest"
	"github.com/afroash/envdash/internal/metrics"
	"github.com/afroash/envdash/internal/models"
)

// Transports label where a payload came from
const (
	TransportHTTP   = "http"
	TransportStream = "stream"
)

// Ingester validates payloads and appends them to the store.
// A payload is either stored whole or not at all.
type Ingester struct {
	validator *ingest.Validator
	store     ReadingStore
	logger    zerolog.Logger
}

// NewIngester creates a new ingester
func NewIngester(validator *ingest.Validator, store ReadingStore, logger zerolog.Logger) *Ingester {
	return &Ingester{
		validator: validator,
		store:     store,
		logger:    logger,
	}
}

// Ingest validates and stores one payload
func (in *Ingester) Ingest(ctx context.Context, transport string, payload []byte) (*models.Reading, error) {
	reading, err := in.validator.Validate(payload)
	if err != nil {
		in.record(transport, err)
		in.logger.Warn().Err(err).Str("transport", transport).Msg("Reading rejected")
		return nil, err
	}

	stored, err := in.store.Append(ctx, reading)
	if err != nil {
		in.record(transport, err)
		in.logger.Error().Err(err).Str("transport", transport).Msg("Failed to store reading")
		return nil, err
	}

	in.record(transport, nil)
	in.logger.Info().
		Str("id", stored.ID).
		Str("transport", transport).
		Float64("temp", stored.Temperature).
		Float64("humidity", stored.Humidity).
		Float64("sound", stored.Sound).
		Msg("Reading stored")
	return stored, nil
}

// IngestBatch validates every payload first and stores them together.
// One invalid payload rejects the whole batch.
func (in *Ingester) IngestBatch(ctx context.Context, transport string, payloads []json.RawMessage) ([]*models.Reading, error) {
	readings := make([]*models.Reading, 0, len(payloads))
	for i, payload := range payloads {
		reading, err := in.validator.Validate(payload)
		if err != nil {
			err = indexed(i, err)
			in.record(transport, err)
			in.logger.Warn().Err(err).Str("transport", transport).Int("count", len(payloads)).Msg("Batch rejected")
			return nil, err
		}
		readings = append(readings, reading)
	}

	stored, err := in.store.AppendBatch(ctx, readings)
	if err != nil {
		in.record(transport, err)
		in.logger.Error().Err(err).Str("transport", transport).Int("count", len(readings)).Msg("Failed to store batch")
		return nil, err
	}

	for range stored {
		in.record(transport, nil)
	}
	in.logger.Info().Str("transport", transport).Int("count", len(stored)).Msg("Batch stored")
	return stored, nil
}

func (in *Ingester) record(transport string, err error) {
	result := "stored"
	switch {
	case err == nil:
	case errors.Is(err, ingest.ErrInvalidPayload):
		result = "invalid"
	default:
		result = "store_error"
	}
	metrics.IngestTotal.WithLabelValues(transport, result).Inc()
}

// indexed prefixes validation problems with the batch position of the payload
func indexed(i int, err error) error {
	var verr *ingest.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("reading %d: %w", i, err)
	}
	problems := make([]string, len(verr.Problems))
	for j, p := range verr.Problems {
		problems[j] = fmt.Sprintf("reading %d: %s", i, p)
	}
	return &ingest.ValidationError{Problems: problems, Payload: verr.Payload}
}
