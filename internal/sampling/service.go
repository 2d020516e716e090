package sampling

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/afroash/envdash/internal/metrics"
	"github.com/afroash/envdash/internal/models"
)

// Source is the read side of the reading store
type Source interface {
	// Latest returns the most recent reading, or nil when the store is empty
	Latest(ctx context.Context) (*models.Reading, error)

	// Range returns readings with start <= timestamp <= end in the given order
	Range(ctx context.Context, start, end time.Time, order models.Order) ([]*models.Reading, error)
}

// ServiceConfig holds configuration for the query service
type ServiceConfig struct {
	Table         *Table
	DefaultRange  string
	FallbackCount int
	CacheSize     int // 0 disables the result cache
}

// Service answers range queries: resolve the token, fetch the baseline,
// fetch the raw series, sample, assemble.
type Service struct {
	source       Source
	table        *Table
	defaultRange string
	assembler    Assembler
	cache        *lru.Cache[cacheKey, *Result]
	logger       zerolog.Logger
}

// Readings are append-only with non-decreasing timestamps, so a result is
// fully determined by the range and the baseline it was computed against.
type cacheKey struct {
	spec       RangeSpec
	baselineID string
}

// NewService creates a query service over source
func NewService(source Source, config ServiceConfig, logger zerolog.Logger) (*Service, error) {
	table := config.Table
	if table == nil {
		table = DefaultTable()
	}
	if config.DefaultRange == "" {
		config.DefaultRange = "5m"
	}
	if _, err := table.Resolve(config.DefaultRange); err != nil {
		return nil, fmt.Errorf("default range: %w", err)
	}

	s := &Service{
		source:       source,
		table:        table,
		defaultRange: config.DefaultRange,
		assembler:    Assembler{FallbackCount: config.FallbackCount},
		logger:       logger,
	}

	if config.CacheSize > 0 {
		cache, err := lru.New[cacheKey, *Result](config.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// Table returns the range table the service resolves against
func (s *Service) Table() *Table {
	return s.table
}

// DefaultRange returns the token used for queries that name no range
func (s *Service) DefaultRange() string {
	return s.defaultRange
}

// Latest returns the baseline reading, nil for an empty store
func (s *Service) Latest(ctx context.Context) (*models.Reading, error) {
	return s.source.Latest(ctx)
}

// Query resolves token (the default range when empty) and returns the live
// reading with its sampled series. Returned results may be shared between
// callers and must not be modified.
func (s *Service) Query(ctx context.Context, token string) (*Result, error) {
	if token == "" {
		token = s.defaultRange
	}
	spec, err := s.table.Resolve(token)
	if err != nil {
		return nil, err
	}

	baseline, err := s.source.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if baseline == nil {
		return EmptyResult(), nil
	}

	key := cacheKey{spec: spec, baselineID: baseline.ID}
	if s.cache != nil {
		if res, ok := s.cache.Get(key); ok {
			metrics.QueryCacheHitsTotal.Inc()
			return res, nil
		}
		metrics.QueryCacheMissesTotal.Inc()
	}

	res, err := s.compute(ctx, baseline, spec)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Add(key, res)
	}
	return res, nil
}

func (s *Service) compute(ctx context.Context, baseline *models.Reading, spec RangeSpec) (*Result, error) {
	kind := string(spec.Strategy.Kind)
	metrics.QueriesTotal.WithLabelValues(kind).Inc()

	if spec.Strategy.Kind == StrategyTail {
		return s.assembler.Assemble(baseline, Sample(baseline, nil, spec), nil), nil
	}

	start, end := Span(baseline, spec)
	raw, err := s.source.Range(ctx, start, end, models.Ascending)
	if err != nil {
		return nil, err
	}
	metrics.RawSeriesSize.Observe(float64(len(raw)))

	sampled := Sample(baseline, raw, spec)
	res := s.assembler.Assemble(baseline, sampled, raw)
	if res.Fallback {
		metrics.FallbacksTotal.WithLabelValues(kind).Inc()
	}

	s.logger.Debug().
		Str("range", spec.Token).
		Str("strategy", kind).
		Int("raw", len(raw)).
		Int("sampled", len(sampled)).
		Int("returned", len(res.Readings)).
		Bool("fallback", res.Fallback).
		Msg("Range query sampled")

	return res, nil
}
