package sampling

import (
	"time"

	"github.com/afroash/envdash/internal/models"
)

// Span returns the inclusive time bounds of the raw series a range needs.
// The nearest strategy looks tolerance further back so the window around
// its target is fully covered.
func Span(baseline *models.Reading, spec RangeSpec) (start, end time.Time) {
	endMs := baseline.UnixMilli()
	startMs := endMs - spec.DurationMs()
	if spec.Strategy.Kind == StrategyNearest {
		startMs -= spec.Strategy.Tolerance.Milliseconds()
	}
	return time.UnixMilli(startMs).UTC(), time.UnixMilli(endMs).UTC()
}

// Sample selects a bounded, time ordered subset of raw for the range.
// raw must be ascending by timestamp; readings after the baseline are ignored.
// Sample is pure: it never modifies raw and keeps no state between calls.
func Sample(baseline *models.Reading, raw []*models.Reading, spec RangeSpec) []*models.Reading {
	if baseline == nil {
		return []*models.Reading{}
	}

	endMs := baseline.UnixMilli()
	switch spec.Strategy.Kind {
	case StrategySpacing:
		return spaced(raw, endMs-spec.DurationMs(), endMs, spec.Strategy.Interval.Milliseconds())
	case StrategyNearest:
		return nearest(raw, endMs-spec.DurationMs(), endMs, spec.Strategy.Tolerance.Milliseconds())
	default:
		return []*models.Reading{baseline}
	}
}

// spaced is a greedy forward scan: accept the first reading at or after the
// cursor, then move the cursor intervalMs past it.
func spaced(raw []*models.Reading, startMs, endMs, intervalMs int64) []*models.Reading {
	out := make([]*models.Reading, 0)
	cursor := startMs
	for _, r := range raw {
		ts := r.UnixMilli()
		if ts > endMs {
			break
		}
		if ts >= cursor {
			out = append(out, r)
			cursor = ts + intervalMs
		}
	}
	return out
}

// nearest returns the reading closest to targetMs within toleranceMs.
// On equal distance the earlier reading wins.
func nearest(raw []*models.Reading, targetMs, endMs, toleranceMs int64) []*models.Reading {
	var best *models.Reading
	var bestDist int64
	for _, r := range raw {
		ts := r.UnixMilli()
		if ts > endMs {
			break
		}
		dist := ts - targetMs
		if dist < 0 {
			dist = -dist
		}
		if dist > toleranceMs {
			continue
		}
		if best == nil || dist < bestDist {
			best, bestDist = r, dist
		}
	}
	if best == nil {
		return []*models.Reading{}
	}
	return []*models.Reading{best}
}
