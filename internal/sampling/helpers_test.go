package sampling

import (
	"fmt"
	"time"

	"github.com/afroash/envdash/internal/models"
)

var epoch = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// series builds readings at the given offsets (seconds from epoch),
// with temperature = 10 + index.
func series(offsets ...int64) []*models.Reading {
	out := make([]*models.Reading, len(offsets))
	for i, off := range offsets {
		out[i] = &models.Reading{
			ID:          fmt.Sprintf("r%03d", i),
			Timestamp:   epoch.Add(time.Duration(off) * time.Second),
			Temperature: 10 + float64(i),
		}
	}
	return out
}

func offsetsOf(readings []*models.Reading) []int64 {
	out := make([]int64, len(readings))
	for i, r := range readings {
		out[i] = int64(r.Timestamp.Sub(epoch) / time.Second)
	}
	return out
}

func spacingSpec(minutes int64, interval time.Duration) RangeSpec {
	return RangeSpec{Token: "t", Minutes: minutes, Strategy: Strategy{Kind: StrategySpacing, Interval: interval}}
}

func nearestSpec(minutes int64, tolerance time.Duration) RangeSpec {
	return RangeSpec{Token: "t", Minutes: minutes, Strategy: Strategy{Kind: StrategyNearest, Tolerance: tolerance}}
}
