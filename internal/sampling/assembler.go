package sampling

import "github.com/afroash/envdash/internal/models"

// DefaultFallbackCount is how many recent raw readings replace a starved sample
const DefaultFallbackCount = 20

// Result is what a range query returns. Live is nil only for an empty store.
type Result struct {
	Live     *models.Reading   `json:"live"`
	Readings []*models.Reading `json:"readings"`
	// Fallback is set when Readings holds the most recent raw readings
	// instead of the strategy's selection.
	Fallback bool `json:"fallback"`
}

// EmptyResult is the answer for a store that has never received a reading
func EmptyResult() *Result {
	return &Result{Readings: []*models.Reading{}}
}

// Assembler pairs the baseline with the sampled series.
//
// When sampling yields fewer than two points but the raw series holds more,
// the result carries the last FallbackCount raw readings instead and is
// flagged as Fallback. This is a usability override: a chart with zero or
// one point is useless even if the interval or window simply missed.
type Assembler struct {
	FallbackCount int
}

// Assemble builds the result. It only selects between sampled and raw and
// never modifies either. Pass a nil raw series for the tail strategy.
func (a Assembler) Assemble(baseline *models.Reading, sampled, raw []*models.Reading) *Result {
	if baseline == nil {
		return EmptyResult()
	}

	if len(sampled) < 2 && len(raw) > len(sampled) && a.FallbackCount > 0 {
		n := min(a.FallbackCount, len(raw))
		tail := make([]*models.Reading, n)
		copy(tail, raw[len(raw)-n:])
		return &Result{Live: baseline, Readings: tail, Fallback: true}
	}

	out := make([]*models.Reading, len(sampled))
	copy(out, sampled)
	return &Result{Live: baseline, Readings: out}
}
