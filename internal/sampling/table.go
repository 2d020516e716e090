package sampling

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRange is returned for range tokens that are unparseable or out of domain
var ErrInvalidRange = errors.New("invalid range")

// StrategyKind names a downsampling policy
type StrategyKind string

const (
	// StrategyTail returns only the baseline reading.
	StrategyTail StrategyKind = "tail"
	// StrategySpacing walks the series keeping points at least Interval apart.
	StrategySpacing StrategyKind = "spacing"
	// StrategyNearest returns the single reading nearest to baseline-duration within Tolerance.
	StrategyNearest StrategyKind = "nearest"
)

// Strategy is a downsampling policy with its parameters
type Strategy struct {
	Kind      StrategyKind  `json:"kind"`
	Interval  time.Duration `json:"-"`
	Tolerance time.Duration `json:"-"`
}

// RangeSpec is one resolved range: a lookback and how to sample it
type RangeSpec struct {
	Token       string   `json:"token"`
	Minutes     int64    `json:"minutes"`
	Strategy    Strategy `json:"strategy"`
	Description string   `json:"description,omitempty"`
}

// DurationMs returns the lookback in milliseconds
func (r RangeSpec) DurationMs() int64 {
	return r.Minutes * 60_000
}

// Duration returns the lookback as a time.Duration
func (r RangeSpec) Duration() time.Duration {
	return time.Duration(r.Minutes) * time.Minute
}

// maxMinutes keeps minutes*time.Minute inside int64
const maxMinutes = math.MaxInt64 / int64(time.Minute)

// Table maps range tokens to specs. It is built from configuration so that
// changing what "5m" means is a config change.
type Table struct {
	specs   []RangeSpec
	byToken map[string]RangeSpec
}

// DefaultTable returns the canonical range table
func DefaultTable() *Table {
	t, err := NewTable([]RangeSpec{
		{Token: "live", Minutes: 0, Strategy: Strategy{Kind: StrategyTail}, Description: "Latest reading"},
		{Token: "5m", Minutes: 5, Strategy: Strategy{Kind: StrategyNearest, Tolerance: 30 * time.Second}, Description: "Reading nearest 5 minutes before latest"},
		{Token: "15m", Minutes: 15, Strategy: Strategy{Kind: StrategyNearest, Tolerance: 30 * time.Second}, Description: "Reading nearest 15 minutes before latest"},
		{Token: "1h", Minutes: 60, Strategy: Strategy{Kind: StrategySpacing, Interval: time.Minute}, Description: "Every 1 minute over the last hour"},
		{Token: "1d", Minutes: 1440, Strategy: Strategy{Kind: StrategySpacing, Interval: time.Hour}, Description: "Every 1 hour over the last day"},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable validates specs and builds a table
func NewTable(specs []RangeSpec) (*Table, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("range table is empty")
	}

	t := &Table{
		specs:   make([]RangeSpec, 0, len(specs)),
		byToken: make(map[string]RangeSpec, len(specs)),
	}
	for _, s := range specs {
		s.Token = normalize(s.Token)
		if s.Token == "" {
			return nil, fmt.Errorf("range with empty token")
		}
		if _, dup := t.byToken[s.Token]; dup {
			return nil, fmt.Errorf("range %q declared twice", s.Token)
		}
		if s.Minutes < 0 || s.Minutes > maxMinutes {
			return nil, fmt.Errorf("range %q: minutes out of bounds", s.Token)
		}
		if err := checkStrategy(s); err != nil {
			return nil, err
		}
		t.byToken[s.Token] = s
		t.specs = append(t.specs, s)
	}

	sort.SliceStable(t.specs, func(i, j int) bool {
		return t.specs[i].Minutes < t.specs[j].Minutes
	})
	return t, nil
}

func checkStrategy(s RangeSpec) error {
	switch s.Strategy.Kind {
	case StrategyTail:
		if s.Minutes != 0 {
			return fmt.Errorf("range %q: tail strategy requires 0 minutes", s.Token)
		}
		return nil
	case StrategySpacing:
		if s.Strategy.Interval < time.Millisecond {
			return fmt.Errorf("range %q: spacing interval must be at least 1ms", s.Token)
		}
	case StrategyNearest:
		if s.Strategy.Tolerance < 0 {
			return fmt.Errorf("range %q: negative tolerance", s.Token)
		}
	default:
		return fmt.Errorf("range %q: unknown strategy %q", s.Token, s.Strategy.Kind)
	}
	if s.Minutes == 0 {
		return fmt.Errorf("range %q: 0 minutes requires the tail strategy", s.Token)
	}
	return nil
}

// Specs returns the table entries ordered by duration
func (t *Table) Specs() []RangeSpec {
	out := make([]RangeSpec, len(t.specs))
	copy(out, t.specs)
	return out
}

// Resolve maps a token to a spec. Known labels resolve to their entry.
// Otherwise the token is read as "<n>", "<n>m", "<n>h" or "<n>d" and gets
// the strategy of the smallest entry at least that long, or of the longest entry.
func (t *Table) Resolve(token string) (RangeSpec, error) {
	token = normalize(token)
	if token == "" {
		return RangeSpec{}, fmt.Errorf("%w: empty token", ErrInvalidRange)
	}
	if s, ok := t.byToken[token]; ok {
		return s, nil
	}

	minutes, err := parseMinutes(token)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("%w: %q: %v", ErrInvalidRange, token, err)
	}
	if minutes == 0 {
		return RangeSpec{Token: token, Strategy: Strategy{Kind: StrategyTail}}, nil
	}

	return RangeSpec{Token: token, Minutes: minutes, Strategy: t.strategyFor(minutes)}, nil
}

func (t *Table) strategyFor(minutes int64) Strategy {
	var longest *RangeSpec
	for i := range t.specs {
		s := &t.specs[i]
		if s.Strategy.Kind == StrategyTail {
			continue
		}
		if s.Minutes >= minutes {
			return s.Strategy
		}
		longest = s
	}
	if longest == nil {
		return Strategy{Kind: StrategyTail}
	}
	return longest.Strategy
}

func parseMinutes(token string) (int64, error) {
	unit := int64(1)
	digits := token
	switch token[len(token)-1] {
	case 'm':
		digits = token[:len(token)-1]
	case 'h':
		unit, digits = 60, token[:len(token)-1]
	case 'd':
		unit, digits = 1440, token[:len(token)-1]
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a duration")
	}
	if n < 0 {
		return 0, fmt.Errorf("negative duration")
	}
	if n > maxMinutes/unit {
		return 0, fmt.Errorf("duration too large")
	}
	return n * unit, nil
}

func normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// MarshalJSON renders durations as integer milliseconds
func (s Strategy) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind        StrategyKind `json:"kind"`
		IntervalMs  int64        `json:"intervalMs,omitempty"`
		ToleranceMs int64        `json:"toleranceMs,omitempty"`
	}{
		Kind:        s.Kind,
		IntervalMs:  s.Interval.Milliseconds(),
		ToleranceMs: s.Tolerance.Milliseconds(),
	}
	return json.Marshal(out)
}
