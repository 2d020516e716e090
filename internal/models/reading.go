package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Core field names of a reading on the wire.
const (
	FieldID          = "id"
	FieldTimestamp   = "timestamp"
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldSound       = "sound"
)

// TimestampLayout renders timestamps with millisecond precision in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Reading is one timestamped sample from the environmental sensor array.
// Readings are created once by the store and never mutated afterwards.
type Reading struct {
	ID          string
	Timestamp   time.Time
	Temperature float64
	Humidity    float64
	Sound       float64
	Ext         Extensions
}

// Extensions holds the auxiliary fields (soundPeakToPeak, wifiConnected, ...)
// whose presence varies by deployment. Values are passed through untouched.
type Extensions struct {
	Version int
	Fields  map[string]any
}

// Get returns an auxiliary field value
func (e Extensions) Get(name string) (any, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// Len returns the number of auxiliary fields
func (e Extensions) Len() int {
	return len(e.Fields)
}

// Copy returns an independent copy of the extension map
func (e Extensions) Copy() Extensions {
	out := Extensions{Version: e.Version}
	if e.Fields != nil {
		out.Fields = make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// IsCoreField reports whether name is one of the fixed reading fields
func IsCoreField(name string) bool {
	switch name {
	case FieldID, FieldTimestamp, FieldTemperature, FieldHumidity, FieldSound:
		return true
	}
	return false
}

// NewReading creates an unstored reading. ID and Timestamp are assigned by the store.
func NewReading(temperature, humidity, sound float64) *Reading {
	return &Reading{
		Temperature: temperature,
		Humidity:    humidity,
		Sound:       sound,
	}
}

// UnixMilli returns the reading timestamp in milliseconds since the epoch
func (r *Reading) UnixMilli() int64 {
	return r.Timestamp.UnixMilli()
}

// Copy returns a deep copy of the Reading
func (r *Reading) Copy() *Reading {
	if r == nil {
		return nil
	}
	return &Reading{
		ID:          r.ID,
		Timestamp:   r.Timestamp,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Sound:       r.Sound,
		Ext:         r.Ext.Copy(),
	}
}

// get the reading as a string
func (r *Reading) String() string {
	return fmt.Sprintf("ID: %s, Timestamp: %s, Temperature: %.1f°C, Humidity: %.1f%%, Sound: %.1f, Aux: %d",
		r.ID,
		r.Timestamp.UTC().Format(TimestampLayout),
		r.Temperature,
		r.Humidity,
		r.Sound,
		r.Ext.Len())
}

// MarshalJSON flattens the auxiliary fields next to the core fields
func (r Reading) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 5+len(r.Ext.Fields))
	for k, v := range r.Ext.Fields {
		if IsCoreField(k) {
			continue
		}
		out[k] = v
	}
	out[FieldID] = r.ID
	out[FieldTimestamp] = r.Timestamp.UTC().Format(TimestampLayout)
	out[FieldTemperature] = r.Temperature
	out[FieldHumidity] = r.Humidity
	out[FieldSound] = r.Sound
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON. Unknown keys land in Ext.Fields.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var decoded Reading
	for k, v := range raw {
		var err error
		switch k {
		case FieldID:
			err = json.Unmarshal(v, &decoded.ID)
		case FieldTimestamp:
			var ts string
			if err = json.Unmarshal(v, &ts); err == nil {
				decoded.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
			}
		case FieldTemperature:
			err = json.Unmarshal(v, &decoded.Temperature)
		case FieldHumidity:
			err = json.Unmarshal(v, &decoded.Humidity)
		case FieldSound:
			err = json.Unmarshal(v, &decoded.Sound)
		default:
			var val any
			if err = json.Unmarshal(v, &val); err == nil {
				if decoded.Ext.Fields == nil {
					decoded.Ext.Fields = make(map[string]any)
				}
				decoded.Ext.Fields[k] = val
			}
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
	}

	*r = decoded
	return nil
}

// Order selects the timestamp ordering of a range query
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}
