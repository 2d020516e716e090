package ingest

import (
	"fmt"

	"github.com/afroash/envdash/internal/models"
)

// Kind is the JSON type a payload field must carry
type Kind string

const (
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindString  Kind = "string"
)

// Field declares one payload field
type Field struct {
	Name     string
	Kind     Kind
	Required bool
}

// Schema is the currently declared ingest payload shape.
// It has grown over time, so it is versioned and stamped onto stored readings.
type Schema struct {
	Version int
	Fields  []Field
}

// DefaultSchema returns the latest payload shape: the three core
// measurements plus every auxiliary field seen in deployed sensors.
func DefaultSchema() Schema {
	return Schema{
		Version: 3,
		Fields: []Field{
			{Name: models.FieldTemperature, Kind: KindNumber, Required: true},
			{Name: models.FieldHumidity, Kind: KindNumber, Required: true},
			{Name: models.FieldSound, Kind: KindNumber, Required: true},
			{Name: "soundPeakToPeak", Kind: KindNumber},
			{Name: "filterLevel", Kind: KindNumber},
			{Name: "wifiConnected", Kind: KindBoolean},
			{Name: "ipAddress", Kind: KindString},
			{Name: "batteryVoltage", Kind: KindNumber},
			{Name: "batteryPercentage", Kind: KindNumber},
		},
	}
}

// Check verifies the schema is usable: known kinds, unique names, the core
// measurements declared as required numbers, and no server-assigned fields.
func (s Schema) Check() error {
	seen := make(map[string]Field, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema field with empty name")
		}
		switch f.Kind {
		case KindNumber, KindBoolean, KindString:
		default:
			return fmt.Errorf("schema field %q: unknown kind %q", f.Name, f.Kind)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema field %q declared twice", f.Name)
		}
		if f.Name == models.FieldID || f.Name == models.FieldTimestamp {
			return fmt.Errorf("schema field %q is assigned by the server", f.Name)
		}
		seen[f.Name] = f
	}

	for _, core := range []string{models.FieldTemperature, models.FieldHumidity, models.FieldSound} {
		f, ok := seen[core]
		if !ok || f.Kind != KindNumber || !f.Required {
			return fmt.Errorf("schema must declare %q as a required number", core)
		}
	}
	return nil
}
