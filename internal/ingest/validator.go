package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/afroash/envdash/internal/models"
)

// ErrInvalidPayload is the kind of every validation failure
var ErrInvalidPayload = errors.New("invalid payload")

// ValidationError describes why a payload was rejected and echoes it back
type ValidationError struct {
	Problems []string
	Payload  json.RawMessage
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidPayload, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

// Validator admits payloads that exactly match a Schema. It never coerces.
type Validator struct {
	schema Schema
	fields map[string]Field
}

// NewValidator creates a validator for the given schema
func NewValidator(schema Schema) (*Validator, error) {
	if err := schema.Check(); err != nil {
		return nil, err
	}
	fields := make(map[string]Field, len(schema.Fields))
	for _, f := range schema.Fields {
		fields[f.Name] = f
	}
	return &Validator{schema: schema, fields: fields}, nil
}

// Schema returns the declared schema
func (v *Validator) Schema() Schema {
	return v.schema
}

// Validate decodes payload and checks it against the schema. On success it
// returns an unstored reading; ID and Timestamp are left for the store.
func (v *Validator) Validate(payload []byte) (*models.Reading, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, v.reject(payload, err.Error())
	}

	var problems []string
	for _, f := range v.schema.Fields {
		if _, ok := obj[f.Name]; !ok && f.Required {
			problems = append(problems, fmt.Sprintf("missing required field %q", f.Name))
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	reading := &models.Reading{Ext: models.Extensions{Version: v.schema.Version}}
	for _, k := range keys {
		f, ok := v.fields[k]
		if !ok {
			problems = append(problems, fmt.Sprintf("unexpected field %q", k))
			continue
		}
		val, err := checkKind(f, obj[k])
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		switch k {
		case models.FieldTemperature:
			reading.Temperature = val.(float64)
		case models.FieldHumidity:
			reading.Humidity = val.(float64)
		case models.FieldSound:
			reading.Sound = val.(float64)
		default:
			if reading.Ext.Fields == nil {
				reading.Ext.Fields = make(map[string]any)
			}
			reading.Ext.Fields[k] = val
		}
	}

	if len(problems) > 0 {
		return nil, v.reject(payload, problems...)
	}
	return reading, nil
}

func (v *Validator) reject(payload []byte, problems ...string) error {
	echo := json.RawMessage(nil)
	if json.Valid(payload) {
		echo = append(json.RawMessage(nil), payload...)
	}
	return &ValidationError{Problems: problems, Payload: echo}
}

// decodeObject parses exactly one JSON object, keeping numbers as json.Number
func decodeObject(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("malformed JSON: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	return obj, nil
}

// checkKind returns the field value converted to its Go type
func checkKind(f Field, raw any) (any, error) {
	switch f.Kind {
	case KindNumber:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("field %q must be a number, got %s", f.Name, jsonType(raw))
		}
		val, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("field %q is out of range", f.Name)
		}
		return val, nil
	case KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("field %q must be a boolean, got %s", f.Name, jsonType(raw))
		}
		return b, nil
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field %q must be a string, got %s", f.Name, jsonType(raw))
		}
		return s, nil
	}
	return nil, fmt.Errorf("field %q has unknown kind %q", f.Name, f.Kind)
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
