// internal/models/reading_test.go
package models

import (
	"encoding/json"
	"testing"
	"time"
)

func testReading() *Reading {
	return &Reading{
		ID:          "0192f0c2-0000-7000-8000-000000000001",
		Timestamp:   time.Date(2025, 3, 1, 12, 0, 0, 123_000_000, time.UTC),
		Temperature: 22.5,
		Humidity:    45.0,
		Sound:       61.2,
		Ext: Extensions{
			Version: 3,
			Fields: map[string]any{
				"soundPeakToPeak": 12.0,
				"wifiConnected":   true,
				"ipAddress":       "10.0.0.12",
			},
		},
	}
}

func TestReading_MarshalJSON_FlattensExtensions(t *testing.T) {
	data, err := json.Marshal(testReading())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if out["timestamp"] != "2025-03-01T12:00:00.123Z" {
		t.Errorf("timestamp = %v, want 2025-03-01T12:00:00.123Z", out["timestamp"])
	}
	if out["temperature"] != 22.5 {
		t.Errorf("temperature = %v, want 22.5", out["temperature"])
	}
	if out["wifiConnected"] != true {
		t.Errorf("wifiConnected = %v, want true", out["wifiConnected"])
	}
	if out["ipAddress"] != "10.0.0.12" {
		t.Errorf("ipAddress = %v, want 10.0.0.12", out["ipAddress"])
	}
	if _, ok := out["Ext"]; ok {
		t.Error("Ext should not appear as a nested key")
	}
}

func TestReading_MarshalJSON_CoreFieldsWin(t *testing.T) {
	r := testReading()
	r.Ext.Fields["temperature"] = "shadowed"

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out map[string]any
	json.Unmarshal(data, &out)
	if out["temperature"] != 22.5 {
		t.Errorf("temperature = %v, want 22.5", out["temperature"])
	}
}

func TestReading_UnmarshalJSON(t *testing.T) {
	original := testReading()
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Reading
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.ID != original.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, original.ID)
	}
	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.Sound != original.Sound {
		t.Errorf("Sound = %v, want %v", decoded.Sound, original.Sound)
	}
	if v, _ := decoded.Ext.Get("soundPeakToPeak"); v != 12.0 {
		t.Errorf("soundPeakToPeak = %v, want 12", v)
	}
	if decoded.Ext.Len() != 3 {
		t.Errorf("Ext.Len() = %d, want 3", decoded.Ext.Len())
	}
}

func TestReading_UnmarshalJSON_BadTimestamp(t *testing.T) {
	var r Reading
	err := json.Unmarshal([]byte(`{"timestamp":"yesterday"}`), &r)
	if err == nil {
		t.Fatal("expected error for unparseable timestamp")
	}
}

func TestReading_Copy(t *testing.T) {
	original := testReading()
	copied := original.Copy()

	copied.Temperature = 99
	copied.Ext.Fields["ipAddress"] = "changed"

	if original.Temperature != 22.5 {
		t.Error("modifying copy changed original temperature")
	}
	if original.Ext.Fields["ipAddress"] != "10.0.0.12" {
		t.Error("modifying copy changed original extension map")
	}
}

func TestReading_Copy_Nil(t *testing.T) {
	var r *Reading
	if r.Copy() != nil {
		t.Error("Copy of nil should be nil")
	}
}

func TestIsCoreField(t *testing.T) {
	for _, name := range []string{"id", "timestamp", "temperature", "humidity", "sound"} {
		if !IsCoreField(name) {
			t.Errorf("IsCoreField(%q) = false, want true", name)
		}
	}
	if IsCoreField("batteryVoltage") {
		t.Error("IsCoreField(batteryVoltage) = true, want false")
	}
}
