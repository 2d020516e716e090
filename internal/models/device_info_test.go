// internal/models/device_info_test.go
package models

import (
	"testing"
	"time"
)

func TestNewDeviceInfo(t *testing.T) {
	info := NewDeviceInfo("sensor-01", "Living Room", "DHT11", "v1.0.0")

	if info == nil {
		t.Fatal("NewDeviceInfo returned nil")
	}
	if info.ID != "sensor-01" {
		t.Errorf("ID = %v, want sensor-01", info.ID)
	}
	if info.StartTime.IsZero() {
		t.Error("StartTime should be set")
	}
}

func TestDeviceInfo_Uptime(t *testing.T) {
	info := &DeviceInfo{StartTime: time.Now().Add(-time.Minute)}
	if info.Uptime() < time.Minute {
		t.Errorf("Uptime = %v, want >= 1m", info.Uptime())
	}
}
