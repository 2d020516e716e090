package models

import "time"

// DeviceInfo contains metadata about a sensor agent
type DeviceInfo struct {
	ID         string    `json:"id"`
	Location   string    `json:"location"`
	SensorType string    `json:"sensor_type"`
	Version    string    `json:"version"`
	StartTime  time.Time `json:"start_time"`
}

// Uptime returns the duration since the agent started
func (d *DeviceInfo) Uptime() time.Duration {
	return time.Since(d.StartTime)
}

// NewDeviceInfo creates a new DeviceInfo with the current time as start time
func NewDeviceInfo(id, location, sensorType, version string) *DeviceInfo {
	return &DeviceInfo{
		ID:         id,
		Location:   location,
		SensorType: sensorType,
		Version:    version,
		StartTime:  time.Now(),
	}
}
