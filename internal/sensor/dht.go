package sensor

import (
	"errors"
	"fmt"

	"github.com/afroash/dht"
)

// DHTSensor is a temperature and humidity probe
type DHTSensor interface {
	// Read returns temperature (°C) and relative humidity (%)
	Read() (temperature float64, humidity float64, err error)

	// Close releases the GPIO line
	Close() error
}

// ErrOutOfRange marks a decoded value the DHT11 cannot physically report.
// It almost always means a corrupted transfer that still passed the checksum.
var ErrOutOfRange = errors.New("reading out of sensor range")

// DHT11 operating limits, widened slightly for sanity checking
const (
	minTemperature = -20.0
	maxTemperature = 60.0
	minHumidity    = 0.0
	maxHumidity    = 100.0
)

const defaultRetries = 3

// DHT11Reader reads a DHT11 on a GPIO pin
type DHT11Reader struct {
	pin     int
	retries int
	sensor  *dht.Sensor
}

// NewDHT11Reader opens the DHT11 on the given GPIO pin
func NewDHT11Reader(pin int) (*DHT11Reader, error) {
	sensor, err := dht.NewDHT11(pin)
	if err != nil {
		return nil, fmt.Errorf("failed to open DHT11 on pin %d: %w", pin, err)
	}
	return &DHT11Reader{pin: pin, retries: defaultRetries, sensor: sensor}, nil
}

// Read samples the sensor, retrying failed transfers
func (d *DHT11Reader) Read() (float64, float64, error) {
	r, err := d.sensor.ReadRetry(d.retries)
	if err != nil {
		return 0, 0, fmt.Errorf("pin %d: failed after %d retries: %w", d.pin, d.retries, err)
	}
	if err := checkRange(r.Temperature, r.Humidity); err != nil {
		return 0, 0, fmt.Errorf("pin %d: %w", d.pin, err)
	}
	return r.Temperature, r.Humidity, nil
}

// Close releases the GPIO line
func (d *DHT11Reader) Close() error {
	return d.sensor.Close()
}

func checkRange(temperature, humidity float64) error {
	if temperature < minTemperature || temperature > maxTemperature {
		return fmt.Errorf("%w: temperature %.1f°C outside [%.0f, %.0f]", ErrOutOfRange, temperature, minTemperature, maxTemperature)
	}
	if humidity < minHumidity || humidity > maxHumidity {
		return fmt.Errorf("%w: humidity %.1f%% outside [%.0f, %.0f]", ErrOutOfRange, humidity, minHumidity, maxHumidity)
	}
	return nil
}
