package sensor

import (
	"net"
	"testing"
)

func TestIsWireless(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"wlan0", true},
		{"wlp2s0", true},
		{"eth0", false},
		{"enp3s0", false},
		{"lo", false},
	}

	for _, tt := range tests {
		if got := isWireless(tt.name); got != tt.want {
			t.Errorf("isWireless(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNetworkStatus(t *testing.T) {
	fields := NetworkStatus()

	if _, ok := fields[FieldWifiConnected].(bool); !ok {
		t.Fatalf("wifiConnected = %v, want a bool", fields[FieldWifiConnected])
	}
	if ip, ok := fields[FieldIPAddress]; ok {
		s, isString := ip.(string)
		if !isString || net.ParseIP(s).To4() == nil {
			t.Errorf("ipAddress = %v, want an IPv4 string", ip)
		}
	}
}
