package sensor

import (
	"net"
	"strings"
)

// Auxiliary field names reported by NetworkStatus
const (
	FieldIPAddress     = "ipAddress"
	FieldWifiConnected = "wifiConnected"
)

// NetworkStatus reports the device's IPv4 address and whether a wireless
// interface is up. A wireless address wins over a wired one.
func NetworkStatus() map[string]any {
	fields := map[string]any{FieldWifiConnected: false}

	ifaces, err := net.Interfaces()
	if err != nil {
		return fields
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ip := firstIPv4(iface)
		if ip == "" {
			continue
		}
		if isWireless(iface.Name) {
			fields[FieldWifiConnected] = true
			fields[FieldIPAddress] = ip
			continue
		}
		if _, ok := fields[FieldIPAddress]; !ok {
			fields[FieldIPAddress] = ip
		}
	}
	return fields
}

func firstIPv4(iface net.Interface) string {
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok {
			if v4 := ipNet.IP.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return ""
}

// isWireless matches classic (wlan0) and predictable (wlp2s0) interface names
func isWireless(name string) bool {
	return strings.HasPrefix(name, "wlan") || strings.HasPrefix(name, "wlp")
}
