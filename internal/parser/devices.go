// Package parser turns raw debug bridge output into records.
//
// Every function here is pure. Rows that do not have the expected shape are
// dropped silently since bridge tools mix banners and daemon noise into
// their output.
package parser

import (
	"strings"

	"go.olrik.dev/devhub/internal/device"
)

// DeviceRecord is one row of a device listing
type DeviceRecord struct {
	Serial      string
	Status      string
	Transport   string // "usb", "tcp" or the connection type hdc reports
	Product     string
	Model       string
	Device      string // Device code name
	TransportID string
}

// ParseADBDevices parses `adb devices -l`:
//
//	List of devices attached
//	emulator-5554          device product:sdk_gphone64 model:Pixel_7 device:emu64a transport_id:1
func ParseADBDevices(output string) []DeviceRecord {
	var records []DeviceRecord
	for _, line := range lines(output) {
		if strings.HasPrefix(line, "List of devices") ||
			strings.HasPrefix(line, "*") ||
			strings.Contains(line, "daemon") ||
			strings.Contains(line, "adb server") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		r := DeviceRecord{Serial: fields[0]}
		rest := fields[1:]
		if !strings.Contains(rest[0], ":") {
			r.Status = rest[0]
			rest = rest[1:]
		}
		// "no permissions (user in plugdev group...)" spans several tokens
		for len(rest) > 0 && !strings.Contains(rest[0], ":") {
			rest = rest[1:]
		}
		if r.Status == "" {
			continue
		}
		for _, tok := range rest {
			key, val, ok := strings.Cut(tok, ":")
			if !ok {
				continue
			}
			switch key {
			case "usb":
				r.Transport = "usb"
			case "product":
				r.Product = val
			case "model":
				r.Model = val
			case "device":
				r.Device = val
			case "transport_id":
				r.TransportID = val
			}
		}
		if r.Transport == "" {
			if strings.Contains(r.Serial, ":") {
				r.Transport = "tcp"
			} else if !strings.HasPrefix(r.Serial, "emulator-") {
				r.Transport = "usb"
			}
		}
		records = append(records, r)
	}
	return records
}

// ParseHDCTargets parses `hdc list targets -v`:
//
//	127.0.0.1:5555    TCP    Connected    localhost    hdc
//
// The tool prints "[Empty]" when no target is attached.
func ParseHDCTargets(output string) []DeviceRecord {
	var records []DeviceRecord
	for _, line := range lines(output) {
		if strings.HasPrefix(line, "[Empty]") || strings.HasPrefix(line, "[Fail]") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		records = append(records, DeviceRecord{
			Serial:    fields[0],
			Transport: strings.ToLower(fields[1]),
			Status:    fields[2],
		})
	}
	return records
}

// ParseProperty extracts a single `getprop` or `param get` value.
// Failure markers and empty output yield "".
func ParseProperty(output string) string {
	for _, line := range lines(output) {
		if strings.HasPrefix(line, "[Fail]") || strings.HasPrefix(line, "error:") {
			return ""
		}
		return line
	}
	return ""
}

// ParseGetprop parses the full `getprop` listing of "[key]: [value]" lines
func ParseGetprop(output string) map[string]string {
	props := make(map[string]string)
	for _, line := range lines(output) {
		key, val, ok := strings.Cut(line, "]: [")
		if !ok || !strings.HasPrefix(key, "[") || !strings.HasSuffix(val, "]") {
			continue
		}
		props[key[1:]] = val[:len(val)-1]
	}
	return props
}

// ADBConnectSucceeded classifies the output of `adb connect`
func ADBConnectSucceeded(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range []string{"failed", "cannot", "unable", "refused", "error"} {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return strings.Contains(lower, "connected to")
}

// HDCConnectSucceeded classifies the output of `hdc tconn`
func HDCConnectSucceeded(output string) bool {
	if strings.Contains(output, "[Fail]") {
		return false
	}
	return strings.Contains(output, "Connect OK") || strings.Contains(output, "is connected")
}

// ConnectSucceeded classifies connect command output for platform
func ConnectSucceeded(platform device.Platform, output string) bool {
	if platform == device.OpenHarmony {
		return HDCConnectSucceeded(output)
	}
	return ADBConnectSucceeded(output)
}

// lines splits output into trimmed, non-empty lines
func lines(output string) []string {
	var out []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
