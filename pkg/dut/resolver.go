package dut

import (
	"regexp"
	"slices"
	"strings"
)

// invalidPortPattern matches enumerated ports that are never a device
// console: /dev/ttyAMA0 on a Raspberry Pi host, the Bluetooth virtual
// ports on macOS.
var invalidPortPattern = regexp.MustCompile(`AMA|Bluetooth`)

// ResolvePorts orders enumerated serial ports by how likely they are to
// host the target device. It is a pure function; platform is the host
// GOOS of the caller.
//
// Without a hint, ports matching the invalid-port pattern are dropped
// and the rest keep their enumeration order. With a hint the filter is
// skipped entirely: the user named a port, so it is trusted. A hint that
// matches an enumerated port exactly is promoted to the front. On macOS
// a "tty."-prefixed hint that misses is retried once as the "cu." device
// node, since the enumerator lists only the latter. If no rule matches,
// the list is returned unchanged.
func ResolvePorts(ports []string, hint, platform string) []string {
	if hint == "" {
		filtered := make([]string, 0, len(ports))
		for _, p := range ports {
			if !invalidPortPattern.MatchString(p) {
				filtered = append(filtered, p)
			}
		}
		return filtered
	}

	if promoted, ok := promote(ports, hint); ok {
		return promoted
	}
	if platform == "darwin" && strings.Contains(hint, "tty.") {
		alias := strings.Replace(hint, "tty.", "cu.", 1)
		if promoted, ok := promote(ports, alias); ok {
			return promoted
		}
	}
	return slices.Clone(ports)
}

// promote moves target to the front, preserving the relative order of
// the remaining ports. ok is false when target is not in the list.
func promote(ports []string, target string) ([]string, bool) {
	idx := slices.Index(ports, target)
	if idx < 0 {
		return nil, false
	}
	out := make([]string, 0, len(ports))
	out = append(out, target)
	out = append(out, ports[:idx]...)
	out = append(out, ports[idx+1:]...)
	return out, true
}
