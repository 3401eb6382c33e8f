// Package featureflags exposes on/off switches read from FLAG_<NAME> env vars.
package featureflags

import (
	"os"
	"strings"
)

// Known flags
const (
	// OfflineGeocoder skips reverse geocoding and shows raw coordinates
	OfflineGeocoder = "offline_geocoder"
	// PollOnly disables the push channel when following a partner
	PollOnly = "poll_only"
)

// lookup is swapped in tests
var lookup = os.Getenv

// Enabled reports whether flag name is on.
// Values true/1/yes/on (any case) switch it on; anything else leaves it off.
func Enabled(name string) bool {
	return parse(lookup(envKey(name)))
}

// Active lists the known flags that are currently on
func Active() []string {
	var on []string
	for _, name := range []string{OfflineGeocoder, PollOnly} {
		if Enabled(name) {
			on = append(on, name)
		}
	}
	return on
}

func envKey(name string) string {
	return "FLAG_" + strings.ToUpper(name)
}

func parse(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
