package featureflags

import "testing"

func TestEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{" yes ", true},
		{"on", true},
		{"", false},
		{"0", false},
		{"off", false},
		{"enabled", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("FLAG_OFFLINE_GEOCODER", tt.value)
			if got := Enabled(OfflineGeocoder); got != tt.want {
				t.Errorf("Enabled(%q) with %q = %v, want %v", OfflineGeocoder, tt.value, got, tt.want)
			}
		})
	}
}

func TestActive(t *testing.T) {
	original := lookup
	defer func() { lookup = original }()

	env := map[string]string{"FLAG_POLL_ONLY": "yes", "FLAG_UNKNOWN": "true"}
	lookup = func(key string) string { return env[key] }

	got := Active()
	if len(got) != 1 || got[0] != PollOnly {
		t.Fatalf("expected only %s active, got %v", PollOnly, got)
	}
}
