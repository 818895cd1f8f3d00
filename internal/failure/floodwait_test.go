package failure

import (
	"testing"
	"time"
)

func TestParseFloodWait(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want time.Duration
	}{
		{"retry after", "Too Many Requests: retry after 14", 14 * time.Second},
		{"flood wait tag", "FLOOD_WAIT_30", 30 * time.Second},
		{"wait sentence", "A wait of 120 seconds is required", 120 * time.Second},
		{"single second", "wait 1 second", time.Second},
		{"no hint", "Too Many Requests", DefaultFloodWait},
		{"zero seconds", "retry after 0", DefaultFloodWait},
		{"empty", "", DefaultFloodWait},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseFloodWait(tc.in); got != tc.want {
				t.Fatalf("ParseFloodWait(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
