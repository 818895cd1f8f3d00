package campaign

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		kind    ScheduleKind
		every   time.Duration
		wantErr bool
	}{
		{name: "cron five fields", in: "*/30 * * * *", kind: ScheduleCron},
		{name: "cron descriptor", in: "@daily", kind: ScheduleCron},
		{name: "cron every", in: "@every 2h", kind: ScheduleCron},
		{name: "forced cron", in: "cron:0 9 * * 1", kind: ScheduleCron},
		{name: "duration", in: "90m", kind: ScheduleInterval, every: 90 * time.Minute},
		{name: "hhmm", in: "02:30", kind: ScheduleInterval, every: 2*time.Hour + 30*time.Minute},
		{name: "forced interval", in: "every:45m", kind: ScheduleInterval, every: 45 * time.Minute},
		{name: "empty", in: "", wantErr: true},
		{name: "garbage", in: "soonish", wantErr: true},
		{name: "bad cron", in: "61 * * * *", wantErr: true},
		{name: "bad minutes", in: "01:75", wantErr: true},
		{name: "zero duration", in: "0s", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseSchedule(%q) succeeded, want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", got.Kind, tc.kind)
			}
			if tc.kind == ScheduleInterval && got.Every != tc.every {
				t.Fatalf("every = %v, want %v", got.Every, tc.every)
			}
		})
	}
}

func TestScheduleNext(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC)

	iv, err := ParseSchedule("90m")
	if err != nil {
		t.Fatal(err)
	}
	if got := iv.Next(base); !got.Equal(base.Add(90 * time.Minute)) {
		t.Fatalf("interval next = %v", got)
	}

	cr, err := ParseSchedule("0 12 * * *")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := cr.Next(base); !got.Equal(want) {
		t.Fatalf("cron next = %v, want %v", got, want)
	}
}
