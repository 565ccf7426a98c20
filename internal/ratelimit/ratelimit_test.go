package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestDetect(t *testing.T) {
	d, err := NewDetector()
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{
			"real rate limit message",
			"You've hit your limit · resets 5am (America/Asuncion)",
			true,
		},
		{
			"rate limit with pm reset",
			"You've hit your limit · resets 12pm (UTC)",
			true,
		},
		{
			"prose mentioning limit",
			"approaching your usage limit",
			false,
		},
		{
			"limit without reset clause",
			"You've hit your limit, try again later",
			false,
		},
		{
			"unrelated output",
			"All tests passed, no limit issues",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Detect(tt.text); got != tt.want {
				t.Errorf("Detect(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectCustomPatterns(t *testing.T) {
	d, err := NewDetector(`(?i)usage cap reached`)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	if !d.Detect("ERROR: Usage cap reached for this billing period") {
		t.Error("custom pattern should match")
	}
	if d.Detect("You've hit your limit · resets 5am (America/Asuncion)") {
		t.Error("default pattern should not apply when custom patterns given")
	}
}

func TestNewDetectorBadPattern(t *testing.T) {
	if _, err := NewDetector(`(unclosed`); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestParseReset(t *testing.T) {
	asuncion, err := time.LoadLocation("America/Asuncion")
	if err != nil {
		t.Skipf("zone database unavailable: %v", err)
	}

	// 02:00 in Asuncion: a 5am reset is still ahead today.
	now := time.Date(2025, 6, 10, 2, 0, 0, 0, asuncion)
	reset, ok := ParseReset("You've hit your limit · resets 5am (America/Asuncion)", now)
	if !ok {
		t.Fatal("expected a parsed reset time")
	}
	want := time.Date(2025, 6, 10, 5, 0, 0, 0, asuncion)
	if !reset.Equal(want) {
		t.Errorf("reset = %v, want %v", reset, want)
	}

	// 09:00 in Asuncion: 5am has passed, so the reset rolls to tomorrow.
	now = time.Date(2025, 6, 10, 9, 0, 0, 0, asuncion)
	reset, ok = ParseReset("resets 5am (America/Asuncion)", now)
	if !ok {
		t.Fatal("expected a parsed reset time")
	}
	want = time.Date(2025, 6, 11, 5, 0, 0, 0, asuncion)
	if !reset.Equal(want) {
		t.Errorf("reset = %v, want %v", reset, want)
	}
}

func TestParseResetHourConversion(t *testing.T) {
	now := time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC)

	tests := []struct {
		text     string
		wantHour int
	}{
		{"resets 12am (UTC)", 0},
		{"resets 12pm (UTC)", 12},
		{"resets 1pm (UTC)", 13},
		{"resets 11am (UTC)", 11},
	}
	for _, tt := range tests {
		reset, ok := ParseReset(tt.text, now)
		if !ok {
			t.Errorf("ParseReset(%q) not ok", tt.text)
			continue
		}
		if reset.Hour() != tt.wantHour {
			t.Errorf("ParseReset(%q) hour = %d, want %d", tt.text, reset.Hour(), tt.wantHour)
		}
	}
}

func TestParseResetFailures(t *testing.T) {
	now := time.Now()

	if _, ok := ParseReset("no reset clause here", now); ok {
		t.Error("expected failure without a reset clause")
	}
	if _, ok := ParseReset("resets 5am (Mars/Olympus)", now); ok {
		t.Error("expected failure for unknown zone")
	}
}

func TestWaitAlreadyPast(t *testing.T) {
	if err := Wait(context.Background(), time.Now().Add(-time.Minute), nil); err != nil {
		t.Errorf("Wait on past reset = %v, want nil", err)
	}
}

func TestWaitCancellable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Wait(ctx, time.Now().Add(time.Hour), nil)
	if err != context.Canceled {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}
