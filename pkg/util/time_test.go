package util

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in       time.Duration
		expected string
	}{
		{0, "00:00:00.000"},
		{1500 * time.Millisecond, "00:00:01.500"},
		{90*time.Second + 500*time.Millisecond, "00:01:30.500"},
		{3661*time.Second + 250*time.Millisecond, "01:01:01.250"},
	}

	for _, tc := range cases {
		got := FormatDuration(tc.in)
		if got != tc.expected {
			t.Errorf("FormatDuration(%v) = %q, expected %q", tc.in, got, tc.expected)
		}
	}
}

func TestSecondsToDuration(t *testing.T) {
	if d := SecondsToDuration(1.5); d != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", d)
	}
	if d := SecondsToDuration(0); d != 0 {
		t.Errorf("expected 0, got %v", d)
	}
}

func TestParseFrameRate(t *testing.T) {
	cases := []struct {
		in       string
		expected float64
	}{
		{"30/1", 30},
		{"25/1", 25},
		{"0/0", 0},
		{"garbage", 0},
		{"30", 0},
	}

	for _, tc := range cases {
		got := ParseFrameRate(tc.in)
		if got != tc.expected {
			t.Errorf("ParseFrameRate(%q) = %v, expected %v", tc.in, got, tc.expected)
		}
	}

	ntsc := ParseFrameRate("30000/1001")
	if ntsc < 29.96 || ntsc > 29.98 {
		t.Errorf("ParseFrameRate(30000/1001) = %v, expected ~29.97", ntsc)
	}
}
