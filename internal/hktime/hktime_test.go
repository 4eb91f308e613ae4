package hktime

import (
	"testing"
	"time"
)

func TestDisplayTime(t *testing.T) {
	// 2026-08-31 02:30:05 UTC is 10:30:05 in Hong Kong
	utc := time.Date(2026, 8, 31, 2, 30, 5, 0, time.UTC)
	if got := DisplayTime(utc); got != "2026/08/31 10:30:05" {
		t.Errorf("DisplayTime = %q", got)
	}
}

func TestIsTradingHours(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday mid-session", time.Date(2026, 8, 31, 11, 0, 0, 0, HKT), true},
		{"monday at open", time.Date(2026, 8, 31, 9, 30, 0, 0, HKT), true},
		{"monday before open", time.Date(2026, 8, 31, 9, 29, 0, 0, HKT), false},
		{"monday at close", time.Date(2026, 8, 31, 16, 0, 0, 0, HKT), false},
		{"saturday", time.Date(2026, 9, 5, 11, 0, 0, 0, HKT), false},
		{"sunday", time.Date(2026, 9, 6, 11, 0, 0, 0, HKT), false},
		{"friday evening", time.Date(2026, 9, 4, 19, 0, 0, 0, HKT), false},
	}
	for _, c := range cases {
		if got := IsTradingHours(c.t); got != c.want {
			t.Errorf("%s: IsTradingHours = %v, want %v", c.name, got, c.want)
		}
	}
}
