package database

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		input   string
		hour    int
		minute  int
		wantErr bool
	}{
		{"09:00", 9, 0, false},
		{"17:30:00", 17, 30, false},
		{"7:5", 0, 0, true},
		{"", 0, 0, true},
		{"25:00", 0, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseClock(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseClock(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if err == nil && (got.Hour() != tc.hour || got.Minute() != tc.minute) {
				t.Errorf("ParseClock(%q) = %02d:%02d, want %02d:%02d", tc.input, got.Hour(), got.Minute(), tc.hour, tc.minute)
			}
		})
	}
}

func TestPersonShiftOn(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	day := time.Date(2026, 3, 14, 11, 22, 0, 0, loc)
	p := Person{ShiftStart: "08:30", ShiftEnd: "16:45"}

	start, ok := p.ShiftStartOn(day)
	if !ok {
		t.Fatal("expected shift start")
	}
	if want := time.Date(2026, 3, 14, 8, 30, 0, 0, loc); !start.Equal(want) {
		t.Errorf("shift start = %v, want %v", start, want)
	}

	end, ok := p.ShiftEndOn(day)
	if !ok {
		t.Fatal("expected shift end")
	}
	if want := time.Date(2026, 3, 14, 16, 45, 0, 0, loc); !end.Equal(want) {
		t.Errorf("shift end = %v, want %v", end, want)
	}
}

func TestPersonShiftOn_Unset(t *testing.T) {
	p := Person{}
	if _, ok := p.ShiftStartOn(time.Now()); ok {
		t.Error("expected no shift start")
	}
	p.ShiftEnd = "garbage"
	if _, ok := p.ShiftEndOn(time.Now()); ok {
		t.Error("expected invalid shift end to be ignored")
	}
}

func TestDateOf(t *testing.T) {
	loc := time.FixedZone("east", 10*60*60)
	// 2026-01-01 20:00 UTC is already 2026-01-02 in UTC+10.
	ts := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC).In(loc)
	if got := DateOf(ts); got != "2026-01-02" {
		t.Errorf("DateOf = %q, want 2026-01-02", got)
	}
}
