package model

import (
	"errors"
	"testing"
	"time"
)

func TestRecurrenceEncodingRoundTrip(t *testing.T) {
	rules := []Recurrence{
		Weekly{Day: time.Saturday},
		Biweekly{Day: time.Monday},
		MonthlyByDay{Day: 31},
		MonthlyByWeekday{Ordinal: OrdinalLast, Day: time.Friday},
		MonthlyByWeekday{Ordinal: OrdinalSecond, Day: time.Sunday},
	}
	for _, r := range rules {
		s := FormatRecurrence(r)
		got, err := ParseRecurrence(s)
		if err != nil {
			t.Fatalf("ParseRecurrence(%q): %v", s, err)
		}
		if got != r {
			t.Fatalf("round trip %q: got %#v, want %#v", s, got, r)
		}
	}
}

func TestParseRecurrenceEmptyIsNil(t *testing.T) {
	r, err := ParseRecurrence("")
	if err != nil || r != nil {
		t.Fatalf("ParseRecurrence(\"\") = %v, %v; want nil, nil", r, err)
	}
	if FormatRecurrence(nil) != "" {
		t.Fatal("FormatRecurrence(nil) should be empty")
	}
}

func TestParseRecurrenceMalformed(t *testing.T) {
	for _, s := range []string{
		"daily",
		"weekly",
		"weekly:funday",
		"monthly-day:0",
		"monthly-day:32",
		"monthly-weekday:fifth:mon",
		"monthly-weekday:first",
	} {
		if _, err := ParseRecurrence(s); !errors.Is(err, ErrBadRecurrence) {
			t.Errorf("ParseRecurrence(%q) err = %v, want ErrBadRecurrence", s, err)
		}
	}
}

func TestDateHelpers(t *testing.T) {
	d := Date{Year: 2025, Month: time.December, Day: 31}
	if got := d.AddDays(1); got != (Date{2026, time.January, 1}) {
		t.Fatalf("AddDays(1) = %v", got)
	}
	if d.Weekday() != time.Wednesday {
		t.Fatalf("2025-12-31 weekday = %v", d.Weekday())
	}
	if (Date{2025, time.February, 29}).Valid() {
		t.Fatal("2025-02-29 should be invalid")
	}
	if !(Date{2024, time.February, 29}).Valid() {
		t.Fatal("2024-02-29 should be valid")
	}
	if DaysIn(2025, time.April) != 30 {
		t.Fatal("April has 30 days")
	}
}

func TestDateAtUsesLocation(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	at := Date{2025, time.September, 13}.At(TimeOfDay{7, 0}, loc)
	if got := at.UTC().Format(time.RFC3339); got != "2025-09-12T22:00:00Z" {
		t.Fatalf("At = %s", got)
	}
	if DateOf(at, time.UTC) != (Date{2025, time.September, 12}) {
		t.Fatal("DateOf should respect the requested location")
	}
}

func TestInstanceKeyIsUTC(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	start := time.Date(2025, 9, 13, 7, 0, 0, 0, loc)
	occ := NewOccurrence(Task{ID: "t1", Title: "Gym"}, start)
	if occ.InstanceKey != "t1@2025-09-12T22:00:00Z" {
		t.Fatalf("InstanceKey = %q", occ.InstanceKey)
	}
}

func TestParseClock(t *testing.T) {
	tod, err := ParseClock("05:30")
	if err != nil || tod != (TimeOfDay{5, 30}) {
		t.Fatalf("ParseClock = %v, %v", tod, err)
	}
	if _, err := ParseClock("24:00"); err == nil {
		t.Fatal("24:00 should be rejected")
	}
}
