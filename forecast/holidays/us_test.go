package holidays

import (
	"testing"
	"time"
)

func TestUSCalendar_FixedDates(t *testing.T) {
	cal := USCalendar{}
	year := findByName(t, cal, 2024, "Independence Day")

	if year.Month() != time.July || year.Day() != 4 {
		t.Errorf("Independence Day 2024 = %v", year)
	}

	christmas := findByName(t, cal, 2024, "Christmas Day")
	if christmas.Month() != time.December || christmas.Day() != 25 {
		t.Errorf("Christmas Day 2024 = %v", christmas)
	}
}

func TestUSCalendar_FloatingDates(t *testing.T) {
	cal := USCalendar{}

	// 2024: Thanksgiving on Nov 28, Memorial Day on May 27, Labor Day on Sep 2.
	thanksgiving := findByName(t, cal, 2024, "Thanksgiving")
	if thanksgiving.Month() != time.November || thanksgiving.Day() != 28 {
		t.Errorf("Thanksgiving 2024 = %v, want Nov 28", thanksgiving)
	}

	memorial := findByName(t, cal, 2024, "Memorial Day")
	if memorial.Month() != time.May || memorial.Day() != 27 {
		t.Errorf("Memorial Day 2024 = %v, want May 27", memorial)
	}

	labor := findByName(t, cal, 2024, "Labor Day")
	if labor.Month() != time.September || labor.Day() != 2 {
		t.Errorf("Labor Day 2024 = %v, want Sep 2", labor)
	}

	mlk := findByName(t, cal, 2024, "Martin Luther King Jr. Day")
	if mlk.Month() != time.January || mlk.Day() != 15 {
		t.Errorf("MLK Day 2024 = %v, want Jan 15", mlk)
	}
}

func TestUSCalendar_JuneteenthStartsIn2021(t *testing.T) {
	cal := USCalendar{}

	h2020 := cal.HolidaysBetween(
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
	)
	for _, h := range h2020 {
		if h.Name == "Juneteenth National Independence Day" {
			t.Error("Juneteenth should not appear before 2021")
		}
	}

	findByName(t, cal, 2021, "Juneteenth National Independence Day")
}

func TestUSCalendar_RangeFilterAndOrder(t *testing.T) {
	cal := USCalendar{}
	start := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	hs := cal.HolidaysBetween(start, end)
	if len(hs) == 0 {
		t.Fatal("Expected holidays in Nov 2023 - Jan 2024")
	}
	for i, h := range hs {
		if h.Date.Before(start) || h.Date.After(end) {
			t.Errorf("Holiday %s dated %v outside range", h.Name, h.Date)
		}
		if i > 0 && h.Date.Before(hs[i-1].Date) {
			t.Error("Holidays should be sorted ascending")
		}
	}

	// Veterans Day 2023, Thanksgiving 2023, Christmas 2023, New Year + MLK 2024.
	if len(hs) != 5 {
		t.Errorf("Expected 5 holidays in range, got %d: %v", len(hs), hs)
	}
}

func TestRegistryLookup(t *testing.T) {
	cal, ok := Lookup("US")
	if !ok {
		t.Fatal("US calendar should self-register")
	}
	if cal.Country() != "US" {
		t.Errorf("Country = %q", cal.Country())
	}

	if _, ok := Lookup("ZZ"); ok {
		t.Error("Unknown identifier should not resolve")
	}
}

func TestDateIndex(t *testing.T) {
	cal := USCalendar{}
	index := DateIndex(cal,
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC),
	)

	names := index["2024-07-04"]
	if len(names) != 1 || names[0] != "Independence Day" {
		t.Errorf("index[2024-07-04] = %v", names)
	}
	if len(index) != 1 {
		t.Errorf("Expected exactly one holiday date in July, got %v", index)
	}
}

func TestDateKeyIgnoresClockTime(t *testing.T) {
	morning := time.Date(2024, 7, 4, 9, 30, 0, 0, time.UTC)
	if DateKey(morning) != "2024-07-04" {
		t.Errorf("DateKey = %q", DateKey(morning))
	}
}

// Helper functions for testing

func findByName(t *testing.T, cal Calendar, year int, name string) time.Time {
	t.Helper()
	hs := cal.HolidaysBetween(
		time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
	)
	for _, h := range hs {
		if h.Name == name {
			return h.Date
		}
	}
	t.Fatalf("%s not found in %d", name, year)
	return time.Time{}
}
