package holidays

import (
	"sort"
	"time"
)

// USCalendar computes United States federal holidays. Dates are the actual
// holiday dates; no observed-day shifting is applied when a holiday lands on
// a weekend.
type USCalendar struct{}

func init() {
	Register(USCalendar{})
}

// Country returns "US".
func (USCalendar) Country() string { return "US" }

// HolidaysBetween returns all US federal holidays dated within [start, end].
func (USCalendar) HolidaysBetween(start, end time.Time) []Holiday {
	var out []Holiday
	for year := start.Year(); year <= end.Year(); year++ {
		for _, h := range usHolidaysForYear(year) {
			if h.Date.Before(start) || h.Date.After(end) {
				continue
			}
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func usHolidaysForYear(year int) []Holiday {
	holidays := []Holiday{
		{Name: "New Year's Day", Date: date(year, time.January, 1)},
		{Name: "Martin Luther King Jr. Day", Date: nthWeekday(year, time.January, time.Monday, 3)},
		{Name: "Washington's Birthday", Date: nthWeekday(year, time.February, time.Monday, 3)},
		{Name: "Memorial Day", Date: lastWeekday(year, time.May, time.Monday)},
		{Name: "Independence Day", Date: date(year, time.July, 4)},
		{Name: "Labor Day", Date: nthWeekday(year, time.September, time.Monday, 1)},
		{Name: "Columbus Day", Date: nthWeekday(year, time.October, time.Monday, 2)},
		{Name: "Veterans Day", Date: date(year, time.November, 11)},
		{Name: "Thanksgiving", Date: nthWeekday(year, time.November, time.Thursday, 4)},
		{Name: "Christmas Day", Date: date(year, time.December, 25)},
	}
	// Juneteenth became a federal holiday in 2021.
	if year >= 2021 {
		holidays = append(holidays, Holiday{
			Name: "Juneteenth National Independence Day",
			Date: date(year, time.June, 19),
		})
	}
	return holidays
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// nthWeekday returns the n-th occurrence of the weekday in the month.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := date(year, month, 1)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekday returns the final occurrence of the weekday in the month.
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	last := date(year, month+1, 1).AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}
