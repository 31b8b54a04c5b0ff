// Package holidays supplies holiday calendars to the forecasting engine.
// Calendars are looked up by country identifier; callers may register their
// own implementations alongside the built-in ones.
package holidays

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Holiday is a named calendar date. Date carries only the calendar day;
// effects apply to every observation on that day.
type Holiday struct {
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

// Calendar resolves holiday dates for one country or region.
type Calendar interface {
	// Country returns the identifier the calendar registers under.
	Country() string
	// HolidaysBetween returns all holidays dated within [start, end],
	// sorted ascending by date.
	HolidaysBetween(start, end time.Time) []Holiday
}

var (
	mu        sync.RWMutex
	calendars = make(map[string]Calendar)
)

// Register makes a calendar available under its country identifier,
// replacing any previous registration.
func Register(cal Calendar) {
	mu.Lock()
	defer mu.Unlock()
	calendars[cal.Country()] = cal
}

// Lookup returns the calendar registered for the given country identifier.
func Lookup(country string) (Calendar, bool) {
	mu.RLock()
	defer mu.RUnlock()
	cal, ok := calendars[country]
	return cal, ok
}

// Countries returns the registered country identifiers, sorted.
func Countries() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(calendars))
	for country := range calendars {
		out = append(out, country)
	}
	sort.Strings(out)
	return out
}

// DateKey normalizes a timestamp to its calendar date, the granularity at
// which holiday effects match observations.
func DateKey(t time.Time) string {
	year, month, day := t.Date()
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
}

// DateIndex maps calendar dates within [start, end] to the holiday names
// falling on them.
func DateIndex(cal Calendar, start, end time.Time) map[string][]string {
	index := make(map[string][]string)
	for _, h := range cal.HolidaysBetween(start, end) {
		key := DateKey(h.Date)
		index[key] = append(index[key], h.Name)
	}
	return index
}
