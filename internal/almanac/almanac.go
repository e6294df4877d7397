package almanac

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"
)

// NotAvailable replaces a missing set time.
const NotAvailable = "N/A"

// Placeholder is the upstream marker for "no event on this day".
const Placeholder = "-"

// Record is a rise/set time pair for one calendar day
type Record struct {
	Rise string `json:"rise"`
	Set  string `json:"set"`
}

// Calendar holds records keyed by month name, then by day of month
type Calendar map[string]map[string]Record

// NewCalendar creates a calendar with an empty entry for each month
func NewCalendar(months ...string) Calendar {
	c := make(Calendar, len(months))
	for _, m := range months {
		c[m] = make(map[string]Record)
	}
	return c
}

// NewRecord builds a record from raw rise/set text.
// Returns false when the rise time is empty or the placeholder, in which case the
// day must not be stored.
func NewRecord(rise, set string) (Record, bool) {
	rise = strings.TrimSpace(rise)
	set = strings.TrimSpace(set)
	if rise == "" || rise == Placeholder {
		return Record{}, false
	}
	if set == Placeholder {
		set = NotAvailable
	}
	return Record{Rise: rise, Set: set}, true
}

// Add stores a record for the given month and day. The month is created if needed.
func (c Calendar) Add(month string, day int, rec Record) {
	days, ok := c[month]
	if !ok {
		days = make(map[string]Record)
		c[month] = days
	}
	days[DayKey(day)] = rec
}

// Get returns the record for a month and day
func (c Calendar) Get(month string, day int) (Record, bool) {
	rec, ok := c[month][DayKey(day)]
	return rec, ok
}

// Len returns the total number of day records across all months
func (c Calendar) Len() int {
	n := 0
	for _, days := range c {
		n += len(days)
	}
	return n
}

// DayKey formats a day of month the way calendars key it: no zero padding
func DayKey(day int) string {
	return strconv.Itoa(day)
}

// MonthKey returns the calendar key for a month, e.g. "january"
func MonthKey(m time.Month) string {
	return strings.ToLower(m.String())
}

// MonthToken extracts a month key from a free-text header such as "January 2026".
// It takes the first whitespace-delimited token, lower-cased. Returns "" for blank text.
func MonthToken(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// FormatClock formats a time as HH:MM, the format used by the upstream tables
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}

// Envelope is the error object written to standard error
type Envelope struct {
	Error string `json:"error"`
}

// Phase names a principal lunar phase
type Phase string

const (
	PhaseNew          Phase = "new"
	PhaseFirstQuarter Phase = "first_quarter"
	PhaseFull         Phase = "full"
	PhaseLastQuarter  Phase = "last_quarter"
)

// PhaseEvent is one principal lunar phase on a given day
type PhaseEvent struct {
	Phase Phase  `json:"phase"`
	Day   string `json:"day"`
	Time  string `json:"time"`
}

// PhaseCalendar holds phase events keyed by month name, in chronological order
type PhaseCalendar map[string][]PhaseEvent

// WriteJSON writes v as a single compact JSON document followed by a newline
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteError writes an error envelope for message to w
func WriteError(w io.Writer, message string) error {
	return WriteJSON(w, Envelope{Error: message})
}
