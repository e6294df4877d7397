package astro

import (
	"context"
	"sort"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/pfrederiksen/meteomu/internal/almanac"
	"github.com/pfrederiksen/meteomu/internal/logger"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/moonphase"
)

// deltaT is TT minus UT for the 2020s. Phase instants from meeus are in TT.
const deltaT = 69 * time.Second

// Location is a fixed observing site
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
	Zone      *time.Location
}

// PortLouis is the reference site for Meteo Mauritius tables (UTC+4, no DST)
var PortLouis = Location{
	Name:      "Port Louis",
	Latitude:  -20.1609,
	Longitude: 57.5012,
	Zone:      time.FixedZone("MUT", 4*60*60),
}

// Provider computes sun and moon data for a fixed location
type Provider struct {
	loc Location
	now func() time.Time
}

// Option configures a Provider
type Option func(*Provider)

// WithLocation overrides the observing site
func WithLocation(loc Location) Option {
	return func(p *Provider) {
		p.loc = loc
	}
}

// WithClock sets the function used to read the current time
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// New creates a Provider for Port Louis
func New(opts ...Option) *Provider {
	p := &Provider{
		loc: PortLouis,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// window returns the first instant of the current month and of the month after next,
// matching the two months shown by the Meteo Mauritius tables.
func (p *Provider) window() (time.Time, time.Time) {
	now := p.now().In(p.loc.Zone)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, p.loc.Zone)
	return start, start.AddDate(0, 2, 0)
}

// SunriseMU returns sunrise and sunset times for every day of the current and next
// month. Days without a sunrise are omitted; a missing sunset is reported as N/A.
func (p *Provider) SunriseMU(ctx context.Context) (almanac.Calendar, error) {
	start, end := p.window()
	cal := almanac.NewCalendar(windowMonths(start, end)...)

	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rise, set := sunrise.SunriseSunset(p.loc.Latitude, p.loc.Longitude, d.Year(), d.Month(), d.Day())
		if rise.IsZero() {
			continue
		}

		setText := almanac.Placeholder
		if !set.IsZero() {
			setText = almanac.FormatClock(set.In(p.loc.Zone))
		}

		if rec, ok := almanac.NewRecord(almanac.FormatClock(rise.In(p.loc.Zone)), setText); ok {
			cal.Add(almanac.MonthKey(d.Month()), d.Day(), rec)
		}
	}

	logger.SetGauge("calendar.days", float64(cal.Len()))
	logger.Debug("Computed sun times", logger.Fields{
		"location": p.loc.Name,
		"days":     cal.Len(),
	})

	return cal, nil
}

type phaseFunc struct {
	phase almanac.Phase
	jde   func(year float64) float64
}

var principalPhases = []phaseFunc{
	{almanac.PhaseNew, moonphase.New},
	{almanac.PhaseFirstQuarter, moonphase.First},
	{almanac.PhaseFull, moonphase.Full},
	{almanac.PhaseLastQuarter, moonphase.Last},
}

type phaseInstant struct {
	phase almanac.Phase
	at    time.Time
}

// MoonPhaseMU returns the principal moon phases falling in the current and next month,
// grouped by month in chronological order.
func (p *Provider) MoonPhaseMU(ctx context.Context) (almanac.PhaseCalendar, error) {
	start, end := p.window()

	type key struct {
		phase almanac.Phase
		unix  int64
	}
	seen := make(map[key]bool)
	var instants []phaseInstant

	// Each lookup returns the phase nearest the given year, so sampling weekly across a
	// padded window finds every phase inside it.
	for t := start.AddDate(0, 0, -15); t.Before(end.AddDate(0, 0, 15)); t = t.AddDate(0, 0, 7) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		y := decimalYear(t)
		for _, pf := range principalPhases {
			at := jdeToTime(pf.jde(y)).In(p.loc.Zone)
			if at.Before(start) || !at.Before(end) {
				continue
			}
			k := key{phase: pf.phase, unix: at.Unix()}
			if seen[k] {
				continue
			}
			seen[k] = true
			instants = append(instants, phaseInstant{phase: pf.phase, at: at})
		}
	}

	sort.Slice(instants, func(i, j int) bool {
		return instants[i].at.Before(instants[j].at)
	})

	cal := make(almanac.PhaseCalendar)
	for _, month := range windowMonths(start, end) {
		cal[month] = []almanac.PhaseEvent{}
	}
	for _, pi := range instants {
		month := almanac.MonthKey(pi.at.Month())
		cal[month] = append(cal[month], almanac.PhaseEvent{
			Phase: pi.phase,
			Day:   almanac.DayKey(pi.at.Day()),
			Time:  almanac.FormatClock(pi.at),
		})
	}

	logger.Debug("Computed moon phases", logger.Fields{
		"location": p.loc.Name,
		"phases":   len(instants),
	})

	return cal, nil
}

// windowMonths returns the month keys covered by [start, end)
func windowMonths(start, end time.Time) []string {
	var months []string
	for m := start; m.Before(end); m = m.AddDate(0, 1, 0) {
		months = append(months, almanac.MonthKey(m.Month()))
	}
	return months
}

// decimalYear converts t to the fractional year used by the meeus phase functions
func decimalYear(t time.Time) float64 {
	t = t.UTC()
	yearStart := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := yearStart.AddDate(1, 0, 0)
	return float64(t.Year()) + t.Sub(yearStart).Hours()/yearEnd.Sub(yearStart).Hours()
}

// jdeToTime converts a Julian Ephemeris Day to UTC, truncated to the minute
func jdeToTime(jde float64) time.Time {
	return julian.JDToTime(jde).Add(-deltaT).Truncate(time.Minute)
}
