package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/meteomu/internal/almanac"
	"github.com/pfrederiksen/meteomu/internal/logger"
	"golang.org/x/net/html"
)

const (
	MoonriseURL = "http://metservice.intnet.mu/sun-moon-and-tides-moonrise-moonset-mauritius.php"
	UserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	Timeout     = 10 * time.Second
)

// Table layout: DATE | PHASE | MOON (month 1) | PHASE | MOON (month 2)
const (
	headerRow      = 0
	firstDataRow   = 2
	minCells       = 5
	month1Cell     = 2
	month2Cell     = 4
	lineBreak      = "\n"
	errorMsgPrefix = "Failed to scrape moonrise data: "
)

// Scraper fetches and parses the Meteo Mauritius moonrise/moonset page
type Scraper struct {
	client *http.Client
	url    string
	errOut io.Writer
}

// Option configures a Scraper
type Option func(*Scraper)

// WithURL overrides the page URL
func WithURL(url string) Option {
	return func(s *Scraper) {
		s.url = url
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		s.client.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) {
		s.client = c
	}
}

// WithErrorOutput sets where Moonrise writes its error envelope
func WithErrorOutput(w io.Writer) Option {
	return func(s *Scraper) {
		s.errOut = w
	}
}

// New creates a new Scraper instance
func New(opts ...Option) *Scraper {
	s := &Scraper{
		client: &http.Client{
			Timeout: Timeout,
		},
		url:    MoonriseURL,
		errOut: os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URL returns the page the scraper fetches
func (s *Scraper) URL() string {
	return s.url
}

// Moonrise fetches the moonrise table and never fails: on error it writes an
// {"error": ...} envelope to the error output and returns an empty calendar.
func (s *Scraper) Moonrise(ctx context.Context) almanac.Calendar {
	cal, err := s.FetchMoonrise(ctx)
	if err != nil {
		logger.Warn("Moonrise scrape failed", logger.Fields{"url": s.url}, err)
		almanac.WriteError(s.errOut, errorMsgPrefix+err.Error())
		return almanac.NewCalendar()
	}
	return cal
}

// FetchMoonrise fetches the page and parses its first table
func (s *Scraper) FetchMoonrise(ctx context.Context) (almanac.Calendar, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	logger.Debug("Fetching moonrise page", logger.Fields{"url": s.url})
	start := time.Now()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	logger.RecordTiming("scraper.fetch", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return ParseMoonriseTable(resp.Body)
}

// ParseMoonriseTable extracts the two-month moonrise/moonset calendar from the first
// <table> in the document. A missing table, a table without <tbody> markup, or a header
// with fewer than two month labels all produce an empty calendar and no error.
func ParseMoonriseTable(r io.Reader) (almanac.Calendar, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	cal := almanac.NewCalendar()

	table := doc.Find("table").First()
	if table.Length() == 0 {
		logger.Debug("No table found", nil)
		return cal, nil
	}

	// The HTML5 parser inserts a <tbody> into every table with rows, so the
	// source markup decides whether the table has a body.
	if !firstTableHasBody(raw) {
		logger.Debug("Table has no body", nil)
		return cal, nil
	}
	body := table.Find("tbody").First()

	var month1, month2 string

	body.Find("tr").Each(func(i int, row *goquery.Selection) {
		cols := cellTexts(row)

		switch {
		case i == headerRow:
			months := monthTokens(cols)
			if len(months) >= 2 {
				month1, month2 = months[0], months[1]
				cal = almanac.NewCalendar(month1, month2)
			}
		case i >= firstDataRow && month1 != "" && month2 != "":
			if parseDataRow(cal, cols, month1, month2) {
				logger.IncrCounter("scraper.rows_parsed")
			} else {
				logger.IncrCounter("scraper.rows_skipped")
			}
		}
	})

	logger.SetGauge("calendar.days", float64(cal.Len()))
	logger.Debug("Parsed moonrise table", logger.Fields{
		"months": []string{month1, month2},
		"days":   cal.Len(),
	})

	return cal, nil
}

// monthTokens returns a month key for every non-empty header cell after the first
func monthTokens(cols []string) []string {
	months := make([]string, 0, 2)
	if len(cols) < 2 {
		return months
	}
	for _, col := range cols[1:] {
		if m := almanac.MonthToken(col); m != "" {
			months = append(months, m)
		}
	}
	return months
}

// parseDataRow stores the records of one table row. Returns false if the row was
// skipped as malformed.
func parseDataRow(cal almanac.Calendar, cols []string, month1, month2 string) bool {
	if len(cols) < minCells {
		return false
	}

	day, err := strconv.Atoi(cols[0])
	if err != nil {
		return false
	}

	var skipped int64
	if !addTimes(cal, month1, day, cols[month1Cell]) {
		skipped++
	}
	if !addTimes(cal, month2, day, cols[month2Cell]) {
		skipped++
	}
	logger.AddCounter("scraper.cells_skipped", skipped)
	return true
}

// addTimes splits a "rise\nset" cell and stores it if the rise time is present.
// Returns false when nothing was stored.
func addTimes(cal almanac.Calendar, month string, day int, cell string) bool {
	if !strings.Contains(cell, lineBreak) {
		return false
	}
	lines := strings.Split(cell, lineBreak)
	if len(lines) < 2 {
		return false
	}
	rec, ok := almanac.NewRecord(lines[0], lines[1])
	if !ok {
		return false
	}
	cal.Add(month, day, rec)
	return true
}

// cellTexts returns the trimmed text of every <td> in a row
func cellTexts(row *goquery.Selection) []string {
	cells := row.Find("td")
	cols := make([]string, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		cols = append(cols, cellText(cell))
	})
	return cols
}

// cellText returns the trimmed text of a cell. A <br> contributes no text, so
// rise and set times must be separated by a real line break.
func cellText(cell *goquery.Selection) string {
	return strings.TrimSpace(cell.Text())
}

// firstTableHasBody reports whether the first <table> in the raw markup contains a
// <tbody> start tag before it closes.
func firstTableHasBody(raw []byte) bool {
	z := html.NewTokenizer(bytes.NewReader(raw))
	depth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "table":
				depth++
			case "tbody":
				if depth > 0 {
					return true
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "table" && depth > 0 {
				depth--
				if depth == 0 {
					return false
				}
			}
		}
	}
}
