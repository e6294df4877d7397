// Package scraper provides HTTP fetching and HTML parsing for the Meteo Mauritius
// moonrise/moonset page.
//
// The page lists two months side by side in its first table. The first body row holds
// the month labels ("January 2026"), the second holds phase/rise/set sub-headers, and
// each following row holds a day number and, per month, a cell with the rise and set
// times on separate lines. Malformed rows are skipped without error.
package scraper
