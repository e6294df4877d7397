// Package astro computes sunrise, sunset and moon phase data for a fixed location.
//
// Sun times come from github.com/nathan-osman/go-sunrise; principal moon phases come from
// the Meeus algorithms in github.com/soniakeys/meeus/v3. Results cover the current and
// the next month, mirroring the two-month tables published by Meteo Mauritius.
package astro
