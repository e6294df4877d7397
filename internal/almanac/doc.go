// Package almanac provides the data types shared by the meteomu data sources.
//
// A Calendar maps lower-cased month names to day-of-month keys, each holding a rise/set
// Record. Both the moonrise scraper and the sunrise provider emit this shape so the CLI
// serializes them the same way.
package almanac
