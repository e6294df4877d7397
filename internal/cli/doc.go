// Package cli implements the command-line interface for meteomu.
//
// The cli package provides the Cobra-based root command. Its single positional argument
// selects a data source (sunrisemu, moonrisemu or moonphasemu); the result is written to
// standard output as one JSON document. Dispatcher errors are written to standard error
// as {"error": "..."} and exit with status 1.
package cli
