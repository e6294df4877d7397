// Package storage archives command results as JSON snapshot files.
//
// Each successful run can be written to <dir>/<command>_<YYYY-MM-DD>.json, wrapped with
// the command name and an updated_at timestamp. Snapshots are a record of what the
// upstream sources returned; they are never read back to answer a command.
package storage
