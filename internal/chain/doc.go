// Package chain implements the node's hash-chained audit log.
//
// Every terminal outcome (tampering, presence, failed or successful entry)
// becomes one Block appended as a single JSON line to a text file. Each
// block carries the SHA-256 of its own canonical form and the hash of its
// predecessor, so an edit to any block but the last breaks the link to its
// successor.
//
// # Canonical form
//
// The hash input is the compact JSON object of the seven content fields in
// this exact order, with no whitespace and no HTML escaping:
//
//	{"timestamp":"...","event":"...","mag_meas":"...","ultra_meas":"...","user":"...","MAC":"...","prev_hash":"..."}
//
// The field list is frozen. Changing names or order invalidates every
// existing log.
//
// # Concurrency
//
// The control loop is the only appender. Append still serialises callers
// with a mutex so the API and tests cannot interleave writes. Validate and
// Blocks take the same mutex, so a reader never sees a partial line.
package chain
