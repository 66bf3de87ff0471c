// Package threshold holds the two calibrated detection thresholds.
//
// Values are kept as the decimal text an operator supplied ("0.080") and
// parsed on every Get, so a change made through the API, the threshold
// file or the environment takes effect on the next classification without
// a restart. Set persists the new text and signals Changes.
//
// Sources, lowest precedence first: configuration defaults, values stored
// in SQLite by earlier Set calls, then live updates from the operator API
// or the watched threshold file.
package threshold
