// Package sensor turns raw readings from the sensor peer into detections.
//
// The peer sends comma-delimited text. A reading with two commas is a
// three-axis magnetometer sample; a reading with no commas is a single
// distance sample. Anything else is malformed.
//
// A magnetometer sample is Tampering when its squared magnitude strays from
// the calibrated baseline by more than the magnetometer threshold. A
// distance sample is Presence when it is at or below the ultrasonic
// threshold. Thresholds are read from the threshold store on every call so
// an operator change applies to the next reading.
package sensor
