package influxdb

import "errors"

// Errors returned by Connect and HealthCheck. Write failures are
// asynchronous and delivered through SetOnError instead.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
)
