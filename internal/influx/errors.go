package influx

import "errors"

// Sentinel errors for InfluxDB operations.
var (
	// ErrConnectionFailed indicates the server could not be reached or is unhealthy.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed indicates the server rejected or did not accept a point.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
