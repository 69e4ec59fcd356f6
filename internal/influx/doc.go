// Package influx writes normalized readings to InfluxDB v2.
//
// Each reading becomes one point in the "energy_usage" measurement:
//
//	energy_usage,type=electric value_kwh=0.5 1700000000
//
// Points carry second precision. Writes are synchronous: by default one
// request per reading, stopping at the first rejected point. With batching
// enabled all points go out in a single request, so a failure leaves none
// of them written instead of a prefix.
package influx
