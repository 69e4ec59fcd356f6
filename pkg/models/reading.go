package models

import "time"

// CategoryElectric tags readings taken from the "Electric readings" feed entry
const CategoryElectric = "electric"

// Reading represents a single interval usage measurement
type Reading struct {
	Timestamp int64   `json:"timestamp"` // UTC epoch seconds, interval start
	Duration  int64   `json:"duration"`  // Seconds
	Value     float64 `json:"value_kwh"` // kWh
	Category  string  `json:"type"`
}

// Time returns the interval start as a UTC time
func (r Reading) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// End returns the interval end as a UTC time
func (r Reading) End() time.Time {
	return time.Unix(r.Timestamp+r.Duration, 0).UTC()
}
