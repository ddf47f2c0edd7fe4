package domain

import "time"

// RealTimeLayout is the textual encoding of Reading.RealTime in text-typed stores.
const RealTimeLayout = "2006-01-02 15:04:05"

// Reading is one sensor sample recovered from a buoy dump.
type Reading struct {
	UptimeSeconds int64     `json:"uptime_seconds"`
	RealTime      time.Time `json:"real_time"`
	TDS           float64   `json:"tds"`
	Turb          float64   `json:"turb"`
	PH            float64   `json:"ph"`
	Status        string    `json:"status"`
}

// StoredReading is a Reading after the sink gave it a surrogate key.
type StoredReading struct {
	ID int64 `json:"id"`
	Reading
}
