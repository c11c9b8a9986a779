// FilePath: internal/models/models.reading.go
package models

import "time"

// GasChannels is the number of gas-sensor channels carried by a Reading.
const GasChannels = 4

// Reading is one timestamped environment sample as held by the state cache
// and written to the history store.
type Reading struct {
	Time        string  `json:"time" db:"time"`
	Temperature float64 `json:"temperature" db:"temperature"`
	Humidity    float64 `json:"humidity" db:"humidity"`
	Pressure    float64 `json:"pressure" db:"pressure"`
	Gas1        float64 `json:"gas1" db:"gas1"`
	Gas2        float64 `json:"gas2" db:"gas2"`
	Gas3        float64 `json:"gas3" db:"gas3"`
	Gas4        float64 `json:"gas4" db:"gas4"`
}

// Gas returns a pointer to gas channel n (1-based), or nil when n is out of range.
func (r *Reading) Gas(n int) *float64 {
	switch n {
	case 1:
		return &r.Gas1
	case 2:
		return &r.Gas2
	case 3:
		return &r.Gas3
	case 4:
		return &r.Gas4
	}
	return nil
}

// ReadingUpdate carries the fields resolved from one inbound payload.
// A nil field keeps the previous value.
type ReadingUpdate struct {
	Time        *string
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	Gas         [GasChannels]*float64
}

// Merge applies the update on top of r and returns the result.
func (r Reading) Merge(u ReadingUpdate) Reading {
	if u.Time != nil {
		r.Time = *u.Time
	}
	if u.Temperature != nil {
		r.Temperature = *u.Temperature
	}
	if u.Humidity != nil {
		r.Humidity = *u.Humidity
	}
	if u.Pressure != nil {
		r.Pressure = *u.Pressure
	}
	for i, v := range u.Gas {
		if v != nil {
			*r.Gas(i + 1) = *v
		}
	}
	return r
}

// Granularity selects which slice of history a dashboard asks for.
type Granularity string

const (
	GranularityHourly Granularity = "hourly"
	GranularityDaily  Granularity = "daily"
)

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	return g == GranularityHourly || g == GranularityDaily
}

// HistoryRow is a persisted Reading with its server-side receive time.
type HistoryRow struct {
	ID         string    `json:"id" db:"id"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
	Reading
}
