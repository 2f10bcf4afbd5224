// FilePath: server/weatherhub/internal/models/models.packet.go
package models

import "time"

// TimestampLayout is the fixed-width UTC layout envelope timestamps are
// stored in. Fixed width keeps lexicographic order equal to time order,
// which the timestamp index and range scans rely on.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in the storage layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Packet is one ingested transmission (an envelope). It is created once
// per unique payload hash and never mutated.
type Packet struct {
	ID           int64     `json:"id"`
	PacketNumber *int64    `json:"packet_number,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	RSSI         *int      `json:"rssi_dbm"`
	SNR          *float64  `json:"snr_db"`
	Error        bool      `json:"error"`
	ErrorType    *string   `json:"error_type"`
	RawHex       *string   `json:"raw_hex"`
	PayloadHash  string    `json:"payload_hash"`
	InsertedAt   string    `json:"inserted_at,omitempty"`
}

// SensorReading is the physical measurement carried by a non-error
// packet. Every metric is independently nullable.
type SensorReading struct {
	TemperatureC *float64 `json:"temperature_c"`
	HumidityPct  *float64 `json:"humidity_pct"`
	PressureHPa  *float64 `json:"pressure_hpa"`
	GasKOhms     *float64 `json:"gas_kohms"`
}

// IsEmpty reports whether no metric is set.
func (r *SensorReading) IsEmpty() bool {
	return r == nil || (r.TemperatureC == nil && r.HumidityPct == nil && r.PressureHPa == nil && r.GasKOhms == nil)
}

// LatestReading is a packet joined with its reading, if any.
type LatestReading struct {
	Packet
	Sensor *SensorReading `json:"sensor_data"`
}

// InsertResult reports what an idempotent insert did.
type InsertResult struct {
	PacketID      int64 `json:"packet_id"`
	Duplicate     bool  `json:"duplicate"`
	SensorCreated bool  `json:"sensor_created"`
}

// TrendRow is one raw row fed into downsampling.
type TrendRow struct {
	Timestamp time.Time
	Reading   SensorReading
}
