// FilePath: server/weatherhub/internal/ingest/envelope.go
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/models"
)

// wireEnvelope accepts both the current envelope keys and the older
// flat station keys.
type wireEnvelope struct {
	Timestamp    json.RawMessage `json:"timestamp"`
	PacketNumber *int64          `json:"packet_number"`
	RSSIDBm      *float64        `json:"rssi_dbm"`
	RSSI         *float64        `json:"rssi"`
	SNRDB        *float64        `json:"snr_db"`
	SNR          *float64        `json:"snr"`
	Error        json.RawMessage `json:"error"`
	ErrorType    *string         `json:"error_type"`
	RawHex       *string         `json:"raw_hex"`
	SensorData   *wireSensor     `json:"sensor_data"`
}

type wireSensor struct {
	TemperatureC  *float64 `json:"temperature_c"`
	Temperature   *float64 `json:"temperature"`
	HumidityPct   *float64 `json:"humidity_pct"`
	Humidity      *float64 `json:"humidity"`
	PressureHPa   *float64 `json:"pressure_hpa"`
	Pressure      *float64 `json:"pressure"`
	GasKOhms      *float64 `json:"gas_kohms"`
	GasResistance *float64 `json:"gas_resistance"`
}

// Envelope is a decoded transport message, ready to be stored.
type Envelope struct {
	Packet  models.Packet
	Reading *models.SensorReading

	// TimestampDefaulted is set when the message had no timestamp and
	// ingestion time was used instead.
	TimestampDefaulted bool
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseEnvelope decodes raw transport bytes. now supplies the fallback
// timestamp for messages that carry none.
func ParseEnvelope(raw []byte, now time.Time) (*Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("envelope is not a JSON object")
	}
	var wire wireEnvelope
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	env := &Envelope{}
	ts, ok, err := parseTimestamp(wire.Timestamp)
	if err != nil {
		return nil, err
	}
	if !ok {
		ts = now.UTC()
		env.TimestampDefaulted = true
	}

	packet := models.Packet{
		Timestamp:    ts,
		PacketNumber: wire.PacketNumber,
		RawHex:       wire.RawHex,
		ErrorType:    wire.ErrorType,
	}

	if rssi := firstFloat(wire.RSSIDBm, wire.RSSI); rssi != nil {
		v := int(math.Round(*rssi))
		packet.RSSI = &v
	}
	packet.SNR = firstFloat(wire.SNRDB, wire.SNR)

	isError, legacyType, err := parseErrorField(wire.Error)
	if err != nil {
		return nil, err
	}
	packet.Error = isError
	if packet.ErrorType == nil && legacyType != "" {
		packet.ErrorType = &legacyType
	}
	if !packet.Error {
		packet.ErrorType = nil
		packet.RawHex = nil
	}
	env.Packet = packet

	if !packet.Error && wire.SensorData != nil {
		s := wire.SensorData
		env.Reading = &models.SensorReading{
			TemperatureC: firstFloat(s.TemperatureC, s.Temperature),
			HumidityPct:  firstFloat(s.HumidityPct, s.Humidity),
			PressureHPa:  firstFloat(s.PressureHPa, s.Pressure),
			GasKOhms:     firstFloat(s.GasKOhms, s.GasResistance),
		}
	}
	return env, nil
}

// parseTimestamp accepts an epoch number (seconds, or milliseconds when
// the value is too large to be seconds) or an ISO-8601 string. A string
// without a zone is taken as UTC.
func parseTimestamp(raw json.RawMessage) (time.Time, bool, error) {
	t, ok, err := decodeTimestamp(raw)
	if err != nil || !ok {
		return t, ok, err
	}
	// Stored timestamps must keep a four-digit year to stay fixed-width.
	if t.Year() < 0 || t.Year() > 9999 {
		return time.Time{}, false, fmt.Errorf("timestamp %s is out of range", t.Format(time.RFC3339))
	}
	return t, true, nil
}

// Epoch bounds, in seconds, of years 0000 through 9999.
var (
	minEpochSeconds = float64(time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	maxEpochSeconds = float64(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
)

func decodeTimestamp(raw json.RawMessage) (time.Time, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false, nil
	}

	var value interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return time.Time{}, false, fmt.Errorf("decoding timestamp: %w", err)
	}

	switch v := value.(type) {
	case json.Number:
		return epochToTime(string(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false, nil
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true, nil
			}
		}
		if t, ok, err := epochToTime(s); err == nil {
			return t, ok, nil
		}
		return time.Time{}, false, fmt.Errorf("unrecognized timestamp %q", s)
	default:
		return time.Time{}, false, fmt.Errorf("unsupported timestamp type %T", value)
	}
}

func epochToTime(s string) (time.Time, bool, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false, fmt.Errorf("invalid epoch timestamp %q", s)
	}
	if math.Abs(f) >= 1e11 {
		f /= 1000
	}
	if f < minEpochSeconds || f >= maxEpochSeconds {
		return time.Time{}, false, fmt.Errorf("epoch timestamp %q is out of range", s)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), true, nil
}

// parseErrorField accepts the boolean flag or the older string form,
// where any non-empty string marks an error and names its type.
func parseErrorField(raw json.RawMessage) (bool, string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, "", nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return false, "", fmt.Errorf("decoding error flag: %w", err)
	}
	switch v := value.(type) {
	case bool:
		return v, "", nil
	case string:
		s := strings.TrimSpace(v)
		return s != "", s, nil
	case float64:
		return v != 0, "", nil
	default:
		return false, "", fmt.Errorf("unsupported error flag type %T", value)
	}
}

func firstFloat(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
