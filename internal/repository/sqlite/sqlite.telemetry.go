// FilePath: server/weatherhub/internal/repository/sqlite/sqlite.telemetry.go
package sqlite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"sync"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/database"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
	"github.com/zeebo/blake3"
)

const (
	DefaultDiagnosticsLimit = 50
	MaxDiagnosticsLimit     = 1000
)

// TelemetryRepo stores packets and sensor readings in two tables linked
// by packet id. All writes go through Insert, which holds writeMu for
// the whole check-and-insert transaction.
type TelemetryRepo struct {
	SQLiteBaseRepo
	writeMu sync.Mutex
}

func NewTelemetryRepository(db database.DB) (*TelemetryRepo, error) {
	repo := &TelemetryRepo{SQLiteBaseRepo: SQLiteBaseRepo{db: db}}
	if err := repo.initializeSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *TelemetryRepo) initializeSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS packets (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			packet_number INTEGER,
			timestamp     TEXT    NOT NULL,
			rssi_dbm      INTEGER,
			snr_db        REAL,
			error         INTEGER NOT NULL DEFAULT 0,
			error_type    TEXT,
			raw_hex       TEXT,
			payload_hash  TEXT    NOT NULL,
			inserted_at   TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_packets_payload_hash ON packets(payload_hash)`,
		`CREATE INDEX IF NOT EXISTS ix_packets_ts_id ON packets(timestamp, id)`,
		`CREATE INDEX IF NOT EXISTS ix_packets_error_ts ON packets(error, timestamp, id)`,
		`CREATE TABLE IF NOT EXISTS sensor_data (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			packet_id     INTEGER NOT NULL REFERENCES packets(id) ON DELETE CASCADE,
			temperature_c REAL,
			humidity_pct  REAL,
			pressure_hpa  REAL,
			gas_kohms     REAL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_sensor_packet ON sensor_data(packet_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.GetDB().Exec(query); err != nil {
			return errors.NewStorageError("failed to initialize schema", err)
		}
	}
	return nil
}

// PayloadHash is the content identity of a raw transport payload.
func PayloadHash(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (r *TelemetryRepo) Insert(ctx context.Context, packet *models.Packet, payload []byte, reading *models.SensorReading) (models.InsertResult, error) {
	hash := PayloadHash(payload)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.BeginTx(ctx)
	if err != nil {
		return models.InsertResult{}, err
	}
	defer tx.Rollback()

	errorFlag := 0
	if packet.Error {
		errorFlag = 1
	}

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO packets
			(packet_number, timestamp, rssi_dbm, snr_db, error, error_type, raw_hex, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		packet.PacketNumber,
		models.FormatTimestamp(packet.Timestamp),
		packet.RSSI,
		packet.SNR,
		errorFlag,
		packet.ErrorType,
		packet.RawHex,
		hash,
	)
	if err != nil {
		return models.InsertResult{}, errors.NewStorageError("failed to insert packet", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.InsertResult{}, errors.NewStorageError("failed to get rows affected", err)
	}

	var result models.InsertResult
	if err := tx.GetContext(ctx, &result.PacketID, `SELECT id FROM packets WHERE payload_hash = ?`, hash); err != nil {
		return models.InsertResult{}, errors.NewStorageError("failed to look up packet", err)
	}

	if affected == 0 {
		result.Duplicate = true
		return result, nil
	}

	if reading != nil && !packet.Error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO sensor_data
				(packet_id, temperature_c, humidity_pct, pressure_hpa, gas_kohms)
			VALUES (?, ?, ?, ?, ?)`,
			result.PacketID,
			reading.TemperatureC,
			reading.HumidityPct,
			reading.PressureHPa,
			reading.GasKOhms,
		)
		if err != nil {
			return models.InsertResult{}, errors.NewStorageError("failed to insert sensor reading", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return models.InsertResult{}, errors.NewStorageError("failed to get rows affected", err)
		}
		result.SensorCreated = n == 1
	}

	if err := r.Commit(tx); err != nil {
		return models.InsertResult{}, err
	}

	packet.ID = result.PacketID
	packet.PayloadHash = hash
	return result, nil
}

type packetRow struct {
	ID           int64           `db:"id"`
	PacketNumber sql.NullInt64   `db:"packet_number"`
	Timestamp    string          `db:"timestamp"`
	RSSI         sql.NullInt64   `db:"rssi_dbm"`
	SNR          sql.NullFloat64 `db:"snr_db"`
	Error        int64           `db:"error"`
	ErrorType    sql.NullString  `db:"error_type"`
	RawHex       sql.NullString  `db:"raw_hex"`
	PayloadHash  string          `db:"payload_hash"`
	InsertedAt   string          `db:"inserted_at"`
}

type sensorRow struct {
	SensorID     sql.NullInt64   `db:"sensor_id"`
	TemperatureC sql.NullFloat64 `db:"temperature_c"`
	HumidityPct  sql.NullFloat64 `db:"humidity_pct"`
	PressureHPa  sql.NullFloat64 `db:"pressure_hpa"`
	GasKOhms     sql.NullFloat64 `db:"gas_kohms"`
}

const packetColumns = `p.id, p.packet_number, p.timestamp, p.rssi_dbm, p.snr_db,
	p.error, p.error_type, p.raw_hex, p.payload_hash, p.inserted_at`

func (r *TelemetryRepo) Latest(ctx context.Context) (*models.LatestReading, error) {
	var row struct {
		packetRow
		sensorRow
	}
	query := `
		SELECT ` + packetColumns + `,
			s.id AS sensor_id, s.temperature_c, s.humidity_pct, s.pressure_hpa, s.gas_kohms
		FROM packets p
		LEFT JOIN sensor_data s ON s.packet_id = p.id
		ORDER BY p.timestamp DESC, p.id DESC
		LIMIT 1`

	err := r.db.GetDB().GetContext(ctx, &row, query)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("no data yet", err)
		}
		return nil, errors.NewStorageError("failed to get latest packet", err)
	}

	latest := &models.LatestReading{Packet: row.packetRow.toModel()}
	if row.SensorID.Valid {
		reading := row.sensorRow.toModel()
		latest.Sensor = &reading
	}
	return latest, nil
}

func (r *TelemetryRepo) RangeForTrends(ctx context.Context, from, to time.Time) ([]models.TrendRow, error) {
	query := `
		SELECT p.timestamp, s.id AS sensor_id, s.temperature_c, s.humidity_pct, s.pressure_hpa, s.gas_kohms
		FROM packets p
		JOIN sensor_data s ON s.packet_id = p.id
		WHERE p.timestamp >= ? AND p.timestamp < ?
		ORDER BY p.timestamp ASC, p.id ASC`

	rows, err := r.db.GetDB().QueryxContext(ctx, query, models.FormatTimestamp(from), models.FormatTimestamp(to))
	if err != nil {
		return nil, errors.NewStorageError("failed to query trend range", err)
	}
	defer rows.Close()

	result := []models.TrendRow{}
	for rows.Next() {
		var row struct {
			Timestamp string `db:"timestamp"`
			sensorRow
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, errors.NewStorageError("failed to scan trend row", err)
		}
		result = append(result, models.TrendRow{
			Timestamp: parseStoredTimestamp(row.Timestamp),
			Reading:   row.sensorRow.toModel(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("failed to iterate trend range", err)
	}
	return result, nil
}

func (r *TelemetryRepo) Diagnostics(ctx context.Context, filter models.DiagnosticsFilter) ([]models.Packet, error) {
	limit := ClampDiagnosticsLimit(filter.Limit)

	query := `SELECT ` + packetColumns + ` FROM packets p`
	if filter.OnlyErrors {
		query += ` WHERE p.error = 1`
	}
	query += ` ORDER BY p.timestamp DESC, p.id DESC LIMIT ?`

	rows := []packetRow{}
	if err := r.db.GetDB().SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.NewStorageError("failed to get diagnostics", err)
	}

	packets := make([]models.Packet, 0, len(rows))
	for _, row := range rows {
		packets = append(packets, row.toModel())
	}
	return packets, nil
}

// ClampDiagnosticsLimit maps non-positive limits to the default and caps
// large ones.
func ClampDiagnosticsLimit(limit int) int {
	if limit <= 0 {
		return DefaultDiagnosticsLimit
	}
	if limit > MaxDiagnosticsLimit {
		return MaxDiagnosticsLimit
	}
	return limit
}

func (p packetRow) toModel() models.Packet {
	packet := models.Packet{
		ID:          p.ID,
		Timestamp:   parseStoredTimestamp(p.Timestamp),
		Error:       p.Error != 0,
		PayloadHash: p.PayloadHash,
		InsertedAt:  p.InsertedAt,
	}
	if p.PacketNumber.Valid {
		n := p.PacketNumber.Int64
		packet.PacketNumber = &n
	}
	if p.RSSI.Valid {
		rssi := int(p.RSSI.Int64)
		packet.RSSI = &rssi
	}
	if p.SNR.Valid {
		snr := p.SNR.Float64
		packet.SNR = &snr
	}
	if p.ErrorType.Valid {
		errorType := p.ErrorType.String
		packet.ErrorType = &errorType
	}
	if p.RawHex.Valid {
		rawHex := p.RawHex.String
		packet.RawHex = &rawHex
	}
	return packet
}

func (s sensorRow) toModel() models.SensorReading {
	return models.SensorReading{
		TemperatureC: nullFloat(s.TemperatureC),
		HumidityPct:  nullFloat(s.HumidityPct),
		PressureHPa:  nullFloat(s.PressureHPa),
		GasKOhms:     nullFloat(s.GasKOhms),
	}
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func parseStoredTimestamp(s string) time.Time {
	if t, err := time.Parse(models.TimestampLayout, s); err == nil {
		return t
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		nuts.L.Warnf("[TelemetryRepo] Unparseable stored timestamp %q: %v", s, err)
		return time.Time{}
	}
	return t.UTC()
}
