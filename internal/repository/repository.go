// FilePath: server/weatherhub/internal/repository/repository.go
package repository

import (
	"context"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/models"
)

// TelemetryRepository is the only write path to the station store.
type TelemetryRepository interface {
	TrendSource

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Insert stores a packet and its optional reading. The payload hash
	// is computed over payload; a payload already stored is a no-op
	// reported via InsertResult.Duplicate.
	Insert(ctx context.Context, packet *models.Packet, payload []byte, reading *models.SensorReading) (models.InsertResult, error)

	// Latest returns the packet with the greatest (timestamp, id).
	Latest(ctx context.Context) (*models.LatestReading, error)

	// Diagnostics returns recent packets, newest first.
	Diagnostics(ctx context.Context, filter models.DiagnosticsFilter) ([]models.Packet, error)
}

// TrendSource is the read subset the downsampling engine needs.
// RangeForTrends returns readings with from <= timestamp < to, ascending
// by timestamp.
type TrendSource interface {
	RangeForTrends(ctx context.Context, from, to time.Time) ([]models.TrendRow, error)
}
