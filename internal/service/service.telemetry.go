package service

import (
	"context"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.telemetry.Ping(ctx)
}

// Latest returns the newest packet and its reading.
func (s *Service) Latest(ctx context.Context) (*models.LatestReading, error) {
	return s.telemetry.Latest(ctx)
}

// Diagnostics returns recent packets for the debug view, newest first.
func (s *Service) Diagnostics(ctx context.Context, filter models.DiagnosticsFilter) ([]models.Packet, error) {
	return s.telemetry.Diagnostics(ctx, filter)
}

// RunDebugQuery runs an operator query through the read-only sandbox.
func (s *Service) RunDebugQuery(ctx context.Context, sql string) (*models.QueryResult, error) {
	result, err := s.queries.Run(ctx, sql)
	if err != nil {
		switch t := errors.TypeOf(err); t {
		case errors.ErrorTypeInternal, errors.ErrorTypeStorage:
			nuts.L.Errorf("[QueryService] Query failed: %v", err)
		default:
			nuts.L.Warnf("[QueryService] Rejected query (%s): %v", t, err)
		}
		return nil, err
	}
	nuts.L.Infof("[QueryService] Query returned %d rows in %dms (truncated=%t)", result.RowCount, result.ElapsedMS, result.Truncated)
	return result, nil
}
