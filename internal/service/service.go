package service

import (
	"context"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/cache"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/config"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/models"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/repository"
	"golang.org/x/sync/singleflight"
)

// QueryRunner executes operator-supplied read queries.
type QueryRunner interface {
	Run(ctx context.Context, sql string) (*models.QueryResult, error)
}

// Service contains the store and the read-side engines built on it.
type Service struct {
	telemetry   repository.TelemetryRepository
	trendSource repository.TrendSource
	queries     QueryRunner
	cache       cache.Cache
	trends      config.TrendsConfig
	now         func() time.Time
	group       singleflight.Group
}

// New creates a new service instance. A nil cache disables trend caching.
func New(
	telemetry repository.TelemetryRepository,
	queries QueryRunner,
	trendCache cache.Cache,
	trends config.TrendsConfig,
) *Service {
	if trendCache == nil {
		trendCache = cache.Nop{}
	}
	return &Service{
		telemetry:   telemetry,
		trendSource: telemetry,
		queries:     queries,
		cache:       trendCache,
		trends:      trends,
		now:         time.Now,
	}
}

// Validate checks if all required dependencies are initialized
func (s *Service) Validate() error {
	if s.telemetry == nil {
		return ErrMissingRepository("telemetry")
	}
	if s.queries == nil {
		return ErrMissingRepository("queries")
	}
	return nil
}

func ErrMissingRepository(name string) error {
	return errors.NewInternalError("missing repository: "+name, nil)
}
