package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

const (
	// DefaultMaxPoints is the per-series point target when none is configured.
	DefaultMaxPoints = 600

	// MinBucketSeconds is the narrowest bucket ever used.
	MinBucketSeconds = 60

	// MaxLookbackHours bounds the hours parameter of a lookback query.
	MaxLookbackHours = 24 * 366 * 20
)

// BucketLadder lists the only bucket widths, in seconds, the engine uses.
var BucketLadder = []int64{60, 120, 300, 600, 900, 1800, 3600, 7200, 14400, 21600, 43200, 86400}

// ChooseBucketWidth returns the narrowest ladder width that keeps span
// within roughly target buckets. Spans too long for the widest rung
// still get the widest rung.
func ChooseBucketWidth(span time.Duration, target int) int64 {
	if target <= 0 {
		target = DefaultMaxPoints
	}
	step := int64(math.Floor(span.Seconds() / float64(target)))
	if step < MinBucketSeconds {
		step = MinBucketSeconds
	}
	for _, width := range BucketLadder {
		if step <= width {
			return width
		}
	}
	return BucketLadder[len(BucketLadder)-1]
}

// BucketStart returns the epoch-aligned start (unix seconds) of the
// bucket containing t. A window that does not start on a bucket boundary
// can therefore touch one more bucket than ceil(span/width).
func BucketStart(t time.Time, width int64) int64 {
	sec := t.Unix()
	start := sec / width
	if sec%width != 0 && sec < 0 {
		start--
	}
	return start * width
}

type meanAcc struct {
	sum float64
	n   int
}

func (a *meanAcc) add(v *float64) {
	if v == nil || math.IsNaN(*v) {
		return
	}
	a.sum += *v
	a.n++
}

type bucketAcc struct {
	temperature, humidity, pressure, gas meanAcc
}

// Downsample averages rows into buckets of width seconds. Each metric
// gets a point only for buckets where it had at least one value.
func Downsample(rows []models.TrendRow, width int64) models.TrendSeries {
	buckets := make(map[int64]*bucketAcc)
	for _, row := range rows {
		start := BucketStart(row.Timestamp, width)
		acc, ok := buckets[start]
		if !ok {
			acc = &bucketAcc{}
			buckets[start] = acc
		}
		acc.temperature.add(row.Reading.TemperatureC)
		acc.humidity.add(row.Reading.HumidityPct)
		acc.pressure.add(row.Reading.PressureHPa)
		acc.gas.add(row.Reading.GasKOhms)
	}

	starts := make([]int64, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	series := models.TrendSeries{
		Temperature:   []models.TrendPoint{},
		Humidity:      []models.TrendPoint{},
		Pressure:      []models.TrendPoint{},
		GasResistance: []models.TrendPoint{},
	}
	for _, start := range starts {
		acc := buckets[start]
		t := models.FormatTimestamp(time.Unix(start, 0))
		series.Temperature = appendMean(series.Temperature, t, acc.temperature)
		series.Humidity = appendMean(series.Humidity, t, acc.humidity)
		series.Pressure = appendMean(series.Pressure, t, acc.pressure)
		series.GasResistance = appendMean(series.GasResistance, t, acc.gas)
	}
	return series
}

func appendMean(points []models.TrendPoint, t string, acc meanAcc) []models.TrendPoint {
	if acc.n == 0 {
		return points
	}
	return append(points, models.TrendPoint{T: t, V: acc.sum / float64(acc.n)})
}

// Trends downsamples readings in [from, to) to at most the configured
// number of points per series.
func (s *Service) Trends(ctx context.Context, from, to time.Time) (*models.TrendsResponse, error) {
	return s.trendsWithTarget(ctx, from, to, s.maxPoints(), true)
}

// TrendsLookback downsamples the last hours of readings. limit, when
// positive, lowers the point target below the configured maximum.
func (s *Service) TrendsLookback(ctx context.Context, hours, limit int) (*models.TrendsResponse, error) {
	if hours <= 0 {
		hours = s.trends.DefaultHours
		if hours <= 0 {
			hours = 24
		}
	}
	if hours > MaxLookbackHours {
		return nil, errors.NewValidationError(fmt.Sprintf("hours must not exceed %d", MaxLookbackHours), nil)
	}

	target := s.maxPoints()
	if limit > 0 && limit < target {
		target = limit
	}

	// A lookback window ends now, so its key is never requested twice.
	to := s.now().UTC()
	from := to.Add(-time.Duration(hours) * time.Hour)
	return s.trendsWithTarget(ctx, from, to, target, false)
}

func (s *Service) maxPoints() int {
	if s.trends.MaxPoints > 0 {
		return s.trends.MaxPoints
	}
	return DefaultMaxPoints
}

// trendsWithTarget serves [from, to). When useCache is set and the window
// has already ended, the response is read from and written to the cache.
func (s *Service) trendsWithTarget(ctx context.Context, from, to time.Time, target int, useCache bool) (*models.TrendsResponse, error) {
	if !to.After(from) {
		return nil, errors.NewInvalidRangeError("'to' must be after 'from'", nil)
	}
	from, to = from.UTC(), to.UTC()

	width := ChooseBucketWidth(to.Sub(from), target)
	key := fmt.Sprintf("trends:%d:%d:%d", from.UnixMilli(), to.UnixMilli(), width)
	cacheable := useCache && s.trends.CacheTTL > 0 && to.Before(s.now())

	if cacheable {
		if resp, ok := s.cachedTrends(ctx, key); ok {
			return resp, nil
		}
	}

	// Concurrent requests for the same window share one range scan. The
	// scan outlives the first caller's cancellation so the others still
	// get a result.
	scanCtx := context.WithoutCancel(ctx)
	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.computeTrends(scanCtx, from, to, width, key, cacheable)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.TrendsResponse), nil
}

func (s *Service) computeTrends(ctx context.Context, from, to time.Time, width int64, key string, cacheable bool) (*models.TrendsResponse, error) {
	rows, err := s.trendSource.RangeForTrends(ctx, from, to)
	if err != nil {
		return nil, err
	}

	resp := &models.TrendsResponse{
		BucketSeconds: width,
		From:          models.FormatTimestamp(from),
		To:            models.FormatTimestamp(to),
		Series:        Downsample(rows, width),
	}

	if cacheable {
		s.storeTrends(ctx, key, resp)
	}
	return resp, nil
}

func (s *Service) cachedTrends(ctx context.Context, key string) (*models.TrendsResponse, bool) {
	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		nuts.L.Warnf("[TrendService] Cache read failed for %s: %v", key, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var resp models.TrendsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		nuts.L.Warnf("[TrendService] Discarding unreadable cache entry %s: %v", key, err)
		return nil, false
	}
	return &resp, true
}

func (s *Service) storeTrends(ctx context.Context, key string, resp *models.TrendsResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		nuts.L.Warnf("[TrendService] Failed to encode trends for cache: %v", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.trends.CacheTTL); err != nil {
		nuts.L.Warnf("[TrendService] Cache write failed for %s: %v", key, err)
	}
}
