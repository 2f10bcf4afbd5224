// FilePath: server/weatherhub/api/resources/api.resource.telemetry.go
package resources

import (
	"net/http"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/models"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/service"
	nuts "github.com/vaudience/go-nuts"
)

// TelemetryHandlers serves the latest reading and trends.
type TelemetryHandlers struct {
	service *service.Service
}

type trendsQuery struct {
	From  string `schema:"from"`
	To    string `schema:"to"`
	Hours int    `schema:"hours"`
	Limit int    `schema:"limit"`
}

// @Summary Get the latest reading
// @Description Get the newest packet and its sensor reading, if any
// @Tags telemetry
// @Produce json
// @Success 200 {object} models.LatestReading
// @Failure 404 {object} errors.APIError
// @Router /latest [get]
func (h *TelemetryHandlers) GetLatest(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	latest, err := h.service.Latest(r.Context())
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, latest)
}

// @Summary Get downsampled trends
// @Description Get bucketed means per metric, either for an explicit range or a lookback window
// @Tags telemetry
// @Produce json
// @Param from query string false "Range start (ISO-8601)"
// @Param to query string false "Range end, exclusive (ISO-8601)"
// @Param hours query int false "Lookback window in hours (default 24)"
// @Param limit query int false "Maximum points per series"
// @Success 200 {object} models.TrendsResponse
// @Failure 400 {object} errors.APIError
// @Router /trends [get]
func (h *TelemetryHandlers) GetTrends(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var q trendsQuery
	if err := decodeQuery(r, &q); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	var (
		resp *models.TrendsResponse
		err  error
	)
	if q.From != "" || q.To != "" {
		from, to, perr := parseRange(q.From, q.To)
		if perr != nil {
			respondWithError(w, perr.WithRequestID(requestID))
			return
		}
		resp, err = h.service.Trends(r.Context(), from, to)
	} else {
		if q.Hours < 0 || q.Limit < 0 {
			respondWithError(w, errors.NewValidationError("hours and limit must not be negative", nil).WithRequestID(requestID))
			return
		}
		resp, err = h.service.TrendsLookback(r.Context(), q.Hours, q.Limit)
	}
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

var rangeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, *errors.APIError) {
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, errors.NewInvalidRangeError("both 'from' and 'to' are required", nil)
	}
	from, err := parseRangeTime(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.NewInvalidRangeError("invalid 'from' timestamp", err)
	}
	to, err := parseRangeTime(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.NewInvalidRangeError("invalid 'to' timestamp", err)
	}
	return from, to, nil
}

func parseRangeTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range rangeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
