// FilePath: server/weatherhub/api/resources/api.resource.system.go
package resources

import (
	"context"
	"net/http"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/monitoring"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/service"
	nuts "github.com/vaudience/go-nuts"
)

// SystemHandlers serves health and ingestion statistics.
type SystemHandlers struct {
	service *service.Service
	stats   *monitoring.Service
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} healthResponse
// @Failure 503 {object} errors.APIError
// @Router /health [get]
func (h *SystemHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.service.Ping(ctx); err != nil {
		respondWithError(w, errors.NewUnavailableError("store unavailable", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: nuts.GetVersion(),
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// @Summary Ingestion statistics
// @Tags system
// @Produce json
// @Success 200 {object} monitoring.Snapshot
// @Router /stats [get]
func (h *SystemHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.stats.Snapshot())
}
