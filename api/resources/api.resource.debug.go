// FilePath: server/weatherhub/api/resources/api.resource.debug.go
package resources

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/models"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/service"
	nuts "github.com/vaudience/go-nuts"
)

const defaultQueryBodyBytes = 64 << 10

// DebugHandlers serves packet diagnostics and the query sandbox.
type DebugHandlers struct {
	service      *service.Service
	maxBodyBytes int64
}

// queryBodyLimit bounds a query request body for queries of up to
// maxChars characters. A JSON-escaped rune takes at most 12 bytes.
func queryBodyLimit(maxChars int) int64 {
	if maxChars <= 0 {
		return defaultQueryBodyBytes
	}
	return int64(maxChars)*12 + 1024
}

// @Summary List recent packets
// @Description List recent packets newest first, optionally only failed ones
// @Tags debug
// @Produce json
// @Param only_errors query bool false "Only packets flagged as errors"
// @Param limit query int false "Maximum packets (default 50, max 1000)"
// @Success 200 {array} models.Packet
// @Failure 400 {object} errors.APIError
// @Router /debug [get]
func (h *DebugHandlers) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var filter models.DiagnosticsFilter
	if err := decodeQuery(r, &filter); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	packets, err := h.service.Diagnostics(r.Context(), filter)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, packets)
}

// @Summary Run a read-only query
// @Description Run a single SELECT against the store on a read-only connection
// @Tags debug
// @Accept json
// @Produce json
// @Param query body models.QueryRequest true "Query"
// @Success 200 {object} models.QueryResult
// @Failure 400 {object} errors.APIError
// @Failure 401 {object} errors.APIError
// @Failure 408 {object} errors.APIError
// @Failure 413 {object} errors.APIError
// @Router /debug/sql [post]
// @Security BearerAuth
func (h *DebugHandlers) RunQuery(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var req models.QueryRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			respondWithError(w, errors.NewSandboxError(errors.ErrorTypeTooLarge, "request body too large", err).WithRequestID(requestID))
			return
		}
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	result, err := h.service.RunDebugQuery(r.Context(), req.SQL)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
