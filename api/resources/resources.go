// FilePath: server/weatherhub/api/resources/resources.go
package resources

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/monitoring"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/service"
	nuts "github.com/vaudience/go-nuts"
)

// Resources holds all HTTP resource handlers
type Resources struct {
	Telemetry *TelemetryHandlers
	Debug     *DebugHandlers
	System    *SystemHandlers
}

// NewResources creates a new Resources instance. maxQueryChars is the
// sandbox character limit and sizes the query body limit.
func NewResources(svc *service.Service, stats *monitoring.Service, maxQueryChars int) *Resources {
	return &Resources{
		Telemetry: &TelemetryHandlers{service: svc},
		Debug:     &DebugHandlers{service: svc, maxBodyBytes: queryBodyLimit(maxQueryChars)},
		System:    &SystemHandlers{service: svc, stats: stats},
	}
}

var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// decodeQuery fills dst from the URL query string.
func decodeQuery(r *http.Request, dst interface{}) error {
	return queryDecoder.Decode(dst, r.URL.Query())
}

func respondWithError(w http.ResponseWriter, err *errors.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
	if err.Code >= http.StatusInternalServerError {
		nuts.L.Errorf("[API] %s", err.Error())
		return
	}
	nuts.L.Warnf("[API] %s", err.Error())
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
