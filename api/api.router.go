package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/itsatony/w4b_v3/server/weatherhub/api/middleware"
	"github.com/itsatony/w4b_v3/server/weatherhub/api/resources"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/monitoring"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/service"
)

type Router struct {
	router    *mux.Router
	auth      *middleware.TokenMiddleware
	resources *resources.Resources
}

func NewRouter(svc *service.Service, stats *monitoring.Service, tokenConfig middleware.TokenConfig, maxQueryChars int) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		auth:      middleware.NewTokenMiddleware(tokenConfig),
		resources: resources.NewResources(svc, stats, maxQueryChars),
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	api := r.router.PathPrefix("/api").Subrouter()

	// Public routes
	api.HandleFunc("/health", r.resources.System.HealthCheck).Methods(http.MethodGet)
	api.HandleFunc("/stats", r.resources.System.Stats).Methods(http.MethodGet)

	// Telemetry
	api.HandleFunc("/latest", r.resources.Telemetry.GetLatest).Methods(http.MethodGet)
	api.HandleFunc("/trends", r.resources.Telemetry.GetTrends).Methods(http.MethodGet)

	// Debug
	api.HandleFunc("/debug", r.resources.Debug.GetDiagnostics).Methods(http.MethodGet)

	// Protected routes
	protected := api.PathPrefix("/debug/sql").Subrouter()
	protected.Use(r.auth.Authenticate)
	protected.HandleFunc("", r.resources.Debug.RunQuery).Methods(http.MethodPost)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
