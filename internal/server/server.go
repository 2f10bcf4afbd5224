// FilePath: server/weatherhub/internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/itsatony/w4b_v3/server/weatherhub/api"
	"github.com/itsatony/w4b_v3/server/weatherhub/api/middleware"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/cache"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/config"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/database"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/ingest"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/monitoring"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/repository/sqlite"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/sandbox"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/service"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/transport"
	nuts "github.com/vaudience/go-nuts"
	"golang.org/x/sync/errgroup"
)

// Server owns the store, the broker and the HTTP API.
type Server struct {
	config     *config.Config
	srv        *http.Server
	db         database.DB
	pool       *database.ReadOnlyPool
	cache      cache.Cache
	service    *service.Service
	pipeline   *ingest.Pipeline
	broker     *transport.Broker
	monitoring *monitoring.Service
}

// New opens the store and wires every component. Nothing listens until Run.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{config: cfg}
	if err := s.initialize(ctx); err != nil {
		s.closeStores()
		return nil, err
	}
	return s, nil
}

func (s *Server) initialize(ctx context.Context) error {
	db, err := database.NewSQLiteDB(s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.db = db

	telemetry, err := sqlite.NewTelemetryRepository(db)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry repository: %w", err)
	}

	// The read-only pool opens the file after the schema exists.
	pool, err := database.OpenReadOnly(database.ReadOnlyConfig{
		Path:     db.Path(),
		PoolSize: s.config.Sandbox.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("failed to open query pool: %w", err)
	}
	s.pool = pool

	trendCache, err := cache.New(ctx, s.config.Redis)
	if err != nil {
		nuts.L.Warnf("[Server] Redis unavailable, trend caching disabled: %v", err)
		trendCache = cache.Nop{}
	}
	s.cache = trendCache

	s.service = service.New(telemetry, sandbox.New(pool, s.config.Sandbox), trendCache, s.config.Trends)
	if err := s.service.Validate(); err != nil {
		return err
	}

	s.monitoring = monitoring.NewService(monitoring.Config{LogEvery: 1000})
	s.pipeline = ingest.New(telemetry)
	s.setupEventHandlers()

	broker, err := transport.NewBroker(s.config.MQTT)
	if err != nil {
		return fmt.Errorf("failed to create broker: %w", err)
	}
	s.broker = broker

	router := api.NewRouter(s.service, s.monitoring, middleware.TokenConfig{Token: s.config.Sandbox.Token}, s.config.Sandbox.MaxChars)
	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.wrapHandler(router),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}
	return nil
}

// wrapHandler adds recovery, access logging and CORS around the router.
func (s *Server) wrapHandler(h http.Handler) http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins(s.config.Server.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.LoggingHandler(os.Stdout, cors(h)),
	)
}

func (s *Server) setupEventHandlers() {
	for _, event := range []string{
		ingest.EventStored,
		ingest.EventDuplicate,
		ingest.EventDropped,
		ingest.EventFailed,
	} {
		event := event
		s.pipeline.OnEvent(event, "monitoring", func(topic string) {
			s.monitoring.RecordEvent(event)
		})
	}
}

// Start runs the server until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves MQTT and HTTP and ingests envelopes until ctx is done, then
// shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	defer s.closeStores()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.broker.Serve(gctx)
	})

	g.Go(func() error {
		return s.pipeline.Run(gctx, s.broker.Messages())
	})

	g.Go(func() error {
		nuts.L.Infof("[Server] Starting server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	err := g.Wait()
	if err == nil {
		nuts.L.Infof("[Server] Server shut down successfully")
	}
	return err
}

func (s *Server) shutdown() error {
	nuts.L.Infof("[Server] Shutting down server...")

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

func (s *Server) closeStores() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			nuts.L.Warnf("[Server] Error closing cache: %v", err)
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			nuts.L.Warnf("[Server] Error closing query pool: %v", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			nuts.L.Warnf("[Server] Error closing store: %v", err)
		}
	}
}

// Monitoring exposes the ingestion counters.
func (s *Server) Monitoring() *monitoring.Service {
	return s.monitoring
}
