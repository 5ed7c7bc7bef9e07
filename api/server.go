package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/OldStager01/elastic-orchestrator/api/handlers"
	"github.com/OldStager01/elastic-orchestrator/api/middleware"
	"github.com/OldStager01/elastic-orchestrator/api/websocket"
	"github.com/OldStager01/elastic-orchestrator/internal/auth"
	"github.com/OldStager01/elastic-orchestrator/internal/metrics"
	"github.com/OldStager01/elastic-orchestrator/internal/opstring"
	"github.com/OldStager01/elastic-orchestrator/pkg/config"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
	"github.com/gin-gonic/gin"
)

const maxDescriptorBytes = 1 << 20

// Dependencies are the collaborators the API serves. Only Orchestrator is
// required.
type Dependencies struct {
	Orchestrator handlers.Orchestrator
	Defaults     opstring.Defaults
	Events       <-chan *models.Event
	Recent       handlers.RecentEvents
	History      handlers.EventHistory
	HealthChecks map[string]handlers.HealthCheck
	Ready        func() bool
	Metrics      *metrics.Metrics
}

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.APIConfig
	deps        Dependencies
	authService *auth.Service
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
}

func NewServer(cfg config.APIConfig, wsCfg *config.WebSocketConfig, deps Dependencies) *Server {
	if cfg.JWTSecret == "" || cfg.JWTSecret == config.DefaultJWTSecret {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := []auth.Option{}
	if cfg.JWTIssuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.JWTIssuer))
	}

	s := &Server{
		router:      gin.New(),
		config:      cfg,
		deps:        deps,
		authService: auth.NewService(cfg.JWTSecret, cfg.JWTDuration, opts...),
		wsHub:       websocket.NewHub(wsCfg),
	}

	s.setupMiddleware()
	s.setupRoutes()

	go s.wsHub.Run()

	if deps.Events != nil {
		s.wsBridge = websocket.NewEventBridge(s.wsHub, deps.Events)
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.CORS(middleware.CORSFromConfig(s.config.CORS)))
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestLogger("/health", "/health/live", "/health/ready", "/metrics"))
	s.router.Use(middleware.RateLimit(middleware.NewRateLimiter(s.config.RateLimit, time.Minute)))
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.HealthChecks, s.deps.Ready)
	authHandler := handlers.NewAuthHandler(auth.Credentials{
		Username:     s.config.AdminUser,
		PasswordHash: s.config.AdminPassHash,
	}, s.authService)
	opstringHandler := handlers.NewOpStringHandler(s.deps.Orchestrator, s.deps.Defaults)
	serviceHandler := handlers.NewServiceHandler(s.deps.Orchestrator, 0)
	eventsHandler := handlers.NewEventsHandler(s.deps.Recent, s.deps.History, &s.config)

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	s.router.POST("/auth/token", middleware.AuthRateLimiter(), authHandler.Token)

	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	// reads are open, mutations need a token
	s.router.GET("/opstrings", opstringHandler.List)
	s.router.GET("/opstrings/:name", opstringHandler.Get)
	s.router.GET("/services/:opstring/:element", serviceHandler.Get)
	s.router.GET("/services/:opstring/:element/policy-events", eventsHandler.PolicyEvents)
	s.router.GET("/events/recent", eventsHandler.Recent)

	endpointLimits := middleware.NewEndpointRateLimiter()
	endpointLimits.AddEndpoint("/opstrings", 10, time.Minute)
	endpointLimits.AddEndpoint("/opstrings/:name", 10, time.Minute)

	protected := s.router.Group("/")
	protected.Use(middleware.JWTAuth(s.authService))
	protected.Use(endpointLimits.Middleware())
	{
		protected.POST("/opstrings", middleware.RequestSizeLimit(maxDescriptorBytes), opstringHandler.Deploy)
		protected.DELETE("/opstrings/:name", opstringHandler.Undeploy)
		protected.PUT("/services/:opstring/:element/sla", serviceHandler.UpdateSLA)
		protected.PUT("/services/:opstring/:element/planned", serviceHandler.SetPlanned)
	}
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}
	s.wsHub.Stop()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}

func (s *Server) AuthService() *auth.Service {
	return s.authService
}
