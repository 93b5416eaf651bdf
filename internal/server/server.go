package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"devfest/internal/camera"
	"devfest/internal/config"
	"devfest/internal/draw"
	"devfest/internal/events"
	"devfest/internal/qr"
	"devfest/internal/redemption"
	"devfest/internal/store"
)

const (
	shutdownTimeout     = 5 * time.Second
	deviceWatchInterval = 5 * time.Second
)

// RewardSource lists rewards and eligible redemptions from the event backend.
type RewardSource interface {
	ListRewards(ctx context.Context, token string) ([]redemption.Reward, error)
	ListRedemptions(ctx context.Context, token, rewardID string) ([]redemption.Redemption, error)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Cameras *camera.Manager
	Engine  *draw.Engine
	Hub     *events.Hub
	// Rewards may be nil when no backend is configured.
	Rewards RewardSource
	// Closers run last on shutdown.
	Closers []func() error
}

// Server owns the HTTP listener and the long-running collaborators.
type Server struct {
	config     *config.Config
	deps       Deps
	router     *gin.Engine
	httpServer *http.Server
}

// New wires every collaborator from cfg.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	platform, err := camera.NewFactory().Create(cfg.Camera.Backend, camera.Settings{
		DeviceGlob: cfg.Camera.DeviceGlob,
		Width:      cfg.Camera.Width,
		Height:     cfg.Camera.Height,
		FPS:        cfg.Camera.FPS,
	})
	if err != nil {
		return nil, fmt.Errorf("camera backend: %w", err)
	}

	var (
		st      store.Store
		sinks   []events.Publisher
		closers []func() error
	)
	switch cfg.Store.Backend {
	case "redis":
		client, err := store.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		st = store.NewRedisStore(client, "")
		sinks = append(sinks, events.NewRedisPublisher(client, cfg.Redis.StreamKey, 0))
		closers = append(closers, client.Close)
	default:
		st = store.NewMemoryStore()
	}

	hub := events.NewHub(nil, sinks...)

	cameras := camera.NewManager(platform, qr.NewZXingDecoder(), hub.Handler, camera.ManagerConfig{
		Session: camera.SessionConfig{
			AccessTimeout: cfg.Camera.AccessTimeout,
			SettleDelay:   cfg.Camera.SettleDelay,
			ScanCooldown:  cfg.Camera.ScanCooldown,
		},
		WatchInterval: deviceWatchInterval,
	})

	engine := draw.NewEngine(st, st, draw.EngineConfig{
		SpinDuration:  cfg.Draw.SpinDuration,
		FullRotations: cfg.Draw.FullRotations,
		FrameInterval: cfg.Draw.FrameInterval,
	})

	deps := Deps{
		Cameras: cameras,
		Engine:  engine,
		Hub:     hub,
		Closers: closers,
	}
	if cfg.API.BaseURL != "" {
		deps.Rewards = redemption.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
	} else {
		log.Warn().Msg("API_URL not set, remote pools and rewards are disabled")
	}

	log.Info().
		Str("camera_backend", cfg.Camera.Backend).
		Str("store_backend", cfg.Store.Backend).
		Msg("collaborators initialised")

	return NewWithDeps(cfg, deps)
}

// NewWithDeps builds the server around existing collaborators. Requests under /api/v1 are
// validated against the embedded OpenAPI description.
func NewWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	doc, err := LoadOpenAPI(context.Background())
	if err != nil {
		return nil, err
	}
	validate, err := RequestValidator(doc)
	if err != nil {
		return nil, err
	}

	s := &Server{config: cfg, deps: deps}
	s.router = s.newRouter(validate)
	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) newRouter(validate gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery())
	router.Use(AccessLog())

	corsConfig := cors.DefaultConfig()
	if len(s.config.Server.CORSOrigins) == 0 || (len(s.config.Server.CORSOrigins) == 1 && s.config.Server.CORSOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.config.Server.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", roleHeader, requestHeader}
	corsConfig.ExposeHeaders = []string{requestHeader}
	router.Use(cors.New(corsConfig))

	router.Use(SessionMiddleware())

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	v1.GET("/status", s.handleStatus)

	scanning := v1.Group("")
	scanning.Use(RequireRole(RoleBoothStaff, RoleOrganizer), validate)
	{
		scanning.GET("/cameras", s.handleCameras)

		scanners := scanning.Group("/scanners")
		scanners.GET("/:id", s.handleScannerSnapshot)
		scanners.POST("/:id/start", s.handleScannerStart)
		scanners.POST("/:id/switch", s.handleScannerSwitch)
		scanners.POST("/:id/stop", s.handleScannerStop)
		scanners.GET("/:id/events", s.handleScannerEvents)
	}

	draws := v1.Group("/draws")
	draws.Use(RequireRole(RoleOrganizer), validate)
	{
		draws.GET("/rewards", s.handleRewards)
		draws.POST("/:reward/pool", s.handleLoadPool)
		draws.GET("/:reward/pool", s.handleGetPool)
		draws.GET("/:reward/wheel.png", s.handleWheel)
		draws.POST("/:reward/spin", s.handleSpin)
		draws.GET("/:reward/winners", s.handleWinners)
	}

	return router
}

// Start serves until ctx ends, SIGINT or SIGTERM, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	if err := s.deps.Cameras.Start(ctx); err != nil {
		return fmt.Errorf("camera manager: %w", err)
	}

	shutdownCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.config.ServerAddress()).Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		log.Info().Msg("context cancelled")
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("signal received")
	case err := <-shutdownCh:
		_ = s.stopCollaborators()
		return err
	}

	return s.Shutdown()
}

// Shutdown drains HTTP requests within a timeout and stops all scan sessions.
func (s *Server) Shutdown() error {
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// SSE streams end once the hub closes
	s.deps.Hub.Close()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.stopCollaborators(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	log.Info().Msg("server stopped")
	return nil
}

func (s *Server) stopCollaborators() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.deps.Cameras.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("camera shutdown: %w", err))
	}
	s.deps.Hub.Close()
	for _, closeFn := range s.deps.Closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
