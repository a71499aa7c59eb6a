package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/GriffinCanCode/poolguard/internal/alerting"
	"github.com/GriffinCanCode/poolguard/internal/api/grpchealth"
	apihttp "github.com/GriffinCanCode/poolguard/internal/api/http"
	"github.com/GriffinCanCode/poolguard/internal/api/middleware"
	"github.com/GriffinCanCode/poolguard/internal/database"
	"github.com/GriffinCanCode/poolguard/internal/database/postgres"
	redisdb "github.com/GriffinCanCode/poolguard/internal/database/redis"
	"github.com/GriffinCanCode/poolguard/internal/infrastructure/config"
	"github.com/GriffinCanCode/poolguard/internal/infrastructure/logging"
	"github.com/GriffinCanCode/poolguard/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolguard/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/poolguard/internal/pool"
)

// Target is one guarded pool.
type Target struct {
	Name       string
	Monitor    *pool.Monitor
	Queries    *pool.QueryMonitor
	Controller *resilience.Controller
	Pinger     database.Pinger
}

// Ping checks the target's database through its controller.
func (t *Target) Ping(ctx context.Context) error {
	return database.ResilientConnect(ctx, t.Controller, t.Pinger)
}

// Server owns every pool and both health servers.
type Server struct {
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	checker *grpchealth.Checker
	alerts  pool.AlertSink

	targets []*Target
	closers []func() error

	routerOnce sync.Once
	router     *gin.Engine
}

// NewServer builds a server from cfg and connects the configured pools.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger := logging.NewWithLevel(cfg.Logging.Level, cfg.Logging.Development)

	logger.Info("Initializing poolguard",
		zap.String("port", cfg.Server.Port),
		zap.Bool("postgres", cfg.Database.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled),
	)

	s := New(cfg, logger)
	if err := s.Connect(ctx); err != nil {
		s.Close()
		return nil, err
	}

	logger.Info("Server initialized successfully", zap.Int("targets", len(s.targets)))
	return s, nil
}

// New builds a server without opening any pool. Add pools with Connect or
// AddTarget before serving.
func New(cfg *config.Config, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}

	tracing.Init()

	var names []string
	if cfg.Database.Enabled {
		names = append(names, "postgres")
	}
	if cfg.Redis.Enabled {
		names = append(names, "redis")
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: monitoring.NewMetrics(),
		checker: grpchealth.NewChecker(logger.Component("grpc-health"), names...),
	}
	s.alerts = s.alertSink()
	return s
}

// Connect opens the pools enabled in configuration. Postgres must answer
// within Database.WaitTimeout; Redis is optional and only logged when down.
func (s *Server) Connect(ctx context.Context) error {
	if s.config.Database.Enabled {
		if err := s.openPostgres(ctx); err != nil {
			return err
		}
	}
	if s.config.Redis.Enabled {
		s.openRedis(ctx)
	}
	return nil
}

func (s *Server) openPostgres(ctx context.Context) error {
	db := s.config.Database
	tracer := postgres.NewTracer()

	p, err := postgres.Open(ctx, postgres.Options{
		URL:            db.URL,
		MaxConns:       db.MaxConns,
		MinConns:       db.MinConns,
		ConnectTimeout: db.ConnectTimeout,
	}, tracer)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func() error {
		p.Close()
		return nil
	})

	t := s.AddTarget("postgres", postgres.NewStatsProvider(p), database.PingerFunc(p.Ping), postgres.Classify)
	tracer.Attach(t.Monitor)
	tracer.AttachQueries(t.Queries)

	interval := max(min(db.ConnectTimeout, time.Second), 100*time.Millisecond)
	return database.WaitForDatabase(ctx, t.Pinger, db.WaitTimeout, interval, s.logger.Target("database", "postgres"))
}

func (s *Server) openRedis(ctx context.Context) {
	rc := s.config.Redis
	client := redisdb.Open(redisdb.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		PoolSize: rc.PoolSize,
	}, nil)
	s.closers = append(s.closers, client.Close)

	ping := database.PingerFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	t := s.AddTarget("redis", redisdb.NewStatsProvider(client), ping, redisdb.Classify)
	client.AddHook(redisdb.NewHook(t.Monitor).WithQueries(t.Queries))

	if err := t.Ping(ctx); err != nil {
		s.logger.Warn("Redis is not reachable yet", zap.String("addr", rc.Addr), zap.Error(err))
		return
	}
	s.logger.Info("Connected to Redis", zap.String("addr", rc.Addr))
}

// AddTarget registers a pool under name. classify may be nil. Targets must
// be added before Handler or Run is called.
func (s *Server) AddTarget(name string, provider pool.StatsProvider, pinger database.Pinger, classify resilience.Classifier) *Target {
	log := s.logger.Target("resilience", name)

	settings := s.config.BreakerSettings()
	settings.OnStateChange = func(target string, from, to resilience.State) {
		s.metrics.ObserveStateChange(target, from, to)
		s.checker.ObserveStateChange(target, from, to)
		log.Warn("Circuit breaker state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}

	retry := s.config.RetryConfig()
	if classify != nil {
		retry.Classifier = resilience.ChainClassifiers(classify, resilience.Classify)
	}

	controller := resilience.NewController(resilience.NewPolicy(retry), resilience.New(name, settings)).
		WithLogger(s.logger.Component("resilience")).
		WithObserver(s.metrics).
		WithTracer(tracing.Tracer())

	monitor := pool.NewMonitor(provider, s.config.MonitorConfig(name)).
		WithLogger(s.logger.Component("pool")).
		WithAlertSink(s.alerts).
		WithSampleHook(func(snap pool.Snapshot) {
			s.metrics.ObserveSnapshot(snap)
			s.checker.ObserveSnapshot(snap)
		})

	queries := pool.NewQueryMonitor(s.config.QueryConfig()).
		WithLogger(s.logger.Target("queries", name)).
		WithQueryHook(func(rec pool.QueryRecord) {
			s.metrics.ObserveQuery(name, rec)
		})

	t := &Target{
		Name:       name,
		Monitor:    monitor,
		Queries:    queries,
		Controller: controller,
		Pinger:     pinger,
	}
	s.targets = append(s.targets, t)
	return t
}

// Targets returns the registered targets.
func (s *Server) Targets() []*Target {
	return s.targets
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// alertSink builds the delivery chain for unhealthy snapshots. Nil means
// alerts are only logged by the monitors.
func (s *Server) alertSink() pool.AlertSink {
	ac := s.config.Alert
	if ac.WebhookURL == "" {
		return nil
	}

	logger := s.logger.Component("alerting")
	webhook := alerting.NewWebhook(alerting.WebhookConfig{
		URL:        ac.WebhookURL,
		Timeout:    ac.Timeout,
		MaxRetries: ac.MaxRetries,
	}, logger)

	logger.Info("Alert webhook enabled",
		zap.Duration("interval", ac.Interval),
		zap.Int("burst", ac.Burst),
	)
	return alerting.NewThrottle(alerting.Fanout(webhook.Send), ac.Interval, ac.Burst, logger).Sink()
}

// Handler returns the HTTP health API.
func (s *Server) Handler() http.Handler {
	s.routerOnce.Do(func() {
		s.router = s.buildRouter()
	})
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(s.logger.Component("http")))
	router.Use(tracing.HTTPMiddleware())
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = s.config.RateLimit.RequestsPerSecond
		rl.Burst = s.config.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	targets := make([]apihttp.Target, 0, len(s.targets))
	for _, t := range s.targets {
		targets = append(targets, apihttp.Target{
			Name:    t.Name,
			Monitor: t.Monitor,
			Queries: t.Queries,
			Breaker: t.Controller.Breaker(),
			Ping:    t.Ping,
		})
	}
	apihttp.NewHandlers(targets, s.logger.Component("http")).Register(router)

	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	return router
}

// Run samples every pool and serves the health API until ctx is cancelled,
// then drains both servers within Server.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	for _, t := range s.targets {
		if err := t.Monitor.Start(ctx, s.config.Monitor.Interval); err != nil {
			s.stopMonitors()
			return fmt.Errorf("failed to start monitor for %s: %w", t.Name, err)
		}
	}
	defer s.stopMonitors()

	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	httpLn, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var (
		grpcSrv *grpc.Server
		grpcLn  net.Listener
	)
	if s.config.GRPC.Enabled {
		grpcAddr := net.JoinHostPort(s.config.Server.Host, s.config.GRPC.Port)
		grpcLn, err = net.Listen("tcp", grpcAddr)
		if err != nil {
			httpLn.Close()
			return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor()))
		s.checker.Register(grpcSrv)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", httpLn.Addr().String()))
		if err := httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcSrv != nil {
		g.Go(func() error {
			s.logger.Info("Starting gRPC health server", zap.String("addr", grpcLn.Addr().String()))
			if err := grpcSrv.Serve(grpcLn); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Server.ShutdownTimeout)
		defer cancel()

		s.checker.Shutdown()
		if grpcSrv != nil {
			stopGRPC(shutdownCtx, grpcSrv)
		}
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// stopGRPC drains grpcSrv, forcing it closed when ctx expires. Health Watch
// streams never end on their own.
func stopGRPC(ctx context.Context, srv *grpc.Server) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.Stop()
		<-done
	}
}

func (s *Server) stopMonitors() {
	for _, t := range s.targets {
		t.Monitor.Stop()
	}
}

// Close releases every pool and flushes the logger.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.stopMonitors()

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Error("Failed to close pool", zap.Error(err))
			errs = append(errs, err)
		}
	}
	s.closers = nil

	// Sync logger before exit
	s.logger.Sync()

	return errors.Join(errs...)
}
