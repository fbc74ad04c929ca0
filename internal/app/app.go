package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/shopcart/internal/health"
	"github.com/vladislavdragonenkov/shopcart/internal/metrics"
	"github.com/vladislavdragonenkov/shopcart/internal/service/cart"
	"github.com/vladislavdragonenkov/shopcart/internal/version"
)

const shutdownTimeout = 5 * time.Second

// App связывает сервис корзин с выбранной инфраструктурой.
type App struct {
	cfg    Config
	deps   *runtimeDependencies
	carts  *cart.Service
	health *healthcheck.Handler
	logger *log.Entry
}

// New инициализирует зависимости и собирает сервис корзин.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []cart.Option{
		cart.WithMetrics(metrics.NewCartMetrics()),
		cart.WithCacheTTL(cfg.CartCacheTTL),
		cart.WithLogger(log.WithField("component", "cart")),
	}
	if deps.publisher != nil {
		opts = append(opts, cart.WithPublisher(deps.publisher))
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	if deps.cacheChecker != nil {
		healthHandler.RegisterOptional("cache", deps.cacheChecker)
	}

	return &App{
		cfg:    cfg,
		deps:   deps,
		carts:  cart.NewService(deps.carts, deps.cache, deps.catalog, deps.discounts, opts...),
		health: healthHandler,
		logger: logger,
	}, nil
}

// Carts возвращает оркестратор корзин.
func (a *App) Carts() *cart.Service { return a.carts }

// Health возвращает обработчик проверок здоровья.
func (a *App) Health() *healthcheck.Handler { return a.health }

// Close освобождает соединения с хранилищем, кэшем и брокером.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	return a.deps.closeFn()
}

// Run поднимает сервис и блокируется до отмены ctx или ошибки gRPC сервера.
func Run(ctx context.Context, cfg Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.logger.WithError(closeErr).Warn("failed to close dependencies")
		}
	}()
	return a.Serve(ctx)
}

// Serve запускает gRPC health и HTTP сервер метрик.
func (a *App) Serve(ctx context.Context) error {
	logger := a.logger

	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	metricsSrv, err := startMetricsServer(ctx, a.cfg.MetricsAddr, logger, a.health)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		pollReadiness(pollCtx, a.health, healthServer, a.cfg.HealthPollInterval, logger)
	}()
	defer func() {
		stopPolling()
		<-pollDone
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC server listening on %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping gRPC server")
		healthServer.Shutdown()
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop timed out, forcing stop")
			grpcServer.Stop()
		}
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// pollReadiness синхронизирует статус gRPC health с результатами HTTP проверок.
func pollReadiness(ctx context.Context, checks *healthcheck.Handler, server *health.Server, interval time.Duration, logger *log.Entry) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if !checks.Ready(ctx) {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if ctx.Err() != nil {
			return
		}
		server.SetServingStatus("", status)
		server.SetServingStatus(version.ServiceName, status)
		if status != healthpb.HealthCheckResponse_SERVING {
			logger.Warn("service is not ready")
		}
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проверок.
// Порт занимается синхронно, чтобы ошибка адреса вернулась вызывающему.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{Addr: lis.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("metrics available at %s/metrics", srv.Addr)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv, nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
