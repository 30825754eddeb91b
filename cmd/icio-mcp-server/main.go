package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/triage-ai/icio-mcp/internal/api"
	"github.com/triage-ai/icio-mcp/internal/config"
	"github.com/triage-ai/icio-mcp/internal/executor"
	"github.com/triage-ai/icio-mcp/internal/healthcheck"
	"github.com/triage-ai/icio-mcp/internal/metrics"
	"github.com/triage-ai/icio-mcp/internal/operations"
	"github.com/triage-ai/icio-mcp/internal/reference"
	"github.com/triage-ai/icio-mcp/internal/server"
	"github.com/triage-ai/icio-mcp/internal/storage"
	"github.com/triage-ai/icio-mcp/internal/validate"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Logger
	logger := mustBuildLogger(config.EnvOrDefault("ICIO_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	if err := run(logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Info("starting icio mcp server",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("health_grpc_addr", cfg.HealthGRPCAddr()),
		zap.Duration("health_probe_interval", cfg.HealthProbeInterval),
	)

	// Postgres
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("postgres connected")

	// Operations
	catalog, err := operations.LoadCatalog()
	if err != nil {
		return fmt.Errorf("load operation catalogue: %w", err)
	}
	exec := executor.New(db, logger)
	validator := validate.NewValidator(reference.NewPostgresStore(exec))
	dispatcher := operations.NewDispatcher(catalog, operations.NewBinder(validator), exec, logger)

	// Storage: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// MCP over streamable HTTP
	tools := server.NewToolServer(catalog, dispatcher, writer, m, logger)
	mcpHandler := mcpserver.NewStreamableHTTPServer(tools.MCPServer(),
		mcpserver.WithStateLess(true),
	)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(&api.Dependencies{
			MCP:            mcpHandler,
			Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			AllowedHosts:   cfg.AllowedHosts,
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Health status follows the database probe
	healthServer := health.NewServer()
	healthServer.SetServingStatus(healthcheck.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	prober := healthcheck.NewProber(exec, healthServer, m, cfg.HealthProbeInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return prober.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if addr := cfg.HealthGRPCAddr(); addr != "" {
		grpcServer := grpc.NewServer(
			grpc.KeepaliveParams(keepalive.ServerParameters{
				MaxConnectionIdle: 5 * time.Minute,
				Time:              30 * time.Second,
				Timeout:           5 * time.Second,
			}),
			grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
				MinTime:             10 * time.Second,
				PermitWithoutStream: true,
			}),
		)
		healthpb.RegisterHealthServer(grpcServer, healthServer)

		// Enable reflection for debugging with grpcurl
		reflection.Register(grpcServer)

		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on health addr %s: %w", addr, err)
		}

		g.Go(func() error {
			logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
