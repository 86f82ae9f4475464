// cmd/drfailover/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FairForge/drfailover/internal/api"
	"github.com/FairForge/drfailover/internal/cloud"
	"github.com/FairForge/drfailover/internal/config"
	"github.com/FairForge/drfailover/internal/ha"
	"github.com/FairForge/drfailover/internal/logging"
	"github.com/FairForge/drfailover/internal/metrics"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

const (
	modeLambda = "lambda"
	modeServe  = "serve"
	modeOnce   = "once"
)

func main() {
	mode := flag.String("mode", defaultMode(), "run mode: lambda, serve or once")
	eventFile := flag.String("event", "", "event payload file for -mode once")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(&logging.LoggerConfig{Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients, err := cloud.NewClients(ctx, cloud.Options{
		Region:          cfg.Failover.TargetRegion,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		SessionToken:    cfg.AWS.SessionToken,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create aws clients", zap.Error(err))
	}

	m := metrics.NewMetrics()
	orch, err := ha.NewDROrchestrator(&cfg.Failover, clients.RDS, clients.EKS, logger, ha.WithRecorder(m))
	if err != nil {
		logger.Fatal("failed to create orchestrator", zap.Error(err))
	}

	logger.Info("dr failover orchestrator configured",
		zap.String("mode", *mode),
		zap.String("global_cluster", cfg.Failover.GlobalClusterID),
		zap.String("eks_cluster", cfg.Failover.EKSClusterName),
		zap.String("nodegroup", cfg.Failover.NodeGroupName),
		zap.Int32("target_capacity", cfg.Failover.TargetCapacity),
		zap.String("target_region", cfg.Failover.TargetRegion),
	)

	switch *mode {
	case modeLambda:
		lambda.StartWithOptions(lambdaHandler(orch), lambda.WithContext(ctx))

	case modeServe:
		serve(ctx, cfg, logger, orch, m)

	case modeOnce:
		event := json.RawMessage(`{}`)
		if *eventFile != "" {
			data, err := os.ReadFile(*eventFile) // #nosec G304 -- operator supplied path
			if err != nil {
				logger.Fatal("failed to read event file", zap.Error(err))
			}
			event = data
		}
		report, err := orch.Execute(ctx, event)
		if err != nil {
			logger.Fatal("dr failover failed", zap.Error(err))
		}
		_ = json.NewEncoder(os.Stdout).Encode(report.Result)

	default:
		logger.Fatal("invalid mode", zap.String("mode", *mode))
	}
}

func defaultMode() string {
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		return modeLambda
	}
	return modeOnce
}

func lambdaHandler(orch *ha.DROrchestrator) func(context.Context, json.RawMessage) (ha.Result, error) {
	return func(ctx context.Context, event json.RawMessage) (ha.Result, error) {
		report, err := orch.Execute(ctx, event)
		if err != nil {
			return ha.Result{}, err
		}
		return report.Result, nil
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, orch *ha.DROrchestrator, m *metrics.Metrics) {
	server := api.NewServer(cfg, logger, orch, m, m.Handler())

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	if err := server.Start(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
