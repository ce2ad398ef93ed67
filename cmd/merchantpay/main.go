// Package main provides the entry point for the merchantpay co-signing service.
// It wires configuration, the payment pipeline and its optional backends
// into the service registry and handles graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/cmatc13/merchantpay/internal/api"
	"github.com/cmatc13/merchantpay/internal/events"
	"github.com/cmatc13/merchantpay/internal/payment"
	"github.com/cmatc13/merchantpay/internal/signer"
	"github.com/cmatc13/merchantpay/internal/store"
	"github.com/cmatc13/merchantpay/internal/trp"
	"github.com/cmatc13/merchantpay/pkg/config"
	"github.com/cmatc13/merchantpay/pkg/health"
	"github.com/cmatc13/merchantpay/pkg/logging"
	"github.com/cmatc13/merchantpay/pkg/metrics"
	"github.com/cmatc13/merchantpay/pkg/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "merchantpay: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := config.Flags()
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	opts := config.DefaultLoadOptions()
	opts.ConfigFile, _ = flags.GetString("config")
	opts.EnvFile, _ = flags.GetString("env-file")
	opts.Flags = flags

	cfg, err := config.LoadWithOptions(opts)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Log.Level)
	logCfg.Environment = cfg.Log.Environment
	logger := logging.New(logCfg)

	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Namespace = cfg.Metrics.Namespace
	metricsCollector := metrics.New(metricsCfg)
	healthRegistry := health.NewRegistry(logger)
	registry := service.NewRegistry(logger)

	merchant := signer.New(cfg.Merchant)
	if !merchant.Configured() {
		logger.Warn("Merchant signing key is not set; submissions will fail until it is", "setting", config.MerchantKeyEnv)
	} else if pub, err := merchant.PublicKey(); err != nil {
		logger.WithError(err).Warn("Merchant signing key is unusable", "setting", config.MerchantKeyEnv)
	} else {
		logger.Info("Merchant signing key loaded", "vkey", pub)
	}
	healthRegistry.Register("merchant", health.ServiceChecker("merchant", func(ctx context.Context) error {
		_, err := merchant.PublicKey()
		return err
	}))

	submitter := trp.NewClient(cfg.TRP)
	healthRegistry.Register("trp", health.DependencyChecker("trp", tracked(metricsCollector, "trp", submitter.Ping)))

	deps := payment.Deps{
		Signer:    merchant,
		Submitter: submitter,
		Metrics:   metricsCollector,
		Logger:    logger,
	}
	var (
		receiptReader api.ReceiptReader
		apiDeps       []string
	)

	if cfg.Redis.Enabled {
		receipts := store.NewRedisStore(cfg.Redis, logger)
		if err := registry.Register(receipts); err != nil {
			return err
		}
		healthRegistry.Register("redis", health.RedisChecker(cfg.Redis.Address, tracked(metricsCollector, "redis", receipts.Ping)))
		deps.Receipts = receipts
		receiptReader = receipts
		apiDeps = append(apiDeps, store.ServiceName)
	}

	if cfg.Kafka.Enabled {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka, logger)
		if err != nil {
			return err
		}
		if err := registry.Register(events.NewPublisherService(publisher)); err != nil {
			return err
		}
		healthRegistry.Register("kafka", health.KafkaChecker(cfg.Kafka.Brokers, tracked(metricsCollector, "kafka", publisher.Ping)))
		deps.Events = publisher
		apiDeps = append(apiDeps, events.ServiceName)
	}

	payments, err := payment.NewService(cfg.Payment, deps)
	if err != nil {
		return err
	}

	healthRegistry.Register("services", health.ServiceChecker("services", func(ctx context.Context) error {
		for name, err := range registry.HealthCheck() {
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		return nil
	}))

	server := api.NewServer(cfg, payments, receiptReader, logger, metricsCollector, healthRegistry)
	apiService := api.NewAPIService(server, apiDeps...)
	if err := registry.Register(apiService); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting all services",
		"port", cfg.API.Port,
		"trp_endpoint", submitter.Endpoint(),
		"redis", cfg.Redis.Enabled,
		"kafka", cfg.Kafka.Enabled,
		"verify_tx_hash", cfg.Payment.VerifyTxHash,
		"dedupe", cfg.Payment.Dedupe)
	if err := registry.StartAll(ctx); err != nil {
		shutdown(registry, cfg.API.ShutdownTimeout, logger)
		return fmt.Errorf("failed to start services: %w", err)
	}
	logger.Info("All services started successfully", "addr", apiService.Addr())

	<-ctx.Done()
	logger.Info("Shutting down gracefully")
	shutdown(registry, cfg.API.ShutdownTimeout, logger)
	logger.Info("Shutdown complete")
	return nil
}

// tracked reports each check result as a dependency status gauge.
func tracked(m *metrics.Metrics, dependency string, ping func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		err := ping(ctx)
		m.RecordDependencyStatus("merchantpay", dependency, err == nil)
		return err
	}
}

func shutdown(registry *service.Registry, timeout time.Duration, logger *logging.Logger) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := registry.StopAll(ctx); err != nil {
		logger.WithError(err).Error("Error during shutdown")
	}
}
