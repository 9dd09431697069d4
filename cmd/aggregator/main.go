package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/aggregator/api"
	"github.com/absmach/fedridge/aggregator/middleware"
	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/mqtt"
	"github.com/absmach/fedridge/pkg/storage"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName          = "aggregator"
	defHTTPPort      = "7070"
	envPrefixHTTP    = "AGGREGATOR_HTTP_"
	envPrefixStorage = "AGGREGATOR_"
	pathEnv          = ".env"
	runsPrefix       = "runs"
)

type envConfig struct {
	LogLevel    string        `env:"AGGREGATOR_LOG_LEVEL"    envDefault:"info"`
	InstanceID  string        `env:"AGGREGATOR_INSTANCE_ID"`
	ArchiveDir  string        `env:"AGGREGATOR_ARCHIVE_DIR"`
	RunIDs      []string      `env:"AGGREGATOR_FOLLOW_RUNS"  envSeparator:","`
	MQTTAddress string        `env:"AGGREGATOR_MQTT_ADDRESS" envDefault:"tcp://localhost:1883"`
	MQTTQoS     uint8         `env:"AGGREGATOR_MQTT_QOS"     envDefault:"2"`
	MQTTTimeout time.Duration `env:"AGGREGATOR_MQTT_TIMEOUT" envDefault:"30s"`
	ClientID    string        `env:"AGGREGATOR_CLIENT_ID"`
	ClientKey   string        `env:"AGGREGATOR_CLIENT_KEY"`
	DomainID    string        `env:"AGGREGATOR_DOMAIN_ID"`
	ChannelID   string        `env:"AGGREGATOR_CHANNEL_ID"`
	Server      server.Config
	OTELURL     url.URL `env:"AGGREGATOR_OTEL_URL"`
	TraceRatio  float64 `env:"AGGREGATOR_TRACE_RATIO" envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	storageCfg := storage.Config{}
	if err := env.ParseWithOptions(&storageCfg, env.Options{Prefix: envPrefixStorage}); err != nil {
		logger.Error("failed to load storage configuration", slog.String("error", err.Error()))

		return
	}
	runs, closer, err := storage.New[aggregator.Run](storageCfg, runsPrefix)
	if err != nil {
		logger.Error("failed to initialize run storage", slog.String("error", err.Error()))

		return
	}
	defer closer.Close()

	opts := []aggregator.ServiceOption{}
	if cfg.ArchiveDir != "" {
		archive, err := fl.NewArchive(cfg.ArchiveDir)
		if err != nil {
			logger.Error("failed to initialize result archive", slog.String("error", err.Error()))

			return
		}
		opts = append(opts, aggregator.WithArchive(archive))
	}

	svc := aggregator.NewService(runs, logger, opts...)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	if cfg.ChannelID != "" {
		pubsub, err := mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, svcName+"-"+cfg.InstanceID, cfg.ClientID, cfg.ClientKey, cfg.DomainID, cfg.ChannelID, cfg.MQTTTimeout, logger)
		if err != nil {
			logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := pubsub.Disconnect(context.Background()); err != nil {
				logger.Warn("failed to disconnect mqtt pubsub", slog.Any("error", err))
			}
		}()

		collector := aggregator.NewCollector(svc, pubsub, cfg.DomainID, cfg.ChannelID, logger)
		svc = collector.Following(svc)
		for _, runID := range cfg.RunIDs {
			if err := collector.Follow(ctx, runID); err != nil {
				logger.Error("failed to follow run", slog.String("run_id", runID), slog.String("error", err.Error()))

				return
			}
		}
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}
