package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/fedridge"
	"github.com/absmach/fedridge/pkg/mqtt"
	"github.com/absmach/fedridge/site"
	"github.com/absmach/fedridge/site/middleware"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const pathEnv = ".env"

type envConfig struct {
	LogLevel           string        `env:"SITE_LOG_LEVEL"           envDefault:"info"`
	ID                 string        `env:"SITE_ID"`
	InstanceID         string        `env:"SITE_INSTANCE_ID"`
	DataPath           string        `env:"SITE_DATA"                envDefault:"fedridge.toml"`
	RunIDs             []string      `env:"SITE_RUNS"                envSeparator:","`
	LivelinessInterval time.Duration `env:"SITE_LIVELINESS_INTERVAL" envDefault:"10s"`
	MQTTAddress        string        `env:"SITE_MQTT_ADDRESS"        envDefault:"tcp://localhost:1883"`
	MQTTQoS            uint8         `env:"SITE_MQTT_QOS"            envDefault:"2"`
	MQTTTimeout        time.Duration `env:"SITE_MQTT_TIMEOUT"        envDefault:"30s"`
	ClientID           string        `env:"SITE_CLIENT_ID"`
	ClientKey          string        `env:"SITE_CLIENT_KEY"`
	DomainID           string        `env:"SITE_DOMAIN_ID"`
	ChannelID          string        `env:"SITE_CHANNEL_ID"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("site exited with error: %s", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := configureLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	data, err := fedridge.LoadConfig(cfg.DataPath)
	if err != nil {
		logger.Error("Failed to load site data", slog.String("path", cfg.DataPath), slog.Any("error", err))

		return err
	}
	if cfg.ID == "" {
		if len(data.Sites) != 1 {
			return errors.New("SITE_ID is required when the data file lists several sites")
		}
		cfg.ID = data.Sites[0].ID
	}
	siteCfg, err := data.Site(cfg.ID)
	if err != nil {
		return err
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = namegenerator.NewGenerator().Generate()
	}

	svc, err := site.NewService(cfg.ID, siteCfg.Source(), siteCfg.Config(), logger)
	if err != nil {
		logger.Error("Error initializing service", slog.Any("error", err))

		return err
	}
	svc = middleware.Logging(logger, svc)

	pubsub, err := mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, "site-"+cfg.InstanceID, cfg.ClientID, cfg.ClientKey, cfg.DomainID, cfg.ChannelID, cfg.MQTTTimeout, logger)
	if err != nil {
		logger.Error("Failed to initialize mqtt pubsub", slog.Any("error", err))

		return err
	}
	defer func() {
		if err := pubsub.Disconnect(context.Background()); err != nil {
			logger.Warn("Failed to disconnect mqtt pubsub", slog.Any("error", err))
		}
	}()

	participant := site.NewParticipant(svc, pubsub, cfg.DomainID, cfg.ChannelID, logger)
	for _, runID := range cfg.RunIDs {
		if err := participant.Join(ctx, runID); err != nil {
			logger.Error("Failed to join run", slog.String("run_id", runID), slog.Any("error", err))

			return err
		}
		logger.Info("Joined run", slog.String("run_id", runID), slog.String("site_id", cfg.ID))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return participant.Heartbeat(ctx, cfg.LivelinessInterval)
	})

	return g.Wait()
}

func configureLogger(level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		log.Printf("Invalid log level: %s. Defaulting to info.\n", level)
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(logHandler)
}
