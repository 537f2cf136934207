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
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rodneyosodo/fedstream/inference"
	"github.com/rodneyosodo/fedstream/pkg/checkpoint"
	"github.com/rodneyosodo/fedstream/pkg/mqtt"
	"golang.org/x/sync/errgroup"
)

const (
	svcName = "inference"
	pathEnv = ".env"
)

var namegen = namegenerator.NewGenerator()

type envConfig struct {
	LogLevel            string        `env:"INFERENCE_LOG_LEVEL"            envDefault:"info"`
	InstanceID          string        `env:"INFERENCE_INSTANCE_ID"`
	SaveDir             string        `env:"INFERENCE_SAVE_DIR"             envDefault:"saved_models"`
	StreamSource        string        `env:"INFERENCE_STREAM_SOURCE,notEmpty"`
	ConfidenceThreshold float64       `env:"INFERENCE_CONFIDENCE_THRESHOLD" envDefault:"0.1"`
	PollInterval        time.Duration `env:"INFERENCE_POLL_INTERVAL"        envDefault:"2s"`
	StreamBackoff       time.Duration `env:"INFERENCE_STREAM_BACKOFF"       envDefault:"1s"`
	MaxStreamFailures   int           `env:"INFERENCE_MAX_STREAM_FAILURES"  envDefault:"30"`
	LabelsFile          string        `env:"INFERENCE_LABELS_FILE"          envDefault:""`
	MQTTAddress         string        `env:"INFERENCE_MQTT_ADDRESS"         envDefault:""`
	MQTTQoS             uint8         `env:"INFERENCE_MQTT_QOS"             envDefault:"2"`
	MQTTTimeout         time.Duration `env:"INFERENCE_MQTT_TIMEOUT"         envDefault:"30s"`
}

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = fmt.Sprintf("%s-%s", namegen.Generate(), uuid.NewString())
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

	pub := mqtt.NewNoopPublisher()
	if cfg.MQTTAddress != "" {
		var err error
		pub, err = mqtt.NewPublisher(cfg.MQTTAddress, cfg.MQTTQoS, svcName+"-"+cfg.InstanceID, cfg.MQTTTimeout, logger)
		if err != nil {
			logger.Error("failed to initialize mqtt publisher", slog.String("error", err.Error()))
			exitCode = 1

			return
		}
		defer pub.Disconnect(context.Background())
	}

	store, err := checkpoint.New(cfg.SaveDir)
	if err != nil {
		logger.Error("failed to open checkpoint store", slog.String("error", err.Error()))
		exitCode = 1

		return
	}

	labelNames := inference.DefaultLabels
	if cfg.LabelsFile != "" {
		labelNames, err = inference.LoadLabels(cfg.LabelsFile)
		if err != nil {
			logger.Error("failed to load class labels", slog.String("error", err.Error()))
			exitCode = 1

			return
		}
	}

	processor, err := inference.NewProcessor(labelNames, cfg.ConfidenceThreshold)
	if err != nil {
		logger.Error("failed to create processor", slog.String("error", err.Error()))
		exitCode = 1

		return
	}

	loop, err := inference.NewLoop(
		inference.Config{
			PollInterval:      cfg.PollInterval,
			StreamBackoff:     cfg.StreamBackoff,
			MaxStreamFailures: cfg.MaxStreamFailures,
		},
		store,
		inference.NewMJPEGOpener(cfg.StreamSource),
		processor,
		pub,
		logger,
	)
	if err != nil {
		logger.Error("failed to create inference loop", slog.String("error", err.Error()))
		exitCode = 1

		return
	}

	logger.Info(fmt.Sprintf("starting inference on %s", cfg.StreamSource),
		slog.String("instance_id", cfg.InstanceID),
		slog.String("save_dir", cfg.SaveDir),
	)

	g.Go(func() error {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		sig := make(chan os.Signal, 2)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sig:
			logger.Info(fmt.Sprintf("%s service shutdown by signal: %s", svcName, s))
			cancel()
		case <-ctx.Done():
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
		exitCode = 1
	}
}
