package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rodneyosodo/fedstream/coordinator"
	"github.com/rodneyosodo/fedstream/coordinator/api"
	"github.com/rodneyosodo/fedstream/coordinator/middleware"
	"github.com/rodneyosodo/fedstream/inference"
	"github.com/rodneyosodo/fedstream/pkg/aggregator"
	"github.com/rodneyosodo/fedstream/pkg/checkpoint"
	"github.com/rodneyosodo/fedstream/pkg/evaluator"
	"github.com/rodneyosodo/fedstream/pkg/mqtt"
	"github.com/rodneyosodo/fedstream/pkg/prometheus"
	"github.com/rodneyosodo/fedstream/pkg/server"
	"github.com/rodneyosodo/fedstream/pkg/storage"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "coordinator"
	defHTTPPort   = "7070"
	envPrefixHTTP = "COORDINATOR_HTTP_"
	pathEnv       = ".env"
)

var namegen = namegenerator.NewGenerator()

type envConfig struct {
	LogLevel       string        `env:"COORDINATOR_LOG_LEVEL"       envDefault:"info"`
	InstanceID     string        `env:"COORDINATOR_INSTANCE_ID"`
	MQTTAddress    string        `env:"COORDINATOR_MQTT_ADDRESS"    envDefault:""`
	MQTTQoS        uint8         `env:"COORDINATOR_MQTT_QOS"        envDefault:"2"`
	MQTTTimeout    time.Duration `env:"COORDINATOR_MQTT_TIMEOUT"    envDefault:"30s"`
	MinClients     int           `env:"COORDINATOR_MIN_CLIENTS"     envDefault:"2"`
	SampleFraction float64       `env:"COORDINATOR_SAMPLE_FRACTION" envDefault:"1.0"`
	Rounds         int           `env:"COORDINATOR_ROUNDS"          envDefault:"3"`
	SaveDir        string        `env:"COORDINATOR_SAVE_DIR"        envDefault:"saved_models"`
	RoundDeadline  time.Duration `env:"COORDINATOR_ROUND_DEADLINE"  envDefault:"5m"`
	MaxAttempts    int           `env:"COORDINATOR_MAX_ATTEMPTS"    envDefault:"3"`
	NumClasses     int           `env:"COORDINATOR_NUM_CLASSES"     envDefault:"10"`
	EvalData       string        `env:"COORDINATOR_EVAL_DATA"       envDefault:""`
	EvalBatchSize  int           `env:"COORDINATOR_EVAL_BATCH_SIZE" envDefault:"64"`
	LabelsFile     string        `env:"COORDINATOR_LABELS_FILE"     envDefault:""`
	FitEpochs      int           `env:"COORDINATOR_FIT_EPOCHS"      envDefault:"1"`
	FitBatchSize   int           `env:"COORDINATOR_FIT_BATCH_SIZE"  envDefault:"32"`
	FitLR          float64       `env:"COORDINATOR_FIT_LR"          envDefault:"0.01"`
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

	tracer := noop.NewTracerProvider().Tracer(svcName)

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

	store, err := checkpoint.NewExclusive(cfg.SaveDir)
	if err != nil {
		logger.Error("failed to open checkpoint store", slog.String("error", err.Error()))
		exitCode = 1

		return
	}
	defer store.Close()

	labels := map[int]string{}
	labelNames := inference.DefaultLabels
	if cfg.LabelsFile != "" {
		labelNames, err = inference.LoadLabels(cfg.LabelsFile)
		if err != nil {
			logger.Error("failed to load class labels", slog.String("error", err.Error()))
			exitCode = 1

			return
		}
	}
	for i, name := range labelNames {
		labels[i] = name
	}

	var provider evaluator.SourceProvider
	if cfg.EvalData != "" {
		provider = evaluator.NewFileProvider(cfg.EvalData, cfg.EvalBatchSize)
	}

	svcCfg := coordinator.Config{
		MinClients:     cfg.MinClients,
		SampleFraction: cfg.SampleFraction,
		Rounds:         cfg.Rounds,
		SaveDir:        cfg.SaveDir,
		RoundDeadline:  cfg.RoundDeadline,
		MaxAttempts:    cfg.MaxAttempts,
		NumClasses:     cfg.NumClasses,
		Fit: coordinator.FitConfig{
			Epochs:       cfg.FitEpochs,
			BatchSize:    cfg.FitBatchSize,
			LearningRate: cfg.FitLR,
		},
	}

	svc, err := coordinator.NewService(
		svcCfg,
		store,
		storage.NewInMemoryStorage(),
		aggregator.NewFedAvg(),
		evaluator.New(cfg.NumClasses),
		provider,
		pub,
		labels,
		logger,
	)
	if err != nil {
		logger.Error("failed to create coordinator service", slog.String("error", err.Error()))
		exitCode = 1

		return
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))
		exitCode = 1

		return
	}

	hs := server.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	g.Go(func() error {
		defer cancel()

		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
		exitCode = 1
	}
}
