package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"livedetect/internal/app"
	"livedetect/internal/config"
	"livedetect/internal/logger"
	"livedetect/internal/observe"

	"go.opentelemetry.io/otel/metric"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	appLogger, err := logger.NewLogger(cfg.LogDirectory)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return 1
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var meter metric.MeterProvider
	mp, shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		appLogger.Warning("Metrics exporter unavailable: %v", err)
	} else {
		meter = mp
		defer shutdownMetrics(context.Background())
	}

	application, err := app.NewApp(cfg, appLogger, os.Stdout, meter)
	if err != nil {
		var loadErr *app.ModelLoadError
		if errors.As(err, &loadErr) {
			fmt.Printf("Error loading model: %v\n", loadErr.Err)
			fmt.Println(app.ModelHint)
		} else {
			fmt.Printf("Failed to start: %v\n", err)
		}
		appLogger.Error("Startup failed: %v", err)
		return 1
	}

	application.Run(ctx)
	return 0
}
