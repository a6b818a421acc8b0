package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/tdnguyen-dev/healthvoice/adapters/chatapi"
	"github.com/tdnguyen-dev/healthvoice/adapters/synthesis"
	"github.com/tdnguyen-dev/healthvoice/adapters/transcription"
	"github.com/tdnguyen-dev/healthvoice/domain/repositories"
	"github.com/tdnguyen-dev/healthvoice/internal/api"
	"github.com/tdnguyen-dev/healthvoice/internal/config"
	"github.com/tdnguyen-dev/healthvoice/internal/gateway"
	"github.com/tdnguyen-dev/healthvoice/internal/recorder"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Secrets come from the environment; .env is a development nicety.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger := newLogger(cfg.Logging)
	defer logger.Sync()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize adapters
	transcriber, err := transcription.NewClient(cfg.TranscriptionClientConfig(), logger)
	if err != nil {
		logger.Fatal("initializing transcription client", zap.Error(err))
	}

	chatClient, err := chatapi.NewClient(cfg.ChatClientConfig(), logger)
	if err != nil {
		logger.Fatal("initializing chat client", zap.Error(err))
	}

	profileClient, err := chatapi.NewProfileClient(cfg.ChatClientConfig(), logger)
	if err != nil {
		logger.Fatal("initializing profile client", zap.Error(err))
	}

	synthesizer := buildSynthesizer(cfg, logger)

	// Initialize WebSocket hub
	recorderCfg := recorder.Config{
		SampleRate:       cfg.Audio.SampleRate,
		FrameSize:        cfg.Audio.FrameSize,
		MaxRecordSeconds: cfg.Audio.MaxRecordSeconds,
	}
	hub := gateway.NewHub(chatClient, transcriber, synthesizer, profileClient, recorderCfg, cfg.Server.AllowedOrigins, logger)
	go hub.Run()

	// Initialize API routes
	api.InitRoutes(e, hub, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(cfg.Server.Address()); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Voice gateway started", zap.String("address", cfg.Server.Address()))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.LoggingConfig) *zap.Logger {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if cfg.Level != "" {
		if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
			zapCfg.Level = level
		}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func buildSynthesizer(cfg config.Config, logger *zap.Logger) repositories.Synthesizer {
	azureCfg, mmsCfg := cfg.BuildSynthesizer()
	switch {
	case azureCfg != nil:
		synth, err := synthesis.NewAzureSynthesizer(*azureCfg, logger)
		if err != nil {
			logger.Fatal("initializing azure synthesizer", zap.Error(err))
		}
		return synth
	case mmsCfg != nil:
		synth, err := synthesis.NewMMSSynthesizer(*mmsCfg, logger)
		if err != nil {
			logger.Fatal("initializing mms synthesizer", zap.Error(err))
		}
		return synth
	default:
		logger.Info("speech synthesis disabled")
		return nil
	}
}
