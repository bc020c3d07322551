package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/halcyonvoice/server/adapters/llm"
	"github.com/halcyonvoice/server/adapters/stt"
	"github.com/halcyonvoice/server/adapters/tts"
	"github.com/halcyonvoice/server/domain/repositories"
	"github.com/halcyonvoice/server/internal/api"
	"github.com/halcyonvoice/server/internal/config"
	"github.com/halcyonvoice/server/internal/pipeline"
	"github.com/halcyonvoice/server/internal/session"
	"github.com/halcyonvoice/server/internal/websocket"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load(logger)

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize provider adapters
	speechToText := buildSTT(cfg, logger)
	languageModel := buildLLM(cfg, logger)
	textToSpeech := buildTTS(cfg, logger)

	// Session registry and idle cleanup
	registry := session.NewRegistry(cfg.SystemPrompt, logger)
	cleanup := session.NewCleanupService(registry, cfg.SessionMaxIdle, cfg.CleanupInterval, logger)
	cleanup.Start()
	defer cleanup.Stop()

	// WebSocket hub and pipeline coordinator. The coordinator sends through
	// the hub, so it is attached after both exist.
	hub := websocket.NewHub(registry, logger)
	coordinator := pipeline.NewCoordinator(speechToText, languageModel, textToSpeech, hub, pipeline.Config{
		HistoryCap:   cfg.HistoryCap,
		DefaultVoice: cfg.DefaultVoice,
	}, logger)
	hub.UseCoordinator(coordinator)
	go hub.Run()

	// Initialize API routes
	api.InitRoutes(e, hub, registry, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("stt", cfg.STTProvider),
		zap.String("llm", cfg.LLMProvider),
		zap.String("tts", cfg.TTSProvider))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func buildSTT(cfg config.Config, logger *zap.Logger) repositories.SpeechToText {
	switch cfg.STTProvider {
	case "google":
		return stt.NewGoogleSTT(logger)
	case "mock":
		return stt.NewMockSTT(logger)
	default:
		adapter, err := stt.NewWhisperSTT(stt.NewWhisperConfigFromEnv(), logger)
		if err != nil {
			logger.Warn("Falling back to mock transcription", zap.Error(err))
			return stt.NewMockSTT(logger)
		}
		return adapter
	}
}

func buildLLM(cfg config.Config, logger *zap.Logger) repositories.LargeLanguageModel {
	switch cfg.LLMProvider {
	case "gemini":
		adapter, err := llm.NewGeminiLLM(logger)
		if err != nil {
			logger.Warn("Falling back to mock language model", zap.Error(err))
			return llm.NewMockLLM()
		}
		return adapter
	case "mock":
		return llm.NewMockLLM()
	default:
		adapter, err := llm.NewOpenAILLM(llm.NewOpenAIConfigFromEnv(), logger)
		if err != nil {
			logger.Warn("Falling back to mock language model", zap.Error(err))
			return llm.NewMockLLM()
		}
		return adapter
	}
}

func buildTTS(cfg config.Config, logger *zap.Logger) repositories.TextToSpeech {
	switch cfg.TTSProvider {
	case "mock":
		return tts.NewMockTTS(logger)
	default:
		adapter, err := tts.NewOpenAITTS(tts.NewOpenAIConfigFromEnv(), logger)
		if err != nil {
			logger.Warn("Falling back to mock speech synthesis", zap.Error(err))
			return tts.NewMockTTS(logger)
		}
		return adapter
	}
}
