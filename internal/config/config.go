package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	defaultPort            = "8080"
	defaultSTTProvider     = "whisper"
	defaultLLMProvider     = "openai"
	defaultTTSProvider     = "openai"
	defaultVoice           = "alloy"
	defaultHistoryCap      = 12
	defaultSessionMaxIdle  = 30 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
)

// defaultSystemPrompt seeds every session's conversation history. The server
// is a voice companion for people working through anxiety, so the prompt
// steers replies toward short spoken-style sentences.
const defaultSystemPrompt = `You are a calming, supportive voice assistant designed to help people work through anxiety and panic attacks. You are speaking with the user over voice, and everything you say will be read out loud using realistic text-to-speech.

Use natural, easy-to-understand language with short, clear sentences. Speak casually as a supportive friend. Speak in a calm, steady, and caring tone. Don't overwhelm the user with too much information at once. Keep most of your responses to one or two sentences unless the user asks you to go deeper. Use conversational markers like "okay," "let's try this," or "alright" to help things feel natural and human.

The user may be feeling overwhelmed or scared. Your main job is to guide them through evidence-based calming techniques like grounding, breathing, gentle questions, or mental exercises, in short cycles. Start by asking how they're feeling, and ask them to rate their anxiety level using a scale, like one to ten.

After that, begin a calming cycle. This might include grounding techniques, breathing prompts, or simple supportive conversation. Keep your tone gentle and focused. Once a cycle is done, ask them to rate their anxiety again using the same scale. Repeat this cycle until the user says they feel calm enough to stop.

At the end, ask them what helped the most and invite them to leave any notes or thoughts.

Never try to end the conversation on your own. Don't rush the user or talk too much. Always ask clarifying questions if something's unclear.

Remember, this is a voice conversation. Avoid long answers, lists, or formal writing. Use language that feels like a supportive human talking gently in real time.`

// Config holds server-level settings. Provider adapters read their own
// credentials through their *FromEnv helpers; this struct covers the wiring
// choices the entrypoint needs.
type Config struct {
	Port string

	// Provider selection: "whisper" or "google" for STT, "openai" or
	// "gemini" for LLM, "openai" for TTS. "mock" is accepted everywhere
	// for local development without credentials.
	STTProvider string
	LLMProvider string
	TTSProvider string

	// DefaultVoice is used for synthesis when a request does not name one.
	DefaultVoice string

	// HistoryCap bounds conversation history per session, counting the
	// system turn.
	HistoryCap int

	// SystemPrompt seeds each session's conversation.
	SystemPrompt string

	SessionMaxIdle  time.Duration
	CleanupInterval time.Duration
}

// Load reads configuration from the environment, after loading .env if one
// is present. Missing values fall back to defaults; only malformed values
// are logged.
func Load(logger *zap.Logger) Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}

	cfg := Config{
		Port:            getEnv("PORT", defaultPort),
		STTProvider:     getEnv("STT_PROVIDER", defaultSTTProvider),
		LLMProvider:     getEnv("LLM_PROVIDER", defaultLLMProvider),
		TTSProvider:     getEnv("TTS_PROVIDER", defaultTTSProvider),
		DefaultVoice:    getEnv("DEFAULT_VOICE", defaultVoice),
		HistoryCap:      defaultHistoryCap,
		SystemPrompt:    getEnv("SYSTEM_PROMPT", defaultSystemPrompt),
		SessionMaxIdle:  defaultSessionMaxIdle,
		CleanupInterval: defaultCleanupInterval,
	}

	if capStr := os.Getenv("HISTORY_CAP"); capStr != "" {
		if parsed, err := strconv.Atoi(capStr); err == nil && parsed >= 3 {
			cfg.HistoryCap = parsed
		} else {
			logger.Warn("Ignoring invalid HISTORY_CAP", zap.String("value", capStr))
		}
	}

	if idleStr := os.Getenv("SESSION_MAX_IDLE"); idleStr != "" {
		if parsed, err := time.ParseDuration(idleStr); err == nil && parsed > 0 {
			cfg.SessionMaxIdle = parsed
		} else {
			logger.Warn("Ignoring invalid SESSION_MAX_IDLE", zap.String("value", idleStr))
		}
	}

	if intervalStr := os.Getenv("SESSION_CLEANUP_INTERVAL"); intervalStr != "" {
		if parsed, err := time.ParseDuration(intervalStr); err == nil && parsed > 0 {
			cfg.CleanupInterval = parsed
		} else {
			logger.Warn("Ignoring invalid SESSION_CLEANUP_INTERVAL", zap.String("value", intervalStr))
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
