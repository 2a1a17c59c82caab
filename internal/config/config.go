// Package config loads application configuration from the environment.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress  string
	GeminiAPIKey string
	LiveModel    string
	TextModel    string
	VoiceName    string
	DataDir      string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY not set - voice assistant and companion text will not work")
	}

	liveModel := os.Getenv("GEMINI_LIVE_MODEL")
	if liveModel == "" {
		liveModel = "gemini-2.5-flash-native-audio-preview-12-2025"
	}
	textModel := os.Getenv("GEMINI_TEXT_MODEL")
	if textModel == "" {
		textModel = "gemini-3-flash-preview"
	}
	voice := os.Getenv("GEMINI_VOICE_NAME")
	if voice == "" {
		voice = "Kore"
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data/tasks"
	}

	log.Info().Str("addr", addr).Str("live_model", liveModel).Str("data_dir", dataDir).Msg("config loaded")
	return Config{
		HTTPAddress:  addr,
		GeminiAPIKey: apiKey,
		LiveModel:    liveModel,
		TextModel:    textModel,
		VoiceName:    voice,
		DataDir:      dataDir,
	}
}
