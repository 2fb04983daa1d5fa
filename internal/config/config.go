// Package config loads environment-driven settings for QueryLens
package config

import (
	"os"
	"strconv"
	"time"
)

// Default endpoint for the OpenAI-compatible recommendation service
const DefaultAdvisorEndpoint = "https://openrouter.ai/api/v1/chat/completions"

// Config holds all runtime settings. Flags in cmd override these values.
type Config struct {
	MongoURI string
	Database string

	MinDuration time.Duration // ignore operations faster than this
	MaxGroups   int           // cap on forwarded groups, 0 = unlimited
	SampleSize  int           // documents sampled per collection schema
	Concurrency int           // concurrent recommendation requests

	AdvisorEndpoint string
	AdvisorAPIKey   string
	AdvisorModel    string
	AdvisorTimeout  time.Duration

	ObservabilityPort int
	LogLevel          string
	LogPretty         bool
}

// FromEnv builds a Config from environment variables with defaults
func FromEnv() Config {
	return Config{
		MongoURI:          envStr("MONGO_URI", "mongodb://localhost:27017/"),
		Database:          envStr("MONGO_DB_NAME", "test"),
		MinDuration:       time.Duration(envInt("MIN_DURATION_MS", 100)) * time.Millisecond,
		MaxGroups:         envInt("MAX_GROUPS", 0),
		SampleSize:        envInt("SCHEMA_SAMPLE_SIZE", 100),
		Concurrency:       envInt("ADVISOR_CONCURRENCY", 4),
		AdvisorEndpoint:   envStr("OPENROUTER_API_URL", DefaultAdvisorEndpoint),
		AdvisorAPIKey:     os.Getenv("OPENROUTER_API_KEY"),
		AdvisorModel:      envStr("LLM_MODEL", "mistralai/mistral-7b-instruct"),
		AdvisorTimeout:    time.Duration(envInt("ADVISOR_TIMEOUT_S", 120)) * time.Second,
		ObservabilityPort: envInt("OBS_PORT", 9090),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		LogPretty:         envBool("LOG_PRETTY", false),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
