package config

import (
	"os"
	"strconv"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Working directory for source copies and conversion artifacts
	OutputDir string

	// Listening test
	Bitrate int     // default lossy bitrate, kbit/s
	Seed    uint64  // round generator seed, 0 seeds from the clock
	Alpha   float64 // significance level shown to the listener

	// Opus encoder
	OpusComplexity int // 0-10
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port:           envInt("ABX_PORT", 8080),
		OutputDir:      envStr("ABX_OUTPUT_DIR", "files"),
		Bitrate:        envInt("ABX_BITRATE", 165),
		Seed:           envUint("ABX_SEED", 0),
		Alpha:          envFloat("ABX_ALPHA", 0.05),
		OpusComplexity: envInt("ABX_OPUS_COMPLEXITY", 10),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
