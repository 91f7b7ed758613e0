package config

import (
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/AreslotLLC/kuchikomi/internal/utils"
)

// Config is the process configuration, read from the environment with
// optional .env support.
type Config struct {
	Addr            string
	CatalogPath     string
	OpenAIAPIKey    string
	ReviewThreshold int
	MinLoading      time.Duration
}

// Load reads configuration. A .env file is applied first when present;
// real environment variables win over it.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug(".env not loaded")
	}
	return &Config{
		Addr:            utils.SafeEnv("KUCHIKOMI_ADDR", ":8080"),
		CatalogPath:     utils.SafeEnv("KUCHIKOMI_CLIENTS", ""),
		OpenAIAPIKey:    utils.SafeEnv("OPENAI_API_KEY", ""),
		ReviewThreshold: intEnv("KUCHIKOMI_REVIEW_THRESHOLD", 3),
		MinLoading:      time.Duration(intEnv("KUCHIKOMI_MIN_LOADING_MS", 1500)) * time.Millisecond,
	}
}

func intEnv(key string, fallback int) int {
	v := utils.SafeEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithField("key", key).Warnf("ignoring non-numeric value %q", v)
		return fallback
	}
	return n
}
