package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host              string        `env:"HOST,default=localhost"`
	Port              int           `env:"PORT,default=8080"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	EventBufferSize   int           `env:"EVENT_BUFFER_SIZE,default=1024"`
	SessionBufferSize int           `env:"SESSION_BUFFER_SIZE,default=64"`
	DeliveryTimeout   time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	StorageRetries    int           `env:"STORAGE_RETRIES,default=3"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=5s"`
	MetricInterval    time.Duration `env:"METRIC_INTERVAL,default=30s"`
	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	CensoredDir       string        `env:"CENSORED_DIR"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,default=*"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS"`
}

// Origins splits the comma-separated ALLOWED_ORIGINS value. Empty means
// no browser origin is allowed.
func (c Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// CharacterRune enforces that the moderation replacement is one rune.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
