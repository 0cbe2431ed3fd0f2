package telemetry

import (
	"strconv"
	"strings"
	"time"
)

const (
	envEndpoint    = "STACKCC_OTEL_ENDPOINT"
	envInsecure    = "STACKCC_OTEL_INSECURE"
	envService     = "STACKCC_OTEL_SERVICE"
	envDialTimeout = "STACKCC_OTEL_DIAL_TIMEOUT"

	DefaultServiceName = "stackcc"
)

// Config selects where compile traces are exported. An empty Endpoint
// disables export.
type Config struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
	DialTimeout time.Duration
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ConfigFromEnv reads the STACKCC_OTEL_* variables through getenv.
// Malformed booleans and durations are ignored.
func ConfigFromEnv(getenv func(string) string) Config {
	cfg := Config{
		Endpoint:    strings.TrimSpace(getenv(envEndpoint)),
		ServiceName: strings.TrimSpace(getenv(envService)),
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(getenv(envInsecure))); err == nil {
		cfg.Insecure = v
	}
	if v, err := time.ParseDuration(strings.TrimSpace(getenv(envDialTimeout))); err == nil {
		cfg.DialTimeout = v
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	return cfg
}
