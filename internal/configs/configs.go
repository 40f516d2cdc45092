/*
Package configs is responsible for loading and parsing the application's configuration settings.

It configures server parameters by reading operating system environment variables,
including the running environment, port, CORS allowed origins, and the maximum
inbound payload size enforced at the WebSocket transport boundary.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultMaxPayloadBytes is the default ceiling for a single inbound WebSocket
// frame (10 MiB). Image messages travel inline as data URLs, so this bound is
// what actually limits them; oversized frames are cut off by the transport
// read limit, never by the routing core.
const DefaultMaxPayloadBytes = 10 << 20

// AppConfig contains all configuration parameters required for the application to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string

	// Transport Settings
	MaxPayloadBytes int64
}

// LoadConfig reads and parses the application configuration from environment variables.
// It provides default values for each configuration item and performs necessary type conversions and validation.
// It returns a pointer to the AppConfig struct and any error encountered.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	// Environment
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Port
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Security Settings ---
	// AllowedOrigins
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr != "" {
		origins := strings.Split(originsStr, ",")
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{}
	}

	// --- Transport Settings ---
	// MaxPayloadBytes
	payloadStr := os.Getenv("MAX_PAYLOAD_BYTES")
	if payloadStr == "" {
		cfg.MaxPayloadBytes = DefaultMaxPayloadBytes
	} else {
		payloadBytes, err := strconv.ParseInt(payloadStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_PAYLOAD_BYTES environment variable: %w", err)
		}
		if payloadBytes < 1024 {
			return nil, fmt.Errorf("MAX_PAYLOAD_BYTES %d is too small to carry a single event frame", payloadBytes)
		}
		cfg.MaxPayloadBytes = payloadBytes
	}

	return cfg, nil
}
