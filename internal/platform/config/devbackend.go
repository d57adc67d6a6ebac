package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DevBackendConfig configures the in-memory dispatch backend binary.
type DevBackendConfig struct {
	Addr           string
	ReservationTTL time.Duration
	// SeedLoads is how many waiting loads are created at startup.
	SeedLoads int
}

func LoadDevBackendConfigFromEnv() (DevBackendConfig, error) {
	cfg := DevBackendConfig{
		Addr:           "127.0.0.1:8080",
		ReservationTTL: 120 * time.Second,
	}
	if v := os.Getenv("DEV_BACKEND_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("RESERVATION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return DevBackendConfig{}, fmt.Errorf("RESERVATION_TTL must be a duration (e.g. 2m): %w", err)
		}
		if d <= 0 {
			return DevBackendConfig{}, fmt.Errorf("RESERVATION_TTL must be positive, got %s", d)
		}
		cfg.ReservationTTL = d
	}
	if v := os.Getenv("SEED_LOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return DevBackendConfig{}, fmt.Errorf("SEED_LOADS must be a non-negative integer, got %q", v)
		}
		cfg.SeedLoads = n
	}
	return cfg, nil
}
