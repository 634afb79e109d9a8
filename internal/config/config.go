package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds service configuration.
type Config struct {
	ServerAddr       string
	BackendBaseURL   string
	SnapshotPath     string
	ActorTimeout     time.Duration
	OTPMaxAttempts   int
	TrustNewAccounts bool
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	addr := getenv("SERVER_ADDR", "0.0.0.0:8080")
	baseURL := getenv("BACKEND_BASE_URL", "http://localhost:9090")
	snapshotPath := getenv("SNAPSHOT_PATH", "orderflow.db")
	actorTimeout := parseDuration(getenv("ACTOR_TIMEOUT", "30s"), 30*time.Second)
	otpMaxAttempts := parseInt(getenv("OTP_MAX_ATTEMPTS", "5"), 5)
	trustNewAccounts := parseBool(getenv("TRUST_NEW_ACCOUNTS", "true"), true)

	return &Config{
		ServerAddr:       addr,
		BackendBaseURL:   baseURL,
		SnapshotPath:     snapshotPath,
		ActorTimeout:     actorTimeout,
		OTPMaxAttempts:   otpMaxAttempts,
		TrustNewAccounts: trustNewAccounts,
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}
