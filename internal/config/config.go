package config

import (
	"errors"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	Addr        string
	DatabaseURL string
	RedisAddr   string
	TokenDBPath string
	Issuer      string

	MaxBodyBytes int64
	IPAllowlist  []string

	TLSCertFile string
	TLSKeyFile  string

	// Deadline watcher.
	ScanInterval  int // seconds
	ScanBatchSize int
}

// Getenv matches os.Getenv; injectable for tests.
type Getenv func(string) string

// Load reads configuration from environment variables. Development and
// test environments may omit the hardening knobs; production may not.
func Load(getenv Getenv) (*Config, error) {
	cfg := &Config{
		Environment: getenv("APP_ENV"),
		Addr:        getenv("LISTEN_ADDR"),
		DatabaseURL: getenv("DATABASE_URL"),
		RedisAddr:   getenv("REDIS_ADDR"),
		TokenDBPath: getenv("TOKEN_DB_PATH"),
		Issuer:      getenv("OAUTH_ISSUER"),
		TLSCertFile: getenv("TLS_CERT_FILE"),
		TLSKeyFile:  getenv("TLS_KEY_FILE"),
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.TokenDBPath == "" {
		cfg.TokenDBPath = "tokens.db"
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "dispute-engine"
	}

	cfg.MaxBodyBytes = 1 << 20
	if v := getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, errors.New("MAX_BODY_BYTES must be a positive integer")
		}
		cfg.MaxBodyBytes = n
	}

	if v := getenv("IP_ALLOWLIST"); v != "" {
		for _, cidr := range strings.Split(v, ",") {
			cidr = strings.TrimSpace(cidr)
			if cidr != "" {
				cfg.IPAllowlist = append(cfg.IPAllowlist, cidr)
			}
		}
	}

	// The watcher's redis leader lock expires one second before the next
	// tick, so intervals under two seconds would produce a lock that never
	// expires.
	cfg.ScanInterval = 60
	if v := getenv("DEADLINE_SCAN_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 {
			return nil, errors.New("DEADLINE_SCAN_INTERVAL must be an integer of at least 2")
		}
		cfg.ScanInterval = n
	}

	cfg.ScanBatchSize = 500
	if v := getenv("DEADLINE_SCAN_BATCH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.New("DEADLINE_SCAN_BATCH must be a positive integer")
		}
		cfg.ScanBatchSize = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is complete for its tier.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.Environment == "production" || c.Environment == "staging" {
		if c.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
		if c.TLSCertFile == "" {
			missing = append(missing, "TLS_CERT_FILE")
		}
		if c.TLSKeyFile == "" {
			missing = append(missing, "TLS_KEY_FILE")
		}
		if len(missing) > 0 {
			return errors.New("missing required environment variables for " + c.Environment + ": " + strings.Join(missing, ", "))
		}
	}

	return nil
}
