package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendTables   = "aztables"
	BackendPostgres = "postgres"
)

type Config struct {
	Addr    string
	Debug   bool
	Backend string

	StorageConnectionString string
	ItemsTable              string
	FoldersTable            string
	DatabaseURL             string

	RedisConnectionString string
	BroadcastChannel      string
	SnapshotCacheTTL      time.Duration

	RequestTimeout   time.Duration
	RequestBodyLimit int64
	CORSOrigin       string
	StreamBuffer     int
	StreamKeepAlive  time.Duration
	PprofEnabled     bool
}

// Load reads the server configuration from the environment. Malformed values
// are reported rather than silently replaced by defaults.
func Load() (Config, error) {
	cfg := Config{
		Addr:                    getenv("API_ADDR", ":5000"),
		Backend:                 strings.ToLower(getenv("STORE_BACKEND", BackendMemory)),
		StorageConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		ItemsTable:              getenv("ITEMS_TABLE", "Items"),
		FoldersTable:            getenv("FOLDERS_TABLE", "Folders"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisConnectionString:   os.Getenv("REDIS_CONNECTION_STRING"),
		BroadcastChannel:        getenv("BROADCAST_CHANNEL", "organizer:broadcast"),
		CORSOrigin:              getenv("CORS_ORIGIN", "*"),
	}

	var err error
	if cfg.Debug, err = getenvBool("DEBUG", false); err != nil {
		return Config{}, err
	}
	if cfg.PprofEnabled, err = getenvBool("PPROF_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.SnapshotCacheTTL, err = getenvDuration("SNAPSHOT_CACHE_TTL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = getenvDuration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.StreamKeepAlive, err = getenvDuration("STREAM_KEEPALIVE", 25*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.StreamBuffer, err = getenvInt("STREAM_BUFFER", 64); err != nil {
		return Config{}, err
	}
	limit, err := getenvInt("REQUEST_BODY_LIMIT", 64*1024)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestBodyLimit = int64(limit)

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendTables:
		if c.StorageConnectionString == "" {
			return fmt.Errorf("STORE_BACKEND=%s requires STORAGE_CONNECTION_STRING", c.Backend)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=%s requires DATABASE_URL", c.Backend)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Backend)
	}
	if c.StreamBuffer <= 0 {
		return fmt.Errorf("STREAM_BUFFER must be greater than zero")
	}
	if c.RequestBodyLimit <= 0 {
		return fmt.Errorf("REQUEST_BODY_LIMIT must be greater than zero")
	}
	return nil
}

// RedisOptions accepts either a redis:// URL or an Azure style connection
// string ("host:port,password=...,ssl=True").
func RedisOptions(conn string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.TrimSpace(parts[0]) == "" {
		return nil, fmt.Errorf("invalid redis connection string")
	}
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return d, nil
}
