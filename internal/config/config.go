package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds environment-based settings
type Config struct {
	CMSBaseURL       string
	MQTTBrokerURL    string
	StatusAddress    string
	StateDBPath      string
	CacheDir         string
	CacheBudgetBytes int64
	ResyncInterval   time.Duration
	PrefetchLead     time.Duration
	LogFile          string
	Environment      string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cmsURL := os.Getenv("CMS_BASE_URL")
	if cmsURL == "" {
		return nil, fmt.Errorf("CMS_BASE_URL is required")
	}
	broker := os.Getenv("MQTT_BROKER_URL")
	if broker == "" {
		broker = "tcp://localhost:1883"
	}
	addr := os.Getenv("STATUS_ADDRESS")
	if addr == "" {
		addr = ":8090"
	}
	statePath := os.Getenv("STATE_DB_PATH")
	if statePath == "" {
		statePath = "./player-state.db"
	}
	cacheDir := os.Getenv("MEDIA_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "./media-cache"
	}

	var budget int64
	if v := os.Getenv("MEDIA_CACHE_BUDGET_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MEDIA_CACHE_BUDGET_BYTES %q", v)
		}
		budget = n
	}

	resync := time.Hour
	if v := os.Getenv("CLOCK_RESYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid CLOCK_RESYNC_INTERVAL %q", v)
		}
		resync = d
	}

	lead := 30 * time.Second
	if v := os.Getenv("PREFETCH_LEAD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid PREFETCH_LEAD %q", v)
		}
		lead = d
	}

	return &Config{
		CMSBaseURL:       cmsURL,
		MQTTBrokerURL:    broker,
		StatusAddress:    addr,
		StateDBPath:      statePath,
		CacheDir:         cacheDir,
		CacheBudgetBytes: budget,
		ResyncInterval:   resync,
		PrefetchLead:     lead,
		LogFile:          os.Getenv("LOG_FILE"),
		Environment:      os.Getenv("APP_ENV"),
	}, nil
}
