package config

import (
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/spf13/cast"
)

// Config is the process-wide configuration, loaded once at startup from
// environment variables and optionally overlaid with DB-stored overrides.
type Config struct {
	Port        int
	DatabaseURL string
	RedisAddr   string
	DataDir     string
	FFmpegPath  string
	FFprobePath string

	Orchestrator OrchestratorConfig
}

// OrchestratorConfig carries the scan orchestrator's tunables: queue
// admission/watermarks, retry/backoff, lease timing, metadata rate limiting,
// watcher debounce/poll timing, and segment cache sizing. Priority scheduling
// weights are not configurable; they are fixed by models.JobPriority.Weight.
type OrchestratorConfig struct {
	HighWatermark     int
	CriticalWatermark int

	LeaseTTL            time.Duration
	LeaseRenewFraction  float64
	LeaseRenewMinMargin time.Duration
	MaxAttempts         int

	BackoffBase        time.Duration
	BackoffMax         time.Duration
	BackoffJitterFrac  float64
	FastRetryWindow    time.Duration
	HeavyLibraryFactor float64
	HeavyLibraryWindow time.Duration

	PerDeviceScanCap   int
	PerLibraryInFlight int
	MetadataQPS        float64
	MetadataBurst      int

	WatcherDebounce     time.Duration
	WatcherMaxBatch     int
	WatcherPollInterval time.Duration

	SegmentCacheMaxBytes int64
	SegmentPregenCount   int
	SegmentWaitTimeout   time.Duration

	HousekeeperInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port:        envInt("PORT", 8080),
		DatabaseURL: env("DATABASE_URL", "postgres://reelvault:reelvault@db:5432/reelvault?sslmode=disable"),
		RedisAddr:   env("REDIS_ADDR", "redis:6379"),
		DataDir:     env("DATA_DIR", "/data"),
		FFmpegPath:  env("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: env("FFPROBE_PATH", "ffprobe"),

		Orchestrator: OrchestratorConfig{
			HighWatermark:        envInt("QUEUE_HIGH_WATERMARK", 10000),
			CriticalWatermark:    envInt("QUEUE_CRITICAL_WATERMARK", 20000),
			LeaseTTL:             envDuration("LEASE_TTL", 2*time.Minute),
			LeaseRenewFraction:   envFloat("LEASE_RENEW_AT_FRACTION", 0.6),
			LeaseRenewMinMargin:  envDuration("LEASE_RENEW_MIN_MARGIN", 5*time.Second),
			MaxAttempts:          envInt("MAX_ATTEMPTS", 8),
			BackoffBase:          envDuration("BACKOFF_BASE", 2*time.Second),
			BackoffMax:           envDuration("BACKOFF_MAX", 10*time.Minute),
			BackoffJitterFrac:    envFloat("BACKOFF_JITTER_FRACTION", 0.2),
			FastRetryWindow:      envDuration("FAST_RETRY_WINDOW", 30*time.Second),
			HeavyLibraryFactor:   envFloat("HEAVY_LIBRARY_SLOWDOWN_FACTOR", 2.0),
			HeavyLibraryWindow:   envDuration("HEAVY_LIBRARY_WINDOW", 8*time.Minute),
			PerDeviceScanCap:     envInt("PER_DEVICE_SCAN_CAP", 16),
			PerLibraryInFlight:   envInt("PER_LIBRARY_IN_FLIGHT_CAP", 32),
			MetadataQPS:          envFloat("METADATA_QPS", 100),
			MetadataBurst:        envInt("METADATA_BURST", 20),
			WatcherDebounce:      envDuration("WATCHER_DEBOUNCE", 1*time.Second),
			WatcherMaxBatch:      envInt("WATCHER_MAX_BATCH_EVENTS", 500),
			WatcherPollInterval:  envDuration("WATCHER_POLL_INTERVAL", 5*time.Minute),
			SegmentCacheMaxBytes: envInt64("SEGMENT_CACHE_MAX_BYTES", 2<<30),
			SegmentPregenCount:   envInt("SEGMENT_PREGEN_COUNT", 3),
			SegmentWaitTimeout:   envDuration("SEGMENT_WAIT_TIMEOUT", 30*time.Second),
			HousekeeperInterval:  envDuration("HOUSEKEEPER_INTERVAL", 15*time.Second),
		},
	}
}

// MergeFromDB overlays any keys present in the settings table onto the
// env-loaded defaults, matching the teacher's runtime-override pattern.
func (c *Config) MergeFromDB(db *sql.DB) {
	rows, err := db.Query("SELECT key, value FROM system_settings")
	if err != nil {
		log.Printf("config: skipping DB merge: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "queue_high_watermark":
			c.Orchestrator.HighWatermark = cast.ToInt(value)
		case "queue_critical_watermark":
			c.Orchestrator.CriticalWatermark = cast.ToInt(value)
		case "lease_ttl_seconds":
			c.Orchestrator.LeaseTTL = time.Duration(cast.ToInt64(value)) * time.Second
		case "max_attempts":
			c.Orchestrator.MaxAttempts = cast.ToInt(value)
		case "metadata_qps":
			c.Orchestrator.MetadataQPS = cast.ToFloat64(value)
		case "per_device_scan_cap":
			c.Orchestrator.PerDeviceScanCap = cast.ToInt(value)
		case "per_library_in_flight_cap":
			c.Orchestrator.PerLibraryInFlight = cast.ToInt(value)
		}
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		return cast.ToInt(v)
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		return cast.ToInt64(v)
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		return cast.ToFloat64(v)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs := cast.ToInt64(v); secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
