package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DebugMode enables verbose logging across the service.
var DebugMode = os.Getenv("DEBUG") == "true"

// Config holds runtime settings. Values come from the environment (with an
// optional .env file) and fall back to defaults suitable for Binance futures.
type Config struct {
	// Exchange endpoints.
	WsEndpoint   string
	RestEndpoint string

	// Order book maintenance.
	SnapshotDepth     int
	BufferCap         int
	LargeGapThreshold int64
	ResyncCooldown    time.Duration
	SnapshotRetryMin  time.Duration
	SnapshotRetryMax  time.Duration

	// Projection.
	RenderInterval time.Duration

	// Connection lifecycle.
	ReleaseGrace time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// Servers.
	GatewayAddr string
	MetricsAddr string

	// Dashboard gateway.
	AllowedSymbols []string

	// Trade log persistence (Supabase). Empty DSN disables the store.
	PostgresDSN string
}

func Load() *Config {
	if err := godotenv.Load(); err == nil && DebugMode {
		log.Println("loaded environment from .env")
	}

	return &Config{
		WsEndpoint:   getStr("BINANCE_WS_ENDPOINT", "wss://fstream.binance.com/stream"),
		RestEndpoint: getStr("BINANCE_REST_ENDPOINT", "https://fapi.binance.com"),

		SnapshotDepth:     getInt("ORDERBOOK_SNAPSHOT_DEPTH", 1000),
		BufferCap:         getInt("ORDERBOOK_BUFFER_CAP", 100),
		LargeGapThreshold: int64(getInt("ORDERBOOK_LARGE_GAP_THRESHOLD", 1000)),
		ResyncCooldown:    getDur("ORDERBOOK_RESYNC_COOLDOWN", 5*time.Second),
		SnapshotRetryMin:  getDur("SNAPSHOT_RETRY_MIN", 500*time.Millisecond),
		SnapshotRetryMax:  getDur("SNAPSHOT_RETRY_MAX", 10*time.Second),

		RenderInterval: getDur("ORDERBOOK_RENDER_INTERVAL", 150*time.Millisecond),

		ReleaseGrace: getDur("ORDERBOOK_RELEASE_GRACE", 10*time.Second),
		ReconnectMin: getDur("WS_RECONNECT_MIN", 1*time.Second),
		ReconnectMax: getDur("WS_RECONNECT_MAX", 8*time.Second),

		GatewayAddr: getStr("GATEWAY_ADDR", ":8090"),
		MetricsAddr: getStr("METRICS_ADDR", ":8080"),

		AllowedSymbols: getList("GATEWAY_ALLOWED_SYMBOLS"),

		PostgresDSN: getStr("SUPABASE_DSN", ""),
	}
}

func getStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
