package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every configuration key.
const EnvPrefix = "STALKERKIT_"

// Config holds playlist, store, transport and API settings.
// Load from env; a YAML file (LoadFile) and .env (LoadEnvFile) only fill keys the environment leaves unset.
type Config struct {
	// Files
	PlaylistFile string // e-portals.txt style URL + MAC list
	StorePath    string // JSON array of playlist entries
	StoreDriver  string // "json" | "sqlite"
	SQLitePath   string

	// Transport
	ConnectTimeout   time.Duration // dial timeout for every portal call
	ReadTimeout      time.Duration // whole-request timeout for API calls
	DiscoveryTimeout time.Duration // whole-request timeout for bootstrap/xpcom/version fetches
	XtreamTimeout    time.Duration // player_api.php lookups
	InsecureTLS      bool          // skip certificate verification (most portals use self-signed certs)
	Proxy            string        // socks5://host:port or http://host:port; empty = direct
	RateLimit        float64       // requests/second per portal host; 0 = unlimited
	HostConcurrency  int           // concurrent in-flight requests per host

	// Check-all fan-out cap.
	CheckWorkers int

	// Cookie timezone, e.g. Europe/London.
	Timezone string

	EPGCacheTTL time.Duration

	// HTTP API
	ListenAddr string

	LogLevel  string
	LogFormat string
}

// Load reads config from environment. Call LoadEnvFile(".env") and/or LoadFile(path) before Load().
func Load() *Config {
	return &Config{
		PlaylistFile:     getEnv("PLAYLIST_FILE", "./e-portals.txt"),
		StorePath:        getEnv("STORE", "./playlists.json"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", "json")),
		SQLitePath:       getEnv("SQLITE_PATH", "./stalkerkit.db"),
		ConnectTimeout:   getEnvDuration("CONNECT_TIMEOUT", 6*time.Second),
		ReadTimeout:      getEnvDuration("READ_TIMEOUT", 20*time.Second),
		DiscoveryTimeout: getEnvDuration("DISCOVERY_TIMEOUT", 10*time.Second),
		XtreamTimeout:    getEnvDuration("XTREAM_TIMEOUT", 5*time.Second),
		InsecureTLS:      getEnvBool("INSECURE_TLS", true),
		Proxy:            getEnv("PROXY", ""),
		RateLimit:        getEnvFloat("RATE_LIMIT", 0),
		HostConcurrency:  getEnvInt("HOST_CONCURRENCY", 4),
		CheckWorkers:     getEnvInt("CHECK_WORKERS", 10),
		Timezone:         getEnv("TIMEZONE", LocalTimezone("/etc/timezone")),
		EPGCacheTTL:      getEnvDuration("EPG_CACHE_TTL", 10*time.Minute),
		ListenAddr:       getEnv("LISTEN", ":8089"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
	}
}

// Validate reports settings that would make every portal call fail.
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 || c.DiscoveryTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	switch c.StoreDriver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}
	if c.Proxy != "" && !strings.Contains(c.Proxy, "://") {
		return fmt.Errorf("config: proxy %q needs a scheme (socks5:// or http://)", c.Proxy)
	}
	return nil
}

// LoadFile applies a YAML file of lower_snake keys (playlist_file, read_timeout, ...) to the
// environment. Keys already present in the environment win. A missing file is not an error.
func LoadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		key := EnvPrefix + strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		if _, set := os.LookupEnv(key); set {
			continue
		}
		os.Setenv(key, fmt.Sprint(v))
	}
	return nil
}

// LocalTimezone reads an Area/City zone name from path, else Europe/London.
func LocalTimezone(path string) string {
	const fallback = "Europe/London"
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	tz := strings.TrimSpace(string(data))
	if strings.Contains(tz, "/") && !strings.HasPrefix(tz, "#") {
		return tz
	}
	return fallback
}

func getEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := getEnv(key, ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := getEnv(key, ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := getEnv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
