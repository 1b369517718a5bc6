package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted by BridgeConfig.Transport.
const (
	TransportWebSocket = "ws"
	TransportRedis     = "redis"
)

// BridgeConfig holds configuration for the bridge host.
type BridgeConfig struct {
	Port           int           `yaml:"port"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
	Transport      string        `yaml:"transport"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPrefix    string        `yaml:"redis_prefix"`
	RedisNamespace string        `yaml:"redis_namespace"`
	ScriptURL      string        `yaml:"script_url"`
	CallbackPrefix string        `yaml:"callback_prefix"`
	CallbackTTL    time.Duration `yaml:"callback_ttl"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	SendQueue      int           `yaml:"send_queue"`
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags on fs so main can call fs.Parse().
func (c *BridgeConfig) BindFlags(fs *flag.FlagSet) {
	c.ConfigFile = GetEnv("CONFIG_FILE", DefaultConfigPath("bridge.yaml"))
	c.LogLevel = GetEnv("LOG_LEVEL", "info")
	c.Port, _ = strconv.Atoi(GetEnv("PORT", "8080"))
	mp := GetEnv("METRICS_PORT", "")
	if mp != "" && !strings.Contains(mp, ":") {
		mp = ":" + mp
	}
	c.MetricsAddr = mp
	c.Transport = GetEnv("TRANSPORT", TransportWebSocket)
	c.RedisAddr = GetEnv("REDIS_ADDR", "")
	c.RedisPrefix = GetEnv("REDIS_PREFIX", "jsbridge")
	c.RedisNamespace = GetEnv("REDIS_NAMESPACE", "")
	c.ScriptURL = GetEnv("SCRIPT_URL", "")
	c.CallbackPrefix = GetEnv("CALLBACK_PREFIX", "")
	if d, err := time.ParseDuration(GetEnv("CALLBACK_TTL", "0s")); err == nil {
		c.CallbackTTL = d
	}
	if o := GetEnv("ALLOWED_ORIGINS", ""); o != "" {
		c.AllowedOrigins = splitList(o)
	}
	if n, err := strconv.Atoi(GetEnv("SEND_QUEUE", "64")); err == nil {
		c.SendQueue = n
	} else {
		c.SendQueue = 64
	}

	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "bridge config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the page connection")
	fs.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port (served on the main port when empty)")
	fs.StringVar(&c.Transport, "transport", c.Transport, "page transport: ws or redis")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address (host:port or redis:// URL) for the redis transport")
	fs.StringVar(&c.RedisPrefix, "redis-prefix", c.RedisPrefix, "key prefix for the redis transport")
	fs.StringVar(&c.RedisNamespace, "redis-namespace", c.RedisNamespace, "namespace shared with the page process; random when empty")
	fs.StringVar(&c.ScriptURL, "script-url", c.ScriptURL, "script injected into the page when it is ready")
	fs.StringVar(&c.CallbackPrefix, "callback-prefix", c.CallbackPrefix, "prefix of generated callback ids")
	fs.DurationVar(&c.CallbackTTL, "callback-ttl", c.CallbackTTL, "drop callbacks without a response after this long; 0 keeps them")
	fs.Func("allowed-origins", "comma separated origins allowed to connect", func(v string) error {
		c.AllowedOrigins = splitList(v)
		return nil
	})
	fs.IntVar(&c.SendQueue, "send-queue", c.SendQueue, "outbound frames buffered per page connection")
}

// LoadFile populates the config from a YAML file. Fields already set remain
// unless overwritten by corresponding entries in the file.
func (c *BridgeConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate reports configuration errors.
func (c *BridgeConfig) Validate() error {
	switch c.Transport {
	case TransportWebSocket:
	case TransportRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("transport %q requires a redis address", c.Transport)
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.CallbackTTL < 0 {
		return fmt.Errorf("callback ttl must not be negative")
	}
	if c.SendQueue <= 0 {
		return fmt.Errorf("send queue must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
