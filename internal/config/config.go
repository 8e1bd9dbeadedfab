package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// greyd Configuration with Environment Overrides
// =============================================================================

// Config is the full typed configuration tree, one sub-struct per
// collaborator the daemon wires together in cmd/greyd.
type Config struct {
	Ring   RingConfig   `yaml:"ring"`
	Queue  QueueConfig  `yaml:"queue"`
	Oracle OracleConfig `yaml:"oracle"`
	Peer   PeerConfig   `yaml:"peer"`
	Server ServerConfig `yaml:"server"`
	Admin  AdminConfig  `yaml:"admin"`
	Acct   AcctConfig   `yaml:"acct"`
}

// RingConfig controls the Bloom ring's shape and rotation cadence.
type RingConfig struct {
	Size             int `yaml:"ring_size"`
	FilterBits       int `yaml:"filter_bits"`
	K                int `yaml:"k"`
	SliceBits        int `yaml:"slice_bits"`
	RotationInterval int `yaml:"rotation_interval_sec"`
}

// QueueConfig controls the bounded update queue between the engine and
// the ring/peer consumers.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// OracleConfig controls the reputation oracle: whether it's enabled, the
// DNSBL zone it queries, its per-call timeout, and an optional Redis
// cache in front of it.
type OracleConfig struct {
	Enabled       bool   `yaml:"oracle_enabled"`
	DNSBLZone     string `yaml:"dnsbl_zone"`
	TimeoutMs     int    `yaml:"oracle_timeout_ms"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisTTLSec   int    `yaml:"redis_ttl_sec"`
}

// PeerConfig controls the optional peer replication link.
type PeerConfig struct {
	Host              string `yaml:"peer_host"`
	Port              int    `yaml:"peer_port"`
	AggregateInterval int    `yaml:"aggregate_interval_sec"`
	SpiffeSocketPath  string `yaml:"spiffe_socket_path"`
	PeerSpiffeID      string `yaml:"peer_spiffe_id"`
	MACKeyHex         string `yaml:"mac_key_hex"`
}

// ServerConfig controls the client-facing front-end.
type ServerConfig struct {
	Transport     string `yaml:"transport"`
	ListenHost    string `yaml:"listen_host"`
	ListenPort    int    `yaml:"listen_port"`
	MaxWorkers    int    `yaml:"max_workers"`
	ListenBacklog int    `yaml:"listen_backlog"`
	UpdateAlways  bool   `yaml:"update_always"`
}

// AdminConfig controls the operator-facing HTTP and gRPC surfaces.
type AdminConfig struct {
	HTTPHost string `yaml:"http_host"`
	HTTPPort int    `yaml:"http_port"`
	RPCHost  string `yaml:"rpc_host"`
	RPCPort  int    `yaml:"rpc_port"`
}

// AcctConfig controls where accounting/audit events are sent in addition
// to the in-process log.
type AcctConfig struct {
	PostgresDSN  string `yaml:"postgres_dsn"`
	EventBusName string `yaml:"event_bus_name"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loading it from CONFIG_PATH
// (default "config.yaml") on first use.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides, then fills
// in defaults for anything still zero-valued.
func (c *Config) applyEnvOverrides() {
	// Ring
	if v := getEnvInt("GREYD_RING_SIZE", 0); v > 0 {
		c.Ring.Size = v
	}
	if v := getEnvInt("GREYD_FILTER_BITS", 0); v > 0 {
		c.Ring.FilterBits = v
	}
	if v := getEnvInt("GREYD_K", 0); v > 0 {
		c.Ring.K = v
	}
	if v := getEnvInt("GREYD_SLICE_BITS", 0); v > 0 {
		c.Ring.SliceBits = v
	}
	if v := getEnvInt("GREYD_ROTATION_INTERVAL_SEC", 0); v > 0 {
		c.Ring.RotationInterval = v
	}

	// Queue
	if v := getEnvInt("GREYD_QUEUE_CAPACITY", 0); v > 0 {
		c.Queue.Capacity = v
	}

	// Oracle
	c.Oracle.Enabled = getEnvBool("GREYD_ORACLE_ENABLED", c.Oracle.Enabled)
	c.Oracle.DNSBLZone = getEnv("GREYD_DNSBL_ZONE", c.Oracle.DNSBLZone)
	if v := getEnvInt("GREYD_ORACLE_TIMEOUT_MS", 0); v > 0 {
		c.Oracle.TimeoutMs = v
	}
	c.Oracle.RedisAddr = getEnv("GREYD_REDIS_ADDR", c.Oracle.RedisAddr)
	c.Oracle.RedisPassword = getEnv("GREYD_REDIS_PASSWORD", c.Oracle.RedisPassword)
	if v := getEnvInt("GREYD_REDIS_DB", -1); v >= 0 {
		c.Oracle.RedisDB = v
	}
	if v := getEnvInt("GREYD_REDIS_TTL_SEC", 0); v > 0 {
		c.Oracle.RedisTTLSec = v
	}

	// Peer
	c.Peer.Host = getEnv("GREYD_PEER_HOST", c.Peer.Host)
	if v := getEnvInt("GREYD_PEER_PORT", 0); v > 0 {
		c.Peer.Port = v
	}
	if v := getEnvInt("GREYD_AGGREGATE_INTERVAL_SEC", 0); v > 0 {
		c.Peer.AggregateInterval = v
	}
	c.Peer.SpiffeSocketPath = getEnv("GREYD_SPIFFE_SOCKET_PATH", c.Peer.SpiffeSocketPath)
	c.Peer.PeerSpiffeID = getEnv("GREYD_PEER_SPIFFE_ID", c.Peer.PeerSpiffeID)
	c.Peer.MACKeyHex = getEnv("GREYD_MAC_KEY_HEX", c.Peer.MACKeyHex)

	// Server
	c.Server.Transport = getEnv("GREYD_TRANSPORT", c.Server.Transport)
	c.Server.ListenHost = getEnv("GREYD_LISTEN_HOST", c.Server.ListenHost)
	if v := getEnvInt("GREYD_LISTEN_PORT", 0); v > 0 {
		c.Server.ListenPort = v
	}
	if v := getEnvInt("GREYD_MAX_WORKERS", 0); v > 0 {
		c.Server.MaxWorkers = v
	}
	if v := getEnvInt("GREYD_LISTEN_BACKLOG", 0); v > 0 {
		c.Server.ListenBacklog = v
	}
	c.Server.UpdateAlways = getEnvBool("GREYD_UPDATE_ALWAYS", c.Server.UpdateAlways)

	// Admin
	c.Admin.HTTPHost = getEnv("GREYD_ADMIN_HTTP_HOST", c.Admin.HTTPHost)
	if v := getEnvInt("GREYD_ADMIN_HTTP_PORT", 0); v > 0 {
		c.Admin.HTTPPort = v
	}
	c.Admin.RPCHost = getEnv("GREYD_ADMIN_RPC_HOST", c.Admin.RPCHost)
	if v := getEnvInt("GREYD_ADMIN_RPC_PORT", 0); v > 0 {
		c.Admin.RPCPort = v
	}

	// Acct
	c.Acct.PostgresDSN = getEnv("GREYD_ACCT_POSTGRES_DSN", c.Acct.PostgresDSN)
	c.Acct.EventBusName = getEnv("GREYD_ACCT_EVENT_BUS_NAME", c.Acct.EventBusName)

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
// Per spec.md §3's design note, k=8 slices of 32 bits is the reasonable
// default for the Bloom bit-indexing scheme.
func (c *Config) applyDefaults() {
	if c.Ring.Size == 0 {
		c.Ring.Size = 3
	}
	if c.Ring.FilterBits == 0 {
		c.Ring.FilterBits = 1 << 20
	}
	if c.Ring.K == 0 {
		c.Ring.K = 8
	}
	if c.Ring.SliceBits == 0 {
		c.Ring.SliceBits = 32
	}
	if c.Ring.RotationInterval == 0 {
		c.Ring.RotationInterval = 3600
	}
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = 1024
	}
	if c.Oracle.DNSBLZone == "" {
		c.Oracle.DNSBLZone = "zen.spamhaus.org"
	}
	if c.Oracle.TimeoutMs == 0 {
		c.Oracle.TimeoutMs = 2000
	}
	if c.Oracle.RedisTTLSec == 0 {
		c.Oracle.RedisTTLSec = 300
	}
	if c.Peer.AggregateInterval == 0 {
		c.Peer.AggregateInterval = 300
	}
	if c.Server.Transport == "" {
		c.Server.Transport = "stream"
	}
	if c.Server.ListenHost == "" {
		c.Server.ListenHost = "0.0.0.0"
	}
	if c.Server.ListenPort == 0 {
		c.Server.ListenPort = 6677
	}
	if c.Server.MaxWorkers == 0 {
		c.Server.MaxWorkers = 64
	}
	if c.Server.ListenBacklog == 0 {
		c.Server.ListenBacklog = 128
	}
	if c.Admin.HTTPHost == "" {
		c.Admin.HTTPHost = "127.0.0.1"
	}
	if c.Admin.HTTPPort == 0 {
		c.Admin.HTTPPort = 8081
	}
	if c.Admin.RPCHost == "" {
		c.Admin.RPCHost = "127.0.0.1"
	}
	if c.Admin.RPCPort == 0 {
		c.Admin.RPCPort = 9090
	}
	if c.Acct.EventBusName == "" {
		c.Acct.EventBusName = "greyd"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

