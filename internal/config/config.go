package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Store       StoreConfig       `koanf:"store"`
	Cache       CacheConfig       `koanf:"cache"`
	Monitor     MonitorConfig     `koanf:"monitor"`
	Replication ReplicationConfig `koanf:"replication"`
	Failover    FailoverConfig    `koanf:"failover"`
	Migrator    MigratorConfig    `koanf:"migrator"`
	Regions     []RegionSeed      `koanf:"regions"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	BasePath     string        `koanf:"base_path"` // Optional base path for reverse proxy
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Backend string     `koanf:"backend"` // "memory" or "etcd"
	Etcd    EtcdConfig `koanf:"etcd"`
}

// EtcdConfig represents etcd client configuration
type EtcdConfig struct {
	Endpoints   []string      `koanf:"endpoints"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
	TLS         *TLSConfig    `koanf:"tls"`
}

// CacheConfig represents read-cache configuration
type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// MonitorConfig represents health monitor configuration
type MonitorConfig struct {
	Interval           time.Duration `koanf:"interval"`             // Check cycle period
	ProbeTimeout       time.Duration `koanf:"probe_timeout"`        // Per-probe deadline
	FailureThreshold   int           `koanf:"failure_threshold"`    // Consecutive failures before unhealthy
	CapacityHighWater  float64       `koanf:"capacity_high_water"`  // Utilization above which a region is degraded
	ErrorRateThreshold float64       `koanf:"error_rate_threshold"` // Reported error rate above which a region is degraded
	HistoryWindow      int           `koanf:"history_window"`       // Health records retained per region
}

// ReplicationConfig bounds how fresh replication must be to gate a failover
type ReplicationConfig struct {
	MaxLag         time.Duration `koanf:"max_lag"`
	StalenessBound time.Duration `koanf:"staleness_bound"`
}

// FailoverConfig represents failover orchestration configuration
type FailoverConfig struct {
	CommitTimeout time.Duration `koanf:"commit_timeout"` // Bounded wait for the migration collaborator
	AutoEnabled   bool          `koanf:"auto_enabled"`   // Automatic failover on primary unhealthy
}

// MigratorConfig selects the traffic-migration driver
type MigratorConfig struct {
	Driver   string               `koanf:"driver"` // "none" or "nomad"
	Clusters []NomadClusterConfig `koanf:"clusters"`
}

// NomadClusterConfig maps a region name to its Nomad cluster
type NomadClusterConfig struct {
	Region  string     `koanf:"region"`
	Address string     `koanf:"address"`
	TLS     *TLSConfig `koanf:"tls"`
}

// TLSConfig represents TLS client configuration
type TLSConfig struct {
	CA   string `koanf:"ca"`
	Cert string `koanf:"cert"`
	Key  string `koanf:"key"`
}

// RegionSeed describes a region registered at startup
type RegionSeed struct {
	Name           string `koanf:"name"`
	DisplayName    string `koanf:"display_name"`
	Endpoint       string `koanf:"endpoint"`
	Priority       int    `koanf:"priority"`
	MaxDeployments int    `koanf:"max_deployments"`
	Provider       string `koanf:"provider"`
	Geo            string `koanf:"geo"`
	Primary        bool   `koanf:"primary"` // Bootstrap-only primary designation
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with sensible defaults applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Backend: "memory",
			Etcd: EtcdConfig{
				DialTimeout: 5 * time.Second,
			},
		},
		Cache: CacheConfig{
			TTL: 10 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:           30 * time.Second,
			ProbeTimeout:       5 * time.Second,
			FailureThreshold:   3,
			CapacityHighWater:  0.9,
			ErrorRateThreshold: 0.05,
			HistoryWindow:      100,
		},
		Replication: ReplicationConfig{
			MaxLag:         30 * time.Second,
			StalenessBound: 5 * time.Minute,
		},
		Failover: FailoverConfig{
			CommitTimeout: 2 * time.Minute,
		},
		Migrator: MigratorConfig{
			Driver: "none",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch c.Store.Backend {
	case "memory":
	case "etcd":
		if len(c.Store.Etcd.Endpoints) == 0 {
			return fmt.Errorf("store.etcd.endpoints is required when backend is etcd")
		}
	default:
		return fmt.Errorf("store.backend must be \"memory\" or \"etcd\", got %q", c.Store.Backend)
	}

	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if c.Monitor.ProbeTimeout <= 0 {
		return fmt.Errorf("monitor.probe_timeout must be positive")
	}
	if c.Monitor.FailureThreshold <= 0 {
		return fmt.Errorf("monitor.failure_threshold must be positive")
	}
	if c.Monitor.CapacityHighWater <= 0 || c.Monitor.CapacityHighWater > 1 {
		return fmt.Errorf("monitor.capacity_high_water must be in (0, 1]")
	}
	if c.Monitor.HistoryWindow <= 0 {
		return fmt.Errorf("monitor.history_window must be positive")
	}

	if c.Replication.MaxLag <= 0 {
		return fmt.Errorf("replication.max_lag must be positive")
	}
	if c.Replication.StalenessBound <= 0 {
		return fmt.Errorf("replication.staleness_bound must be positive")
	}

	if c.Failover.CommitTimeout <= 0 {
		return fmt.Errorf("failover.commit_timeout must be positive")
	}

	switch c.Migrator.Driver {
	case "", "none":
	case "nomad":
		if len(c.Migrator.Clusters) == 0 {
			return fmt.Errorf("migrator.clusters is required when driver is nomad")
		}
		for i, cluster := range c.Migrator.Clusters {
			if cluster.Region == "" {
				return fmt.Errorf("migrator.clusters[%d].region is required", i)
			}
			if cluster.Address == "" {
				return fmt.Errorf("migrator.clusters[%d].address is required", i)
			}
		}
	default:
		return fmt.Errorf("migrator.driver must be \"none\" or \"nomad\", got %q", c.Migrator.Driver)
	}

	primaries := 0
	for i, seed := range c.Regions {
		if seed.Name == "" {
			return fmt.Errorf("regions[%d].name is required", i)
		}
		if seed.Endpoint == "" {
			return fmt.Errorf("regions[%d].endpoint is required", i)
		}
		if seed.Primary {
			primaries++
		}
	}
	if primaries > 1 {
		return fmt.Errorf("at most one seeded region may be marked primary")
	}

	return nil
}
