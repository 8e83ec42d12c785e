// Package config loads the YAML configuration of the syncpoint command.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/syncpoint/objstore"
	"github.com/arloliu/syncpoint/restapi"
)

// Config represents the runner configuration.
type Config struct {
	Nodes       []NodeConfig          `yaml:"nodes"`
	ControlAPI  ControlAPIConfig      `yaml:"control_api"`
	CQL         CQLConfig             `yaml:"cql"`
	ObjectStore *objstore.MinIOConfig `yaml:"object_store"`
	LogStream   *LogStreamConfig      `yaml:"log_stream"`
	Run         RunConfig             `yaml:"run"`
	Metrics     MetricsConfig         `yaml:"metrics"`
}

// NodeConfig describes one pre-provisioned cluster node.
type NodeConfig struct {
	// ID is the node address used for the control API and log subjects.
	ID string `yaml:"id"`

	// LogFile is the node's log file on this host.
	LogFile string `yaml:"log_file"`

	// DataDir is the node's data directory, used to list snapshot files.
	DataDir string `yaml:"data_dir"`

	// APIURL overrides the control API base URL, e.g. "http://10.0.0.1:10000".
	APIURL string `yaml:"api_url"`
}

type ControlAPIConfig struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type CQLConfig struct {
	// Hosts defaults to every node id.
	Hosts       []string      `yaml:"hosts"`
	Port        int           `yaml:"port"`
	Timeout     time.Duration `yaml:"timeout"`
	Consistency string        `yaml:"consistency"`
}

// LogStreamConfig selects JetStream as the log transport.
//
// With Ship set, the command forwards each node's LogFile into the stream
// itself; otherwise lines are expected to be published by an external agent.
type LogStreamConfig struct {
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Ship          bool          `yaml:"ship"`
	ShipInterval  time.Duration `yaml:"ship_interval"`
}

type RunConfig struct {
	// Scenarios lists scenario names in run order; empty runs all.
	Scenarios   []string      `yaml:"scenarios"`
	LogTimeout  time.Duration `yaml:"log_timeout"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
	Backup      BackupConfig  `yaml:"backup"`
	Tablets     TabletsConfig `yaml:"tablets"`
}

type BackupConfig struct {
	Keyspace string `yaml:"keyspace"`
	Table    string `yaml:"table"`
	Tag      string `yaml:"tag"`

	// Endpoint is the object storage endpoint name known to the nodes.
	Endpoint string `yaml:"endpoint"`
}

type TabletsConfig struct {
	Keyspace    string        `yaml:"keyspace"`
	MoveTimeout time.Duration `yaml:"move_timeout"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

// ErrNoNodes is returned when the configuration names no node.
var ErrNoNodes = errors.New("config: at least one node is required")

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(cfg.Nodes) == 0 {
		return nil, ErrNoNodes
	}
	seen := make(map[string]bool, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("config: node %d has no id", i)
		}
		if seen[n.ID] {
			return nil, fmt.Errorf("config: node %s listed twice", n.ID)
		}
		seen[n.ID] = true
	}

	cfg.applyDefaults()

	if cfg.LogStream != nil && cfg.LogStream.Ship {
		for _, n := range cfg.Nodes {
			if n.LogFile == "" {
				return nil, fmt.Errorf("config: node %s needs log_file to ship logs", n.ID)
			}
		}
	} else if cfg.LogStream == nil {
		for _, n := range cfg.Nodes {
			if n.LogFile == "" {
				return nil, fmt.Errorf("config: node %s has no log_file and no log_stream is configured", n.ID)
			}
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ControlAPI.Port == 0 {
		c.ControlAPI.Port = restapi.DefaultPort
	}
	if c.ControlAPI.Timeout == 0 {
		c.ControlAPI.Timeout = 30 * time.Second
	}

	if len(c.CQL.Hosts) == 0 {
		for _, n := range c.Nodes {
			c.CQL.Hosts = append(c.CQL.Hosts, n.ID)
		}
	}
	if c.CQL.Port == 0 {
		c.CQL.Port = 9042
	}
	if c.CQL.Timeout == 0 {
		c.CQL.Timeout = 10 * time.Second
	}
	if c.CQL.Consistency == "" {
		c.CQL.Consistency = "QUORUM"
	}

	if ls := c.LogStream; ls != nil {
		if ls.Stream == "" {
			ls.Stream = "SYNCPOINT_LOGS"
		}
		if ls.SubjectPrefix == "" {
			ls.SubjectPrefix = "syncpoint.logs"
		}
		if ls.ShipInterval == 0 {
			ls.ShipInterval = 100 * time.Millisecond
		}
	}

	if c.Run.LogTimeout == 0 {
		c.Run.LogTimeout = 60 * time.Second
	}
	if c.Run.TaskTimeout == 0 {
		c.Run.TaskTimeout = 5 * time.Minute
	}

	if c.Metrics.Prefix == "" {
		c.Metrics.Prefix = "syncpoint"
	}
}
