package state

import (
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// LinkCfg describes one bidirectional link. Ports are local to each
// endpoint, costs may differ per direction.
type LinkCfg struct {
	A      NodeId `yaml:"a"`
	B      NodeId `yaml:"b"`
	PortA  int    `yaml:"port_a"`
	PortB  int    `yaml:"port_b"`
	CostAB uint16 `yaml:"cost_ab"`
	CostBA uint16 `yaml:"cost_ba"`
}

type ChangeKind string

const (
	LinkUp   ChangeKind = "up"
	LinkDown ChangeKind = "down"
)

// ChangeCfg is a scheduled topology mutation, due at At unitless time
// units after the simulation starts.
type ChangeCfg struct {
	At      int64      `yaml:"at"`
	Kind    ChangeKind `yaml:"kind"`
	LinkCfg `yaml:",inline"`
}

// Config is the whole topology file.
type Config struct {
	Routers           []NodeId    `yaml:"routers"`
	Clients           []NodeId    `yaml:"clients"`
	Links             []LinkCfg   `yaml:"links"`
	EndTime           int64       `yaml:"end_time"`
	ClientSendRate    int64       `yaml:"client_send_rate"`
	LatencyMultiplier int64       `yaml:"latency_multiplier,omitempty"`
	Changes           []ChangeCfg `yaml:"changes,omitempty"`
	CorrectRoutes     [][]NodeId  `yaml:"correct_routes"`
}

func LoadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, err
	}
	if cfg.LatencyMultiplier == 0 {
		cfg.LatencyMultiplier = DefaultLatencyMultiplier
	}
	err = ConfigValidator(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Scale converts a unitless topology-file time into a simulated duration.
func (c *Config) Scale(units int64) time.Duration {
	return time.Duration(units*c.LatencyMultiplier) * time.Millisecond
}

// Heartbeat is the protocol re-advertisement interval for this network.
func (c *Config) Heartbeat() time.Duration {
	return c.Scale(HeartbeatFactor)
}

func (c *Config) SendRate() time.Duration {
	return c.Scale(c.ClientSendRate)
}

// Nodes returns every configured address, routers first.
func (c *Config) Nodes() []NodeId {
	nodes := make([]NodeId, 0, len(c.Routers)+len(c.Clients))
	nodes = append(nodes, c.Routers...)
	nodes = append(nodes, c.Clients...)
	return nodes
}
