package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTopology = `
routers: [A, B, C]
clients: [S, T]
links:
  - {a: S, b: A, port_a: 0, port_b: 1, cost_ab: 1, cost_ba: 1}
  - {a: A, b: B, port_a: 2, port_b: 1, cost_ab: 1, cost_ba: 1}
  - {a: B, b: C, port_a: 2, port_b: 1, cost_ab: 1, cost_ba: 1}
  - {a: C, b: T, port_a: 2, port_b: 0, cost_ab: 1, cost_ba: 1}
end_time: 300
client_send_rate: 20
changes:
  - {at: 150, kind: down, a: A, b: B}
correct_routes:
  - [S, A, B, C, T]
  - [T, C, B, A, S]
`

func writeTopology(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeTopology(t, sampleTopology))
	require.NoError(t, err)

	assert.Equal(t, []NodeId{"A", "B", "C"}, cfg.Routers)
	assert.Equal(t, []NodeId{"S", "T"}, cfg.Clients)
	assert.Len(t, cfg.Links, 4)
	assert.Equal(t, DefaultLatencyMultiplier, cfg.LatencyMultiplier)
	assert.Equal(t, LinkDown, cfg.Changes[0].Kind)
	assert.Equal(t, NodeId("A"), cfg.Changes[0].LinkCfg.A)
	assert.Len(t, cfg.CorrectRoutes, 2)
}

func TestConfigScaling(t *testing.T) {
	cfg := &Config{LatencyMultiplier: 100, ClientSendRate: 10}
	assert.Equal(t, "1s", cfg.Heartbeat().String())
	assert.Equal(t, "1s", cfg.SendRate().String())
	assert.Equal(t, "500ms", cfg.Scale(5).String())
}

func TestConfigValidatorRejections(t *testing.T) {
	base := func() *Config {
		return &Config{
			Routers: []NodeId{"A", "B"},
			Clients: []NodeId{"S"},
			Links: []LinkCfg{
				{A: "A", B: "B", PortA: 1, PortB: 1, CostAB: 1, CostBA: 1},
				{A: "S", B: "A", PortA: 0, PortB: 2, CostAB: 1, CostBA: 1},
			},
			EndTime:           100,
			ClientSendRate:    10,
			LatencyMultiplier: 1,
		}
	}

	assert.NoError(t, ConfigValidator(base()))

	cases := map[string]func(*Config){
		"no routers":          func(c *Config) { c.Routers = nil },
		"reserved name":       func(c *Config) { c.Routers[0] = Broadcast },
		"bad name":            func(c *Config) { c.Routers[0] = "no spaces" },
		"duplicate node":      func(c *Config) { c.Clients = append(c.Clients, "A") },
		"unknown endpoint":    func(c *Config) { c.Links[0].B = "Z" },
		"self loop":           func(c *Config) { c.Links[0].B = "A" },
		"zero cost":           func(c *Config) { c.Links[0].CostAB = 0 },
		"infinite cost":       func(c *Config) { c.Links[0].CostAB = Infinity },
		"client degree":       func(c *Config) { c.Links[0].A = "S" },
		"no end time":         func(c *Config) { c.EndTime = 0 },
		"no send rate":        func(c *Config) { c.ClientSendRate = 0 },
		"bad change kind":     func(c *Config) { c.Changes = []ChangeCfg{{At: 1, Kind: "flap"}} },
		"change out of range": func(c *Config) { c.Changes = []ChangeCfg{{At: 999, Kind: LinkDown, LinkCfg: LinkCfg{A: "A", B: "B"}}} },
		"short correct route": func(c *Config) { c.CorrectRoutes = [][]NodeId{{"A"}} },
		"unknown route hop":   func(c *Config) { c.CorrectRoutes = [][]NodeId{{"A", "Z"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			assert.Error(t, ConfigValidator(cfg))
		})
	}
}
