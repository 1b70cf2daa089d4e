package sim

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/encodeous/loom/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastTicks(t *testing.T) {
	t.Helper()
	old := state.TickInterval
	state.TickInterval = 5 * time.Millisecond
	t.Cleanup(func() { state.TickInterval = old })
}

// diamondConfig is S - A - B - C - T with an expensive A-C shortcut. The
// cheap route S->T is S A B C T (cost 3 through the middle), the shortcut
// only wins once A-B goes down.
func diamondConfig(correct [][]state.NodeId, changes []state.ChangeCfg) *state.Config {
	return &state.Config{
		Routers: []state.NodeId{"A", "B", "C"},
		Clients: []state.NodeId{"S", "T"},
		Links: []state.LinkCfg{
			{A: "S", B: "A", PortA: 0, PortB: 1, CostAB: 1, CostBA: 1},
			{A: "A", B: "B", PortA: 2, PortB: 1, CostAB: 1, CostBA: 1},
			{A: "B", B: "C", PortA: 2, PortB: 1, CostAB: 1, CostBA: 1},
			{A: "A", B: "C", PortA: 3, PortB: 3, CostAB: 5, CostBA: 5},
			{A: "C", B: "T", PortA: 2, PortB: 0, CostAB: 1, CostBA: 1},
		},
		EndTime:           1200,
		ClientSendRate:    100,
		LatencyMultiplier: 1,
		Changes:           changes,
		CorrectRoutes:     correct,
	}
}

func runSim(t *testing.T, cfg *state.Config, protocol Protocol) *Report {
	t.Helper()
	net, err := New(cfg, protocol, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	report, err := net.Run(context.Background())
	require.NoError(t, err)
	return report
}

func TestConvergenceOnStaticTopology(t *testing.T) {
	fastTicks(t)
	correct := [][]state.NodeId{
		{"S", "A", "B", "C", "T"},
		{"T", "C", "B", "A", "S"},
	}
	for _, protocol := range []Protocol{DV, LS} {
		t.Run(string(protocol), func(t *testing.T) {
			report := runSim(t, diamondConfig(correct, nil), protocol)
			require.Len(t, report.Outcomes, 2)
			assert.True(t, report.AllCorrect(), "routes: %+v", report.Outcomes)
		})
	}
}

func TestReconvergenceAfterLinkFailure(t *testing.T) {
	fastTicks(t)
	correct := [][]state.NodeId{
		{"S", "A", "C", "T"},
		{"T", "C", "A", "S"},
	}
	changes := []state.ChangeCfg{
		{At: 600, Kind: state.LinkDown, LinkCfg: state.LinkCfg{A: "A", B: "B"}},
	}
	for _, protocol := range []Protocol{DV, LS} {
		t.Run(string(protocol), func(t *testing.T) {
			report := runSim(t, diamondConfig(correct, changes), protocol)
			require.Len(t, report.Outcomes, 2)
			assert.True(t, report.AllCorrect(), "routes: %+v", report.Outcomes)
		})
	}
}

func TestLinkRestorationReclaimsCheaperPath(t *testing.T) {
	fastTicks(t)
	correct := [][]state.NodeId{
		{"S", "A", "B", "C", "T"},
		{"T", "C", "B", "A", "S"},
	}
	changes := []state.ChangeCfg{
		{At: 400, Kind: state.LinkDown, LinkCfg: state.LinkCfg{A: "A", B: "B"}},
		{At: 700, Kind: state.LinkUp, LinkCfg: state.LinkCfg{A: "A", B: "B", PortA: 2, PortB: 1, CostAB: 1, CostBA: 1}},
	}
	for _, protocol := range []Protocol{DV, LS} {
		t.Run(string(protocol), func(t *testing.T) {
			report := runSim(t, diamondConfig(correct, changes), protocol)
			require.Len(t, report.Outcomes, 2)
			assert.True(t, report.AllCorrect(), "routes: %+v", report.Outcomes)
		})
	}
}

func TestMirrorRoutersDeliverNothing(t *testing.T) {
	fastTicks(t)
	cfg := diamondConfig(nil, nil)
	cfg.EndTime = 300

	report := runSim(t, cfg, Mirror)

	assert.Empty(t, report.Outcomes)
	assert.False(t, report.AllCorrect())
}

func TestUnknownProtocolRejected(t *testing.T) {
	_, err := New(diamondConfig(nil, nil), Protocol("rip"), slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestSnapshotCoversEveryRouter(t *testing.T) {
	net, err := New(diamondConfig(nil, nil), LS, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	snapshots := net.Snapshot()

	require.Len(t, snapshots, 3)
	for _, addr := range []state.NodeId{"A", "B", "C"} {
		assert.Contains(t, snapshots[addr], string(addr))
	}
}

func TestNewestReportWins(t *testing.T) {
	net, err := New(diamondConfig(nil, nil), DV, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	base := time.Now()

	net.updateRoute("S", "T", []state.NodeId{"S", "A", "T"}, base.Add(time.Second))
	net.updateRoute("S", "T", []state.NodeId{"S", "T"}, base)

	report := net.buildReport()
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, []state.NodeId{"S", "A", "T"}, report.Outcomes[0].Path)
}

func TestReportOutcomesSortedBySourceThenDestination(t *testing.T) {
	net, err := New(diamondConfig(nil, nil), DV, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	now := time.Now()

	net.updateRoute("T", "S", []state.NodeId{"T", "S"}, now)
	net.updateRoute("S", "U", []state.NodeId{"S", "U"}, now)
	net.updateRoute("S", "T", []state.NodeId{"S", "T"}, now)

	report := net.buildReport()
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, state.NodeId("S"), report.Outcomes[0].Src)
	assert.Equal(t, state.NodeId("T"), report.Outcomes[0].Dst)
	assert.Equal(t, state.NodeId("U"), report.Outcomes[1].Dst)
	assert.Equal(t, state.NodeId("T"), report.Outcomes[2].Src)
}
