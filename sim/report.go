package sim

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/encodeous/loom/state"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// RouteOutcome is one scored (src, dst) route from the final probe round.
type RouteOutcome struct {
	Src     state.NodeId
	Dst     state.NodeId
	Path    []state.NodeId
	Correct bool
}

// Report aggregates the final routes of a simulation run.
type Report struct {
	Outcomes []RouteOutcome
}

func (n *Network) buildReport() *Report {
	n.routesMu.Lock()
	defer n.routesMu.Unlock()
	report := &Report{}
	for p, record := range n.routes {
		report.Outcomes = append(report.Outcomes, RouteOutcome{
			Src:     p.src,
			Dst:     p.dst,
			Path:    record.Path,
			Correct: record.Correct,
		})
	}
	slices.SortFunc(report.Outcomes, func(a, b RouteOutcome) int {
		if a.Src != b.Src {
			return cmp.Compare(a.Src, b.Src)
		}
		return cmp.Compare(a.Dst, b.Dst)
	})
	return report
}

// AllCorrect reports whether every observed route matched an acceptable
// path. A run with no observed routes is not correct.
func (r *Report) AllCorrect() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, outcome := range r.Outcomes {
		if !outcome.Correct {
			return false
		}
	}
	return true
}

func (r *Report) IncorrectCount() int {
	count := 0
	for _, outcome := range r.Outcomes {
		if !outcome.Correct {
			count++
		}
	}
	return count
}

func pathString(path []state.NodeId) string {
	hops := make([]string, len(path))
	for i, hop := range path {
		hops[i] = string(hop)
	}
	return strings.Join(hops, " -> ")
}

// Render writes the final route table and verdict.
func (r *Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Source", "Destination", "Route", "Verdict"})
	for _, outcome := range r.Outcomes {
		verdict := color.GreenString("correct")
		if !outcome.Correct {
			verdict = color.RedString("incorrect")
		}
		table.Append([]string{
			string(outcome.Src),
			string(outcome.Dst),
			pathString(outcome.Path),
			verdict,
		})
	}
	table.Render()
	if r.AllCorrect() {
		fmt.Fprintln(w, color.GreenString("SUCCESS: all routes correct"))
	} else {
		fmt.Fprintln(w, color.RedString("FAILURE: %d routes incorrect", r.IncorrectCount()))
	}
}

// RenderTopology writes the parsed topology as tables, mirroring what the
// simulation is about to run.
func RenderTopology(w io.Writer, cfg *state.Config) {
	fmt.Fprintln(w, color.CyanString("--- Routers and Clients ---"))
	devices := tablewriter.NewWriter(w)
	devices.SetHeader([]string{"Device Type", "IDs"})
	devices.Append([]string{"Routers", pathJoin(cfg.Routers)})
	devices.Append([]string{"Clients", pathJoin(cfg.Clients)})
	devices.Render()

	fmt.Fprintln(w, color.CyanString("--- Links ---"))
	links := tablewriter.NewWriter(w)
	links.SetHeader([]string{"A", "B", "Cost A->B", "Cost B->A"})
	for _, link := range cfg.Links {
		links.Append([]string{
			string(link.A), string(link.B),
			fmt.Sprint(link.CostAB), fmt.Sprint(link.CostBA),
		})
	}
	links.Render()

	if len(cfg.Changes) > 0 {
		fmt.Fprintln(w, color.CyanString("--- Changes ---"))
		changes := tablewriter.NewWriter(w)
		changes.SetHeader([]string{"Time", "Kind", "Link"})
		for _, change := range cfg.Changes {
			changes.Append([]string{
				fmt.Sprint(change.At),
				string(change.Kind),
				fmt.Sprintf("%s-%s", change.LinkCfg.A, change.LinkCfg.B),
			})
		}
		changes.Render()
	}

	fmt.Fprintln(w, color.CyanString("--- Acceptable Routes ---"))
	RenderExpected(w, cfg)
}

// RenderExpected writes the configured acceptable routes table.
func RenderExpected(w io.Writer, cfg *state.Config) {
	routes := tablewriter.NewWriter(w)
	routes.SetHeader([]string{"Source", "Destination", "Route"})
	for _, route := range cfg.CorrectRoutes {
		routes.Append([]string{
			string(route[0]),
			string(route[len(route)-1]),
			pathString(route),
		})
	}
	routes.Render()
}

func pathJoin(nodes []state.NodeId) string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = string(n)
	}
	return strings.Join(names, ", ")
}
