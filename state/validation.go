package state

import (
	"fmt"
	"regexp"
	"slices"
)

var namePattern, _ = regexp.Compile("^[0-9A-Za-z._-]+$")

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if s == string(Broadcast) {
		return fmt.Errorf("%s is reserved for broadcast", s)
	}
	return nil
}

func linkValidator(link *LinkCfg, nodes []NodeId) error {
	if !slices.Contains(nodes, link.A) || !slices.Contains(nodes, link.B) {
		return fmt.Errorf("link %s-%s references an unknown node", link.A, link.B)
	}
	if link.A == link.B {
		return fmt.Errorf("link %s-%s is a self loop", link.A, link.B)
	}
	if link.CostAB == 0 || link.CostBA == 0 || link.CostAB >= Infinity || link.CostBA >= Infinity {
		return fmt.Errorf("link %s-%s costs must be in 1..%d", link.A, link.B, Infinity-1)
	}
	return nil
}

func ConfigValidator(cfg *Config) error {
	if len(cfg.Routers) == 0 {
		return fmt.Errorf("topology has no routers")
	}
	nodes := cfg.Nodes()
	for _, n := range nodes {
		err := NameValidator(string(n))
		if err != nil {
			return err
		}
	}
	seen := make(map[NodeId]bool)
	for _, n := range nodes {
		if seen[n] {
			return fmt.Errorf("duplicate node %s", n)
		}
		seen[n] = true
	}
	clientDegree := make(map[NodeId]int)
	for i := range cfg.Links {
		err := linkValidator(&cfg.Links[i], nodes)
		if err != nil {
			return err
		}
		for _, end := range []NodeId{cfg.Links[i].A, cfg.Links[i].B} {
			if slices.Contains(cfg.Clients, end) {
				clientDegree[end]++
			}
		}
	}
	for client, degree := range clientDegree {
		if degree > 1 {
			return fmt.Errorf("client %s has %d links, clients attach to exactly one router", client, degree)
		}
	}
	if cfg.EndTime <= 0 {
		return fmt.Errorf("end_time must be positive")
	}
	if len(cfg.Clients) > 0 && cfg.ClientSendRate <= 0 {
		return fmt.Errorf("client_send_rate must be positive")
	}
	for i := range cfg.Changes {
		change := &cfg.Changes[i]
		if change.Kind != LinkUp && change.Kind != LinkDown {
			return fmt.Errorf("change at %d has unknown kind %q", change.At, change.Kind)
		}
		if change.At < 0 || change.At > cfg.EndTime {
			return fmt.Errorf("change at %d is outside the simulation window", change.At)
		}
		if change.Kind == LinkUp {
			err := linkValidator(&change.LinkCfg, nodes)
			if err != nil {
				return err
			}
		} else if !slices.Contains(nodes, change.LinkCfg.A) || !slices.Contains(nodes, change.LinkCfg.B) {
			return fmt.Errorf("change at %d references an unknown node", change.At)
		}
	}
	for _, route := range cfg.CorrectRoutes {
		if len(route) < 2 {
			return fmt.Errorf("correct route %v is too short", route)
		}
		for _, hop := range route {
			if !slices.Contains(nodes, hop) {
				return fmt.Errorf("correct route %v references unknown node %s", route, hop)
			}
		}
	}
	return nil
}
