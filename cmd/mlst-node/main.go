// Command mlst-node runs a single non-root participant in the spanning
// tree: once a parent is elected it periodically sends a small payload
// toward the root, retrying through package unicast until acknowledged.
// It is the Go equivalent of mlst_network_example_node.c.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/c12s/mlsttree/config"
	"github.com/c12s/mlsttree/diag"
	"github.com/c12s/mlsttree/mlst"
	"github.com/c12s/mlsttree/platform"
	"github.com/c12s/mlsttree/radio"
)

// writeDOT truncates path and writes node's current tree edge to it, for
// a caller (dot -Tsvg, or any Graphviz frontend) to render on demand.
func writeDOT(node *mlst.Node, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return node.ExportDOT(f)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var logPath string
	var udpTable string
	var dotPath string

	cmd := &cobra.Command{
		Use:   "mlst-node",
		Short: "Run a non-root MLST participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configPath, logPath, udpTable, dotPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a config file (optional; env vars also apply)")
	cmd.Flags().StringVar(&logPath, "log-file", "", "rotating log file path (stderr if empty)")
	cmd.Flags().StringVar(&udpTable, "peers", "", "comma-separated id=host:port pairs for the UDP medium")
	cmd.Flags().StringVar(&dotPath, "dot", "", "write this node's current tree edge as Graphviz DOT to this path on every send cycle (disabled if empty)")
	return cmd
}

func runNode(configPath, logPath, udpTable, dotPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := diag.NewStderrLogger("mlst-node: ")
	if logPath != "" {
		l, closer := diag.NewFileLogger(diag.FileConfig{Path: logPath}, "mlst-node: ")
		defer closer.Close()
		logger = l
	}

	table, err := parsePeerTable(udpTable)
	if err != nil {
		return err
	}

	medium, err := radio.NewUDPMedium(cfg.SelfID(), table)
	if err != nil {
		return err
	}
	defer medium.CloseMedium()

	demux := radio.NewDemux(cfg.SelfID(), medium)
	node := mlst.New(mlst.Config{
		Self:              cfg.SelfID(),
		IsRoot:            false,
		Variant:           cfg.ToVariant(),
		EnergyState:       cfg.EnergyState,
		MaxNeighborAge:    cfg.MaxNeighborAge(),
		Period:            cfg.Period(),
		StayActivePeriods: cfg.StayActivePeriods,
		MaxParentAge:      cfg.MaxParentAge(),
		UnicastTimeout:    cfg.UnicastTimeout(),
		UnicastMaxTries:   cfg.UnicastMaxTries,
	}, demux, logger)

	node.SetFailureCallback(func(parent radio.NodeID, tries int) {
		logger.Printf("delivery to parent %s failed after %d tries", parent, tries)
	})

	node.Start()
	defer node.Stop()

	rng := platform.NewNodeRand(uint16(cfg.SelfID()))
	for {
		node.PrintState()
		if dotPath != "" {
			if err := writeDOT(node, dotPath); err != nil {
				logger.Printf("dot export failed: %v", err)
			}
		}
		payload := make([]byte, 7)
		rng.Read(payload)
		node.Send(payload)

		wait := time.Duration(4*time.Second) * time.Duration(int64(1000*(0.5+0.5*rng.Float64()))) / 1000
		time.Sleep(wait)
	}
}

func parsePeerTable(spec string) (map[radio.NodeID]*net.UDPAddr, error) {
	table := make(map[radio.NodeID]*net.UDPAddr)
	if spec == "" {
		return table, nil
	}
	for _, pair := range splitNonEmpty(spec, ',') {
		id, addr, ok := splitOnce(pair, '=')
		if !ok {
			return nil, fmt.Errorf("mlst-node: invalid --peers entry %q, want id=host:port", pair)
		}
		var n uint16
		if _, err := fmt.Sscanf(id, "%d", &n); err != nil {
			return nil, fmt.Errorf("mlst-node: invalid node id %q: %w", id, err)
		}
		resolved, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("mlst-node: invalid address %q: %w", addr, err)
		}
		table[radio.NodeID(n)] = resolved
	}
	return table, nil
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func splitOnce(s string, sep byte) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
