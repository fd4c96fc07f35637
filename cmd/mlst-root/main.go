// Command mlst-root runs the sink of the spanning tree: it never sends
// anything itself, only logs the sender and size of every message that
// reaches it. It is the Go equivalent of mlst_network_example_root.c.
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
	"github.com/c12s/mlsttree/radio"
)

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

	cmd := &cobra.Command{
		Use:   "mlst-root",
		Short: "Run the MLST root/sink node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(configPath, logPath, udpTable)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a config file (optional; env vars also apply)")
	cmd.Flags().StringVar(&logPath, "log-file", "", "rotating log file path (stderr if empty)")
	cmd.Flags().StringVar(&udpTable, "peers", "", "comma-separated id=host:port pairs for the UDP medium")
	return cmd
}

func runRoot(configPath, logPath, udpTable string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := diag.NewStderrLogger("mlst-root: ")
	if logPath != "" {
		l, closer := diag.NewFileLogger(diag.FileConfig{Path: logPath}, "mlst-root: ")
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
		IsRoot:            true,
		Variant:           cfg.ToVariant(),
		EnergyState:       cfg.EnergyState,
		MaxNeighborAge:    cfg.MaxNeighborAge(),
		Period:            cfg.Period(),
		StayActivePeriods: cfg.StayActivePeriods,
		MaxParentAge:      cfg.MaxParentAge(),
		UnicastTimeout:    cfg.UnicastTimeout(),
		UnicastMaxTries:   cfg.UnicastMaxTries,
	}, demux, logger)

	node.SetRootReceiveCallback(func(from radio.NodeID, payload []byte) {
		logger.Printf("received %d bytes from %s", len(payload), from)
	})

	node.Start()
	defer node.Stop()

	for {
		node.PrintState()
		time.Sleep(4 * time.Second)
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
			return nil, fmt.Errorf("mlst-root: invalid --peers entry %q, want id=host:port", pair)
		}
		var n uint16
		if _, err := fmt.Sscanf(id, "%d", &n); err != nil {
			return nil, fmt.Errorf("mlst-root: invalid node id %q: %w", id, err)
		}
		resolved, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("mlst-root: invalid address %q: %w", addr, err)
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
