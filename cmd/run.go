package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/encodeous/loom/sim"
	"github.com/encodeous/loom/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
)

var protocol string

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [topology.yaml]",
	Short: "Run a routing simulation",
	Long: `This runs the simulated network described by the topology file to its
configured end time, applying any scheduled link changes, and scores the
routes observed by the traffic-generating clients.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.LoadConfig(args[0])
		if err != nil {
			return err
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}

		net, err := sim.New(cfg, sim.Protocol(protocol), logger)
		if err != nil {
			return err
		}

		sim.RenderTopology(os.Stdout, cfg)

		ctx, cancel := context.WithCancelCause(context.Background())
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(c)
		go func() {
			select {
			case <-c:
				cancel(errors.New("received shutdown signal"))
			case <-ctx.Done():
			}
		}()

		report, err := net.Run(ctx)
		cancel(context.Canceled)
		if err != nil {
			return err
		}
		report.Render(os.Stdout)
		if !report.AllCorrect() {
			os.Exit(1)
		}
		return nil
	},
}

func newLogger() (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			AddSource:  false,
			TimeFormat: "15:04:05",
		}),
	}
	if logPath != "" {
		err := os.MkdirAll(path.Dir(logPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0700)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&protocol, "protocol", "p", string(sim.DV), "Routing protocol: dv, ls or mirror")
}
