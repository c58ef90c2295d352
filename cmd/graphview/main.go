// Command graphview decodes raw document-store items into graph entities,
// expands their adjacency lists and runs path searches over them.
//
//	graphview load --store items.db --collection people people.json
//	graphview decode --config layout.yaml --store items.db --collection people
//	graphview expand --config layout.yaml --input people.json --node 1 --column adj_knows
//	graphview paths --config layout.yaml --input people.json --from 1
//	graphview plan --config pattern.yaml
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mstrYoda/graphview"
)

// cli holds the persistent flags and the state they produce.
type cli struct {
	configPath string
	logLevel   string
	metrics    bool
	pretty     bool

	storePath  string
	collection string
	input      string

	out           io.Writer
	errOut        io.Writer
	log           *slog.Logger
	engineMetrics *graphview.Metrics
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{out: os.Stdout, errOut: os.Stderr}
	if err := c.rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "graphview",
		Short:         "Decode, expand and traverse graph views over document-store items",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.setup()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if !c.metrics || c.engineMetrics == nil {
				return nil
			}
			return c.engineMetrics.WritePrometheus(c.errOut)
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "graphview.yaml", "layout config file")
	pf.StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.BoolVar(&c.metrics, "metrics", false, "print Prometheus metrics to stderr after the command")
	pf.BoolVar(&c.pretty, "pretty", false, "pretty-print JSON output")
	pf.StringVar(&c.storePath, "store", "graphview.db", "document store file")
	pf.StringVar(&c.collection, "collection", "items", "document store collection")
	pf.StringVarP(&c.input, "input", "i", "", "read items from a JSON or JSON-lines file instead of the store ('-' for stdin)")

	root.AddCommand(
		c.loadCommand(),
		c.decodeCommand(),
		c.expandCommand(),
		c.pathsCommand(),
		c.planCommand(),
	)
	return root
}

// setup builds the logger and the metrics registry.
func (c *cli) setup() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(c.logLevel))); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", c.logLevel, err)
	}
	c.log = slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(c.log)

	if c.metrics {
		m, err := graphview.NewMetrics(nil)
		if err != nil {
			return err
		}
		c.engineMetrics = m
	}
	return nil
}
