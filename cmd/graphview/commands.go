package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/mstrYoda/graphview"
	"github.com/mstrYoda/graphview/docstore"
)

// ---------------------------------------------------------------------------
// load
// ---------------------------------------------------------------------------

func (c *cli) loadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load FILE",
		Short: "Store JSON or JSON-lines items in the document store ('-' reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItemsFile(args[0])
			if err != nil {
				return err
			}
			store, err := docstore.Open(c.storePath, docstore.Options{Logger: c.log})
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Put(cmd.Context(), c.collection, items); err != nil {
				return err
			}
			n, err := store.Count(c.collection)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "stored %d items in %q (%d total)\n", len(items), c.collection, n)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// decode
// ---------------------------------------------------------------------------

// entityView is the printed form of an entity: the projection keyed by
// header column.
type entityView struct {
	ID         string            `json:"id"`
	Adjacency  map[string]string `json:"adjacency"`
	Projection map[string]string `json:"projection"`
}

func (c *cli) decodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode",
		Short: "Decode items into one entity per id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.session(cmd.Context())
			if err != nil {
				return err
			}
			start := s.cfg.Node.ProjectionStart()
			for _, ent := range s.entities {
				v := entityView{ID: ent.ID, Adjacency: ent.Adjacency, Projection: make(map[string]string, len(ent.Projection))}
				for i, val := range ent.Projection {
					v.Projection[s.header.Column(start+i)] = val
				}
				if err := c.writeJSON(v); err != nil {
					return err
				}
			}
			c.log.Info("decode finished", "items", s.items, "entities", len(s.entities))
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// expand
// ---------------------------------------------------------------------------

func (c *cli) expandCommand() *cobra.Command {
	var node, column string
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Cross-apply one node's adjacency column: one record per edge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.session(cmd.Context())
			if err != nil {
				return err
			}
			if column == "" {
				column = graphview.AdjacencyColumnPrefix + s.cfg.Traversal.Edge
			}
			rec, pos, err := s.nodeRecord(node, column)
			if err != nil {
				return err
			}

			out := graphview.NewExpansion()
			p := graphview.ApplyParams{
				Adjacency:   pos,
				Destination: graphview.NoDestination,
				Source:      s.cfg.Node.Offset,
				MetaLength:  graphview.NoExtension,
			}
			if err := s.engine.CrossApplyEdge(cmd.Context(), rec, p, out); err != nil {
				return err
			}
			return c.writeExpansion(out)
		},
	}
	cmd.Flags().StringVar(&node, "node", "", "entity id to expand")
	cmd.Flags().StringVar(&column, "column", "", "adjacency column (default adj_<traversal.edge>)")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

// ---------------------------------------------------------------------------
// paths
// ---------------------------------------------------------------------------

func (c *cli) pathsCommand() *cobra.Command {
	var from string
	var maxHops int
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Find every path from a node along traversal.edge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.session(cmd.Context())
			if err != nil {
				return err
			}
			edge := s.cfg.Traversal.Edge
			if edge == "" {
				return fmt.Errorf("config: traversal.edge is required for paths")
			}
			if cmd.Flags().Changed("max-hops") {
				s.cfg.Traversal.MaxHops = maxHops
			}
			rec, pos, err := s.nodeRecord(from, graphview.AdjacencyColumnPrefix+edge)
			if err != nil {
				return err
			}

			step := &graphview.AdjacencyStep{
				Index:   s.index,
				Edge:    edge,
				MaxHops: s.cfg.Traversal.MaxHops,
			}
			out := graphview.NewExpansion()
			p := graphview.ApplyParams{
				Adjacency:   pos,
				Destination: graphview.NoDestination,
				Source:      s.cfg.Node.Offset,
				MetaLength:  graphview.NoExtension,
			}
			if err := s.engine.CrossApplyPath(cmd.Context(), rec, step, p, out); err != nil {
				return err
			}
			return c.writeExpansion(out)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start entity id")
	cmd.Flags().IntVar(&maxHops, "max-hops", 0, "override traversal.maxHops (0 = unbounded)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

// ---------------------------------------------------------------------------
// plan
// ---------------------------------------------------------------------------

func (c *cli) planCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Compute the traversal order for the config's pattern",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			if cfg.Pattern == nil {
				return fmt.Errorf("config: pattern is required for plan")
			}
			opts, err := cfg.plannerOptions()
			if err != nil {
				return err
			}
			opts.Logger = c.log

			plan, err := graphview.NewCostPlanner(opts).PlanOrder(cfg.Pattern)
			if err != nil {
				return err
			}
			if err := graphview.ValidatePlan(cfg.Pattern, plan); err != nil {
				return err
			}
			_, err = io.WriteString(c.out, plan.String())
			return err
		},
	}
}

// ---------------------------------------------------------------------------
// shared plumbing
// ---------------------------------------------------------------------------

// session is a decoded item batch ready for expansion.
type session struct {
	cfg      config
	header   *graphview.Header
	engine   *graphview.Engine
	entities []graphview.Entity
	index    *graphview.EntityIndex
	items    int
}

func (c *cli) session(ctx context.Context) (*session, error) {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	h, err := cfg.header()
	if err != nil {
		return nil, err
	}
	opts := cfg.engineOptions()
	opts.Logger = c.log
	opts.Metrics = c.engineMetrics
	engine, err := graphview.New(h, opts)
	if err != nil {
		return nil, err
	}

	items, err := c.readItems(ctx)
	if err != nil {
		return nil, err
	}
	ents, err := engine.Decode(ctx, items, cfg.Node)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:      cfg,
		header:   h,
		engine:   engine,
		entities: ents,
		index:    graphview.NewEntityIndex(ents),
		items:    len(items),
	}, nil
}

// nodeRecord materializes entity id and resolves column.
func (s *session) nodeRecord(id, column string) (graphview.Record, int, error) {
	ent, ok := s.index.Get(id)
	if !ok {
		return nil, 0, fmt.Errorf("entity %q not found", id)
	}
	pos, err := s.header.Position(column)
	if err != nil {
		return nil, 0, err
	}
	rec, err := ent.Materialize(s.header, s.cfg.Node)
	if err != nil {
		return nil, 0, err
	}
	return rec, pos, nil
}

// readItems reads --input when set, the document store otherwise.
func (c *cli) readItems(ctx context.Context) ([]graphview.Item, error) {
	if c.input != "" {
		return readItemsFile(c.input)
	}
	store, err := docstore.Open(c.storePath, docstore.Options{ReadOnly: true, Logger: c.log})
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(ctx, c.collection)
}

func readItemsFile(path string) ([]graphview.Item, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return graphview.ParseItems(data)
}

func (c *cli) writeExpansion(out *graphview.Expansion) error {
	for _, rec := range out.Records {
		if err := c.writeJSON(rec); err != nil {
			return err
		}
	}
	c.log.Info("expansion finished", "records", len(out.Records), "sinks", out.Sinks())
	return nil
}

func (c *cli) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.pretty {
		data = pretty.Pretty(data)
	} else {
		data = append(data, '\n')
	}
	_, err = c.out.Write(data)
	return err
}
