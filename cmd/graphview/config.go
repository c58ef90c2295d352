package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mstrYoda/graphview"
)

// config is the YAML layout file shared by every subcommand.
//
//	header: [id, adj_knows, adj_knows_sink, name, path]
//	node: {offset: 0, metaLength: 3}
//	traversal: {edge: knows, maxHops: 4}
type config struct {
	Header    []string                      `yaml:"header"`
	Node      graphview.NodeLayout          `yaml:"node"`
	IDPath    string                        `yaml:"idPath"`
	Limits    limitsConfig                  `yaml:"limits"`
	Traversal traversalConfig               `yaml:"traversal"`
	Planner   plannerConfig                 `yaml:"planner"`
	Pattern   *graphview.ConnectedComponent `yaml:"pattern"`
}

type limitsConfig struct {
	MaxPaths   int           `yaml:"maxPaths"`
	Timeout    time.Duration `yaml:"timeout"`
	SlowSearch time.Duration `yaml:"slowSearch"`
	CacheSize  int           `yaml:"cacheSize"`
}

type traversalConfig struct {
	Edge    string `yaml:"edge"`
	MaxHops int    `yaml:"maxHops"`
}

type plannerConfig struct {
	MaxStates int    `yaml:"maxStates"`
	Fallback  string `yaml:"fallback"`
}

// defaultConfig matches graphview.DefaultOptions.
func defaultConfig() config {
	d := graphview.DefaultOptions()
	return config{
		IDPath: d.IDPath,
		Limits: limitsConfig{
			MaxPaths:   d.MaxPaths,
			Timeout:    d.DefaultTimeout,
			SlowSearch: d.SlowSearchThreshold,
			CacheSize:  d.AdjacencyCacheSize,
		},
		Planner: plannerConfig{MaxStates: graphview.DefaultPlannerOptions().MaxStates, Fallback: "greedy"},
	}
}

// loadConfig reads path over the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c config) header() (*graphview.Header, error) {
	if len(c.Header) == 0 {
		return nil, fmt.Errorf("config: header is empty")
	}
	h := graphview.NewHeader(c.Header...)
	if err := c.Node.Validate(h); err != nil {
		return nil, fmt.Errorf("config: node layout: %w", err)
	}
	return h, nil
}

func (c config) engineOptions() graphview.Options {
	opts := graphview.DefaultOptions()
	opts.IDPath = c.IDPath
	opts.MaxPaths = c.Limits.MaxPaths
	opts.DefaultTimeout = c.Limits.Timeout
	opts.SlowSearchThreshold = c.Limits.SlowSearch
	opts.AdjacencyCacheSize = c.Limits.CacheSize
	return opts
}

func (c config) plannerOptions() (graphview.PlannerOptions, error) {
	fb, err := graphview.ParseFallback(c.Planner.Fallback)
	if err != nil {
		return graphview.PlannerOptions{}, err
	}
	return graphview.PlannerOptions{MaxStates: c.Planner.MaxStates, Fallback: fb}, nil
}
