package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peopleJSON = `[
	{"id":"1","adj_knows":[{"_sink":"2","_ID":"e1"}],"name":"Alice"},
	{"id":"2","adj_knows":[{"_sink":"3","_ID":"e2"}],"name":"Bob"},
	{"id":"3","name":"Carol"}
]`

const layoutYAML = `
header: [id, adj_knows, adj_knows_sink, name, path]
node: {offset: 0, metaLength: 3}
traversal: {edge: knows, maxHops: 4}
pattern:
  nodes:
    - {id: a, cardinality: 100}
    - {id: b, cardinality: 10}
  edges:
    - {id: ab, source: a, sink: b, fanout: 2}
`

// run executes the root command and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	c := &cli{out: &out, errOut: &errOut}
	root := c.rootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestDecodeFromInput(t *testing.T) {
	cfg := writeFile(t, "layout.yaml", layoutYAML)
	input := writeFile(t, "people.json", peopleJSON)

	stdout, _, err := run(t, "decode", "--config", cfg, "--input", input)
	require.NoError(t, err)

	out := lines(stdout)
	require.Len(t, out, 3)
	var first entityView
	require.NoError(t, json.Unmarshal([]byte(out[0]), &first))
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, `[{"_sink":"2","_ID":"e1"}]`, first.Adjacency["knows"])
	assert.Equal(t, map[string]string{"name": "Alice", "path": ""}, first.Projection)
}

func TestLoadThenDecodeFromStore(t *testing.T) {
	cfg := writeFile(t, "layout.yaml", layoutYAML)
	input := writeFile(t, "people.json", peopleJSON)
	store := filepath.Join(t.TempDir(), "items.db")

	stdout, _, err := run(t, "load", "--store", store, "--collection", "people", input)
	require.NoError(t, err)
	assert.Contains(t, stdout, `stored 3 items in "people"`)

	stdout, stderr, err := run(t, "decode", "--config", cfg, "--store", store, "--collection", "people", "--metrics")
	require.NoError(t, err)
	assert.Len(t, lines(stdout), 3)
	assert.Contains(t, stderr, "graphview_entities_decoded_total 3")

	_, _, err = run(t, "decode", "--config", cfg, "--store", store, "--collection", "missing")
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	cfg := writeFile(t, "layout.yaml", layoutYAML)
	input := writeFile(t, "people.json", peopleJSON)

	stdout, _, err := run(t, "expand", "--config", cfg, "--input", input, "--node", "1")
	require.NoError(t, err)

	out := lines(stdout)
	require.Len(t, out, 1)
	var rec []string
	require.NoError(t, json.Unmarshal([]byte(out[0]), &rec))
	assert.Equal(t, []string{"1", `[{"_sink":"2","_ID":"e1"}]`, "2", "Alice", ""}, rec)

	_, _, err = run(t, "expand", "--config", cfg, "--input", input, "--node", "nope")
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	cfg := writeFile(t, "layout.yaml", layoutYAML)
	input := writeFile(t, "people.json", peopleJSON)

	stdout, _, err := run(t, "paths", "--config", cfg, "--input", input, "--from", "1")
	require.NoError(t, err)

	out := lines(stdout)
	require.Len(t, out, 2)
	var sinks []string
	for _, l := range out {
		var rec []string
		require.NoError(t, json.Unmarshal([]byte(l), &rec))
		require.Len(t, rec, 5)
		sinks = append(sinks, rec[2])
	}
	assert.Equal(t, []string{"2", "3"}, sinks)
}

func TestPathsMaxHopsBoundsCycles(t *testing.T) {
	cfg := writeFile(t, "layout.yaml", layoutYAML)
	ring := writeFile(t, "ring.json", `[
		{"id":"1","adj_knows":[{"_sink":"2"}]},
		{"id":"2","adj_knows":[{"_sink":"3"}]},
		{"id":"3","adj_knows":[{"_sink":"1"}]}
	]`)

	// traversal.maxHops is 4: paths of 0..4 edges each emit one record.
	stdout, _, err := run(t, "paths", "--config", cfg, "--input", ring, "--from", "1")
	require.NoError(t, err)
	assert.Len(t, lines(stdout), 5)

	stdout, _, err = run(t, "paths", "--config", cfg, "--input", ring, "--from", "1", "--max-hops", "1")
	require.NoError(t, err)
	assert.Len(t, lines(stdout), 2)
}

func TestPlan(t *testing.T) {
	cfg := writeFile(t, "layout.yaml", layoutYAML)

	stdout, _, err := run(t, "plan", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "PLAN (exhaustive")
	assert.Contains(t, stdout, "NodeScan (a)")
	assert.Contains(t, stdout, "Expand ((a)-[ab]->(b))")

	noPattern := writeFile(t, "layout.yaml", "header: [id]\nnode: {offset: 0, metaLength: 1}\n")
	_, _, err = run(t, "plan", "--config", noPattern)
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	cfg := writeFile(t, "layout.yaml", layoutYAML)
	_, _, err := run(t, "plan", "--config", cfg, "--log-level", "chatty")
	assert.Error(t, err)
}
