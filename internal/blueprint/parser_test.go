package blueprint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/Conduit/internal/infrastructure/config"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Conduit/internal/pipeline"
)

var testMetrics = monitoring.NewMetrics()

const topologyJSON = `{
  "pipeline": {"name": "demo", "version": "1"},
  "buffers": [
    {"name": "in", "capacity": 16},
    {"name": "out", "capacity": 16}
  ],
  "processors": [
    {
      "name": "shout",
      "upstream": "in",
      "downstreams": ["out"],
      "transform": "uppercase",
      "policy": "retry:2",
      "workers": 2
    },
    {"name": "drain", "upstream": "out", "transform": "sink"}
  ],
  "sources": [
    {"name": "gen", "buffer": "in", "kind": "tick", "rate": 100, "burst": 10}
  ]
}`

const topologyYAML = `
pipeline:
  name: demo
buffers:
  - name: in
    capacity: 16
  - name: out
processors:
  - name: shout
    upstream: in
    downstreams: [out]
    transform: uppercase
  - name: drain
    upstream: out
    transform: sink
`

const topologyTOML = `
[pipeline]
name = "demo"

[[buffers]]
name = "in"
capacity = 16

[[processors]]
name = "drain"
upstream = "in"
transform = "sink"
`

func TestParseJSON(t *testing.T) {
	topo, err := Parse("demo.json", []byte(topologyJSON))
	require.NoError(t, err)
	assert.Equal(t, "demo", topo.Pipeline.Name)
	require.Len(t, topo.Buffers, 2)
	require.Len(t, topo.Processors, 2)
	assert.Equal(t, []string{"out"}, topo.Processors[0].Downstreams)
	assert.Equal(t, "retry:2", topo.Processors[0].Policy)
	require.Len(t, topo.Sources, 1)
	assert.Equal(t, float64(100), topo.Sources[0].Rate)
}

func TestParseYAML(t *testing.T) {
	topo, err := Parse("demo.yaml", []byte(topologyYAML))
	require.NoError(t, err)
	assert.Equal(t, "demo", topo.Pipeline.Name)
	assert.Equal(t, 16, topo.Buffers[0].Capacity)
	assert.Zero(t, topo.Buffers[1].Capacity, "missing capacity falls back to the default")
}

func TestParseTOML(t *testing.T) {
	topo, err := Parse("demo.toml", []byte(topologyTOML))
	require.NoError(t, err)
	assert.Equal(t, "demo", topo.Pipeline.Name)
	require.Len(t, topo.Processors, 1)
	assert.Equal(t, "drain", topo.Processors[0].GroupName())
}

func TestParseUnsupportedExtension(t *testing.T) {
	_, err := Parse("demo.ini", []byte(""))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Topology {
		return &Topology{
			Pipeline: Meta{Name: "demo"},
			Buffers:  []BufferDef{{Name: "in", Capacity: 16}},
			Processors: []ProcessorDef{
				{Name: "drain", Upstream: "in", Transform: "sink"},
			},
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Topology)
	}{
		{"missing pipeline name", func(t *Topology) { t.Pipeline.Name = "" }},
		{"no buffers", func(t *Topology) { t.Buffers = nil }},
		{"duplicate buffer", func(t *Topology) {
			t.Buffers = append(t.Buffers, BufferDef{Name: "in"})
		}},
		{"unknown upstream", func(t *Topology) { t.Processors[0].Upstream = "ghost" }},
		{"unknown downstream", func(t *Topology) {
			t.Processors[0].Downstreams = []string{"ghost"}
		}},
		{"duplicate processor", func(t *Topology) {
			t.Processors = append(t.Processors, t.Processors[0])
		}},
		{"unknown transform", func(t *Topology) { t.Processors[0].Transform = "explode" }},
		{"bad policy", func(t *Topology) { t.Processors[0].Policy = "retry:zero" }},
		{"source without rate", func(t *Topology) {
			t.Sources = []SourceDef{{Name: "gen", Buffer: "in"}}
		}},
		{"source unknown buffer", func(t *Topology) {
			t.Sources = []SourceDef{{Name: "gen", Buffer: "ghost", Rate: 1}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topo := base()
			tt.mutate(topo)
			assert.Error(t, topo.Validate())
		})
	}
}

func TestResolveTransforms(t *testing.T) {
	ctx := context.Background()

	h, err := Resolve("uppercase")
	require.NoError(t, err)
	out, err := h(ctx, pipeline.Event{Kind: "msg", Payload: "hello"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "HELLO", out[0].Payload)

	h, err = Resolve("filter:keep")
	require.NoError(t, err)
	out, err = h(ctx, pipeline.Event{Kind: "drop"})
	require.NoError(t, err)
	assert.Empty(t, out)
	out, err = h(ctx, pipeline.Event{Kind: "keep"})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	h, err = Resolve("annotate")
	require.NoError(t, err)
	out, err = h(ctx, pipeline.Event{Kind: "msg", Payload: 7})
	require.NoError(t, err)
	wrapped, ok := out[0].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 7, wrapped["payload"])

	_, err = Resolve("filter:")
	assert.Error(t, err)
	_, err = Resolve("bogus")
	assert.Error(t, err)
}

func TestBuildRunsTopology(t *testing.T) {
	topo, err := Parse("demo.yaml", []byte(topologyYAML))
	require.NoError(t, err)

	p := pipeline.New(config.Default(), logging.NewDefault(), testMetrics)
	buffers, err := Build(p, topo)
	require.NoError(t, err)
	require.Contains(t, buffers, "in")
	require.Contains(t, buffers, "out")

	require.NoError(t, p.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, p.Shutdown(ctx))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tk, err := p.PublishAwait(ctx, buffers["in"], pipeline.NewEvent("msg", "hi"))
	require.NoError(t, err)
	require.NoError(t, tk.Wait(ctx), "event flows through both declared stages")
}

func TestBuildRejectsCycle(t *testing.T) {
	topo := &Topology{
		Pipeline: Meta{Name: "loop"},
		Buffers:  []BufferDef{{Name: "a", Capacity: 16}, {Name: "b", Capacity: 16}},
		Processors: []ProcessorDef{
			{Name: "fwd", Upstream: "a", Downstreams: []string{"b"}},
			{Name: "back", Upstream: "b", Downstreams: []string{"a"}},
		},
	}
	require.NoError(t, topo.Validate(), "cycles are a graph property, caught at build")

	p := pipeline.New(config.Default(), logging.NewDefault(), testMetrics)
	_, err := Build(p, topo)
	var cerr *pipeline.GraphCycleError
	require.ErrorAs(t, err, &cerr)
}
