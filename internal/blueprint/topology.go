package blueprint

import (
	"fmt"

	"github.com/GriffinCanCode/Conduit/internal/pipeline"
)

// Topology is the root structure of a topology file.
type Topology struct {
	Pipeline   Meta           `json:"pipeline" yaml:"pipeline" toml:"pipeline"`
	Buffers    []BufferDef    `json:"buffers" yaml:"buffers" toml:"buffers"`
	Processors []ProcessorDef `json:"processors" yaml:"processors" toml:"processors"`
	Sources    []SourceDef    `json:"sources,omitempty" yaml:"sources,omitempty" toml:"sources,omitempty"`
}

// Meta identifies the topology.
type Meta struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
}

// BufferDef declares one sequenced buffer. Capacity zero uses the
// configured default.
type BufferDef struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	Capacity int    `json:"capacity,omitempty" yaml:"capacity,omitempty" toml:"capacity,omitempty"`
}

// ProcessorDef declares one processing stage: a consumer group on an
// upstream buffer, a transform, and zero or more downstream buffers.
type ProcessorDef struct {
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Group       string   `json:"group,omitempty" yaml:"group,omitempty" toml:"group,omitempty"`
	Upstream    string   `json:"upstream" yaml:"upstream" toml:"upstream"`
	Downstreams []string `json:"downstreams,omitempty" yaml:"downstreams,omitempty" toml:"downstreams,omitempty"`
	Transform   string   `json:"transform,omitempty" yaml:"transform,omitempty" toml:"transform,omitempty"`
	Policy      string   `json:"policy,omitempty" yaml:"policy,omitempty" toml:"policy,omitempty"`
	Workers     int      `json:"workers,omitempty" yaml:"workers,omitempty" toml:"workers,omitempty"`
	MaxWorkers  int      `json:"max_workers,omitempty" yaml:"max_workers,omitempty" toml:"max_workers,omitempty"`
}

// GroupName returns the consumer group name, defaulting to the processor
// name.
func (d ProcessorDef) GroupName() string {
	if d.Group != "" {
		return d.Group
	}
	return d.Name
}

// SourceDef declares a rate-limited synthetic producer feeding one buffer.
type SourceDef struct {
	Name         string  `json:"name" yaml:"name" toml:"name"`
	Buffer       string  `json:"buffer" yaml:"buffer" toml:"buffer"`
	Kind         string  `json:"kind,omitempty" yaml:"kind,omitempty" toml:"kind,omitempty"`
	Rate         float64 `json:"rate" yaml:"rate" toml:"rate"`
	Burst        int     `json:"burst,omitempty" yaml:"burst,omitempty" toml:"burst,omitempty"`
	PayloadBytes int     `json:"payload_bytes,omitempty" yaml:"payload_bytes,omitempty" toml:"payload_bytes,omitempty"`
}

// Validate checks structural integrity: required names, unique buffers and
// processors, references that resolve, transforms and policies that parse.
func (t *Topology) Validate() error {
	if t.Pipeline.Name == "" {
		return fmt.Errorf("blueprint: pipeline.name is required")
	}
	if len(t.Buffers) == 0 {
		return fmt.Errorf("blueprint: at least one buffer is required")
	}

	buffers := make(map[string]bool, len(t.Buffers))
	for _, b := range t.Buffers {
		if b.Name == "" {
			return fmt.Errorf("blueprint: buffer without a name")
		}
		if buffers[b.Name] {
			return fmt.Errorf("blueprint: duplicate buffer %q", b.Name)
		}
		if b.Capacity < 0 {
			return fmt.Errorf("blueprint: buffer %q has negative capacity", b.Name)
		}
		buffers[b.Name] = true
	}

	procs := make(map[string]bool, len(t.Processors))
	for _, p := range t.Processors {
		if p.Name == "" {
			return fmt.Errorf("blueprint: processor without a name")
		}
		if procs[p.Name] {
			return fmt.Errorf("blueprint: duplicate processor %q", p.Name)
		}
		procs[p.Name] = true
		if !buffers[p.Upstream] {
			return fmt.Errorf("blueprint: processor %q upstream %q is not a declared buffer", p.Name, p.Upstream)
		}
		for _, d := range p.Downstreams {
			if !buffers[d] {
				return fmt.Errorf("blueprint: processor %q downstream %q is not a declared buffer", p.Name, d)
			}
		}
		if _, err := Resolve(p.Transform); err != nil {
			return fmt.Errorf("blueprint: processor %q: %w", p.Name, err)
		}
		if p.Policy != "" {
			if _, err := pipeline.ParsePolicy(p.Policy); err != nil {
				return fmt.Errorf("blueprint: processor %q: %w", p.Name, err)
			}
		}
	}

	for _, s := range t.Sources {
		if s.Name == "" {
			return fmt.Errorf("blueprint: source without a name")
		}
		if !buffers[s.Buffer] {
			return fmt.Errorf("blueprint: source %q buffer %q is not a declared buffer", s.Name, s.Buffer)
		}
		if s.Rate <= 0 {
			return fmt.Errorf("blueprint: source %q requires a positive rate", s.Name)
		}
	}
	return nil
}
