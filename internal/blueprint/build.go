package blueprint

import (
	"fmt"

	"github.com/GriffinCanCode/Conduit/internal/pipeline"
)

// Build assembles a validated topology onto a pipeline: buffers first, then
// consumer groups and processors. It returns the created buffers by name so
// callers can wire sources and publish entry points.
func Build(p *pipeline.Pipeline, t *Topology) (map[string]*pipeline.Buffer, error) {
	buffers := make(map[string]*pipeline.Buffer, len(t.Buffers))
	for _, bd := range t.Buffers {
		b, err := p.CreateBuffer(bd.Name, bd.Capacity)
		if err != nil {
			return nil, err
		}
		buffers[bd.Name] = b
	}

	for _, pd := range t.Processors {
		g, err := p.AttachGroup(buffers[pd.Upstream], pd.GroupName(), pd.Workers)
		if err != nil {
			return nil, err
		}
		downstreams := make([]*pipeline.Buffer, len(pd.Downstreams))
		for i, d := range pd.Downstreams {
			downstreams[i] = buffers[d]
		}
		h, err := Resolve(pd.Transform)
		if err != nil {
			return nil, err
		}

		opts := make([]pipeline.Option, 0, 2)
		if pd.Policy != "" {
			policy, err := pipeline.ParsePolicy(pd.Policy)
			if err != nil {
				return nil, fmt.Errorf("blueprint: processor %q: %w", pd.Name, err)
			}
			opts = append(opts, pipeline.WithPolicy(policy))
		}
		if pd.MaxWorkers > 0 {
			opts = append(opts, pipeline.WithMaxWorkers(pd.MaxWorkers))
		}
		if _, err := p.RegisterProcessor(pd.Name, g, downstreams, h, opts...); err != nil {
			return nil, err
		}
	}
	return buffers, nil
}
