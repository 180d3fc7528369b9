package blueprint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/Conduit/internal/pipeline"
)

// Resolve looks up a transform by its declared name. Supported transforms:
//
//	passthrough        re-emit the event unchanged (default)
//	sink               consume the event, emit nothing
//	uppercase          upper-case string payloads
//	annotate           wrap the payload with a processing timestamp
//	filter:<kind>      drop every event whose kind does not match
func Resolve(spec string) (pipeline.Handler, error) {
	switch {
	case spec == "" || spec == "passthrough":
		return passthrough, nil
	case spec == "sink":
		return sink, nil
	case spec == "uppercase":
		return uppercase, nil
	case spec == "annotate":
		return annotate, nil
	case strings.HasPrefix(spec, "filter:"):
		kind := strings.TrimPrefix(spec, "filter:")
		if kind == "" {
			return nil, fmt.Errorf("blueprint: filter transform requires a kind")
		}
		return filterKind(kind), nil
	default:
		return nil, fmt.Errorf("blueprint: unknown transform %q", spec)
	}
}

func passthrough(_ context.Context, ev pipeline.Event) ([]pipeline.Event, error) {
	return []pipeline.Event{ev}, nil
}

func sink(context.Context, pipeline.Event) ([]pipeline.Event, error) {
	return nil, nil
}

func uppercase(_ context.Context, ev pipeline.Event) ([]pipeline.Event, error) {
	if s, ok := ev.Payload.(string); ok {
		ev.Payload = strings.ToUpper(s)
	}
	return []pipeline.Event{ev}, nil
}

func annotate(_ context.Context, ev pipeline.Event) ([]pipeline.Event, error) {
	ev.Payload = map[string]any{
		"payload":      ev.Payload,
		"processed_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	return []pipeline.Event{ev}, nil
}

func filterKind(kind string) pipeline.Handler {
	return func(_ context.Context, ev pipeline.Event) ([]pipeline.Event, error) {
		if ev.Kind != kind {
			return nil, nil
		}
		return []pipeline.Event{ev}, nil
	}
}
