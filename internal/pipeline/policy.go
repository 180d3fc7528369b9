package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// PolicyMode selects how a processor responds to handler failure.
type PolicyMode int

const (
	// PolicySkip completes the failed sequence and moves on. The failure is
	// logged and counted, never silent.
	PolicySkip PolicyMode = iota
	// PolicyRetry re-runs the handler up to Retries times, then skips.
	PolicyRetry
	// PolicyHalt stops the processor's group from accepting new claims and
	// surfaces the failure to the operator.
	PolicyHalt
)

// ErrorPolicy is a processor's configured failure response.
type ErrorPolicy struct {
	Mode    PolicyMode
	Retries int
}

// DefaultErrorPolicy is skip-and-complete, stated explicitly rather than
// implied.
func DefaultErrorPolicy() ErrorPolicy {
	return ErrorPolicy{Mode: PolicySkip}
}

// ParsePolicy parses "skip", "retry:<n>", or "halt".
func ParsePolicy(s string) (ErrorPolicy, error) {
	switch {
	case s == "" || s == "skip":
		return ErrorPolicy{Mode: PolicySkip}, nil
	case s == "halt":
		return ErrorPolicy{Mode: PolicyHalt}, nil
	case strings.HasPrefix(s, "retry:"):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "retry:"))
		if err != nil || n < 1 {
			return ErrorPolicy{}, fmt.Errorf("pipeline: invalid retry count in policy %q", s)
		}
		return ErrorPolicy{Mode: PolicyRetry, Retries: n}, nil
	default:
		return ErrorPolicy{}, fmt.Errorf("pipeline: unknown error policy %q", s)
	}
}

// String returns the canonical textual form.
func (p ErrorPolicy) String() string {
	switch p.Mode {
	case PolicyRetry:
		return fmt.Sprintf("retry:%d", p.Retries)
	case PolicyHalt:
		return "halt"
	default:
		return "skip"
	}
}
