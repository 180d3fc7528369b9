package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    ErrorPolicy
		wantErr bool
	}{
		{name: "empty defaults to skip", in: "", want: ErrorPolicy{Mode: PolicySkip}},
		{name: "skip", in: "skip", want: ErrorPolicy{Mode: PolicySkip}},
		{name: "halt", in: "halt", want: ErrorPolicy{Mode: PolicyHalt}},
		{name: "retry", in: "retry:3", want: ErrorPolicy{Mode: PolicyRetry, Retries: 3}},
		{name: "retry zero", in: "retry:0", wantErr: true},
		{name: "retry junk", in: "retry:lots", wantErr: true},
		{name: "unknown", in: "explode", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "skip", DefaultErrorPolicy().String())
	assert.Equal(t, "retry:2", ErrorPolicy{Mode: PolicyRetry, Retries: 2}.String())
	assert.Equal(t, "halt", ErrorPolicy{Mode: PolicyHalt}.String())
}
