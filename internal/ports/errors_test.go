package ports

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMetricsError tests message formatting and unwrapping of MetricsError.
func TestMetricsError(t *testing.T) {
	base := errors.New("collector closed")
	err := NewMetricsError("consensus_aggregations_total", "RecordCounter", base)

	assert.Equal(t, "metrics error: operation=RecordCounter, metric=consensus_aggregations_total, err=collector closed", err.Error())
	assert.True(t, errors.Is(err, base))
}

// TestConfigError tests message formatting and unwrapping of ConfigError.
func TestConfigError(t *testing.T) {
	err := NewConfigError("CONSENSUS_DAMPING", ErrConfigNotFound)

	assert.Equal(t, "config error: key=CONSENSUS_DAMPING, err=configuration not found", err.Error())
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

// TestSourceError covers the line and no-line renderings.
func TestSourceError(t *testing.T) {
	tests := []struct {
		name string
		err  *SourceError
		want string
	}{
		{
			name: "with line",
			err:  &SourceError{Source: "bm25.tsv", Line: 14, Err: ErrMalformedInput},
			want: "source bm25.tsv:14: malformed input",
		},
		{
			name: "without line",
			err:  &SourceError{Source: "runs.parquet", Err: ErrUnsupportedFormat},
			want: "source runs.parquet: unsupported format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, tt.err.Err)
		})
	}
}
