package rankio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/internal/domain"
)

// tresFile mimics a TRES result file: ten preamble lines, then
// rank, id, score and genotype-count columns.
const tresFile = `TRES v1.0
Population file: pops.txt
Input file: chr22.txt

Method: FST
Individuals: 120
Populations: 3
SNPs: 4
Generated: 2017-05-10
Rank	SNP	Score	Genotyped
1	rs100	0.91	120
2	rs200	0.55	118
3	rs300 	0.40	119
4	rs400	0.02	120
`

func TestReadTSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		opts    TSVOptions
		wantIDs []string
		wantVal []float64
	}{
		{
			name:    "tres ranks",
			input:   tresFile,
			opts:    TRESOptions("fst", FieldRank),
			wantIDs: []string{"rs100", "rs200", "rs300", "rs400"},
			wantVal: []float64{1, 2, 3, 4},
		},
		{
			name:    "tres scores",
			input:   tresFile,
			opts:    TRESOptions("fst", FieldScore),
			wantIDs: []string{"rs100", "rs200", "rs300", "rs400"},
			wantVal: []float64{0.91, 0.55, 0.40, 0.02},
		},
		{
			name:    "comments and blank lines",
			input:   "# header\n\n1\ta\t0.5\n\n# middle\n2\tb\t0.25\n",
			opts:    TSVOptions{Name: "plain"},
			wantIDs: []string{"a", "b"},
			wantVal: []float64{1, 2},
		},
		{
			name:    "rank and id only",
			input:   "3\tx\n1\ty\r\n",
			opts:    TSVOptions{Name: "short", Field: FieldRank},
			wantIDs: []string{"x", "y"},
			wantVal: []float64{3, 1},
		},
		{
			name:    "header longer than input",
			input:   "only\ntwo lines\n",
			opts:    TSVOptions{Name: "empty", SkipLines: 5},
			wantIDs: []string{},
			wantVal: []float64{},
		},
		{
			name:    "empty input",
			input:   "",
			opts:    TSVOptions{Name: "empty"},
			wantIDs: []string{},
			wantVal: []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadTSV(strings.NewReader(tt.input), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.opts.Name, got.Name)

			ids := make([]string, len(got.Entries))
			vals := make([]float64, len(got.Entries))
			for i, e := range got.Entries {
				ids[i] = e.ID
				vals[i] = e.Value
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.InDeltaSlice(t, tt.wantVal, vals, 1e-12)
		})
	}
}

func TestReadTSV_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		opts     TSVOptions
		wantErr  error
		wantLine int
	}{
		{
			name:     "too few columns for score",
			input:    "1\ta\t0.5\n2\tb\n",
			opts:     TSVOptions{Field: FieldScore},
			wantErr:  ErrMalformedRow,
			wantLine: 2,
		},
		{
			name:     "non-numeric rank",
			input:    "# c\n1\ta\nfirst\tb\n",
			opts:     TSVOptions{},
			wantErr:  ErrMalformedRow,
			wantLine: 3,
		},
		{
			name:     "line numbers count skipped header",
			input:    "h1\nh2\n1\ta\nx\tb\n",
			opts:     TSVOptions{SkipLines: 2},
			wantErr:  ErrMalformedRow,
			wantLine: 4,
		},
		{
			name:    "duplicate id",
			input:   "1\ta\n2\ta\n",
			opts:    TSVOptions{Name: "dup"},
			wantErr: domain.ErrDuplicateElement,
		},
		{
			name:    "non-finite value",
			input:   "NaN\ta\n",
			opts:    TSVOptions{},
			wantErr: domain.ErrInvalidValue,
		},
		{
			name:    "empty id",
			input:   "1\t \n",
			opts:    TSVOptions{},
			wantErr: domain.ErrEmptyElementID,
		},
		{
			name:    "unknown field",
			input:   "1\ta\n",
			opts:    TSVOptions{Field: "pvalue"},
			wantErr: ErrUnknownField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTSV(strings.NewReader(tt.input), tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantLine > 0 {
				var rowErr *RowError
				require.True(t, errors.As(err, &rowErr))
				assert.Equal(t, tt.wantLine, rowErr.Line)
			}
		})
	}
}

func TestParseField(t *testing.T) {
	f, err := ParseField("")
	require.NoError(t, err)
	assert.Equal(t, FieldRank, f)

	f, err = ParseField(" Score ")
	require.NoError(t, err)
	assert.Equal(t, FieldScore, f)

	_, err = ParseField("p")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestWriteTSV(t *testing.T) {
	result := domain.AggregateRanking{
		Method: "mc3(a=0.05)",
		Entries: []domain.ScoredElement{
			{ID: "rs100", Score: 0.25},
			{ID: "rs200", Score: 0.5},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, result))
	assert.Equal(t, "id\tscore\nrs100\t0.25\nrs200\t0.5\n", buf.String())
}

func TestWriteIDs(t *testing.T) {
	result := domain.AggregateRanking{Entries: []domain.ScoredElement{{ID: "b"}, {ID: "a"}, {ID: "c"}}}
	var buf bytes.Buffer
	require.NoError(t, WriteIDs(&buf, result))
	assert.Equal(t, "b\na\nc\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteIDs(&buf, domain.AggregateRanking{}))
	assert.Empty(t, buf.String())
}

func TestWriteTSV_ReadBack(t *testing.T) {
	result := domain.AggregateRanking{Entries: []domain.ScoredElement{
		{ID: "x", Score: 0.1},
		{ID: "y", Score: 0.7},
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, result))

	// Prefix each data row with its position to get rank, id, score rows.
	var in strings.Builder
	for i, line := range strings.Split(strings.TrimSpace(buf.String()), "\n")[1:] {
		fmt.Fprintf(&in, "%d\t%s\n", i+1, line)
	}
	got, err := ReadTSV(strings.NewReader(in.String()), TSVOptions{Name: "back", Field: FieldScore})
	require.NoError(t, err)
	score, ok := got.Lookup("y")
	require.True(t, ok)
	assert.Equal(t, 0.7, score)
}

func TestWriteRankingTSV(t *testing.T) {
	in, err := domain.RankingFromSlices("gen", []string{"e3", "e1", "e2"}, []float64{0.9, 0.125, 0.5})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteRankingTSV(&buf, in))
	assert.Equal(t, "1\te3\t0.9\n2\te1\t0.125\n3\te2\t0.5\n", buf.String())

	scores, err := ReadTSV(bytes.NewReader(buf.Bytes()), TSVOptions{Name: "gen", Field: FieldScore})
	require.NoError(t, err)
	assert.Equal(t, in, scores)

	ranks, err := ReadTSV(bytes.NewReader(buf.Bytes()), TSVOptions{Name: "gen"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e3", "e1", "e2"}, []string{ranks.Entries[0].ID, ranks.Entries[1].ID, ranks.Entries[2].ID})
	assert.Equal(t, 3.0, ranks.Entries[2].Value)
}
