// Package rankio reads input rankings from TSV and Parquet files and writes
// consensus rankings back out as id lists, TSV or Parquet.
package rankio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ahrav/go-consensus/internal/domain"
)

// TRESHeaderLines is the number of preamble lines in a TRES result file
// before the first data row.
const TRESHeaderLines = 10

// Field selects which column of an input row becomes the ranking value.
type Field string

const (
	// FieldRank uses the rank column; smaller is better as-is.
	FieldRank Field = "rank"
	// FieldScore uses the raw score column. Scores where larger is better
	// need a reversed normalize step before aggregation.
	FieldScore Field = "score"
)

var (
	// ErrUnknownField is returned for a value column other than rank or score.
	ErrUnknownField = errors.New("unknown value field")

	// ErrMalformedRow is returned for a data row with too few columns or a
	// value that does not parse as a number.
	ErrMalformedRow = errors.New("malformed ranking row")
)

// ParseField resolves "rank" or "score"; the empty string means rank.
func ParseField(s string) (Field, error) {
	switch Field(strings.ToLower(strings.TrimSpace(s))) {
	case "", FieldRank:
		return FieldRank, nil
	case FieldScore:
		return FieldScore, nil
	default:
		return "", fmt.Errorf("%w: %q (want rank or score)", ErrUnknownField, s)
	}
}

// RowError locates a parse failure by its 1-based line in the input.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// TSVOptions controls ReadTSV.
type TSVOptions struct {
	// Name labels the resulting ranking.
	Name string
	// SkipLines drops that many physical lines before parsing.
	SkipLines int
	// Field picks the value column. Empty means FieldRank.
	Field Field
}

// TRESOptions returns options for a TRES result file.
func TRESOptions(name string, field Field) TSVOptions {
	return TSVOptions{Name: name, SkipLines: TRESHeaderLines, Field: field}
}

// ReadTSV parses rows of the form rank<TAB>id<TAB>score[<TAB>...] into a
// ranking. Blank lines and lines starting with '#' are ignored, as are
// columns after the score. Rows need the id plus the selected column, so
// "rank<TAB>id" is enough when reading ranks.
func ReadTSV(r io.Reader, opts TSVOptions) (domain.Ranking, error) {
	field, err := ParseField(string(opts.Field))
	if err != nil {
		return domain.Ranking{}, err
	}

	br := bufio.NewReader(r)
	for i := 0; i < opts.SkipLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return domain.Ranking{Name: opts.Name, Entries: []domain.Entry{}}, nil
			}
			return domain.Ranking{}, fmt.Errorf("skip header: %w", err)
		}
	}

	cr := csv.NewReader(br)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	minCols := 2
	if field == FieldScore {
		minCols = 3
	}

	entries := []domain.Entry{}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := opts.SkipLines
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line += pe.StartLine
				err = pe.Err
			}
			return domain.Ranking{}, &RowError{Line: line, Err: fmt.Errorf("%w: %v", ErrMalformedRow, err)}
		}
		line, _ := cr.FieldPos(0)
		line += opts.SkipLines
		if len(record) < minCols {
			return domain.Ranking{}, &RowError{Line: line,
				Err: fmt.Errorf("%w: %d columns, need %d", ErrMalformedRow, len(record), minCols)}
		}

		col := 0
		if field == FieldScore {
			col = 2
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return domain.Ranking{}, &RowError{Line: line,
				Err: fmt.Errorf("%w: %s %q is not a number", ErrMalformedRow, field, record[col])}
		}
		entries = append(entries, domain.Entry{ID: strings.TrimSpace(record[1]), Value: value})
	}

	ranking, err := domain.NewRanking(opts.Name, entries)
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("ranking %q: %w", opts.Name, err)
	}
	return ranking, nil
}

// WriteTSV writes "id<TAB>score" rows in rank order under a header row.
func WriteTSV(w io.Writer, result domain.AggregateRanking) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"id", "score"}); err != nil {
		return err
	}
	for _, e := range result.Entries {
		if err := cw.Write([]string{e.ID, strconv.FormatFloat(e.Score, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteIDs writes one element id per line in rank order.
func WriteIDs(w io.Writer, result domain.AggregateRanking) error {
	bw := bufio.NewWriter(w)
	for _, e := range result.Entries {
		if _, err := bw.WriteString(e.ID); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteRankingTSV writes an input ranking as rank<TAB>id<TAB>score rows,
// where rank is the 1-based listing position and score the entry value.
// ReadTSV with FieldScore recovers the values.
func WriteRankingTSV(w io.Writer, ranking domain.Ranking) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	for i, e := range ranking.Entries {
		row := []string{strconv.Itoa(i + 1), e.ID, strconv.FormatFloat(e.Value, 'g', -1, 64)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
