package rankio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// Format is an output encoding for consensus rankings.
type Format string

const (
	// FormatIDs writes one id per line.
	FormatIDs Format = "ids"
	// FormatTSV writes id and score columns.
	FormatTSV Format = "tsv"
	// FormatParquet writes position, id and score columns.
	FormatParquet Format = "parquet"
)

// ErrUnknownFormat is returned for an output format other than ids, tsv or
// parquet.
var ErrUnknownFormat = errors.New("unknown output format")

// Formats lists the supported output formats.
func Formats() []Format { return []Format{FormatIDs, FormatTSV, FormatParquet} }

// ParseFormat resolves a format name; the empty string means ids.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatIDs, nil
	case FormatIDs, FormatTSV, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Extension returns the file extension used for the format.
func (f Format) Extension() string {
	switch f {
	case FormatTSV:
		return ".tsv"
	case FormatParquet:
		return ".parquet"
	default:
		return ".txt"
	}
}

var (
	_ ports.RankingWriter = (*Writer)(nil)
	_ ports.RankingReader = (*TSVReader)(nil)
	_ ports.RankingReader = (*ParquetReader)(nil)
)

// Writer encodes consensus rankings in one Format.
type Writer struct {
	format Format
}

// NewWriter returns a Writer for format.
func NewWriter(format Format) (*Writer, error) {
	f, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	return &Writer{format: f}, nil
}

// Format returns the writer's output format.
func (w *Writer) Format() Format { return w.format }

// WriteRanking encodes result to out.
func (w *Writer) WriteRanking(ctx context.Context, out io.Writer, result domain.AggregateRanking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch w.format {
	case FormatTSV:
		return WriteTSV(out, result)
	case FormatParquet:
		return WriteParquet(out, result)
	default:
		return WriteIDs(out, result)
	}
}

// WriteFile writes result to dir/<stem><ext> and returns the path.
func (w *Writer) WriteFile(ctx context.Context, dir, stem string, result domain.AggregateRanking) (string, error) {
	path := filepath.Join(dir, stem+w.format.Extension())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := w.WriteRanking(ctx, f, result); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

// TSVReader reads rankings with fixed TSVOptions. The name passed to
// ReadRanking overrides Options.Name.
type TSVReader struct {
	Options TSVOptions
}

// ReadRanking implements ports.RankingReader.
func (tr *TSVReader) ReadRanking(ctx context.Context, name string, r io.Reader) (domain.Ranking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ranking{}, err
	}
	opts := tr.Options
	if name != "" {
		opts.Name = name
	}
	return ReadTSV(r, opts)
}

// ParquetReader reads rankings stored as RankingRecord rows. Parquet needs
// random access, so a plain io.Reader is buffered in memory first.
type ParquetReader struct {
	Field Field
}

// ReadRanking implements ports.RankingReader.
func (pr *ParquetReader) ReadRanking(ctx context.Context, name string, r io.Reader) (domain.Ranking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ranking{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("read parquet input: %w", err)
	}
	return ReadParquetFrom(bytes.NewReader(data), int64(len(data)), name, pr.Field)
}

// ReadFile reads one ranking file, picking Parquet for a .parquet extension
// and TSV otherwise. An empty opts.Name names the ranking after the file.
// TSV failures come back as *ports.SourceError carrying the path and line.
func ReadFile(ctx context.Context, path string, opts TSVOptions) (domain.Ranking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ranking{}, err
	}
	if opts.Name == "" {
		opts.Name = rankingName(path)
	}
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return ReadParquet(path, opts.Name, opts.Field)
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	ranking, err := ReadTSV(f, opts)
	if err != nil {
		se := &ports.SourceError{Source: path, Err: err}
		var re *RowError
		if errors.As(err, &re) {
			se.Line, se.Err = re.Line, re.Err
		}
		return domain.Ranking{}, se
	}
	return ranking, nil
}

// rankingName derives a ranking name from a file path: the base name
// without its extension.
func rankingName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
