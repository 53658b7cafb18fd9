package rankio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/ahrav/go-consensus/internal/domain"
)

// RankingRecord is one row of an input ranking stored as Parquet.
type RankingRecord struct {
	ID    string  `parquet:"id"`
	Rank  float64 `parquet:"rank"`
	Score float64 `parquet:"score"`
}

// ResultRecord is one row of a consensus ranking written as Parquet.
// Position is 1-based.
type ResultRecord struct {
	Position int64   `parquet:"position"`
	ID       string  `parquet:"id"`
	Score    float64 `parquet:"score"`
}

// ReadParquet reads the ranking stored at path. The ranking is named after
// the file unless name is non-empty.
func ReadParquet(path string, name string, field Field) (domain.Ranking, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	stat, err := f.Stat()
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if name == "" {
		name = rankingName(path)
	}
	return ReadParquetFrom(f, stat.Size(), name, field)
}

// ReadParquetFrom reads a ranking from size bytes of Parquet data in r.
func ReadParquetFrom(r io.ReaderAt, size int64, name string, field Field) (domain.Ranking, error) {
	field, err := ParseField(string(field))
	if err != nil {
		return domain.Ranking{}, err
	}

	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("open parquet: %w", err)
	}

	pr := parquet.NewGenericReader[RankingRecord](pf)
	defer pr.Close() //nolint:errcheck

	rows := make([]RankingRecord, pr.NumRows())
	n, err := pr.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.Ranking{}, fmt.Errorf("read parquet rows: %w", err)
	}
	rows = rows[:n]

	entries := make([]domain.Entry, len(rows))
	for i, row := range rows {
		v := row.Rank
		if field == FieldScore {
			v = row.Score
		}
		entries[i] = domain.Entry{ID: row.ID, Value: v}
	}

	ranking, err := domain.NewRanking(name, entries)
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("ranking %q: %w", name, err)
	}
	return ranking, nil
}

// WriteRankingParquet stores an input ranking as RankingRecord rows. The
// value lands in the column named by field; the other column is zero.
func WriteRankingParquet(w io.Writer, ranking domain.Ranking, field Field) error {
	field, err := ParseField(string(field))
	if err != nil {
		return err
	}
	rows := make([]RankingRecord, len(ranking.Entries))
	for i, e := range ranking.Entries {
		rows[i] = RankingRecord{ID: e.ID}
		if field == FieldScore {
			rows[i].Score = e.Value
		} else {
			rows[i].Rank = e.Value
		}
	}
	return writeRows(w, rows)
}

// WriteParquet writes a consensus ranking as ResultRecord rows.
func WriteParquet(w io.Writer, result domain.AggregateRanking) error {
	rows := make([]ResultRecord, len(result.Entries))
	for i, e := range result.Entries {
		rows[i] = ResultRecord{Position: int64(i + 1), ID: e.ID, Score: e.Score}
	}
	return writeRows(w, rows)
}

func writeRows[T any](w io.Writer, rows []T) error {
	pw := parquet.NewGenericWriter[T](w, parquet.Compression(&parquet.Zstd))
	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
