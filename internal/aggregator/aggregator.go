// Package aggregator concatenates the per-segment CSV tables the executor
// collected into one consolidated table, preserving the column union
// across files whose headers differ (grounded on the source's
// aggregate_csv_files, which does the same via pandas.concat).
package aggregator

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/rules"
)

// OutputFile is the consolidated table's filename within the output
// directory, matching the source's aggregated_data.csv.
const OutputFile = "aggregated_data.csv"

// Aggregate reads every path, computes the union of their header columns,
// and writes one CSV with every row padded to that union. A file that
// fails to parse is logged and skipped, not fatal to the run. An empty
// path list is a no-op: it returns 0 rows written without creating a
// file, matching the source's "No CSV files to aggregate" early return.
func Aggregate(logger zerolog.Logger, paths []string, outputDir string) (rowsWritten int, err error) {
	if len(paths) == 0 {
		logger.Info().Msg("no CSV files to aggregate")
		return 0, nil
	}

	// Sort descending before concatenation, matching the source's
	// csv_files.sort(reverse=True), so reruns over the same segment set
	// produce a byte-identical aggregate regardless of the order the
	// executor's workers happened to finish in.
	sorted := append([]string(nil), paths...)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	tables := make([]table, 0, len(sorted))
	columns := newColumnSet()

	for _, path := range sorted {
		t, err := readTable(path)
		if err != nil {
			logger.Warn().Str("path", path).Err(err).Msg("skipping unreadable CSV")
			continue
		}
		columns.addAll(t.header)
		tables = append(tables, t)
	}

	if len(tables) == 0 {
		return 0, rules.NewQueryError(rules.KindAggregation, "no CSV files could be read out of %d collected", len(paths))
	}

	union := columns.ordered()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return 0, rules.NewQueryError(rules.KindFilesystem, "creating %s: %v", outputDir, err)
	}

	outPath := filepath.Join(outputDir, OutputFile)
	f, err := os.Create(outPath)
	if err != nil {
		return 0, rules.NewQueryError(rules.KindFilesystem, "creating %s: %v", outPath, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(union); err != nil {
		return 0, rules.NewQueryError(rules.KindFilesystem, "writing header: %v", err)
	}

	for _, t := range tables {
		for _, row := range t.rows {
			if err := w.Write(projectRow(t.header, row, union)); err != nil {
				return rowsWritten, rules.NewQueryError(rules.KindFilesystem, "writing row: %v", err)
			}
			rowsWritten++
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return rowsWritten, rules.NewQueryError(rules.KindFilesystem, "flushing %s: %v", outPath, err)
	}

	logger.Info().Int("rows", rowsWritten).Str("path", outPath).Msg("aggregated results written")
	return rowsWritten, nil
}

type table struct {
	header []string
	rows   [][]string
}

func readTable(path string) (table, error) {
	f, err := os.Open(path)
	if err != nil {
		return table{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows across heterogeneous exports

	records, err := r.ReadAll()
	if err != nil {
		return table{}, err
	}
	if len(records) == 0 {
		return table{}, nil
	}
	return table{header: records[0], rows: records[1:]}, nil
}

// projectRow re-orders/pads row (whose columns are named by header) to
// match union, filling missing columns with an empty cell.
func projectRow(header, row, union []string) []string {
	byName := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(row) {
			byName[h] = row[i]
		}
	}
	out := make([]string, len(union))
	for i, col := range union {
		out[i] = byName[col]
	}
	return out
}

// columnSet tracks column names in first-seen order across every table's
// header, forming the union written as the aggregated file's header row.
type columnSet struct {
	seen  map[string]bool
	names []string
}

func newColumnSet() *columnSet {
	return &columnSet{seen: make(map[string]bool)}
}

func (c *columnSet) addAll(cols []string) {
	for _, col := range cols {
		if !c.seen[col] {
			c.seen[col] = true
			c.names = append(c.names, col)
		}
	}
}

func (c *columnSet) ordered() []string { return c.names }
