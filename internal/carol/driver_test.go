package carol

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/catalog"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/compiler"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/executor"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/rules"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/transport"
)

const driverCatalogJSON = `{
  "fields": [
    {
      "value": "Event",
      "subfields": [
        {"value": "ID", "input": "number", "queryValues": [
          {"value": "ID", "conditions": ["is", "is not", "is greater than", "is less than"]}
        ]},
        {"value": "EventDate", "input": "date", "queryValues": [
          {"value": "EventDate", "conditions": ["is on or after", "is on or before"]}
        ]}
      ]
    },
    {
      "value": "Narrative",
      "subfields": [
        {"value": "Factual", "input": "text", "queryValues": [
          {"value": "Factual", "conditions": ["contains"]}
        ]}
      ]
    }
  ]
}`

func driverCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	p := filepath.Join(t.TempDir(), "possible_values.json")
	require.NoError(t, os.WriteFile(p, []byte(driverCatalogJSON), 0o644))
	c, err := catalog.Load(p)
	require.NoError(t, err)
	return c
}

func textRule(value string) rules.Arg { return rules.NewTuple4("Narrative", "Factual", "contains", value) }

// fakeProber counts a result by whether the compiled payload's Event.ID
// bracket overlaps a fixed "true" range, so key-range partitioning can be
// exercised without a real server.
type fakeProber struct {
	trueLo, trueHi int
	calls          int32
}

func (f *fakeProber) Probe(ctx context.Context, payload compiler.ProbePayload) (*transport.ProbeResult, error) {
	atomic.AddInt32(&f.calls, 1)
	lo, hi := 0, 200000
	for _, g := range payload.QueryGroups {
		for _, r := range g.QueryRules {
			switch r.Operator {
			case "is greater than":
				n := atoi(r.Values[0])
				if n+1 > lo {
					lo = n + 1
				}
			case "is less than":
				n := atoi(r.Values[0])
				if n-1 < hi {
					hi = n - 1
				}
			}
		}
	}
	if hi < f.trueLo || lo > f.trueHi {
		return &transport.ProbeResult{ResultListCount: 0}, nil
	}
	return &transport.ProbeResult{ResultListCount: 10}, nil
}

func atoi(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}

type fakeExporter struct{ calls int32 }

func (f *fakeExporter) Export(ctx context.Context, payload compiler.ExportPayload) (*transport.ExportResult, error) {
	atomic.AddInt32(&f.calls, 1)
	return &transport.ExportResult{Body: []byte("PK\x03\x04fake"), Filename: "segment.zip"}, nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(archive []byte, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(destDir, "table.csv")
	if err := os.WriteFile(path, []byte("EventID\n1\n"), 0o644); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func newTestDriver(t *testing.T, prober *fakeProber, exp *fakeExporter, requireAll bool) *Driver {
	t.Helper()
	cat := driverCatalog(t)
	outDir := t.TempDir()

	exec := executor.New(cat, prober, exp, outDir, requireAll, 1000, 1000, zerolog.Nop())
	exec.Extractor = fakeExtractor{}
	exec.ProbeLimiter = rate.NewLimiter(rate.Inf, 1)
	exec.ExportLimiter = rate.NewLimiter(rate.Inf, 1)

	return &Driver{
		Catalog:       cat,
		Normalizer:    rules.NewNormalizer(cat, nil),
		Prober:        prober,
		Executor:      exec,
		OutputDir:     outDir,
		MaxOneRequest: 3500,
		SegmentSize:   400,
		ProbeLimiter:  rate.NewLimiter(rate.Inf, 1),
		Logger:        zerolog.Nop(),
	}
}

func TestQuery_NoDownloadReturnsProbeOnly(t *testing.T) {
	prober := &fakeProber{trueLo: 0, trueHi: 200000}
	exp := &fakeExporter{}
	d := newTestDriver(t, prober, exp, true)

	res, err := d.Query(context.Background(), []rules.Arg{textRule("fuel")}, false, true)
	require.NoError(t, err)
	assert.Equal(t, StateProbed, res.State)
	assert.Equal(t, int32(0), exp.calls)
}

func TestQuery_ZeroResultsStopsEarly(t *testing.T) {
	prober := &fakeProber{trueLo: -1, trueHi: -1} // never matches
	exp := &fakeExporter{}
	d := newTestDriver(t, prober, exp, true)

	res, err := d.Query(context.Background(), []rules.Arg{textRule("fuel")}, true, true)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 0, res.ResultCount)
	assert.Equal(t, int32(0), exp.calls)
}

// Scenario: small result set skips partitioning and submits a single
// export payload (spec.md §8 scenario for 0 < N < MAX_ONE_REQUEST).
func TestQuery_SmallResultSetSkipsPartitioning(t *testing.T) {
	prober := &fakeProber{trueLo: 0, trueHi: 200000}
	exp := &fakeExporter{}
	d := newTestDriver(t, prober, exp, true)
	d.MaxOneRequest = 3500

	res, err := d.Query(context.Background(), []rules.Arg{textRule("fuel")}, true, true)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 1, res.RowsWritten)
	assert.Equal(t, int32(1), exp.calls)
}

// Scenario 4 (spec.md §8): crossed bounds produce an empty segment list,
// zero exports, and the aggregator reports an empty result without error.
func TestQuery_CrossedKeyBoundsProduceEmptyAggregate(t *testing.T) {
	prober := &fakeProber{trueLo: 0, trueHi: 200000}
	exp := &fakeExporter{}
	d := newTestDriver(t, prober, exp, true)
	d.MaxOneRequest = 1 // force the partitioning branch

	args := []rules.Arg{
		textRule("fuel"),
		rules.NewTuple4("Event", "ID", "is greater than", "193455"),
		rules.NewTuple4("Event", "ID", "is less than", "3334"),
	}
	res, err := d.Query(context.Background(), args, true, true)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 0, res.RowsWritten)
	assert.Equal(t, int32(0), exp.calls)
}

// Scenario: explicit user key constraint plus a large count partitions
// directly via the AND key-range algebra, no bracketer needed.
func TestQuery_LargeResultSetWithKeyConstraintPartitions(t *testing.T) {
	prober := &fakeProber{trueLo: 100, trueHi: 900}
	exp := &fakeExporter{}
	d := newTestDriver(t, prober, exp, true)
	d.MaxOneRequest = 1 // force the partitioning branch

	args := []rules.Arg{
		textRule("fuel"),
		rules.NewTuple4("Event", "ID", "is greater than", "99"),
		rules.NewTuple4("Event", "ID", "is less than", "901"),
	}
	res, err := d.Query(context.Background(), args, true, true)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.True(t, res.RowsWritten > 0)
	assert.True(t, exp.calls > 0)
}

// Scenario: large count, no user key constraint, OR mode — the
// bracketer runs both edges and must tighten the range to a narrow band
// before segments are built. (AND mode's bracketer only narrows the
// lower edge by documented quirk — see Open Question #1 — so it is not
// a useful case for asserting a tight probe count.)
func TestQuery_LargeResultSetWithoutKeyConstraintBrackets(t *testing.T) {
	prober := &fakeProber{trueLo: 50000, trueHi: 50300}
	exp := &fakeExporter{}
	d := newTestDriver(t, prober, exp, false)
	d.MaxOneRequest = 1

	res, err := d.Query(context.Background(), []rules.Arg{textRule("fuel")}, true, false)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.True(t, res.RowsWritten > 0)
	// The bracketer should have sharply narrowed the search: far fewer
	// probes than a naive full-range segment-by-segment scan (500 segs).
	assert.True(t, prober.calls < 100, "expected bracketer to limit probe calls, got %d", prober.calls)
}
