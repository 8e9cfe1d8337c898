// Package carol orchestrates the whole query lifecycle: normalize
// arguments, probe for cardinality, bracket and partition the key space
// when the result set is too large for one request, fan sub-queries out
// to the executor, and aggregate whatever tables come back. This is the
// top-level query() entrypoint the rest of the engine exists to serve.
package carol

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/aggregator"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/bracket"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/catalog"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/compiler"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/executor"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/keyrange"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/rules"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/transport"
)

// Prober is the narrow slice of transport.Session the driver needs for
// its own probes (the general-constraints count and the bracketer's
// binary search), ahead of handing work to the executor.
type Prober interface {
	Probe(ctx context.Context, payload compiler.ProbePayload) (*transport.ProbeResult, error)
}

// State names the point the driver has reached, per the state machine in
// spec.md §4.8. Exposed on Result for callers that want to log or assert
// on it; the driver never revisits a state within one Query call.
type State string

const (
	StateProbed       State = "PROBED"
	StateDone         State = "DONE"
	StateSingleExport State = "SINGLE_EXPORT"
	StateBracketed    State = "BRACKETED"
	StatePartitioned  State = "PARTITIONED"
	StateJoined       State = "JOINED"
	StateAggregated   State = "AGGREGATED"
)

// Result reports how a Query call resolved.
type Result struct {
	State       State
	ResultCount int
	RowsWritten int
	OutputPath  string
}

// Driver ties the normalizer, compiler, key-range algebra, bracketer,
// transport session, executor, and aggregator together into the single
// documented orchestration.
type Driver struct {
	Catalog    *catalog.Catalog
	Normalizer *rules.Normalizer
	Prober     Prober
	Executor   *executor.Executor

	OutputDir     string
	MaxOneRequest int
	SegmentSize   int

	ProbeLimiter *rate.Limiter

	Logger zerolog.Logger
}

// New wires a Driver from a live transport.Session and the engine's
// configured thresholds. probeRPS paces the driver's own probes (the
// general-constraints count and the bracketer's searches); the executor
// paces its own fan-out independently.
func New(cat *catalog.Catalog, session *transport.Session, outputDir string, maxOneRequest, segmentSize int, probeRPS, exportRPS float64, logger zerolog.Logger) *Driver {
	return &Driver{
		Catalog:       cat,
		Normalizer:    rules.NewNormalizer(cat, nil),
		Prober:        session,
		// RequireAll here is a placeholder; Query sets the executor's
		// actual mode from the caller's require_all on every call.
		Executor:      executor.New(cat, session, session, outputDir, true, probeRPS, exportRPS, logger),
		OutputDir:     outputDir,
		MaxOneRequest: maxOneRequest,
		SegmentSize:   segmentSize,
		ProbeLimiter:  rate.NewLimiter(rate.Limit(probeRPS), 1),
		Logger:        logger,
	}
}

// Query runs one end-to-end invocation: normalize args, probe (when
// download is requested), bracket/partition when the result count
// exceeds MaxOneRequest, fan out, and aggregate.
func (d *Driver) Query(ctx context.Context, args []rules.Arg, download, requireAll bool) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if err == nil && res != nil && res.State == StateDone {
			d.Logger.Info().Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("query done")
		}
	}()

	ruleList, err := d.normalize(args)
	if err != nil {
		return nil, err
	}
	set := rules.Set{Rules: ruleList, RequireAll: requireAll}
	key, general := set.KeyConstraints()

	if !download {
		probePayload, _, err := compiler.Compile(d.Catalog, set)
		if err != nil {
			return nil, err
		}
		probeResult, err := d.probe(ctx, probePayload)
		if err != nil {
			return nil, err
		}
		return &Result{State: StateProbed, ResultCount: probeResult.ResultListCount}, nil
	}

	generalOnly := rules.Set{Rules: general, RequireAll: requireAll}
	generalPayload, _, err := compiler.Compile(d.Catalog, generalOnly)
	if err != nil {
		return nil, err
	}
	probeResult, err := d.probe(ctx, generalPayload)
	if err != nil {
		return nil, err
	}
	n := probeResult.ResultListCount

	if n == 0 {
		d.Logger.Info().Msg("no results")
		return &Result{State: StateDone, ResultCount: 0}, nil
	}

	d.Executor.RequireAll = requireAll

	if n < d.MaxOneRequest {
		jobs := []executor.Job{{Rules: ruleList}}
		paths := d.Executor.Run(ctx, jobs)
		return d.aggregate(StateSingleExport, n, paths)
	}

	jobs, state, err := d.partition(ctx, key, general, requireAll)
	if err != nil {
		return nil, err
	}
	paths := d.Executor.Run(ctx, jobs)
	return d.aggregate(state, n, paths)
}

func (d *Driver) normalize(args []rules.Arg) ([]rules.Rule, error) {
	ruleList := make([]rules.Rule, 0, len(args))
	for _, a := range args {
		r, err := d.Normalizer.Normalize(a)
		if err != nil {
			return nil, err
		}
		ruleList = append(ruleList, r)
	}
	return ruleList, nil
}

func (d *Driver) probe(ctx context.Context, payload compiler.ProbePayload) (*transport.ProbeResult, error) {
	if err := d.ProbeLimiter.Wait(ctx); err != nil {
		return nil, rules.NewQueryError(rules.KindTransport, "probe pacing interrupted: %v", err)
	}
	return d.Prober.Probe(ctx, payload)
}

// partition runs the bracketer when the caller supplied no key
// constraint, extends the key-constraint set with whatever it found,
// then invokes the key-range algebra to produce the segment job list.
//
// A bracket-discovered bound is always a single contiguous band (the
// binary search pins down where results live, never an alternative), so
// it is always partitioned with the AND interval algebra even under
// require_all=false — feeding "is greater than lo" and "is less than
// hi" through the OR algebra would union the two open half-lines back
// into the full universe instead of the narrow band between them,
// which would defeat the bracketer entirely. A user-supplied key
// constraint keeps the mode the caller actually asked for.
func (d *Driver) partition(ctx context.Context, key, general []rules.Rule, requireAll bool) ([]executor.Job, State, error) {
	state := StatePartitioned

	if len(key) == 0 {
		probeFn := func(ctx context.Context, constraints []rules.Rule) (int, error) {
			payload, _, err := compiler.Compile(d.Catalog, rules.Set{Rules: constraints, RequireAll: requireAll})
			if err != nil {
				return 0, err
			}
			result, err := d.probe(ctx, payload)
			if err != nil {
				return 0, err
			}
			return result.ResultListCount, nil
		}

		bounds, err := bracket.Run(ctx, probeFn, general, requireAll)
		if err != nil {
			return nil, "", err
		}
		state = StateBracketed

		bracketKey := []rules.Rule{
			{Field: "Event", Subfield: "ID", Condition: "is greater than", Value: strconv.Itoa(bounds.Lo)},
		}
		if !requireAll {
			// Upper-edge search only ran in OR mode; AND mode leaves the
			// upper bound at the universe ceiling, per bracket.Run.
			bracketKey = append(bracketKey, rules.Rule{
				Field: "Event", Subfield: "ID", Condition: "is less than", Value: strconv.Itoa(bounds.Hi),
			})
		}

		intervals, err := keyrange.GenerateAnd(bracketKey)
		if err != nil {
			return nil, "", err
		}
		var jobs []executor.Job
		for _, seg := range keyrange.Slice(intervals, d.SegmentSize) {
			jobs = append(jobs, segmentJob(seg, general))
		}
		return jobs, state, nil
	}

	var jobs []executor.Job
	if requireAll {
		intervals, err := keyrange.GenerateAnd(key)
		if err != nil {
			return nil, "", err
		}
		for _, seg := range keyrange.Slice(intervals, d.SegmentSize) {
			jobs = append(jobs, segmentJob(seg, general))
		}
		return jobs, state, nil
	}

	covered, complement, err := keyrange.GenerateOr(key)
	if err != nil {
		return nil, "", err
	}
	// Covered segments already satisfy the user's key constraints, so
	// under OR semantics the bracket alone determines membership — the
	// general rules are not repeated there or every row in range would
	// also have to satisfy them. The complement carries the general
	// rules: rows outside the key-covered range can only match via them.
	for _, seg := range keyrange.Slice(covered, d.SegmentSize) {
		jobs = append(jobs, segmentJob(seg, nil))
	}
	for _, seg := range keyrange.Slice(complement, d.SegmentSize) {
		jobs = append(jobs, segmentJob(seg, general))
	}
	return jobs, state, nil
}

// segmentJob prepends the Event.ID bracket for seg to general, per
// spec.md §4.8 step 5.
func segmentJob(seg keyrange.Interval, general []rules.Rule) executor.Job {
	bracketRules := []rules.Rule{
		{Field: "Event", Subfield: "ID", Condition: "is greater than", Value: strconv.Itoa(seg.Lo - 1)},
		{Field: "Event", Subfield: "ID", Condition: "is less than", Value: strconv.Itoa(seg.Hi + 1)},
	}
	return executor.Job{Rules: append(bracketRules, general...)}
}

func (d *Driver) aggregate(reached State, n int, paths []string) (*Result, error) {
	d.Logger.Debug().Str("state", string(reached)).Int("segments", len(paths)).Msg("fan-out complete, aggregating")

	rows, err := aggregator.Aggregate(d.Logger, paths, d.OutputDir)
	if err != nil {
		return nil, err
	}
	return &Result{
		State:       StateDone,
		ResultCount: n,
		RowsWritten: rows,
		OutputPath:  d.OutputDir,
	}, nil
}
