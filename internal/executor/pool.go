// Package executor runs compiled rule bundles against the CAROL server:
// one probe-then-maybe-export round trip per segment, fanned out across a
// bounded worker pool and paced by a pair of rate limiters.
package executor

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/catalog"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/compiler"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/rules"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/transport"
)

// Prober and Exporter are the narrow slices of transport.Session the
// executor needs, so tests can substitute doubles instead of making real
// HTTP calls.
type Prober interface {
	Probe(ctx context.Context, payload compiler.ProbePayload) (*transport.ProbeResult, error)
}

type Exporter interface {
	Export(ctx context.Context, payload compiler.ExportPayload) (*transport.ExportResult, error)
}

// Job is one compiled segment: a rule bundle (key bracket plus general
// constraints) ready to probe and, if non-empty, export.
type Job struct {
	Rules []rules.Rule
}

// dirName renders a human-readable, filesystem-safe directory name from a
// job's rule summaries, mirroring the source's folder-per-query-values
// convention. Including every rule (key bracket included) keeps segment
// output directories from colliding with each other.
func (j Job) dirName() string {
	parts := make([]string, 0, len(j.Rules))
	for _, r := range j.Rules {
		parts = append(parts, r.Summary())
	}
	return sanitizePath(strings.Join(parts, "_"))
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizePath(s string) string {
	return strings.Trim(unsafePathChars.ReplaceAllString(s, "_"), "_")
}

// Executor fans compiled jobs out across a bounded worker pool.
type Executor struct {
	Catalog       *catalog.Catalog
	Prober        Prober
	Exporter      Exporter
	Extractor     Extractor
	ProbeLimiter  *rate.Limiter
	ExportLimiter *rate.Limiter
	OutputDir     string
	RequireAll    bool
	PoolSize      int
	Logger        zerolog.Logger
}

// New builds an Executor with a worker pool sized to the host's hardware
// threads, per spec.md §4.6, and rate limiters standing in for the
// source's mutex+sleep pacing gate (spec.md §9 design note: a token
// bucket is behaviorally equivalent and cleaner).
func New(cat *catalog.Catalog, prober Prober, exporter Exporter, outputDir string, requireAll bool, probeRPS, exportRPS float64, logger zerolog.Logger) *Executor {
	return &Executor{
		Catalog:       cat,
		Prober:        prober,
		Exporter:      exporter,
		Extractor:     ZipExtractor{},
		ProbeLimiter:  rate.NewLimiter(rate.Limit(probeRPS), 1),
		ExportLimiter: rate.NewLimiter(rate.Limit(exportRPS), 1),
		OutputDir:     outputDir,
		RequireAll:    requireAll,
		PoolSize:      runtime.NumCPU(),
		Logger:        logger,
	}
}

// fsMu serializes archive writes, extraction, and deletion: spec.md §4.6
// names this a critical section shared across workers.
var fsMu sync.Mutex

// Run executes every job against the worker pool and returns the
// extracted table paths collected across all segments. Per-segment
// transport and filesystem failures are logged and skipped rather than
// aborting the run (spec.md §4.6 failure semantics).
func (e *Executor) Run(ctx context.Context, jobs []Job) []string {
	if e.PoolSize <= 0 {
		e.PoolSize = 1
	}

	sem := make(chan struct{}, e.PoolSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var paths []string

	for _, job := range jobs {
		job := job
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			got := e.runOne(ctx, job)
			if len(got) == 0 {
				return
			}
			mu.Lock()
			paths = append(paths, got...)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return paths
}

// runOne probes a single job and, if it has results, exports, writes, and
// extracts the archive. Returns the extracted table paths, or nil on any
// skip/failure (already logged).
func (e *Executor) runOne(ctx context.Context, job Job) []string {
	logger := e.Logger.With().Str("segment", job.dirName()).Logger()

	if err := e.ProbeLimiter.Wait(ctx); err != nil {
		logger.Warn().Err(err).Msg("probe pacing interrupted")
		return nil
	}

	probePayload, exportPayload, err := compiler.Compile(e.Catalog, rules.Set{Rules: job.Rules, RequireAll: e.RequireAll})
	if err != nil {
		logger.Error().Err(err).Msg("compiling segment")
		return nil
	}

	probeResult, err := e.Prober.Probe(ctx, probePayload)
	if err != nil {
		logger.Warn().Err(err).Msg("probe request failed, skipping segment")
		return nil
	}
	if probeResult.ResultListCount == 0 {
		logger.Debug().Msg("segment has no results")
		return nil
	}

	if err := e.ExportLimiter.Wait(ctx); err != nil {
		logger.Warn().Err(err).Msg("export pacing interrupted")
		return nil
	}

	exportResult, err := e.Exporter.Export(ctx, exportPayload)
	if err != nil {
		logger.Warn().Err(err).Msg("export request failed, skipping segment")
		return nil
	}

	return e.store(logger, job, exportResult)
}

// store writes the archive, extracts it, and deletes the archive, all
// under the filesystem mutex.
func (e *Executor) store(logger zerolog.Logger, job Job, result *transport.ExportResult) []string {
	fsMu.Lock()
	defer fsMu.Unlock()

	archivePath := filepath.Join(e.OutputDir, result.Filename)
	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		logger.Error().Err(err).Msg("creating output dir")
		return nil
	}
	if err := os.WriteFile(archivePath, result.Body, 0o644); err != nil {
		logger.Error().Err(err).Msg("writing archive")
		return nil
	}
	defer os.Remove(archivePath)

	destDir := filepath.Join(e.OutputDir, job.dirName())
	extracted, err := e.Extractor.Extract(result.Body, destDir)
	if err != nil {
		logger.Error().Err(err).Msg("extracting archive")
		return nil
	}

	csvPaths := make([]string, 0, len(extracted))
	for _, p := range extracted {
		if strings.EqualFold(filepath.Ext(p), ".csv") {
			csvPaths = append(csvPaths, p)
		}
	}

	logger.Info().Int("files", len(csvPaths)).Msg("segment downloaded")
	return csvPaths
}
