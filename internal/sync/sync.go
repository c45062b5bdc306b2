package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"filterlaunch/internal/config"
	"filterlaunch/internal/filter"
	"filterlaunch/internal/github"
	"filterlaunch/internal/source"
)

// OutcomeKind classifies how a single source ended up.
type OutcomeKind int

const (
	// OutcomeFresh means new content was downloaded and installed.
	OutcomeFresh OutcomeKind = iota

	// OutcomeCached means the installed content already matched the remote
	// version and no download happened.
	OutcomeCached

	// OutcomeSoftFailure means the source failed but a previously installed
	// version is still on disk; the game launches with stale content.
	OutcomeSoftFailure

	// OutcomeHardFailure means the source failed and nothing usable is on
	// disk for it. The launch still proceeds.
	OutcomeHardFailure
)

// String implements fmt.Stringer for log output.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFresh:
		return "fresh"
	case OutcomeCached:
		return "cached"
	case OutcomeSoftFailure:
		return "soft-failure"
	case OutcomeHardFailure:
		return "hard-failure"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the per-source result consumed by the caller for logging and
// the launch decision.
type Outcome struct {
	Source  source.Descriptor
	Kind    OutcomeKind
	Version string
	Files   []string
	Err     error
}

// Result aggregates per-source outcomes. Filter failures never block the
// launch; the aggregation only drives how loudly they are reported.
type Result struct {
	Outcomes []Outcome
}

// SoftFailures returns outcomes where stale content covers the source.
func (r *Result) SoftFailures() []Outcome { return r.byKind(OutcomeSoftFailure) }

// HardFailures returns outcomes with no installed content at all.
func (r *Result) HardFailures() []Outcome { return r.byKind(OutcomeHardFailure) }

func (r *Result) byKind(kind OutcomeKind) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

// Engine drives every descriptor through resolve, cache check, fetch and
// install, then merges content per destination file and writes atomically.
type Engine struct {
	cfg       *config.Config
	client    github.Client
	logger    *slog.Logger
	filterDir string
	notes     io.Writer
}

// NewEngine creates a sync engine installing into filterDir. Release notes
// for freshly installed sources are written to notes.
func NewEngine(cfg *config.Config, client github.Client, logger *slog.Logger, filterDir string, notes io.Writer) *Engine {
	return &Engine{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		filterDir: filterDir,
		notes:     notes,
	}
}

// job carries one descriptor through the pipeline.
type job struct {
	desc   source.Descriptor
	ref    github.Ref
	files  []filter.File
	cached bool
	err    error
}

// Run processes all descriptors and returns their outcomes. With zero
// descriptors it performs no network or filesystem activity at all. Run only
// errors when the context was cancelled; everything else is reported through
// the per-source outcomes.
func (e *Engine) Run(ctx context.Context, descriptors []source.Descriptor) (*Result, error) {
	if len(descriptors) == 0 {
		return &Result{}, nil
	}

	if err := os.MkdirAll(e.filterDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create filter directory: %w", err)
	}

	statePath := config.StateFilePath(e.filterDir)
	state, err := LoadState(statePath)
	if err != nil {
		e.logger.Warn("failed to load version markers (will treat all sources as fresh)", "error", err)
		state = NewState()
	}

	jobs := make([]*job, len(descriptors))
	for i, d := range descriptors {
		jobs[i] = &job{desc: d}
	}

	e.forEach(ctx, jobs, func(j *job) { e.process(ctx, j, state) })
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.promoteSharedDestinations(ctx, jobs, state)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	changed := e.install(jobs, state)
	if changed {
		if err := SaveState(statePath, state); err != nil {
			e.logger.Warn("failed to save version markers", "error", err)
		}
	}

	e.printNotes(jobs)

	result := &Result{Outcomes: make([]Outcome, 0, len(jobs))}
	for _, j := range jobs {
		result.Outcomes = append(result.Outcomes, e.outcome(j, state))
	}
	return result, nil
}

// forEach runs fn over all jobs with bounded parallelism.
func (e *Engine) forEach(ctx context.Context, jobs []*job, fn func(*job)) {
	sem := make(chan struct{}, e.cfg.Fetch.Concurrency)
	var wg sync.WaitGroup

	for _, j := range jobs {
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				j.err = ctx.Err()
				return
			}
			defer func() { <-sem }()
			fn(j)
		}(j)
	}

	wg.Wait()
}

// process resolves one descriptor, consults its marker, and downloads fresh
// content when the marker does not cover the resolved version.
func (e *Engine) process(ctx context.Context, j *job, state *State) {
	resolved, err := j.desc.Expand()
	if err != nil {
		j.err = err
		return
	}

	key := j.desc.Key()
	if resolved.Branch == "" {
		j.ref, err = e.client.ResolveLatestRelease(ctx, resolved.Owner, resolved.Repo)
	} else {
		j.ref, err = e.client.ResolveBranch(ctx, resolved.Owner, resolved.Repo, resolved.Branch)
	}
	if err != nil {
		j.err = err
		return
	}

	e.logger.Debug("source resolved", "source", key, "version", j.ref.Version)

	if marker, ok := state.Markers[key]; ok && marker.Version == j.ref.Version && marker.FilesPresent(e.filterDir) {
		e.logger.Debug("source is up to date", "source", key, "version", marker.Version)
		j.cached = true
		return
	}

	e.fetch(ctx, j)
}

// fetch downloads and extracts the resolved archive for one job.
func (e *Engine) fetch(ctx context.Context, j *job) {
	key := j.desc.Key()
	e.logger.Debug("downloading archive", "source", key, "url", j.ref.ZipballURL)

	data, err := e.client.FetchZipball(ctx, j.ref)
	if err != nil {
		j.err = err
		return
	}

	files, err := filter.Extract(data)
	if err != nil {
		j.err = fmt.Errorf("source %s: %w", key, err)
		return
	}

	j.files = files
	j.cached = false
}

// promoteSharedDestinations re-downloads cached sources whose destination
// files are also fed by a freshly fetched source. The merged file must be
// rebuilt from every contributor's content, and cached content only exists
// on disk in already-merged form.
func (e *Engine) promoteSharedDestinations(ctx context.Context, jobs []*job, state *State) {
	freshDest := make(map[string]bool)
	for _, j := range jobs {
		if j.err == nil && !j.cached {
			for _, f := range j.files {
				freshDest[f.Name] = true
			}
		}
	}
	if len(freshDest) == 0 {
		return
	}

	var promoted []*job
	for _, j := range jobs {
		if j.err != nil || !j.cached {
			continue
		}
		marker := state.Markers[j.desc.Key()]
		for _, name := range marker.Files {
			if freshDest[name] {
				e.logger.Debug("re-fetching cached source for shared destination",
					"source", j.desc.Key(), "destination", name)
				promoted = append(promoted, j)
				break
			}
		}
	}
	if len(promoted) == 0 {
		return
	}

	e.forEach(ctx, promoted, func(j *job) { e.fetch(ctx, j) })
}

// install merges fetched content per destination file in command-line order
// and writes each destination atomically. It updates markers for sources
// whose destinations were all written successfully, and reports whether any
// marker changed.
func (e *Engine) install(jobs []*job, state *State) bool {
	// Contributions per destination basename, gathered in job order. Jobs
	// are indexed by command-line position, so iteration order alone gives
	// the deterministic merge order regardless of fetch completion order.
	segments := make(map[string][][]byte)
	contributors := make(map[string][]*job)
	for _, j := range jobs {
		if j.err != nil || j.cached {
			continue
		}
		for _, f := range j.files {
			segments[f.Name] = append(segments[f.Name], f.Data)
			contributors[f.Name] = append(contributors[f.Name], j)
		}
	}
	if len(segments) == 0 {
		return false
	}

	// Destinations a failed source previously contributed to keep their
	// current content. Rewriting one from the surviving contributors alone
	// would destroy the failed source's installed share of the merge.
	frozen := make(map[string]bool)
	for _, j := range jobs {
		if j.err == nil {
			continue
		}
		for _, name := range state.Markers[j.desc.Key()].Files {
			if _, statErr := os.Stat(filepath.Join(e.filterDir, name)); statErr == nil {
				frozen[name] = true
			}
		}
	}

	names := make([]string, 0, len(segments))
	for name := range segments {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := make(map[*job]bool)
	for _, name := range names {
		if frozen[name] {
			e.logger.Warn("keeping current filter file, a contributing source failed", "destination", name)
			for _, j := range contributors[name] {
				failed[j] = true
				if j.err == nil {
					j.err = fmt.Errorf("not installing %s: another contributing source failed", name)
				}
			}
			continue
		}

		var merged []byte
		for _, part := range segments[name] {
			merged = append(merged, part...)
		}

		dest := filepath.Join(e.filterDir, name)
		if err := writeFileAtomic(dest, merged, 0644); err != nil {
			e.logger.Warn("failed to install filter file", "destination", dest, "error", err)
			for _, j := range contributors[name] {
				failed[j] = true
				if j.err == nil {
					j.err = fmt.Errorf("installing %s: %w", name, err)
				}
			}
			continue
		}
		e.logger.Info("installed filter file", "destination", dest, "bytes", len(merged))
	}

	changed := false
	for _, j := range jobs {
		if j.err != nil || j.cached || failed[j] {
			continue
		}
		files := make([]string, 0, len(j.files))
		for _, f := range j.files {
			files = append(files, f.Name)
		}
		state.Markers[j.desc.Key()] = Marker{Version: j.ref.Version, Files: files}
		changed = true
	}
	return changed
}

// printNotes emits the release notes of freshly installed sources, in
// command-line order, as a changelog for the user.
func (e *Engine) printNotes(jobs []*job) {
	for _, j := range jobs {
		if j.err != nil || j.cached {
			continue
		}
		fmt.Fprintf(e.notes, "# %s: %s\n", j.desc.Key(), j.ref.Version)
		if j.ref.Notes != "" {
			fmt.Fprintln(e.notes, j.ref.Notes)
		}
		fmt.Fprintln(e.notes)
	}
}

// outcome classifies a finished job. Failures downgrade to soft when the
// source's previously installed files are still usable on disk.
func (e *Engine) outcome(j *job, state *State) Outcome {
	o := Outcome{Source: j.desc, Version: j.ref.Version, Err: j.err}

	marker, installed := state.Markers[j.desc.Key()]
	if installed {
		o.Files = marker.Files
	}

	switch {
	case j.err == nil && j.cached:
		o.Kind = OutcomeCached
		o.Version = marker.Version
	case j.err == nil:
		o.Kind = OutcomeFresh
	case installed && marker.FilesPresent(e.filterDir):
		o.Kind = OutcomeSoftFailure
	default:
		o.Kind = OutcomeHardFailure
	}
	return o
}
