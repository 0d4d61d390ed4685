package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dbregistry/internal"
	"dbregistry/internal/config"
	"dbregistry/internal/contacts"
	"dbregistry/internal/rules"
	"dbregistry/internal/storage"
)

// Source is one labelled export loaded into raw rows.
type Source struct {
	Label string
	Rows  []internal.RawRow
}

type Options struct {
	StrictConsistency bool
	SuggestThreshold  float64
}

// Result is everything a build produces: the final registry plus the
// diagnostics collected along the way.
type Result struct {
	Entries     []internal.RegistryEntry
	Diagnostics []internal.Diagnostic
	Conflicts   []Conflict
}

// Pipeline is the pure core: it holds compiled rules and turns loaded sources
// into the final registry without touching storage or the network.
type Pipeline struct {
	rules rules.Rules
	canon *Canonicalizer
	opts  Options
	log   zerolog.Logger
}

func NewPipeline(r rules.Rules, opts Options, log zerolog.Logger) (*Pipeline, error) {
	canon, err := NewCanonicalizer(r.Canonical)
	if err != nil {
		return nil, err
	}
	return &Pipeline{rules: r, canon: canon, opts: opts, log: log}, nil
}

func (p *Pipeline) Canonicalizer() *Canonicalizer {
	return p.canon
}

// Slots canonicalizes and reshapes every source, keeping source order.
func (p *Pipeline) Slots(sources []Source) [][]internal.SlotRecord {
	out := make([][]internal.SlotRecord, 0, len(sources))
	for _, src := range sources {
		slots := Reshape(p.canon.Apply(src.Rows))
		p.log.Debug().Str("source", src.Label).Int("rows", len(src.Rows)).Int("slots", len(slots)).Msg("reshaped")
		out = append(out, slots)
	}
	return out
}

// Check runs the consistency check over all sources together.
func (p *Pipeline) Check(sources []Source) []Conflict {
	var all []internal.SlotRecord
	for _, slots := range p.Slots(sources) {
		all = append(all, slots...)
	}
	return CheckConsistency(all)
}

// Build runs every stage and returns the final registry.
func (p *Pipeline) Build(sources []Source, contactRows []internal.ContactRow) (Result, error) {
	perSource := p.Slots(sources)

	var all []internal.SlotRecord
	for _, slots := range perSource {
		all = append(all, slots...)
	}
	var res Result
	res.Conflicts = CheckConsistency(all)
	for _, c := range res.Conflicts {
		p.log.Warn().Str("name", c.Name).Str("field", c.Field).Strs("values", c.Values).Msg("inconsistent group")
		res.Diagnostics = append(res.Diagnostics, internal.Diagnostic{Kind: internal.DiagConflict, Name: c.Name, Field: c.Field, Values: c.Values})
	}
	if p.opts.StrictConsistency && len(res.Conflicts) > 0 {
		return res, &ConsistencyError{Conflicts: res.Conflicts}
	}

	reconciler := NewReconciler(p.rules.AvailabilityNo)
	tables := make([][]internal.DatabaseRecord, 0, len(perSource))
	for i, slots := range perSource {
		records, unidentified := reconciler.Reconcile(slots)
		for _, s := range unidentified {
			res.Diagnostics = append(res.Diagnostics, internal.Diagnostic{
				Kind:   internal.DiagUnidentified,
				Name:   internal.Placeholder,
				Detail: fmt.Sprintf("%s row %d slot %d", sources[i].Label, s.RowNo, s.Index),
			})
		}
		tables = append(tables, records)
	}
	if unmatched := reconciler.Unmatched(); len(unmatched) > 0 {
		return res, &OverrideError{Kind: "availability", Names: unmatched}
	}

	contactIndex := contacts.BuildIndex(contactRows)
	for _, name := range contactIndex.Duplicates {
		p.log.Warn().Str("name", name).Msg("duplicate contact row ignored")
	}

	merged := Merge(tables...)
	enricher := NewEnricher(p.rules)
	entries, joinReport, err := enricher.Enrich(merged, contactRows)
	if err != nil {
		return res, err
	}
	res.Entries = entries

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Count > 0 {
			names = append(names, e.Name)
		}
	}
	for _, d := range joinReport {
		switch d.Kind {
		case internal.DiagOrphanContact:
			if s, ok := Closest(d.Name, names, p.opts.SuggestThreshold); ok {
				d.Detail = fmt.Sprintf("closest registry name %q (%.2f)", s.Closest, s.Score)
			}
		case internal.DiagMissingContact:
			if s, ok := Closest(d.Name, contactIndex.Names, p.opts.SuggestThreshold); ok {
				d.Detail = fmt.Sprintf("closest contact name %q (%.2f)", s.Closest, s.Score)
			}
		}
		res.Diagnostics = append(res.Diagnostics, d)
	}
	for _, s := range SimilarNames(names, p.opts.SuggestThreshold) {
		res.Diagnostics = append(res.Diagnostics, internal.Diagnostic{
			Kind:   internal.DiagSimilarNames,
			Name:   s.Name,
			Values: []string{s.Closest},
			Detail: fmt.Sprintf("%.2f", s.Score),
		})
	}

	p.log.Info().Int("entries", len(entries)).Int("diagnostics", len(res.Diagnostics)).Msg("registry built")
	return res, nil
}

// ProcessingService loads inputs, runs the pipeline and records the run.
type ProcessingService struct {
	db  *storage.DB
	cfg config.Config
	log zerolog.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, log zerolog.Logger) *ProcessingService {
	return &ProcessingService{db: db, cfg: cfg, log: log}
}

// RunInput names the two exports and where contacts come from. Empty paths
// fall back to the latest export received by mail for that label.
type RunInput struct {
	SourceA       string
	SourceB       string
	Contacts      contacts.Source
	ContactsLabel string
}

type RunResult struct {
	RunID string
	Result
}

func (s *ProcessingService) Pipeline() (*Pipeline, error) {
	r, err := rules.Load(s.cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	return NewPipeline(r, Options{StrictConsistency: s.cfg.StrictConsistency, SuggestThreshold: s.cfg.SuggestThreshold}, s.log)
}

// ResolveInputs fills empty source paths from the mail store.
func (s *ProcessingService) ResolveInputs(in RunInput) (RunInput, error) {
	var err error
	if in.SourceA, err = s.resolvePath(in.SourceA, s.cfg.SourceALabel); err != nil {
		return in, err
	}
	if in.SourceB, err = s.resolvePath(in.SourceB, s.cfg.SourceBLabel); err != nil {
		return in, err
	}
	return in, nil
}

func (s *ProcessingService) resolvePath(path, label string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return path, nil
	}
	row, err := s.db.LatestSource(label)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", fmt.Errorf("no export for %s: pass a path or fetch it by mail first", label)
	}
	return row.Path, nil
}

// LoadSources reads both exports of in.
func (s *ProcessingService) LoadSources(in RunInput) ([]Source, error) {
	a, err := ReadExport(in.SourceA, s.cfg.SourceALabel, s.log)
	if err != nil {
		return nil, err
	}
	b, err := ReadExport(in.SourceB, s.cfg.SourceBLabel, s.log)
	if err != nil {
		return nil, err
	}
	return []Source{{Label: s.cfg.SourceALabel, Rows: a}, {Label: s.cfg.SourceBLabel, Rows: b}}, nil
}

func (s *ProcessingService) Check(in RunInput) ([]Conflict, error) {
	in, err := s.ResolveInputs(in)
	if err != nil {
		return nil, err
	}
	p, err := s.Pipeline()
	if err != nil {
		return nil, err
	}
	sources, err := s.LoadSources(in)
	if err != nil {
		return nil, err
	}
	return p.Check(sources), nil
}

// Run builds the registry from in and stores it under a new run id. A run
// rejected by the strict consistency check still stores its diagnostics.
func (s *ProcessingService) Run(ctx context.Context, in RunInput) (RunResult, error) {
	start := time.Now()
	in, err := s.ResolveInputs(in)
	if err != nil {
		return RunResult{}, err
	}
	p, err := s.Pipeline()
	if err != nil {
		return RunResult{}, err
	}
	sources, err := s.LoadSources(in)
	if err != nil {
		return RunResult{}, err
	}
	loaded := time.Now()

	var contactRows []internal.ContactRow
	if in.Contacts != nil {
		contactRows, err = contacts.Load(ctx, in.Contacts)
		if err != nil {
			return RunResult{}, err
		}
	}
	fetched := time.Now()

	res, buildErr := p.Build(sources, contactRows)
	var consistency *ConsistencyError
	if buildErr != nil && !errors.As(buildErr, &consistency) {
		return RunResult{}, buildErr
	}

	status := internal.RunOK
	if consistency != nil {
		status = internal.RunInconsistent
	}
	run := internal.RunRow{
		ID:       uuid.NewString(),
		Status:   status,
		SourceA:  in.SourceA,
		SourceB:  in.SourceB,
		Contacts: in.ContactsLabel,
		Counts: map[string]int{
			"rowsA":       len(sources[0].Rows),
			"rowsB":       len(sources[1].Rows),
			"contacts":    len(contactRows),
			"entries":     len(res.Entries),
			"conflicts":   len(res.Conflicts),
			"diagnostics": len(res.Diagnostics),
		},
		Timings: map[string]float64{
			"loadMs":     float64(loaded.Sub(start).Milliseconds()),
			"contactsMs": float64(fetched.Sub(loaded).Milliseconds()),
			"totalMs":    float64(time.Since(start).Milliseconds()),
		},
	}
	if err := s.db.InsertRun(run); err != nil {
		return RunResult{}, err
	}
	if err := s.db.SaveRegistry(run.ID, res.Entries); err != nil {
		return RunResult{}, err
	}
	if err := s.db.SaveDiagnostics(run.ID, res.Diagnostics); err != nil {
		return RunResult{}, err
	}
	if err := s.markProcessed(in); err != nil {
		return RunResult{}, err
	}

	s.log.Info().Str("run", run.ID).Str("status", run.Status).Int("entries", len(res.Entries)).Dur("took", time.Since(start)).Msg("run stored")
	return RunResult{RunID: run.ID, Result: res}, buildErr
}

// markProcessed flags the mailed exports used by this run as processed and
// retires the older pending exports of the same label.
func (s *ProcessingService) markProcessed(in RunInput) error {
	used := map[string]string{}
	for _, label := range []string{s.cfg.SourceALabel, s.cfg.SourceBLabel} {
		row, err := s.db.LatestSource(label)
		if err != nil {
			return err
		}
		if row != nil && (row.Path == in.SourceA || row.Path == in.SourceB) {
			used[label] = row.Path
			if row.Status != sourceProcessed {
				if err := s.db.UpdateSourceStatus(row.ID, sourceProcessed); err != nil {
					return err
				}
			}
		}
	}
	if len(used) == 0 {
		return nil
	}

	pending, err := s.db.ListSourcesByStatus(sourceFetched, maxPendingSources)
	if err != nil {
		return err
	}
	for _, row := range pending {
		path, ok := used[row.Label]
		if !ok {
			continue
		}
		status := sourceSuperseded
		if row.Path == path {
			status = sourceProcessed
		}
		if err := s.db.UpdateSourceStatus(row.ID, status); err != nil {
			return err
		}
		s.log.Debug().Str("label", row.Label).Str("file", row.Filename).Str("status", status).Msg("mailed export retired")
	}
	return nil
}

const (
	sourceFetched     = "fetched"
	sourceProcessed   = "processed"
	sourceSuperseded  = "superseded"
	maxPendingSources = 500
)

// Stored loads the registry and diagnostics of a recorded run, the latest
// one when runID is empty.
func (s *ProcessingService) Stored(runID string) (internal.RunRow, []internal.RegistryEntry, []internal.Diagnostic, error) {
	run, err := s.db.ResolveRun(runID)
	if err != nil {
		return internal.RunRow{}, nil, nil, err
	}
	entries, err := s.db.ListRegistry(run.ID)
	if err != nil {
		return run, nil, nil, err
	}
	diagnostics, err := s.db.ListDiagnostics(run.ID)
	if err != nil {
		return run, nil, nil, err
	}
	return run, entries, diagnostics, nil
}

// Completed is Stored restricted to runs that passed the consistency check,
// so an aborted run is never exported or published.
func (s *ProcessingService) Completed(runID string) (internal.RunRow, []internal.RegistryEntry, []internal.Diagnostic, error) {
	run, entries, diagnostics, err := s.Stored(runID)
	if err != nil {
		return run, entries, diagnostics, err
	}
	if run.Status != internal.RunOK {
		return run, nil, nil, fmt.Errorf("run %s is %s; see its diagnostics", run.ID, run.Status)
	}
	return run, entries, diagnostics, nil
}
