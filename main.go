// cvs2git drives the changeset engine end to end: it reads the item
// store, file database and symbol database left behind by an upstream
// (out-of-scope) legacy-format parser, runs every pass of the pipeline
// in order, and writes a journal-shaped commit stream plus an
// openings/closings file for a downstream symbol-materialization tool.
package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof" // profiling only, gated behind --profile
	"os"
	"runtime"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/perforce/p4prometheus/version"

	"github.com/rcowham/cvs2git/builder"
	"github.com/rcowham/cvs2git/changeset"
	"github.com/rcowham/cvs2git/commitcreator"
	"github.com/rcowham/cvs2git/config"
	"github.com/rcowham/cvs2git/cyclebreak"
	"github.com/rcowham/cvs2git/extsort"
	"github.com/rcowham/cvs2git/graph"
	"github.com/rcowham/cvs2git/item"
	"github.com/rcowham/cvs2git/journal"
	"github.com/rcowham/cvs2git/metadb"
	"github.com/rcowham/cvs2git/pass"
	"github.com/rcowham/cvs2git/store"
	"github.com/rcowham/cvs2git/toposort"
	"github.com/rcowham/cvs2git/worklock"
)

// stores bundles the working directory's input/output artifacts that
// outlive any single pass.
type stores struct {
	items *store.ItemStore
	meta  *store.MetadataStore
	files *metadb.FileDatabase
	syms  *metadb.SymbolDatabase
	keys  *item.KeyGenerator
}

func openStores(ctx *pass.Context) (*stores, error) {
	items, err := store.OpenItemStore(ctx.ArtifactPath("items.dat"))
	if err != nil {
		return nil, err
	}
	meta, err := store.OpenMetadataStore(ctx.ArtifactPath("metadata.dat"))
	if err != nil {
		return nil, err
	}
	files, err := metadb.OpenFileDatabase(ctx.ArtifactPath("files.db"))
	if err != nil {
		return nil, err
	}
	syms, err := metadb.OpenSymbolDatabase(ctx.ArtifactPath("symbols.db"))
	if err != nil {
		return nil, err
	}
	maxID, ok, err := items.MaxID()
	if err != nil {
		return nil, err
	}
	keys := item.NewKeyGenerator()
	if ok {
		keys = item.NewKeyGeneratorFrom(maxID)
	}
	return &stores{items: items, meta: meta, files: files, syms: syms, keys: keys}, nil
}

func (s *stores) Close() {
	s.items.Close()
	s.meta.Close()
	s.files.Close()
	s.syms.Close()
}

// lookup adapts the open stores to commitcreator.ItemLookup.
type lookup struct {
	items *store.ItemStore
	meta  *store.MetadataStore
}

func (l lookup) Revision(id item.ID) (item.Revision, bool) { return l.items.Revision(id) }
func (l lookup) Symbol(id item.ID) (item.SymbolItem, bool) { return l.items.Symbol(id) }
func (l lookup) Metadata(id item.ID) (item.Metadata, bool) { return l.meta.Metadata(id) }

func changesetOfFunc(assign map[item.ID]item.ID) changeset.ChangesetOf {
	return func(id item.ID) (item.ID, bool) {
		v, ok := assign[id]
		return v, ok
	}
}

func mergeInto(dst map[item.ID]item.ID, src map[item.ID]item.ID) {
	for k, v := range src {
		dst[k] = v
	}
}

func noCycleExpected(stage string) graph.CycleBreakFunc {
	return func(cycle []item.ID) error {
		return fmt.Errorf("%s: unexpected cycle at %v; the preceding cycle breaker should have eliminated this", stage, cycle)
	}
}

// pipelineState carries data between passes that isn't worth round-
// tripping through disk on every single invocation (the disk artifacts
// declared in each pass's Produces are still written, satisfying the
// spec's "independently replayable and debuggable" pass boundaries).
type pipelineState struct {
	st *stores

	revisionChangesets map[item.ID]*changeset.Changeset
	symbolChangesets   map[item.ID]*changeset.Changeset
	assign             map[item.ID]item.ID

	orderedRevisions []*changeset.Changeset
	ordinalOf        map[item.ID]int

	legalizedSymbols []*changeset.Changeset

	finalOrder []toposort.TimestampedResult
	byID       map[item.ID]*changeset.Changeset
}

func buildPasses(state *pipelineState, cfg *config.Config, dryRun bool) []pass.Pass {
	return []pass.Pass{
		{
			Name:     "summarize-items",
			Requires: []string{"items.dat", "items.dat.idx"},
			Produces: []string{"revs-summary.txt", "symbols-summary.txt"},
			Run:      state.summarizeItems,
		},
		{
			Name:     "sort-summaries",
			Requires: []string{"revs-summary.txt", "symbols-summary.txt"},
			Produces: []string{"revs-summary-s.txt", "symbols-summary-s.txt"},
			Run:      state.sortSummaries(cfg),
		},
		{
			Name:     "build-initial-changesets",
			Requires: []string{"revs-summary-s.txt", "symbols-summary-s.txt"},
			Produces: []string{"changesets-initial.dat", "item-to-changeset-initial.dat"},
			Run:      state.buildInitialChangesets(cfg),
		},
		{
			Name:     "break-revision-cycles",
			Requires: []string{"changesets-initial.dat"},
			Produces: []string{"changesets-acyclic.dat", "item-to-changeset-acyclic.dat"},
			Run:      state.breakRevisionCycles,
		},
		{
			Name:     "order-revisions",
			Requires: []string{"changesets-acyclic.dat"},
			Produces: []string{"changesets-ordered.dat"},
			Run:      state.orderRevisions,
		},
		{
			Name:     "legalize-symbols",
			Requires: []string{"changesets-ordered.dat"},
			Produces: []string{"changesets-legalized.dat", "item-to-changeset-final.dat"},
			Run:      state.legalizeSymbols(cfg),
		},
		{
			Name:     "final-sort",
			Requires: []string{"changesets-legalized.dat"},
			Produces: []string{"changesets-sorted.txt"},
			Run:      state.finalSort,
		},
		{
			Name:     "emit-commits",
			Requires: []string{"changesets-sorted.txt"},
			Produces: []string{"jnl.0", "openings.txt"},
			Run:      state.emitCommits(cfg, dryRun),
		},
	}
}

func (s *pipelineState) summarizeItems(ctx *pass.Context, stats *pass.Stats) error {
	revsFile, err := os.Create(ctx.ArtifactPath("revs-summary.txt"))
	if err != nil {
		return err
	}
	defer revsFile.Close()
	symsFile, err := os.Create(ctx.ArtifactPath("symbols-summary.txt"))
	if err != nil {
		return err
	}
	defer symsFile.Close()

	return s.st.items.Iter(func(id item.ID, rec item.Record) error {
		stats.Add("items", 1)
		switch rec.Kind {
		case item.KindRevision:
			line := extsort.RevisionSummaryLine(rec.Revision.MetadataID, rec.Revision.Timestamp, id)
			_, err := fmt.Fprintln(revsFile, line)
			return err
		case item.KindSymbol:
			line := extsort.SymbolSummaryLine(rec.Symbol.Symbol.ID, id)
			_, err := fmt.Fprintln(symsFile, line)
			return err
		}
		return nil
	})
}

func (s *pipelineState) sortSummaries(cfg *config.Config) pass.Func {
	return func(ctx *pass.Context, stats *pass.Stats) error {
		opts := extsort.Options{RunSize: cfg.SortRunSize, TempDir: ctx.WorkingDir}
		if err := sortFile(ctx, "revs-summary.txt", "revs-summary-s.txt", opts); err != nil {
			return err
		}
		return sortFile(ctx, "symbols-summary.txt", "symbols-summary-s.txt", opts)
	}
}

func sortFile(ctx *pass.Context, in, out string, opts extsort.Options) error {
	r, err := os.Open(ctx.ArtifactPath(in))
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := os.Create(ctx.ArtifactPath(out))
	if err != nil {
		return err
	}
	defer w.Close()
	return extsort.SortLines(r, w, opts)
}

func (s *pipelineState) buildInitialChangesets(cfg *config.Config) pass.Func {
	return func(ctx *pass.Context, stats *pass.Stats) error {
		revsSorted, err := os.Open(ctx.ArtifactPath("revs-summary-s.txt"))
		if err != nil {
			return err
		}
		defer revsSorted.Close()
		revisionCS, revAssign, err := builder.BuildRevisionChangesets(revsSorted, s.st.keys, cfg.CommitWindow)
		if err != nil {
			return err
		}

		s.assign = make(map[item.ID]item.ID)
		mergeInto(s.assign, revAssign)

		s.revisionChangesets = make(map[item.ID]*changeset.Changeset)
		var splitOut []*changeset.Changeset
		for _, cs := range revisionCS {
			split, splitAssign, err := builder.SplitIntraDependencies(cs, s.st.items, s.st.keys)
			if err != nil {
				return err
			}
			if len(split) > 1 {
				stats.Add("intra_dependency_splits", 1)
			}
			mergeInto(s.assign, splitAssign)
			splitOut = append(splitOut, split...)
		}
		for _, cs := range splitOut {
			s.revisionChangesets[cs.ID] = cs
		}
		stats.Add("revision_changesets", int64(len(s.revisionChangesets)))

		if !cfg.TrunkOnly {
			symsSorted, err := os.Open(ctx.ArtifactPath("symbols-summary-s.txt"))
			if err != nil {
				return err
			}
			defer symsSorted.Close()
			symbolCS, symAssign, err := builder.BuildSymbolChangesets(symsSorted, s.st.keys, s.st.syms.Get)
			if err != nil {
				return err
			}
			mergeInto(s.assign, symAssign)
			s.symbolChangesets = make(map[item.ID]*changeset.Changeset, len(symbolCS))
			for _, cs := range symbolCS {
				s.symbolChangesets[cs.ID] = cs
			}
			stats.Add("symbol_changesets", int64(len(s.symbolChangesets)))
		} else {
			s.symbolChangesets = make(map[item.ID]*changeset.Changeset)
		}

		if err := store.SaveChangesets(ctx.ArtifactPath("changesets-initial.dat"), allChangesets(s.revisionChangesets)); err != nil {
			return err
		}
		return store.SaveAssignments(ctx.ArtifactPath("item-to-changeset-initial.dat"), s.assign)
	}
}

func allChangesets(m map[item.ID]*changeset.Changeset) []*changeset.Changeset {
	out := make([]*changeset.Changeset, 0, len(m))
	for _, cs := range m {
		out = append(out, cs)
	}
	return out
}

func (s *pipelineState) breakRevisionCycles(ctx *pass.Context, stats *pass.Stats) error {
	g := graph.NewGraph(ctx.Logger)
	changesetOf := changesetOfFunc(s.assign)
	for _, cs := range s.revisionChangesets {
		n, err := cs.CreateGraphNode(s.st.items, changesetOf)
		if err != nil {
			return err
		}
		g.Add(n)
	}

	breaker := &cyclebreak.RevisionCycleBreaker{
		Graph:      g,
		Changesets: s.revisionChangesets,
		Assign:     cyclebreak.Assignments(s.assign),
		Items:      s.st.items,
		Keys:       s.st.keys,
	}
	breakFn := func(cycle []item.ID) error {
		stats.Add("cycles_broken", 1)
		return breaker.Break(cycle)
	}
	if err := g.Consume(func(item.ID, *graph.Node) error { return nil }, breakFn); err != nil {
		return err
	}

	if err := store.SaveChangesets(ctx.ArtifactPath("changesets-acyclic.dat"), allChangesets(s.revisionChangesets)); err != nil {
		return err
	}
	return store.SaveAssignments(ctx.ArtifactPath("item-to-changeset-acyclic.dat"), s.assign)
}

func (s *pipelineState) orderRevisions(ctx *pass.Context, stats *pass.Stats) error {
	g := graph.NewGraph(ctx.Logger)
	changesetOf := changesetOfFunc(s.assign)
	for _, cs := range s.revisionChangesets {
		n, err := cs.CreateGraphNode(s.st.items, changesetOf)
		if err != nil {
			return err
		}
		g.Add(n)
	}

	ordered, err := toposort.RevisionSort(g, s.revisionChangesets)
	if err != nil {
		return err
	}
	s.orderedRevisions = ordered
	s.ordinalOf = make(map[item.ID]int, len(ordered))
	for _, cs := range ordered {
		s.ordinalOf[cs.ID] = cs.Ordinal
		s.reassign(cs)
	}
	stats.Add("ordered_revisions", int64(len(ordered)))
	return store.SaveChangesets(ctx.ArtifactPath("changesets-ordered.dat"), ordered)
}

// reassign keeps the shared assignment table pointed at the (same-id)
// ordered changeset for every item it carries - ToOrdered reuses the
// revision changeset's id, so this is a no-op in practice; it documents
// the invariant rather than relying on it silently.
func (s *pipelineState) reassign(cs *changeset.Changeset) {
	it := cs.Items.Iterator()
	for it.HasNext() {
		id := item.ID(it.Next())
		s.assign[id] = cs.ID
	}
}

func (s *pipelineState) legalizeSymbols(cfg *config.Config) pass.Func {
	return func(ctx *pass.Context, stats *pass.Stats) error {
		if cfg.TrunkOnly || len(s.symbolChangesets) == 0 {
			s.legalizedSymbols = nil
			if err := store.SaveChangesets(ctx.ArtifactPath("changesets-legalized.dat"), nil); err != nil {
				return err
			}
			return store.SaveAssignments(ctx.ArtifactPath("item-to-changeset-final.dat"), s.assign)
		}
		ordinalOf := func(csID item.ID) (int, bool) {
			o, ok := s.ordinalOf[csID]
			return o, ok
		}
		placer := &cyclebreak.SymbolPlacer{
			Items:   s.st.items,
			Assign:  cyclebreak.Assignments(s.assign),
			Ordinal: ordinalOf,
			Keys:    s.st.keys,
		}
		for _, cs := range s.symbolChangesets {
			legalized, err := placer.Legalize(cs)
			if err != nil {
				return err
			}
			if len(legalized) > 1 {
				stats.Add("symbol_placement_splits", 1)
			}
			s.legalizedSymbols = append(s.legalizedSymbols, legalized...)
		}
		stats.Add("legalized_symbol_changesets", int64(len(s.legalizedSymbols)))
		if err := store.SaveChangesets(ctx.ArtifactPath("changesets-legalized.dat"), s.legalizedSymbols); err != nil {
			return err
		}
		// legalize-symbols is the last pass that mutates s.assign (symbol
		// peels mint fresh changeset ids), so this is the final partition
		// - persist it so downstream tools (cmd/graphdump) and a later
		// resumed run see the real item-to-changeset table, not the
		// pre-legalization snapshot from break-revision-cycles.
		return store.SaveAssignments(ctx.ArtifactPath("item-to-changeset-final.dat"), s.assign)
	}
}

func (s *pipelineState) finalSort(ctx *pass.Context, stats *pass.Stats) error {
	g := graph.NewGraph(ctx.Logger)
	changesetOf := changesetOfFunc(s.assign)

	s.byID = make(map[item.ID]*changeset.Changeset, len(s.orderedRevisions)+len(s.legalizedSymbols))
	for _, cs := range s.orderedRevisions {
		n, err := cs.CreateGraphNode(s.st.items, changesetOf)
		if err != nil {
			return err
		}
		g.Add(n)
		s.byID[cs.ID] = cs
	}
	for _, cs := range s.legalizedSymbols {
		n, err := cs.CreateGraphNode(s.st.items, changesetOf)
		if err != nil {
			return err
		}
		g.Add(n)
		s.byID[cs.ID] = cs
	}

	order, err := toposort.FinalSort(g, noCycleExpected("final-sort"))
	if err != nil {
		return err
	}
	s.finalOrder = order

	f, err := os.Create(ctx.ArtifactPath("changesets-sorted.txt"))
	if err != nil {
		return err
	}
	defer f.Close()
	for _, r := range order {
		if _, err := fmt.Fprintf(f, "%08x %08x\n", uint32(r.ID), uint32(r.Timestamp)); err != nil {
			return err
		}
	}
	stats.Add("final_changesets", int64(len(order)))
	return nil
}

func (s *pipelineState) emitCommits(cfg *config.Config, dryRun bool) pass.Func {
	return func(ctx *pass.Context, stats *pass.Stats) error {
		f, err := os.Create(ctx.ArtifactPath("jnl.0"))
		if err != nil {
			return err
		}
		defer f.Close()
		openingsFile, err := os.Create(ctx.ArtifactPath("openings.txt"))
		if err != nil {
			return err
		}
		defer openingsFile.Close()

		j := journal.NewJournal(f)
		if err := j.WriteHeader(cfg.ImportDepot); err != nil {
			return err
		}
		if dryRun {
			ctx.Logger.Info("dry run: skipping commit emission, stats only")
			return nil
		}

		creator := &commitcreator.Creator{
			Items:    lookup{items: s.st.items, meta: s.st.meta},
			Journal:  j,
			Openings: commitcreator.NewOpeningsWriter(openingsFile),
		}
		for _, r := range s.finalOrder {
			cs, ok := s.byID[r.ID]
			if !ok {
				return fmt.Errorf("emit-commits: changeset %d in final order not found", r.ID)
			}
			if err := creator.Emit(cs, r.Timestamp); err != nil {
				return err
			}
			stats.Add("commits_emitted", 1)
		}
		return nil
	}
}

func main() {
	var (
		workingDir = kingpin.Arg(
			"working-dir",
			"Working directory holding the pre-built item store, file database and symbol database.",
		).Default(".").String()
		configFile = kingpin.Flag(
			"config",
			"Config file for cvs2git.",
		).Default("cvs2git.yaml").Short('c').String()
		commitWindow = kingpin.Flag(
			"commit.window",
			"Commit grouping window, e.g. 5m (overrides config).",
		).String()
		tieTagging = kingpin.Flag(
			"tie.tagging",
			"Recognized for config-file compatibility; not yet consumed by changeset grouping (overrides config).",
		).Bool()
		trunkOnly = kingpin.Flag(
			"trunk.only",
			"Skip all symbol changesets entirely (overrides config).",
		).Bool()
		sortRunSize = kingpin.Flag(
			"sort.run.size",
			"External merge sort per-run memory budget, e.g. 64MB (overrides config).",
		).String()
		dryRun = kingpin.Flag(
			"dry-run",
			"Run every pass but skip commit emission, printing per-pass stats only.",
		).Bool()
		maxPasses = kingpin.Flag(
			"max.passes",
			"Stop after the Nth pass (default 0 means run to completion), leaving intermediate artifacts on disk.",
		).Default("0").Int()
		doProfile = kingpin.Flag(
			"profile",
			"Turn on memory profiling and serve pprof on --profile.addr.",
		).Bool()
		profileAddr = kingpin.Flag(
			"profile.addr",
			"Address to serve pprof on when --profile is set.",
		).Default("localhost:6060").String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Default("0").Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("cvs2git")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Runs the cvs2git changeset engine over a pre-built item store, emitting a journal-shaped commit stream\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}

	cfg, err := config.LoadConfigFile(*configFile)
	if err != nil {
		logger.Errorf("error loading config file: %v", err)
		os.Exit(1)
	}
	if *commitWindow != "" {
		d, err := time.ParseDuration(*commitWindow)
		if err != nil {
			logger.Errorf("invalid --commit.window: %v", err)
			os.Exit(1)
		}
		cfg.CommitWindow = d
	}
	if *tieTagging {
		cfg.TieTagging = true
	}
	if *trunkOnly {
		cfg.TrunkOnly = true
	}
	if *sortRunSize != "" {
		var sz datasize.ByteSize
		if err := sz.UnmarshalText([]byte(*sortRunSize)); err != nil {
			logger.Errorf("invalid --sort.run.size: %v", err)
			os.Exit(1)
		}
		cfg.SortRunSize = sz
	}
	cfg.WorkingDir = *workingDir

	startTime := time.Now()
	logger.Infof("%v", version.Print("cvs2git"))
	logger.Infof("Starting %s, working dir: %s", startTime, cfg.WorkingDir)
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	if *doProfile {
		defer profile.Start(profile.MemProfile, profile.ProfilePath(cfg.WorkingDir)).Stop()
		go func() {
			logger.Infof("serving pprof on %s", *profileAddr)
			logger.Warn(http.ListenAndServe(*profileAddr, nil))
		}()
	}

	lock, err := worklock.Acquire(cfg.WorkingDir)
	if err != nil {
		logger.Errorf("error acquiring working directory lock: %v", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx := &pass.Context{Config: cfg, Logger: logger, WorkingDir: cfg.WorkingDir}
	st, err := openStores(ctx)
	if err != nil {
		logger.Errorf("error opening stores: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	state := &pipelineState{st: st}
	passes := buildPasses(state, cfg, *dryRun)
	if *maxPasses > 0 && *maxPasses < len(passes) {
		passes = passes[:*maxPasses]
	}

	manager := pass.NewManager(ctx)
	if err := manager.Run(passes); err != nil {
		logger.Errorf("pipeline failed: %v", err)
		os.Exit(1)
	}

	snapshot := manager.Stats().Snapshot()
	logger.Infof("done in %s", time.Since(startTime))
	for name, v := range snapshot {
		logger.Infof("  %-28s %d", name, v)
	}
}
