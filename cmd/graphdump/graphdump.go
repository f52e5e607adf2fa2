package main

// graphdump program
// Loads a changeset snapshot and item-to-changeset assignment table
// written by one of cvs2git's passes and renders the resulting
// changeset graph as a graphviz dot document, optionally laid out to a
// PNG, for debugging a stuck Consume or eyeballing commit ordering.

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	graphviz "github.com/goccy/go-graphviz"
	"github.com/perforce/p4prometheus/version"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rcowham/cvs2git/graph"
	"github.com/rcowham/cvs2git/item"
	"github.com/rcowham/cvs2git/store"
)

func main() {
	var (
		workingDir = kingpin.Arg(
			"working-dir",
			"Working directory holding the item store and a changeset snapshot.",
		).Default(".").String()
		changesetsFile = kingpin.Flag(
			"changesets",
			"Changeset snapshot file to load (relative to working-dir). Must be one of the "+
				"gob-encoded changesets-*.dat snapshots, not changesets-sorted.txt.",
		).Default("changesets-legalized.dat").String()
		assignmentsFile = kingpin.Flag(
			"assignments",
			"Item-to-changeset assignment table to load (relative to working-dir).",
		).String()
		outputDot = kingpin.Flag(
			"output",
			"Graphviz dot file to write.",
		).Short('o').String()
		outputPNG = kingpin.Flag(
			"png",
			"PNG file to render via goccy/go-graphviz (in addition to --output).",
		).String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Default("0").Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("graphdump")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Renders a cvs2git changeset snapshot as a graphviz dot document\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	startTime := time.Now()
	logger.Infof("%v", version.Print("graphdump"))
	logger.Infof("Starting %s, working dir: %s", startTime, *workingDir)
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	csPath := filepath.Join(*workingDir, *changesetsFile)
	changesets, err := store.LoadChangesets(csPath)
	if err != nil {
		logger.Errorf("error loading changesets from %s: %v", csPath, err)
		os.Exit(1)
	}

	assignPath := *assignmentsFile
	if assignPath == "" {
		assignPath = "item-to-changeset-final.dat"
	}
	assign, err := store.LoadAssignments(filepath.Join(*workingDir, assignPath))
	if err != nil {
		logger.Errorf("error loading assignments from %s: %v", assignPath, err)
		os.Exit(1)
	}
	changesetOf := func(id item.ID) (item.ID, bool) {
		v, ok := assign[id]
		return v, ok
	}

	items, err := store.OpenItemStore(filepath.Join(*workingDir, "items.dat"))
	if err != nil {
		logger.Errorf("error opening item store: %v", err)
		os.Exit(1)
	}
	defer items.Close()

	g := graph.NewGraph(logger)
	for _, cs := range changesets {
		n, err := cs.CreateGraphNode(items, changesetOf)
		if err != nil {
			logger.Errorf("error building graph node for changeset %d: %v", cs.ID, err)
			os.Exit(1)
		}
		g.Add(n)
	}
	logger.Infof("loaded %d changesets into graph", g.Len())

	dot := g.Dot()
	if *outputDot != "" {
		if err := os.WriteFile(*outputDot, []byte(dot), 0644); err != nil {
			logger.Errorf("error writing dot file: %v", err)
			os.Exit(1)
		}
	} else if *outputPNG == "" {
		os.Stdout.WriteString(dot)
	}

	if *outputPNG != "" {
		gv := graphviz.New()
		parsed, err := graphviz.ParseBytes([]byte(dot))
		if err != nil {
			logger.Errorf("error parsing dot for PNG render: %v", err)
			os.Exit(1)
		}
		if err := gv.RenderFilename(parsed, graphviz.PNG, *outputPNG); err != nil {
			logger.Errorf("error rendering PNG: %v", err)
			os.Exit(1)
		}
	}

	logger.Infof("done in %s", time.Since(startTime))
}
