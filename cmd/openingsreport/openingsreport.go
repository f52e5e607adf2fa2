package main

// openingsreport program
// Formats the openings/closings file written by commitcreator.Creator
// into a per-symbol summary of which files were opened and closed
// against which branch, for inspecting a symbol's
// chosen source revisions without re-reading the raw hex lines by hand.

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/perforce/p4prometheus/version"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

type event struct {
	ordinal int
	mark    byte
	branch  string
	fileID  string
}

func main() {
	var (
		openingsFile = kingpin.Arg(
			"openings-file",
			"Openings/closings file to summarize.",
		).Required().String()
		symbolFilter = kingpin.Flag(
			"symbol",
			"Restrict the report to one symbol id (hex, e.g. 0000002a).",
		).String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Default("0").Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("openingsreport")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Summarizes a cvs2git openings/closings file per symbol\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}

	f, err := os.Open(*openingsFile)
	if err != nil {
		logger.Errorf("error opening %s: %v", *openingsFile, err)
		os.Exit(1)
	}
	defer f.Close()

	bySymbol := make(map[string][]event)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 5 {
			continue
		}
		symbolID := fields[0]
		if *symbolFilter != "" && symbolID != *symbolFilter {
			continue
		}
		ordinal, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		bySymbol[symbolID] = append(bySymbol[symbolID], event{
			ordinal: ordinal,
			mark:    fields[2][0],
			branch:  fields[3],
			fileID:  fields[4],
		})
	}
	if err := scanner.Err(); err != nil {
		logger.Errorf("error reading %s: %v", *openingsFile, err)
		os.Exit(1)
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, s := range symbols {
		events := bySymbol[s]
		sort.Slice(events, func(i, j int) bool { return events[i].ordinal < events[j].ordinal })
		opens, closes := 0, 0
		for _, e := range events {
			if e.mark == 'O' {
				opens++
			} else {
				closes++
			}
		}
		fmt.Printf("symbol %s: %d opens, %d closes\n", s, opens, closes)
		for _, e := range events {
			action := "open "
			if e.mark == 'C' {
				action = "close"
			}
			fmt.Printf("  ordinal %-6d %s branch %s file %s\n", e.ordinal, action, e.branch, e.fileID)
		}
	}
}
