// Package extsort implements an external merge sort: split the input
// into sorted runs bounded by a configurable memory
// budget, spill each run to a temp file, then k-way merge the runs with
// a min-heap keyed by a caller-supplied projection. Used to produce the
// revision summary and symbol summary files the initial changeset
// builder (package builder) consumes.
package extsort

import (
	"bufio"
	"container/heap"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/c2h5oh/datasize"
)

// DefaultRunSize bounds how much input text each sorted run holds in
// memory before it is spilled to a temp file. Expressed with datasize so
// operators can write "64MB" in YAML config rather than a raw byte count.
const DefaultRunSize = 64 * datasize.MB

// Options configures the sort.
type Options struct {
	RunSize datasize.ByteSize // memory budget per run before spilling
	TempDir string            // directory for spilled run files
}

func (o Options) runSize() int64 {
	if o.RunSize == 0 {
		return int64(DefaultRunSize.Bytes())
	}
	return int64(o.RunSize.Bytes())
}

// SortLines reads newline-terminated lines from r, sorts them
// lexicographically (the caller is responsible for zero-padding any
// field that must sort numerically), and writes the sorted result to w.
// Memory use is bounded by opts.RunSize regardless of input size.
func SortLines(r io.Reader, w io.Writer, opts Options) error {
	runPaths, err := splitRuns(r, opts)
	if err != nil {
		return err
	}
	defer cleanupRuns(runPaths)
	return mergeRuns(runPaths, w)
}

// splitRuns reads r in RunSize-bounded chunks of whole lines, sorts each
// chunk in memory, and spills it to its own temp file. Returns the
// ordered list of spilled run paths.
func splitRuns(r io.Reader, opts Options) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var runs []string
	var batch []string
	var batchBytes int64
	limit := opts.runSize()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		sort.Strings(batch)
		f, err := os.CreateTemp(opts.TempDir, "extsort-run-*.txt")
		if err != nil {
			return fmt.Errorf("create sort run temp file: %w", err)
		}
		defer f.Close()
		bw := bufio.NewWriter(f)
		for _, line := range batch {
			if _, err := bw.WriteString(line); err != nil {
				return err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		runs = append(runs, f.Name())
		batch = batch[:0]
		batchBytes = 0
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		batch = append(batch, line)
		batchBytes += int64(len(line)) + 1
		if batchBytes >= limit {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan sort input: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return runs, nil
}

func cleanupRuns(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

// runReader tracks one spilled run's current line during the merge.
type runReader struct {
	scanner *bufio.Scanner
	file    *os.File
	current string
	ok      bool
}

func (r *runReader) advance() error {
	r.ok = r.scanner.Scan()
	if r.ok {
		r.current = r.scanner.Text()
		return nil
	}
	return r.scanner.Err()
}

// runHeap is a min-heap over currently-live run readers, ordered
// lexicographically on each reader's current line, for k-way merging
// the spilled runs back into one sorted stream.
type runHeap []*runReader

func (h runHeap) Len() int            { return len(h) }
func (h runHeap) Less(i, j int) bool  { return h[i].current < h[j].current }
func (h runHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x interface{}) { *h = append(*h, x.(*runReader)) }
func (h *runHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func mergeRuns(paths []string, w io.Writer) error {
	var readers []*runReader
	defer func() {
		for _, r := range readers {
			r.file.Close()
		}
	}()

	h := &runHeap{}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open sort run %s: %w", p, err)
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		rr := &runReader{scanner: sc, file: f}
		readers = append(readers, rr)
		if err := rr.advance(); err != nil {
			return err
		}
		if rr.ok {
			heap.Push(h, rr)
		}
	}
	heap.Init(h)

	bw := bufio.NewWriter(w)
	for h.Len() > 0 {
		rr := (*h)[0]
		if _, err := bw.WriteString(rr.current); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		if err := rr.advance(); err != nil {
			return err
		}
		if rr.ok {
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return bw.Flush()
}
