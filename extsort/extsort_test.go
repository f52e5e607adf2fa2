package extsort

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/cvs2git/item"
)

func TestSortLinesProducesLexicographicOrder(t *testing.T) {
	input := "c\nb\na\n"
	var out strings.Builder
	require.NoError(t, SortLines(strings.NewReader(input), &out, Options{RunSize: 1}))
	assert.Equal(t, "a\nb\nc\n", out.String())
}

func TestSortLinesMultipleRunsMerge(t *testing.T) {
	var sb strings.Builder
	lines := []string{"05", "01", "09", "03", "07", "02", "08", "06", "04"}
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	var out strings.Builder
	// Small run size forces several spilled runs, exercising the merge.
	require.NoError(t, SortLines(strings.NewReader(sb.String()), &out, Options{RunSize: 6}))
	assert.Equal(t, "01\n02\n03\n04\n05\n06\n07\n08\n09\n", out.String())
}

func TestRevisionSummaryLineRoundTrip(t *testing.T) {
	line := RevisionSummaryLine(item.ID(5), 1700000000, item.ID(42))
	m, ts, id, err := ParseRevisionSummaryLine(line)
	require.NoError(t, err)
	assert.Equal(t, item.ID(5), m)
	assert.Equal(t, int64(1700000000), ts)
	assert.Equal(t, item.ID(42), id)
}

func TestRevisionSummarySortsByMetadataThenTime(t *testing.T) {
	lines := []string{
		RevisionSummaryLine(2, 100, 1),
		RevisionSummaryLine(1, 300, 2),
		RevisionSummaryLine(1, 100, 3),
	}
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	var out strings.Builder
	require.NoError(t, SortLines(strings.NewReader(sb.String()), &out, Options{}))
	sorted := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, sorted, 3)
	_, _, id0, _ := ParseRevisionSummaryLine(sorted[0])
	_, _, id1, _ := ParseRevisionSummaryLine(sorted[1])
	_, _, id2, _ := ParseRevisionSummaryLine(sorted[2])
	assert.Equal(t, []item.ID{3, 2, 1}, []item.ID{id0, id1, id2})
}

func TestSymbolSummaryLineRoundTrip(t *testing.T) {
	line := SymbolSummaryLine(item.ID(9), item.ID(100))
	s, id, err := ParseSymbolSummaryLine(line)
	require.NoError(t, err)
	assert.Equal(t, item.ID(9), s)
	assert.Equal(t, item.ID(100), id)
}
