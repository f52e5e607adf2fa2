package extsort

import (
	"fmt"
	"strconv"

	"github.com/rcowham/cvs2git/item"
)

// RevisionSummaryLine formats one line of the revision summary file:
// <metadata_id_hex> <timestamp_hex8> <item_id_hex>, zero-padded so that
// lexicographic sort order equals numeric order on every field. Sorting
// this file brings items sharing a metadata id together, rising in
// time order - exactly the run builder's input.
func RevisionSummaryLine(metadataID item.ID, timestamp int64, itemID item.ID) string {
	return fmt.Sprintf("%08x %08x %08x", uint32(metadataID), uint32(timestamp), uint32(itemID))
}

// ParseRevisionSummaryLine is the inverse of RevisionSummaryLine.
func ParseRevisionSummaryLine(line string) (metadataID item.ID, timestamp int64, itemID item.ID, err error) {
	var m, ts, id uint64
	if len(line) != 26 {
		return 0, 0, 0, fmt.Errorf("malformed revision summary line: %q", line)
	}
	if m, err = strconv.ParseUint(line[0:8], 16, 32); err != nil {
		return
	}
	if ts, err = strconv.ParseUint(line[9:17], 16, 32); err != nil {
		return
	}
	if id, err = strconv.ParseUint(line[18:26], 16, 32); err != nil {
		return
	}
	return item.ID(m), int64(ts), item.ID(id), nil
}

// SymbolSummaryLine formats one line of the symbol summary file:
// <symbol_id_hex> <item_id_hex>.
func SymbolSummaryLine(symbolID item.ID, itemID item.ID) string {
	return fmt.Sprintf("%08x %08x", uint32(symbolID), uint32(itemID))
}

// ParseSymbolSummaryLine is the inverse of SymbolSummaryLine.
func ParseSymbolSummaryLine(line string) (symbolID item.ID, itemID item.ID, err error) {
	var s, id uint64
	if len(line) != 17 {
		return 0, 0, fmt.Errorf("malformed symbol summary line: %q", line)
	}
	if s, err = strconv.ParseUint(line[0:8], 16, 32); err != nil {
		return
	}
	if id, err = strconv.ParseUint(line[9:17], 16, 32); err != nil {
		return
	}
	return item.ID(s), item.ID(id), nil
}
