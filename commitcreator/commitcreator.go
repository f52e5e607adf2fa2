// Package commitcreator implements the commit creator: the final stage
// that turns the ordered, timestamped changeset
// stream into target commits on the journal output back-end (package
// journal), while feeding the openings/closings logger that a later,
// external pass uses to choose source revisions for symbol
// materialization.
package commitcreator

import (
	"fmt"
	"io"
	"sort"

	"github.com/rcowham/cvs2git/changeset"
	"github.com/rcowham/cvs2git/item"
	"github.com/rcowham/cvs2git/journal"
)

// ItemLookup is everything the commit creator needs to resolve an
// item id to its revision/symbol record and author metadata.
type ItemLookup interface {
	Revision(id item.ID) (item.Revision, bool)
	Symbol(id item.ID) (item.SymbolItem, bool)
	Metadata(id item.ID) (item.Metadata, bool)
}

// Creator drives commit emission for one timestamped changeset at a
// time, in the commit order produced by package toposort.
type Creator struct {
	Items    ItemLookup
	Journal  *journal.Journal
	Openings *OpeningsWriter
}

// Emit dispatches on cs.Kind and writes the commit(s) it represents.
func (c *Creator) Emit(cs *changeset.Changeset, timestamp int64) error {
	switch cs.Kind {
	case changeset.KindOrdered:
		return c.emitRevision(cs, timestamp)
	case changeset.KindBranch:
		return c.emitSymbol(cs, timestamp, false)
	case changeset.KindTag:
		return c.emitSymbol(cs, timestamp, true)
	default:
		return fmt.Errorf("commitcreator: changeset %d has kind %s, expected ordered/branch/tag", cs.ID, cs.Kind)
	}
}

type revEntry struct {
	id  item.ID
	rev item.Revision
}

// emitRevision handles the ordered-changeset case:
// partition into changes and deletes, drop double-dead deletes, sort by
// path, emit one primary commit and (when any item is flagged) a
// trailing post-commit onto the default line of development.
func (c *Creator) emitRevision(cs *changeset.Changeset, timestamp int64) error {
	entries, err := c.resolveRevisions(cs)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("commitcreator: ordered changeset %d has no items", cs.ID)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rev.Path < entries[j].rev.Path })

	meta, ok := c.Items.Metadata(entries[0].rev.MetadataID)
	if !ok {
		return fmt.Errorf("commitcreator: changeset %d metadata %d not found", cs.ID, entries[0].rev.MetadataID)
	}

	changeNo := int(cs.ID)
	if err := c.Journal.WriteChange(changeNo, meta.Author, meta.LogMessage, timestamp); err != nil {
		return err
	}

	var postCommit []revEntry
	for _, e := range entries {
		if e.rev.DefaultBranchCommit {
			postCommit = append(postCommit, e)
		}
		if e.rev.Op == item.OpDelete && c.isDoubleDead(e.rev) {
			continue // commit still exists (log message above); no file operation emitted
		}
		if err := c.Journal.WriteRev(e.rev.Path, e.rev.RevNum, mapOp(e.rev.Op), journal.CText, changeNo, timestamp); err != nil {
			return err
		}
	}

	for _, e := range entries {
		if err := c.recordSymbolAttachments(cs, e.rev); err != nil {
			return err
		}
	}

	if len(postCommit) > 0 {
		if err := c.Journal.WriteChange(changeNo, meta.Author, "post-commit: mirror onto default line of development", timestamp); err != nil {
			return err
		}
		for _, e := range postCommit {
			if err := c.Journal.WriteRev(e.rev.Path, e.rev.RevNum, journal.Integrate, journal.CText, changeNo, timestamp); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Creator) resolveRevisions(cs *changeset.Changeset) ([]revEntry, error) {
	var out []revEntry
	it := cs.Items.Iterator()
	for it.HasNext() {
		id := item.ID(it.Next())
		rev, ok := c.Items.Revision(id)
		if !ok {
			return nil, fmt.Errorf("commitcreator: changeset %d item %d not found", cs.ID, id)
		}
		out = append(out, revEntry{id: id, rev: rev})
	}
	return out, nil
}

// isDoubleDead reports whether rev is a delete whose immediate
// file-level predecessor was also a delete.
func (c *Creator) isDoubleDead(rev item.Revision) bool {
	for _, predID := range rev.Pred {
		pred, ok := c.Items.Revision(predID)
		if !ok {
			continue
		}
		if pred.Path == rev.Path {
			return pred.Op == item.OpDelete
		}
	}
	return false
}

func (c *Creator) recordSymbolAttachments(cs *changeset.Changeset, rev item.Revision) error {
	for _, tagID := range rev.TagIDs {
		if err := c.Openings.Open(tagID, cs.Ordinal, item.NoID, false, rev.FileID); err != nil {
			return err
		}
	}
	for _, branchID := range rev.BranchIDs {
		if err := c.Openings.Open(branchID, cs.Ordinal, branchID, true, rev.FileID); err != nil {
			return err
		}
	}
	for _, symID := range rev.Closes {
		if err := c.Openings.Close(symID, cs.Ordinal, item.NoID, false, rev.FileID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Creator) emitSymbol(cs *changeset.Changeset, timestamp int64, isTag bool) error {
	return c.Journal.WriteSymbol(cs.Symbol.Name, isTag, int(cs.ID), timestamp)
}

func mapOp(op item.Op) journal.FileAction {
	switch op {
	case item.OpAdd:
		return journal.Add
	case item.OpDelete:
		return journal.Delete
	default:
		return journal.Edit
	}
}

// OpeningsWriter writes the openings/closings file consumed by the
// external symbol-materialization pass: one line per attach/close,
// `<symbol_id_hex> <ordinal_decimal> <O|C>
// <branch_id_hex_or_'*'> <file_id_hex>`.
type OpeningsWriter struct {
	w io.Writer
}

// NewOpeningsWriter wraps w as an openings/closings writer.
func NewOpeningsWriter(w io.Writer) *OpeningsWriter {
	return &OpeningsWriter{w: w}
}

func (o *OpeningsWriter) Open(symbolID item.ID, ordinal int, branchID item.ID, hasBranch bool, fileID item.ID) error {
	return o.write(symbolID, ordinal, 'O', branchID, hasBranch, fileID)
}

func (o *OpeningsWriter) Close(symbolID item.ID, ordinal int, branchID item.ID, hasBranch bool, fileID item.ID) error {
	return o.write(symbolID, ordinal, 'C', branchID, hasBranch, fileID)
}

func (o *OpeningsWriter) write(symbolID item.ID, ordinal int, mark byte, branchID item.ID, hasBranch bool, fileID item.ID) error {
	branch := "*"
	if hasBranch {
		branch = fmt.Sprintf("%08x", uint32(branchID))
	}
	_, err := fmt.Fprintf(o.w, "%08x %d %c %s %08x\n", uint32(symbolID), ordinal, mark, branch, uint32(fileID))
	return err
}
