// Package journal is the concrete output back-end the commit creator
// (package commitcreator) writes to: a line-oriented commit log, in the
// style of a Perforce journal writer, generalized to target any
// line-oriented VCS trace rather than one specific server's on-disk
// format. The exact output format is not part of the engine's
// contract, only the roles its records play.
package journal

import (
	"fmt"
	"io"
)

// FileType flags how a revision's content should be stored/presented.
type FileType int

const (
	UText   FileType = iota // plain text
	CText                   // compressed text
	UBinary                 // uncompressed binary
	Binary                  // compressed binary
)

func (f FileType) String() string {
	switch f {
	case UText:
		return "text"
	case CText:
		return "ctext"
	case UBinary:
		return "ubinary"
	default:
		return "binary"
	}
}

// FileAction is the operation a revision record performs on one path.
type FileAction int

const (
	Add FileAction = iota
	Edit
	Delete
	Branch
	Integrate
)

func (a FileAction) String() string {
	switch a {
	case Add:
		return "add"
	case Edit:
		return "edit"
	case Delete:
		return "delete"
	case Branch:
		return "branch"
	default:
		return "integrate"
	}
}

// Journal writes the commit trace: one header, then a WriteChange per
// commit and one WriteRev per file touched by that commit (or
// WriteSymbol for a branch/tag commit).
type Journal struct {
	w io.Writer
}

// NewJournal wraps w as a journal writer.
func NewJournal(w io.Writer) *Journal {
	return &Journal{w: w}
}

// WriteHeader emits the run's single header line, naming the import
// project.
func (j *Journal) WriteHeader(project string) error {
	_, err := fmt.Fprintf(j.w, "project\t%s\n", project)
	return err
}

// WriteChange emits one commit's metadata line.
func (j *Journal) WriteChange(changeNo int, author, message string, timestamp int64) error {
	_, err := fmt.Fprintf(j.w, "change\t%d\t%s\t%d\t%s\n", changeNo, author, timestamp, escapeMessage(message))
	return err
}

// WriteRev emits one file revision record belonging to changeNo.
func (j *Journal) WriteRev(path string, rev string, action FileAction, ftype FileType, changeNo int, timestamp int64) error {
	_, err := fmt.Fprintf(j.w, "rev\t%s\t%s\t%s\t%s\t%d\t%d\n", path, rev, action, ftype, changeNo, timestamp)
	return err
}

// WriteSymbol emits a branch/tag creation record.
func (j *Journal) WriteSymbol(name string, isTag bool, changeNo int, timestamp int64) error {
	kind := "branch"
	if isTag {
		kind = "tag"
	}
	_, err := fmt.Fprintf(j.w, "symbol\t%s\t%s\t%d\t%d\n", kind, name, changeNo, timestamp)
	return err
}

func escapeMessage(msg string) string {
	out := make([]byte, 0, len(msg))
	for i := 0; i < len(msg); i++ {
		if msg[i] == '\n' {
			out = append(out, '\\', 'n')
			continue
		}
		out = append(out, msg[i])
	}
	return string(out)
}
