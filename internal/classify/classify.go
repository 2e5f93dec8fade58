// Package classify determines a filesystem entry's symlink-type and
// target-type, and increments the per-kind statistics (spec.md §4.C4).
package classify

import (
	"os"

	"github.com/dgilbert-tools/clonepfs/internal/stats"
)

// Kind is the simplified symlink-status file type.
type Kind int

const (
	KindDirectory Kind = iota
	KindSymlink
	KindRegular
	KindBlock
	KindChar
	KindFifo
	KindSocket
	KindOther
	KindNotFound
)

// Entry holds both the symlink-status and (symlink-following) status
// classification of a single path, per §4.C4.
type Entry struct {
	SelfKind   Kind // symlink-status type: Symlink if it's a link, else its own type
	TargetKind Kind // status type (follows symlinks); NotFound if dangling
}

// Classify lstats path (and, if it's a symlink, stats the target) to
// build an Entry.
func Classify(path string) (Entry, error) {
	lst, err := os.Lstat(path)
	if err != nil {
		return Entry{}, err
	}

	self := kindOf(lst.Mode())
	if self != KindSymlink {
		return Entry{SelfKind: self, TargetKind: self}, nil
	}

	st, err := os.Stat(path)
	if err != nil {
		return Entry{SelfKind: KindSymlink, TargetKind: KindNotFound}, nil
	}
	return Entry{SelfKind: KindSymlink, TargetKind: kindOf(st.Mode())}, nil
}

func kindOf(mode os.FileMode) Kind {
	switch {
	case mode&os.ModeSymlink != 0:
		return KindSymlink
	case mode.IsDir():
		return KindDirectory
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice != 0:
		return KindChar
	case mode&os.ModeDevice != 0:
		return KindBlock
	case mode&os.ModeNamedPipe != 0:
		return KindFifo
	case mode&os.ModeSocket != 0:
		return KindSocket
	case mode.IsRegular():
		return KindRegular
	default:
		return KindOther
	}
}

// UpdateStats increments the statistics counters for a single classified
// entry, matching update_stats() in the original source field-for-field.
func UpdateStats(e Entry, hidden bool, c *stats.Counters) {
	if hidden {
		c.NumHidden++
	}

	if e.SelfKind == KindSymlink {
		switch e.TargetKind {
		case KindDirectory:
			c.NumSym2Dir++
		case KindRegular:
			c.NumSym2Reg++
		case KindBlock:
			c.NumSym2Block++
		case KindChar:
			c.NumSym2Char++
		case KindNotFound:
			c.NumSymHang++
		default:
			c.NumSymOther++
		}
		return
	}

	switch e.TargetKind {
	case KindDirectory:
		c.NumDir++
	case KindSymlink:
		c.NumSymHang++
	case KindRegular:
		c.NumRegular++
	case KindBlock:
		c.NumBlock++
	case KindChar:
		c.NumChar++
	case KindFifo:
		c.NumFifo++
	case KindSocket:
		c.NumSocket++
	default:
		c.NumOther++
	}
}
