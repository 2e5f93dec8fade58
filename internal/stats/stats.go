// Package stats holds the single mutable statistics record threaded
// through scanning, pruning, and unrolling. The process is
// single-threaded end to end (spec §5), so counters are plain ints —
// no atomics, no locking.
package stats

import (
	"fmt"
	"io"

	"github.com/dgilbert-tools/clonepfs/internal/reader"
	"github.com/dgilbert-tools/clonepfs/internal/writer"
)

// Counters mirrors the source's struct stats_t field for field, plus the
// handful of counters this spec's cache/prune/deref passes add.
type Counters struct {
	NumDir        int
	NumSym2Dir    int
	NumSym2Reg    int
	NumSym2Block  int
	NumSym2Char   int
	NumSymOther   int
	NumSymHang    int
	NumHidden     int
	NumHiddenSkip int
	NumRegular    int
	NumBlock      int
	NumChar       int
	NumFifo       int
	NumSocket     int
	NumOther      int
	NumExcluded   int
	NumExcludedFn int

	NumDirDSuccess    int
	NumDirDExists     int
	NumDirDFail       int
	NumSymDSuccess    int
	NumSymDDangling   int
	NumMknodDSuccess  int
	NumMknodDFail     int
	NumError          int

	// Regular-file transfer (source side).
	NumRegTries              int
	NumRegSuccess            int
	NumRegSAtRegLen          int
	NumRegSEacces            int
	NumRegSEperm             int
	NumRegSEio               int
	NumRegSEnodata           int
	NumRegSEnoentEnodevEnxio int
	NumRegSEagain            int
	NumRegSTimeout           int
	NumRegSEOther            int

	// Regular-file transfer (destination side).
	NumRegDEacces int
	NumRegDEperm  int
	NumRegDEio    int
	NumRegDEOther int

	// Cache/prune/deref additions (spec.md §4.C7-C9).
	NumDerefDirs      int
	NumDerefRegulars  int
	NumDerefFallback  int // deref target unresolvable, outside source, or neither directory nor regular file; fell back to plain symlink
	NumPruneExact     int
	NumPruneAllBelow  int
	NumPruneUpChain   int
	NumSymOutside     int // prune-pass symlink whose target lies outside source

	MaxDepth int
}

// AtReglen reports the number of regular files that hit the reglen cap.
func (c *Counters) AtReglen() int { return c.NumRegSAtRegLen }

// RecordRead folds a source-side read result into the source-side error
// taxonomy of spec.md §7, shared by the direct scanner, the cache
// scanner, and the unroller's lazy re-read path.
func (c *Counters) RecordRead(res reader.Result) {
	c.NumRegTries++
	switch res.Class {
	case reader.ErrAccessDenied:
		c.NumRegSEacces++
	case reader.ErrNotPermitted:
		c.NumRegSEperm++
	case reader.ErrIO:
		c.NumRegSEio++
	case reader.ErrNoData:
		c.NumRegSEnodata++
	case reader.ErrMissingDevice:
		c.NumRegSEnoentEnodevEnxio++
	case reader.ErrTimeout:
		c.NumRegSTimeout++
	case reader.ErrOther:
		c.NumRegSEOther++
	}
	if res.AtRegLen {
		c.NumRegSAtRegLen++
	}
}

// RecordWrite folds a destination-side write result into the
// destination-side error taxonomy of spec.md §7.
func (c *Counters) RecordWrite(class writer.ErrClass) {
	switch class {
	case writer.ErrAccessDenied:
		c.NumRegDEacces++
	case writer.ErrNotPermitted:
		c.NumRegDEperm++
	case writer.ErrIO:
		c.NumRegDEio++
	case writer.ErrOther:
		c.NumRegDEOther++
	}
}

// RecordDir folds a directory-creation result into the destination-side
// directory counters.
func (c *Counters) RecordDir(status writer.DirStatus) {
	switch status {
	case writer.DirCreated:
		c.NumDirDSuccess++
	case writer.DirAlreadyExists:
		c.NumDirDExists++
	case writer.DirFail:
		c.NumDirDFail++
		c.NumError++
	}
}

// Fprint writes a plain-text statistics report, grounded on the
// original's show_stats(). Formatting detail is an external-collaborator
// concern (spec §1); this exists so --statistics has somewhere to go.
func (c *Counters) Fprint(w io.Writer, extra bool) {
	fmt.Fprintf(w, "Number of regular files: %d\n", c.NumRegular)
	fmt.Fprintf(w, "Number of directories: %d\n", c.NumDir)
	fmt.Fprintf(w, "Number of symlinks to directories: %d\n", c.NumSym2Dir)
	fmt.Fprintf(w, "Number of symlinks to regular files: %d\n", c.NumSym2Reg)
	fmt.Fprintf(w, "Number of symlinks to block device nodes: %d\n", c.NumSym2Block)
	fmt.Fprintf(w, "Number of symlinks to char device nodes: %d\n", c.NumSym2Char)
	fmt.Fprintf(w, "Number of symlinks to others: %d\n", c.NumSymOther)
	fmt.Fprintf(w, "Number of hanging symlinks: %d\n", c.NumSymHang)
	fmt.Fprintf(w, "Number of hidden files skipped: %d\n", c.NumHiddenSkip)
	fmt.Fprintf(w, "Number of block device nodes: %d\n", c.NumBlock)
	fmt.Fprintf(w, "Number of char device nodes: %d\n", c.NumChar)
	fmt.Fprintf(w, "Number of fifos: %d\n", c.NumFifo)
	fmt.Fprintf(w, "Number of sockets: %d\n", c.NumSocket)
	fmt.Fprintf(w, "Number of other file types: %d\n", c.NumOther)
	fmt.Fprintf(w, "Number of filenames starting with '.': %d\n", c.NumHidden)
	fmt.Fprintf(w, "Number of dst created directories: %d\n", c.NumDirDSuccess)
	fmt.Fprintf(w, "Number of dst created symlinks: %d\n", c.NumSymDSuccess)
	fmt.Fprintf(w, "Number of files excluded (glob): %d\n", c.NumExcluded)
	fmt.Fprintf(w, "Number of files excluded (filename): %d\n", c.NumExcludedFn)
	fmt.Fprintf(w, "Maximum depth of source scan: %d\n", c.MaxDepth+1)
	fmt.Fprintf(w, "Number of scan errors detected: %d\n", c.NumError)

	if !extra {
		return
	}

	fmt.Fprintf(w, "Number of dereferenced directories: %d\n", c.NumDerefDirs)
	fmt.Fprintf(w, "Number of dereferenced regular files: %d\n", c.NumDerefRegulars)
	fmt.Fprintf(w, "Number of deref fallbacks to plain symlink: %d\n", c.NumDerefFallback)
	fmt.Fprintf(w, "Number of prune-exact matches: %d\n", c.NumPruneExact)
	fmt.Fprintf(w, "Number of dangling destination symlinks: %d\n", c.NumSymDDangling)
	fmt.Fprintf(w, "Number of symlink targets outside source (prune pass): %d\n", c.NumSymOutside)

	if c.NumRegTries == 0 {
		return
	}

	fmt.Fprintln(w, "\n>> Following associated with clone/copy of regular files")
	fmt.Fprintf(w, "Number of attempts to clone: %d\n", c.NumRegTries)
	fmt.Fprintf(w, "Number of clone successes: %d\n", c.NumRegSuccess)
	fmt.Fprintf(w, "Number of source EACCES errors: %d\n", c.NumRegSEacces)
	fmt.Fprintf(w, "Number of source EPERM errors: %d\n", c.NumRegSEperm)
	fmt.Fprintf(w, "Number of source EIO errors: %d\n", c.NumRegSEio)
	fmt.Fprintf(w, "Number of source ENODATA errors: %d\n", c.NumRegSEnodata)
	fmt.Fprintf(w, "Number of source ENOENT/ENODEV/ENXIO errors: %d\n", c.NumRegSEnoentEnodevEnxio)
	fmt.Fprintf(w, "Number of source EAGAIN errors: %d\n", c.NumRegSEagain)
	fmt.Fprintf(w, "Number of source poll timeouts: %d\n", c.NumRegSTimeout)
	fmt.Fprintf(w, "Number of source other errors: %d\n", c.NumRegSEOther)
	fmt.Fprintf(w, "Number of dst EACCES errors: %d\n", c.NumRegDEacces)
	fmt.Fprintf(w, "Number of dst EPERM errors: %d\n", c.NumRegDEperm)
	fmt.Fprintf(w, "Number of dst EIO errors: %d\n", c.NumRegDEio)
	fmt.Fprintf(w, "Number of dst other errors: %d\n", c.NumRegDEOther)
	fmt.Fprintf(w, "Number of files at the reglen cap: %d\n", c.NumRegSAtRegLen)
}
