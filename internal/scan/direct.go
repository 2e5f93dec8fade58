// Package scan implements the two source-walking passes of spec.md:
// the direct-clone scanner (§4.C6), which materializes straight to the
// destination, and the cache scanner (§4.C7), which builds the
// in-memory tree of internal/nodetree instead.
package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/dgilbert-tools/clonepfs/internal/classify"
	"github.com/dgilbert-tools/clonepfs/internal/pathutil"
	"github.com/dgilbert-tools/clonepfs/internal/reader"
	"github.com/dgilbert-tools/clonepfs/internal/stats"
	"github.com/dgilbert-tools/clonepfs/internal/writer"
)

// pseudoTargetFile is the well-known file spec.md §6 names, written inside
// every deref-synthesized directory.
const pseudoTargetFile = "0_source_symlink_target_path"

// maxDerefChain bounds nested dereference recursion; exceeding it is the
// catastrophic ELOOP condition spec.md §4.C6/§7 calls for.
const maxDerefChain = 40

// DirectConfig configures the single-pass direct-clone scanner.
type DirectConfig struct {
	SourceRoot string // canonical
	DestRoot   string
	Hidden     bool
	NoXdev     bool
	MaxDepth   int // 0 = unlimited
	Reglen     int
	WaitMS     int
	Extra      bool
	Exclude    *PathSet
	ExcludeFn  *NameSet
	Deref      *PathSet
	Stats      *stats.Counters
}

type direct struct {
	cfg     DirectConfig
	rootDev uint64
}

// Direct runs the direct-clone scanner end to end.
func Direct(cfg DirectConfig) error {
	rootInfo, err := os.Lstat(cfg.SourceRoot)
	if err != nil {
		return fmt.Errorf("stat source root: %w", err)
	}
	rootSys := rootInfo.Sys().(*syscall.Stat_t)

	if err := os.MkdirAll(filepath.Dir(cfg.DestRoot), 0o755); err != nil {
		return fmt.Errorf("create destination parent: %w", err)
	}
	status := writer.WriteDirectory(cfg.DestRoot, uint32(rootSys.Mode))
	cfg.Stats.RecordDir(status)

	d := &direct{cfg: cfg, rootDev: uint64(rootSys.Dev)}
	return d.scanDir(cfg.SourceRoot, cfg.DestRoot, -1, 0)
}

func (d *direct) scanDir(srcDir, dstDir string, depth, derefChain int) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		d.cfg.Stats.NumError++
		return nil
	}

	entryDepth := depth + 1
	for _, entry := range entries {
		name := entry.Name()
		srcPath := filepath.Join(srcDir, name)
		dstPath := filepath.Join(dstDir, name)
		if err := d.processEntry(srcPath, dstPath, name, entryDepth, derefChain); err != nil {
			return err
		}
	}
	return nil
}

func (d *direct) processEntry(srcPath, dstPath, name string, depth, derefChain int) error {
	c := d.cfg.Stats
	hidden := strings.HasPrefix(name, ".")

	ent, err := classify.Classify(srcPath)
	if err != nil {
		c.NumError++
		return nil
	}

	derefMatch := ent.SelfKind == classify.KindSymlink && d.cfg.Deref != nil && d.cfg.Deref.Contains(srcPath)

	var excluded, byFilename bool
	if !derefMatch {
		excluded, byFilename = d.isExcluded(srcPath, name)
	}

	classify.UpdateStats(ent, hidden, c)
	if depth > c.MaxDepth {
		c.MaxDepth = depth
	}

	if hidden && !d.cfg.Hidden {
		c.NumHiddenSkip++
		return nil
	}
	if excluded {
		if byFilename {
			c.NumExcludedFn++
		} else {
			c.NumExcluded++
		}
		return nil
	}

	switch ent.SelfKind {
	case classify.KindDirectory:
		return d.handleDirectory(srcPath, dstPath, depth, derefChain)
	case classify.KindSymlink:
		return d.handleSymlink(srcPath, dstPath, depth, derefChain)
	case classify.KindRegular:
		d.handleRegular(srcPath, dstPath)
		return nil
	case classify.KindBlock, classify.KindChar:
		d.handleDevice(srcPath, dstPath)
		return nil
	default:
		// FIFO, socket, other: already counted, never materialized.
		return nil
	}
}

func (d *direct) isExcluded(srcPath, name string) (excluded, byFilename bool) {
	if d.cfg.ExcludeFn != nil && d.cfg.ExcludeFn.Contains(name) {
		return true, true
	}
	if d.cfg.Exclude != nil && d.cfg.Exclude.Consume(srcPath) {
		return true, false
	}
	return false, false
}

func (d *direct) handleDirectory(srcPath, dstPath string, depth, derefChain int) error {
	c := d.cfg.Stats
	st, err := os.Lstat(srcPath)
	if err != nil {
		c.NumError++
		return nil
	}
	sys := st.Sys().(*syscall.Stat_t)

	if !d.cfg.NoXdev && uint64(sys.Dev) != d.rootDev {
		// Crossing a filesystem boundary: the mountpoint node itself is
		// excluded too (spec.md §8's No-xdev property is stricter than
		// the v0.90 original, which still created the boundary node).
		return nil
	}

	status := writer.WriteDirectory(dstPath, uint32(sys.Mode))
	c.RecordDir(status)
	if status == writer.DirFail {
		return nil
	}

	if d.cfg.MaxDepth > 0 && depth >= d.cfg.MaxDepth {
		return nil
	}
	return d.scanDir(srcPath, dstPath, depth, derefChain)
}

func (d *direct) handleSymlink(srcPath, dstPath string, depth, derefChain int) error {
	c := d.cfg.Stats
	if d.cfg.Deref != nil && d.cfg.Deref.Consume(srcPath) {
		return d.handleDeref(srcPath, dstPath, depth, derefChain)
	}

	target, err := os.Readlink(srcPath)
	if err != nil {
		c.NumError++
		return nil
	}
	dangling, err := writer.WriteSymlink(dstPath, target, d.cfg.Extra)
	if err != nil {
		c.NumError++
		return nil
	}
	c.NumSymDSuccess++
	if dangling {
		c.NumSymDDangling++
	}
	return nil
}

func (d *direct) handleDeref(srcPath, dstPath string, depth, derefChain int) error {
	c := d.cfg.Stats
	if derefChain >= maxDerefChain {
		return fmt.Errorf("dereference recursion exceeded %d levels at %s: %w", maxDerefChain, srcPath, unix.ELOOP)
	}

	target, err := os.Readlink(srcPath)
	if err != nil {
		c.NumError++
		return nil
	}

	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(srcPath), target)
	}
	canonTarget, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		return d.derefFallback(dstPath, target)
	}
	if !pathutil.Contains(d.cfg.SourceRoot, canonTarget) {
		return d.derefFallback(dstPath, target)
	}

	targetInfo, err := os.Stat(canonTarget)
	if err != nil {
		c.NumError++
		return nil
	}

	switch {
	case targetInfo.IsDir():
		status := writer.WriteDirectory(dstPath, uint32(targetInfo.Mode().Perm()))
		c.RecordDir(status)
		if status == writer.DirFail {
			return nil
		}
		pseudoPath := filepath.Join(dstPath, pseudoTargetFile)
		if _, _, err := writer.WriteRegular(pseudoPath, 0o644, []byte(canonTarget+"\n")); err != nil {
			c.NumError++
		}
		c.NumDerefDirs++
		return d.scanDir(canonTarget, dstPath, depth, derefChain+1)

	case targetInfo.Mode().IsRegular():
		d.copyDerefRegular(canonTarget, dstPath, targetInfo)
		c.NumDerefRegulars++
		return nil

	default:
		return d.derefFallback(dstPath, target)
	}
}

func (d *direct) derefFallback(dstPath, target string) error {
	c := d.cfg.Stats
	c.NumDerefFallback++
	dangling, err := writer.WriteSymlink(dstPath, target, d.cfg.Extra)
	if err != nil {
		c.NumError++
		return nil
	}
	c.NumSymDSuccess++
	if dangling {
		c.NumSymDDangling++
	}
	return nil
}

func (d *direct) copyDerefRegular(srcPath, dstPath string, info os.FileInfo) {
	c := d.cfg.Stats
	res := reader.Read(srcPath, d.cfg.Reglen, d.cfg.WaitMS)
	c.RecordRead(res)

	mode := res.ModeBits
	if mode == 0 {
		mode = uint32(info.Mode().Perm())
	}
	_, wclass, werr := writer.WriteRegular(dstPath, mode, res.Data)
	c.RecordWrite(wclass)

	if res.Err == nil && werr == nil {
		c.NumRegSuccess++
	}
}

func (d *direct) handleRegular(srcPath, dstPath string) {
	c := d.cfg.Stats
	res := reader.Read(srcPath, d.cfg.Reglen, d.cfg.WaitMS)
	c.RecordRead(res)

	_, wclass, werr := writer.WriteRegular(dstPath, res.ModeBits, res.Data)
	c.RecordWrite(wclass)

	if res.Err == nil && werr == nil {
		c.NumRegSuccess++
	}
}

func (d *direct) handleDevice(srcPath, dstPath string) {
	c := d.cfg.Stats
	st, err := os.Lstat(srcPath)
	if err != nil {
		c.NumError++
		return
	}
	sys := st.Sys().(*syscall.Stat_t)

	class, err := writer.WriteDevice(dstPath, uint32(sys.Mode), uint64(sys.Rdev))
	if err != nil {
		c.NumMknodDFail++
		if class == writer.ErrOther {
			c.NumError++
		}
		return
	}
	c.NumMknodDSuccess++
}
