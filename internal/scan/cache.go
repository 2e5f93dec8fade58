package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/dgilbert-tools/clonepfs/internal/classify"
	"github.com/dgilbert-tools/clonepfs/internal/nodetree"
	"github.com/dgilbert-tools/clonepfs/internal/pathutil"
	"github.com/dgilbert-tools/clonepfs/internal/reader"
	"github.com/dgilbert-tools/clonepfs/internal/stats"
)

// CacheConfig configures the cache scanner: the first of the three
// cache/prune/unroll passes (spec.md §4.C7). It only reads the source
// tree and builds internal/nodetree — it never touches a destination.
type CacheConfig struct {
	SourceRoot string // canonical
	Hidden     bool
	NoXdev     bool
	MaxDepth   int // 0 = unlimited
	Reglen     int
	WaitMS     int
	Exclude    *PathSet
	ExcludeFn  *NameSet
	Deref      *PathSet
	Prune      *PathSet
	// CacheContents is true when --cache was given twice: regular-file
	// contents are read eagerly here rather than lazily during unroll.
	CacheContents bool
	Stats         *stats.Counters
}

// markExact sets the prune-pass exact bit (§4.C7) on a freshly inserted
// node if srcPath is one of the configured --prune paths. Propagation
// into all_below/up_chain happens later, in internal/prune.
func (c *cacheScanner) markExact(n *nodetree.Node, srcPath string) {
	if c.cfg.Prune != nil && c.cfg.Prune.Contains(srcPath) {
		n.PruneMask |= nodetree.PruneExact
		c.cfg.Stats.NumPruneExact++
	}
}

type cacheScanner struct {
	cfg     CacheConfig
	rootDev uint64
}

// Cache walks SourceRoot and returns the root of the cached tree.
func Cache(cfg CacheConfig) (*nodetree.Node, error) {
	rootInfo, err := os.Lstat(cfg.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("stat source root: %w", err)
	}
	rootSys := rootInfo.Sys().(*syscall.Stat_t)

	root := nodetree.NewRoot(filepath.Base(cfg.SourceRoot), uint64(rootSys.Dev), uint32(rootSys.Mode))
	c := &cacheScanner{cfg: cfg, rootDev: uint64(rootSys.Dev)}
	if err := c.scanDir(cfg.SourceRoot, root, 0); err != nil {
		return nil, err
	}
	return root, nil
}

func (c *cacheScanner) scanDir(srcDir string, node *nodetree.Node, derefChain int) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		c.cfg.Stats.NumError++
		return nil
	}

	depth := node.Depth + 1
	for _, entry := range entries {
		name := entry.Name()
		srcPath := filepath.Join(srcDir, name)
		if err := c.processEntry(srcPath, srcDir, node, name, depth, derefChain); err != nil {
			return err
		}
	}
	return nil
}

func (c *cacheScanner) processEntry(srcPath, srcDir string, parent *nodetree.Node, name string, depth, derefChain int) error {
	s := c.cfg.Stats
	hidden := strings.HasPrefix(name, ".")

	ent, err := classify.Classify(srcPath)
	if err != nil {
		s.NumError++
		return nil
	}

	derefMatch := ent.SelfKind == classify.KindSymlink && c.cfg.Deref != nil && c.cfg.Deref.Contains(srcPath)

	var excluded, byFilename bool
	if !derefMatch {
		excluded, byFilename = c.isExcluded(srcPath, name)
	}

	classify.UpdateStats(ent, hidden, s)
	if depth > s.MaxDepth {
		s.MaxDepth = depth
	}

	if hidden && !c.cfg.Hidden {
		s.NumHiddenSkip++
		return nil
	}
	if excluded {
		if byFilename {
			s.NumExcludedFn++
		} else {
			s.NumExcluded++
		}
		return nil
	}

	switch ent.SelfKind {
	case classify.KindDirectory:
		return c.handleDirectory(srcPath, srcDir, parent, name, depth, derefChain)
	case classify.KindSymlink:
		return c.handleSymlink(srcPath, parent, name, depth, derefChain)
	case classify.KindRegular:
		c.handleRegular(srcPath, parent, name)
		return nil
	case classify.KindBlock, classify.KindChar:
		c.handleDevice(srcPath, parent, name, ent.SelfKind == classify.KindBlock)
		return nil
	default:
		return nil
	}
}

func (c *cacheScanner) isExcluded(srcPath, name string) (excluded, byFilename bool) {
	if c.cfg.ExcludeFn != nil && c.cfg.ExcludeFn.Contains(name) {
		return true, true
	}
	if c.cfg.Exclude != nil && c.cfg.Exclude.Consume(srcPath) {
		return true, false
	}
	return false, false
}

func (c *cacheScanner) handleDirectory(srcPath, srcDir string, parent *nodetree.Node, name string, depth, derefChain int) error {
	s := c.cfg.Stats
	st, err := os.Lstat(srcPath)
	if err != nil {
		s.NumError++
		return nil
	}
	sys := st.Sys().(*syscall.Stat_t)

	if !c.cfg.NoXdev && uint64(sys.Dev) != c.rootDev {
		return nil
	}

	child := parent.NewDirChild(name, uint64(sys.Dev), uint32(sys.Mode), srcDir)
	c.markExact(child, srcPath)

	if c.cfg.MaxDepth > 0 && depth >= c.cfg.MaxDepth {
		return nil
	}
	return c.scanDir(srcPath, child, derefChain)
}

func (c *cacheScanner) handleSymlink(srcPath string, parent *nodetree.Node, name string, depth, derefChain int) error {
	if c.cfg.Deref != nil && c.cfg.Deref.Consume(srcPath) {
		return c.handleDeref(srcPath, parent, name, depth, derefChain)
	}

	target, err := os.Readlink(srcPath)
	if err != nil {
		c.cfg.Stats.NumError++
		return nil
	}
	link := &nodetree.Node{Filename: name, Kind: nodetree.KindSymlink, Target: target}
	parent.InsertChild(link)
	c.markExact(link, srcPath)
	return nil
}

func (c *cacheScanner) handleDeref(srcPath string, parent *nodetree.Node, name string, depth, derefChain int) error {
	s := c.cfg.Stats
	if derefChain >= maxDerefChain {
		return fmt.Errorf("dereference recursion exceeded %d levels at %s: %w", maxDerefChain, srcPath, unix.ELOOP)
	}

	target, err := os.Readlink(srcPath)
	if err != nil {
		s.NumError++
		return nil
	}

	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(srcPath), target)
	}
	canonTarget, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		return c.derefFallback(parent, name, target)
	}
	if !pathutil.Contains(c.cfg.SourceRoot, canonTarget) {
		return c.derefFallback(parent, name, target)
	}

	targetSt, err := os.Lstat(canonTarget)
	if err != nil {
		s.NumError++
		return nil
	}
	sys := targetSt.Sys().(*syscall.Stat_t)

	switch {
	case targetSt.IsDir():
		child := parent.NewDirChild(name, uint64(sys.Dev), uint32(sys.Mode), filepath.Dir(srcPath))
		pseudo := &nodetree.Node{
			Filename:          pseudoTargetFile,
			Kind:              nodetree.KindRegular,
			Contents:          []byte(canonTarget + "\n"),
			ReadOK:            true,
			AlwaysUseContents: true,
			StMode:            0o644,
		}
		child.InsertChild(pseudo)
		c.markExact(child, srcPath)
		s.NumDerefDirs++
		return c.scanDir(canonTarget, child, derefChain+1)

	case targetSt.Mode().IsRegular():
		c.readRegularInto(canonTarget, parent, name)
		s.NumDerefRegulars++
		return nil

	default:
		return c.derefFallback(parent, name, target)
	}
}

func (c *cacheScanner) derefFallback(parent *nodetree.Node, name, target string) error {
	c.cfg.Stats.NumDerefFallback++
	parent.InsertChild(&nodetree.Node{Filename: name, Kind: nodetree.KindSymlink, Target: target})
	return nil
}

func (c *cacheScanner) handleRegular(srcPath string, parent *nodetree.Node, name string) {
	c.readRegularInto(srcPath, parent, name)
}

func (c *cacheScanner) readRegularInto(srcPath string, parent *nodetree.Node, name string) {
	if !c.cfg.CacheContents {
		// Lazy mode (plain --cache): defer the actual read to unroll,
		// only recover mode bits now so the destination node can be
		// created with the right permissions.
		var reg *nodetree.Node
		if st, err := os.Lstat(srcPath); err == nil {
			reg = &nodetree.Node{Filename: name, Kind: nodetree.KindRegular, StMode: uint32(st.Mode().Perm())}
		} else {
			c.cfg.Stats.NumError++
			reg = &nodetree.Node{Filename: name, Kind: nodetree.KindRegular}
		}
		parent.InsertChild(reg)
		c.markExact(reg, srcPath)
		return
	}

	s := c.cfg.Stats
	res := reader.Read(srcPath, c.cfg.Reglen, c.cfg.WaitMS)
	s.RecordRead(res)

	reg := &nodetree.Node{
		Filename:         name,
		Kind:             nodetree.KindRegular,
		Contents:         res.Data,
		StMode:           res.ModeBits,
		ReadOK:           res.Err == nil,
		ReadFoundNothing: res.ReadFoundNothing,
	}
	parent.InsertChild(reg)
	c.markExact(reg, srcPath)
}

func (c *cacheScanner) handleDevice(srcPath string, parent *nodetree.Node, name string, isBlock bool) {
	s := c.cfg.Stats
	st, err := os.Lstat(srcPath)
	if err != nil {
		s.NumError++
		return
	}
	sys := st.Sys().(*syscall.Stat_t)

	dev := &nodetree.Node{
		Filename: name,
		Kind:     nodetree.KindDevice,
		StMode:   uint32(sys.Mode),
		StRdev:   uint64(sys.Rdev),
		IsBlock:  isBlock,
	}
	parent.InsertChild(dev)
	c.markExact(dev, srcPath)
}
