// Package clone is the top-level orchestrator (spec.md §4.C10): it
// decides between the single-pass direct scanner and the
// cache→prune→unroll pipeline and drives whichever is selected.
package clone

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgilbert-tools/clonepfs/internal/nodetree"
	"github.com/dgilbert-tools/clonepfs/internal/prune"
	"github.com/dgilbert-tools/clonepfs/internal/scan"
	"github.com/dgilbert-tools/clonepfs/internal/stats"
	"github.com/dgilbert-tools/clonepfs/internal/unroll"
)

// Config describes one clone run, the flag-parsed equivalent of §6's
// command-line table.
type Config struct {
	SourceRoot string
	DestRoot   string

	Hidden   bool
	NoXdev   bool
	NoDst    bool // scan only: build statistics, never touch the destination
	Extra    bool
	MaxDepth int
	Reglen   int
	WaitMS   int

	Exclude     []string // glob patterns, expanded against SourceRoot
	ExclFn      []string // bare basenames
	Dereference []string // symlink paths, absolute or relative to SourceRoot
	Prune       []string // take-set paths, absolute or relative to SourceRoot; "SOURCE" is the take-all sentinel

	// CacheLevel mirrors repeat count of --cache: 0 disables the
	// cache/prune/unroll pipeline (unless Prune forces it on), 1 enables
	// it with lazy regular-file reads, 2+ reads contents eagerly during
	// the cache pass.
	CacheLevel int
}

// Result is the outcome of a clone run.
type Result struct {
	Stats stats.Counters
	Err   error
}

// TakeAllSentinel is the literal --prune argument that means "keep
// everything" (spec.md §4.C8's SOURCE special case).
const TakeAllSentinel = "SOURCE"

// Run executes a clone end to end, blocking until complete.
func Run(cfg Config) Result {
	c := &stats.Counters{}

	canonSrc, err := filepath.EvalSymlinks(cfg.SourceRoot)
	if err != nil {
		return Result{Stats: *c, Err: fmt.Errorf("source: %w", err)}
	}

	pruneActive := len(cfg.Prune) > 0
	cacheActive := cfg.CacheLevel > 0 || pruneActive

	exclude, err := expandExcludeGlobs(canonSrc, cfg.Exclude)
	if err != nil {
		return Result{Stats: *c, Err: fmt.Errorf("expand --exclude: %w", err)}
	}
	deref := resolvePaths(canonSrc, cfg.Dereference)

	var takeAll bool
	pruneTargets := make([]string, 0, len(cfg.Prune))
	for _, p := range cfg.Prune {
		if p == TakeAllSentinel {
			takeAll = true
			continue
		}
		pruneTargets = append(pruneTargets, p)
	}
	pruneSet := resolvePaths(canonSrc, pruneTargets)

	if !cacheActive {
		err := runDirect(cfg, canonSrc, exclude, deref, c)
		return Result{Stats: *c, Err: err}
	}

	root, err := runCache(cfg, canonSrc, exclude, deref, pruneSet, takeAll, c)
	if err != nil {
		return Result{Stats: *c, Err: err}
	}

	if pruneActive {
		if takeAll {
			prune.MarkTakeAll(root)
		}
		prune.Propagate(root, canonSrc, c)
	}

	if cfg.NoDst {
		return Result{Stats: *c, Err: nil}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DestRoot), 0o755); err != nil {
		return Result{Stats: *c, Err: fmt.Errorf("create destination parent: %w", err)}
	}
	err = unroll.Unroll(root, unroll.Config{
		SourceRoot:  canonSrc,
		DestRoot:    cfg.DestRoot,
		PruneActive: pruneActive,
		CacheTwice:  cfg.CacheLevel >= 2,
		Reglen:      cfg.Reglen,
		WaitMS:      cfg.WaitMS,
		Extra:       cfg.Extra,
		Stats:       c,
	})
	return Result{Stats: *c, Err: err}
}

func runDirect(cfg Config, canonSrc string, exclude, deref []string, c *stats.Counters) error {
	dest := cfg.DestRoot
	if cfg.NoDst {
		// §4.C10/§6 "--no-dst": scan only. The direct scanner has no
		// write-suppressed mode of its own (it materializes as it walks),
		// so route through the cache scanner instead and simply never
		// unroll it — the cheapest way to get scan-only statistics
		// without inventing a second code path in internal/scan.
		_, err := runCache(cfg, canonSrc, exclude, deref, nil, false, c)
		return err
	}

	return scan.Direct(scan.DirectConfig{
		SourceRoot: canonSrc,
		DestRoot:   dest,
		Hidden:     cfg.Hidden,
		NoXdev:     cfg.NoXdev,
		MaxDepth:   cfg.MaxDepth,
		Reglen:     cfg.Reglen,
		WaitMS:     cfg.WaitMS,
		Extra:      cfg.Extra,
		Exclude:    scan.NewPathSet(exclude),
		ExcludeFn:  scan.NewNameSet(cfg.ExclFn),
		Deref:      scan.NewPathSet(deref),
		Stats:      c,
	})
}

func runCache(cfg Config, canonSrc string, exclude, deref, pruneSet []string, takeAll bool, c *stats.Counters) (*nodetree.Node, error) {
	var prunePS *scan.PathSet
	if takeAll {
		// Take-all still needs a non-nil-but-empty set: no individual
		// node is an exact match, MarkTakeAll marks the root afterward.
		prunePS = scan.NewPathSet(nil)
	} else {
		prunePS = scan.NewPathSet(pruneSet)
	}

	return scan.Cache(scan.CacheConfig{
		SourceRoot:    canonSrc,
		Hidden:        cfg.Hidden,
		NoXdev:        cfg.NoXdev,
		MaxDepth:      cfg.MaxDepth,
		Reglen:        cfg.Reglen,
		WaitMS:        cfg.WaitMS,
		Exclude:       scan.NewPathSet(exclude),
		ExcludeFn:     scan.NewNameSet(cfg.ExclFn),
		Deref:         scan.NewPathSet(deref),
		Prune:         prunePS,
		CacheContents: cfg.CacheLevel >= 2,
		Stats:         c,
	})
}

// expandExcludeGlobs turns each --exclude pattern into the literal set of
// matching canonical paths (spec.md §4.C1/§6: "expand via glob, exclude
// matches"), relative patterns resolved against canonSrc.
func expandExcludeGlobs(canonSrc string, patterns []string) ([]string, error) {
	var out []string
	for _, pat := range patterns {
		if !filepath.IsAbs(pat) {
			pat = filepath.Join(canonSrc, pat)
		}
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pat, err)
		}
		for _, m := range matches {
			out = append(out, filepath.Clean(m))
		}
	}
	return out, nil
}

// resolvePaths turns relative --dereference/--prune arguments into
// absolute paths anchored at canonSrc, leaving already-absolute ones as
// given. Paths are left unresolved (not run through EvalSymlinks): they
// must match the literal path text the scanners build by joining
// canonSrc with ancestor filenames.
func resolvePaths(canonSrc string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(canonSrc, abs)
		}
		out = append(out, filepath.Clean(abs))
	}
	return out
}
