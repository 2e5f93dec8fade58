// Package prune implements the second pass of the cache/prune/unroll
// pipeline (spec.md §4.C8): propagating exact prune matches, set during
// caching, into a full take/drop decision over the cached tree.
package prune

import (
	"path/filepath"

	"github.com/dgilbert-tools/clonepfs/internal/nodetree"
	"github.com/dgilbert-tools/clonepfs/internal/pathutil"
	"github.com/dgilbert-tools/clonepfs/internal/stats"
)

// MarkTakeAll implements the `--prune=SOURCE` special case: the whole
// tree is retained, as if every node were in the in-prune descent.
// Marking the root exact is sufficient — inPrune cascades from there.
func MarkTakeAll(root *nodetree.Node) {
	root.PruneMask |= nodetree.PruneExact
}

// Propagate walks the cached tree rooted at root (whose nodes already
// carry exact bits from the cache pass) and fills in all_below/up_chain.
func Propagate(root *nodetree.Node, sourceRoot string, c *stats.Counters) {
	propagateDir(root, sourceRoot, nil, false, root, sourceRoot, c)
}

func propagateDir(dir *nodetree.Node, dirPath string, ancestors []*nodetree.Node, parentInPrune bool, root *nodetree.Node, sourceRoot string, c *stats.Counters) {
	if dir.PruneMask&nodetree.PruneAllBelow != 0 {
		return
	}

	inPrune := parentInPrune || dir.PruneMask&nodetree.PruneExact != 0
	if inPrune {
		setAllBelow(dir)
		markUpChain(ancestors)
	}

	childAncestors := withAncestor(ancestors, dir)
	for _, child := range dir.Children {
		childPath := filepath.Join(dirPath, child.Filename)
		switch child.Kind {
		case nodetree.KindDirectory:
			propagateDir(child, childPath, childAncestors, inPrune, root, sourceRoot, c)
		case nodetree.KindRegular:
			if inPrune || child.PruneMask&nodetree.PruneExact != 0 {
				setAllBelow(child)
				markUpChain(childAncestors)
			}
		case nodetree.KindSymlink:
			if inPrune || child.PruneMask&nodetree.PruneExact != 0 {
				setAllBelow(child)
				markUpChain(childAncestors)
				propagateSymlink(child, childPath, sourceRoot, root, c)
			}
		}
	}
}

func propagateSymlink(link *nodetree.Node, linkPath, sourceRoot string, root *nodetree.Node, c *stats.Counters) {
	resolved := link.Target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(linkPath), link.Target)
	}
	canonTarget, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		c.NumSymOutside++
		return
	}
	if !pathutil.Contains(sourceRoot, canonTarget) {
		c.NumSymOutside++
		return
	}

	comps, err := pathutil.SplitRelative(canonTarget, sourceRoot)
	if err != nil {
		c.NumSymOutside++
		return
	}

	target, chain, ok := nodetree.LocateAny(root, comps)
	if !ok {
		// Target isn't in the cache (e.g. excluded); nothing to propagate.
		return
	}
	ancestors := chain[:len(chain)-1]

	switch target.Kind {
	case nodetree.KindDirectory:
		markAllBelowSubtree(target)
		markUpChain(ancestors)
	case nodetree.KindRegular:
		setAllBelow(target)
		markUpChain(ancestors)
	}
}

func withAncestor(ancestors []*nodetree.Node, dir *nodetree.Node) []*nodetree.Node {
	next := make([]*nodetree.Node, len(ancestors)+1)
	copy(next, ancestors)
	next[len(ancestors)] = dir
	return next
}

// setAllBelow sets all_below and clears up_chain — the tie-break rule of
// spec.md §4.C8 step 4: all_below always wins over a prior up_chain.
func setAllBelow(n *nodetree.Node) {
	n.PruneMask = (n.PruneMask &^ nodetree.PruneUpChain) | nodetree.PruneAllBelow
}

func markAllBelowSubtree(n *nodetree.Node) {
	setAllBelow(n)
	for _, child := range n.Children {
		markAllBelowSubtree(child)
	}
}

func markUpChain(ancestors []*nodetree.Node) {
	for _, a := range ancestors {
		if a.PruneMask&nodetree.PruneAllBelow != 0 {
			continue
		}
		a.PruneMask |= nodetree.PruneUpChain
	}
}
