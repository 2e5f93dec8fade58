package prune

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgilbert-tools/clonepfs/internal/nodetree"
	"github.com/dgilbert-tools/clonepfs/internal/scan"
	"github.com/dgilbert-tools/clonepfs/internal/stats"
)

func buildFixture(t *testing.T) (root *nodetree.Node, sourceRoot string, c *stats.Counters) {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "b", "c"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a", "b", "c", "leaf"), []byte("X"), 0o644))
	require.NoError(t, os.Symlink("c", filepath.Join(src, "a", "b", "link")))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "other"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a", "other", "irrelevant"), []byte("Y"), 0o644))

	canonSrc, err := filepath.EvalSymlinks(src)
	require.NoError(t, err)

	c = &stats.Counters{}
	cfg := scan.CacheConfig{
		SourceRoot: canonSrc,
		Reglen:     4096,
		Stats:      c,
		Prune:      scan.NewPathSet([]string{filepath.Join(canonSrc, "a", "b")}),
	}
	root, err = scan.Cache(cfg)
	require.NoError(t, err)
	return root, canonSrc, c
}

func TestPropagateKeepsSpineAndSubtreeOnly(t *testing.T) {
	root, sourceRoot, c := buildFixture(t)
	Propagate(root, sourceRoot, c)

	a, ok := root.Child("a")
	require.True(t, ok)
	assert.NotZero(t, a.PruneMask&nodetree.PruneUpChain, "a is on the spine to the match")

	b, ok := a.Child("b")
	require.True(t, ok)
	assert.NotZero(t, b.PruneMask&nodetree.PruneExact)
	assert.NotZero(t, b.PruneMask&nodetree.PruneAllBelow)

	cc, ok := b.Child("c")
	require.True(t, ok)
	assert.NotZero(t, cc.PruneMask&nodetree.PruneAllBelow)

	leaf, ok := findByName(cc.Children, "leaf")
	require.True(t, ok)
	assert.NotZero(t, leaf.PruneMask&nodetree.PruneAllBelow)

	link, ok := findByName(b.Children, "link")
	require.True(t, ok)
	assert.Equal(t, nodetree.KindSymlink, link.Kind)
	assert.NotZero(t, link.PruneMask&nodetree.PruneAllBelow, "a plain symlink inside a taken subtree is still a descendant")

	other, ok := a.Child("other")
	require.True(t, ok)
	assert.Zero(t, other.PruneMask, "sibling outside the prune target carries no marks")
}

func TestMarkTakeAllMarksEverything(t *testing.T) {
	root, sourceRoot, c := buildFixture(t)
	// Simulate --prune=SOURCE by discarding the fixture's targeted match
	// and taking everything instead.
	root.PruneMask = 0
	clearSubtree(root)
	MarkTakeAll(root)
	Propagate(root, sourceRoot, c)

	a, ok := root.Child("a")
	require.True(t, ok)
	other, ok := a.Child("other")
	require.True(t, ok)
	assert.NotZero(t, other.PruneMask&nodetree.PruneAllBelow)
}

func TestPropagateSymlinkAsExactTargetMarksOwnAncestors(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "b"), 0o755))
	require.NoError(t, os.Symlink("b", filepath.Join(src, "a", "link")))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "other"), 0o755))

	canonSrc, err := filepath.EvalSymlinks(src)
	require.NoError(t, err)

	c := &stats.Counters{}
	cfg := scan.CacheConfig{
		SourceRoot: canonSrc,
		Reglen:     4096,
		Stats:      c,
		Prune:      scan.NewPathSet([]string{filepath.Join(canonSrc, "a", "link")}),
	}
	root, err := scan.Cache(cfg)
	require.NoError(t, err)

	Propagate(root, canonSrc, c)

	a, ok := root.Child("a")
	require.True(t, ok)
	assert.NotZero(t, a.PruneMask&nodetree.PruneUpChain, "a is on the spine to the symlink match")

	link, ok := findByName(a.Children, "link")
	require.True(t, ok)
	assert.Equal(t, nodetree.KindSymlink, link.Kind)
	assert.NotZero(t, link.PruneMask&nodetree.PruneExact)
	assert.NotZero(t, link.PruneMask&nodetree.PruneAllBelow, "the symlink node itself must carry all_below, not just its resolved target")

	other, ok := a.Child("other")
	require.True(t, ok)
	assert.Zero(t, other.PruneMask, "sibling outside the prune target carries no marks")
}

func findByName(nodes []*nodetree.Node, name string) (*nodetree.Node, bool) {
	for _, n := range nodes {
		if n.Filename == name {
			return n, true
		}
	}
	return nil, false
}

func clearSubtree(n *nodetree.Node) {
	n.PruneMask = 0
	for _, c := range n.Children {
		clearSubtree(c)
	}
}
