package unroll

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgilbert-tools/clonepfs/internal/nodetree"
	"github.com/dgilbert-tools/clonepfs/internal/stats"
)

func newConfig(src, dst string) Config {
	return Config{
		SourceRoot: src,
		DestRoot:   dst,
		Reglen:     4096,
		Stats:      &stats.Counters{},
	}
}

func TestUnrollLazyReadsRegularFromSource(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(filepath.Join(src, "attr"), []byte("hello"), 0o644))

	root := nodetree.NewRoot(filepath.Base(src), 0, 0o755)
	reg := &nodetree.Node{Filename: "attr", Kind: nodetree.KindRegular, StMode: 0o644}
	root.InsertChild(reg)

	cfg := newConfig(src, dst)
	require.NoError(t, Unroll(root, cfg))

	got, err := os.ReadFile(filepath.Join(dst, "attr"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, 1, cfg.Stats.NumRegSuccess)
}

func TestUnrollAlwaysUseContentsSkipsSourceRead(t *testing.T) {
	src := t.TempDir() // nothing on disk for this node; must not be touched
	dst := filepath.Join(t.TempDir(), "out")

	root := nodetree.NewRoot(filepath.Base(src), 0, 0o755)
	pseudo := &nodetree.Node{
		Filename:          "0_source_symlink_target_path",
		Kind:              nodetree.KindRegular,
		Contents:          []byte("/some/target\n"),
		AlwaysUseContents: true,
		StMode:            0o644,
	}
	root.InsertChild(pseudo)

	cfg := newConfig(src, dst)
	require.NoError(t, Unroll(root, cfg))

	got, err := os.ReadFile(filepath.Join(dst, "0_source_symlink_target_path"))
	require.NoError(t, err)
	assert.Equal(t, "/some/target\n", string(got))
	assert.Equal(t, 0, cfg.Stats.NumRegTries, "synthesized content is never read from source")
}

func TestUnrollCacheTwiceUsesCachedContents(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")
	// The source file now differs from what was cached; CacheTwice must
	// still win and write the cached bytes, not re-read the disk.
	require.NoError(t, os.WriteFile(filepath.Join(src, "attr"), []byte("stale-on-disk"), 0o644))

	root := nodetree.NewRoot(filepath.Base(src), 0, 0o755)
	reg := &nodetree.Node{Filename: "attr", Kind: nodetree.KindRegular, Contents: []byte("cached"), StMode: 0o644}
	root.InsertChild(reg)

	cfg := newConfig(src, dst)
	cfg.CacheTwice = true
	require.NoError(t, Unroll(root, cfg))

	got, err := os.ReadFile(filepath.Join(dst, "attr"))
	require.NoError(t, err)
	assert.Equal(t, "cached", string(got))
	assert.Equal(t, 0, cfg.Stats.NumRegTries)
}

func TestUnrollSkipsSubtreeOutsidePruneMask(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")

	// Marks as the prune pass leaves them: up_chain on the spine, all_below
	// on the kept directory and everything under it.
	root := nodetree.NewRoot(filepath.Base(src), 0, 0o755)
	root.PruneMask = nodetree.PruneUpChain
	kept := root.NewDirChild("kept", 0, 0o755, src)
	kept.PruneMask = nodetree.PruneAllBelow
	keptFile := &nodetree.Node{Filename: "f", Kind: nodetree.KindRegular, Contents: []byte("x"), AlwaysUseContents: true, StMode: 0o644, PruneMask: nodetree.PruneAllBelow}
	kept.InsertChild(keptFile)

	skipped := root.NewDirChild("skipped", 0, 0o755, src)
	// skipped.PruneMask left zero: outside the prune target.
	skippedFile := &nodetree.Node{Filename: "g", Kind: nodetree.KindRegular, Contents: []byte("y"), AlwaysUseContents: true, StMode: 0o644}
	skipped.InsertChild(skippedFile)

	cfg := newConfig(src, dst)
	cfg.PruneActive = true
	require.NoError(t, Unroll(root, cfg))

	_, err := os.Stat(filepath.Join(dst, "kept", "f"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "skipped"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnrollSymlink(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")

	root := nodetree.NewRoot(filepath.Base(src), 0, 0o755)
	link := &nodetree.Node{Filename: "link", Kind: nodetree.KindSymlink, Target: "/dangling/target"}
	root.InsertChild(link)

	cfg := newConfig(src, dst)
	require.NoError(t, Unroll(root, cfg))

	target, err := os.Readlink(filepath.Join(dst, "link"))
	require.NoError(t, err)
	assert.Equal(t, "/dangling/target", target)
	assert.Equal(t, 1, cfg.Stats.NumSymDSuccess)
}
