package clone

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (src, dst string) {
	t.Helper()
	src = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "b", "c"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a", "b", "c", "leaf"), []byte("X"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "other"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a", "other", "irrelevant"), []byte("Y"), 0o644))
	dst = filepath.Join(t.TempDir(), "out")
	return src, dst
}

func TestRunDirectClonesWholeTree(t *testing.T) {
	src, dst := newFixture(t)
	res := Run(Config{SourceRoot: src, DestRoot: dst, Reglen: 4096})
	require.NoError(t, res.Err)

	got, err := os.ReadFile(filepath.Join(dst, "a", "b", "c", "leaf"))
	require.NoError(t, err)
	assert.Equal(t, "X", string(got))
	assert.Greater(t, res.Stats.NumDirDSuccess, 0)
}

func TestRunPruneImplicitlyEnablesCache(t *testing.T) {
	src, dst := newFixture(t)
	res := Run(Config{
		SourceRoot: src,
		DestRoot:   dst,
		Reglen:     4096,
		Prune:      []string{filepath.Join(src, "a", "b")},
	})
	require.NoError(t, res.Err)

	_, err := os.Stat(filepath.Join(dst, "a", "b", "c", "leaf"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "a", "other"))
	assert.True(t, os.IsNotExist(err), "pruned sibling must not be materialized")
}

func TestRunPruneSourceTakesAll(t *testing.T) {
	src, dst := newFixture(t)
	res := Run(Config{
		SourceRoot: src,
		DestRoot:   dst,
		Reglen:     4096,
		Prune:      []string{TakeAllSentinel},
	})
	require.NoError(t, res.Err)

	_, err := os.Stat(filepath.Join(dst, "a", "other", "irrelevant"))
	assert.NoError(t, err)
}

func TestRunNoDstProducesStatsOnly(t *testing.T) {
	src, dst := newFixture(t)
	res := Run(Config{SourceRoot: src, DestRoot: dst, Reglen: 4096, NoDst: true, CacheLevel: 1})
	require.NoError(t, res.Err)

	_, err := os.Stat(dst)
	assert.True(t, os.IsNotExist(err), "no-dst must never create the destination")
	assert.Greater(t, res.Stats.NumRegular, 0)
}

func TestRunCacheTwiceReadsRegularContentsDuringCachePass(t *testing.T) {
	src, dst := newFixture(t)
	res := Run(Config{SourceRoot: src, DestRoot: dst, Reglen: 4096, CacheLevel: 2})
	require.NoError(t, res.Err)

	got, err := os.ReadFile(filepath.Join(dst, "a", "b", "c", "leaf"))
	require.NoError(t, err)
	assert.Equal(t, "X", string(got))
}

func TestRunExcludeGlobSkipsMatchedDirectory(t *testing.T) {
	src, dst := newFixture(t)
	res := Run(Config{
		SourceRoot: src,
		DestRoot:   dst,
		Reglen:     4096,
		Exclude:    []string{filepath.Join("a", "other")},
	})
	require.NoError(t, res.Err)

	_, err := os.Stat(filepath.Join(dst, "a", "other"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "a", "b", "c", "leaf"))
	assert.NoError(t, err)
}
