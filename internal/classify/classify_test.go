package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgilbert-tools/clonepfs/internal/stats"
)

func TestClassifyRegular(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	e, err := Classify(p)
	require.NoError(t, err)
	assert.Equal(t, KindRegular, e.SelfKind)
	assert.Equal(t, KindRegular, e.TargetKind)
}

func TestClassifySymlinkToDir(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "d")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "l")
	require.NoError(t, os.Symlink(target, link))

	e, err := Classify(link)
	require.NoError(t, err)
	assert.Equal(t, KindSymlink, e.SelfKind)
	assert.Equal(t, KindDirectory, e.TargetKind)
}

func TestClassifyDanglingSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "l")
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), link))

	e, err := Classify(link)
	require.NoError(t, err)
	assert.Equal(t, KindSymlink, e.SelfKind)
	assert.Equal(t, KindNotFound, e.TargetKind)
}

func TestUpdateStatsCounts(t *testing.T) {
	c := &stats.Counters{}
	UpdateStats(Entry{SelfKind: KindSymlink, TargetKind: KindDirectory}, false, c)
	UpdateStats(Entry{SelfKind: KindRegular, TargetKind: KindRegular}, true, c)
	UpdateStats(Entry{SelfKind: KindSymlink, TargetKind: KindNotFound}, false, c)

	assert.Equal(t, 1, c.NumSym2Dir)
	assert.Equal(t, 1, c.NumRegular)
	assert.Equal(t, 1, c.NumHidden)
	assert.Equal(t, 1, c.NumSymHang)
}
