// Package unroll implements the final pass of the cache/prune/unroll
// pipeline (spec.md §4.C9): walking the cached tree and materializing it
// onto the destination, filtering by prune marks when pruning was active.
package unroll

import (
	"path/filepath"

	"github.com/dgilbert-tools/clonepfs/internal/nodetree"
	"github.com/dgilbert-tools/clonepfs/internal/reader"
	"github.com/dgilbert-tools/clonepfs/internal/stats"
	"github.com/dgilbert-tools/clonepfs/internal/writer"
)

// Config configures a single unroll pass.
type Config struct {
	SourceRoot  string // canonical; used to lazily re-read regular files
	DestRoot    string
	PruneActive bool
	// CacheTwice mirrors scan.CacheConfig.CacheContents: when true, every
	// regular node's cached Contents are authoritative and never re-read.
	CacheTwice bool
	Reglen     int
	WaitMS     int
	Extra      bool
	Stats      *stats.Counters
}

// Unroll materializes root onto cfg.DestRoot.
func Unroll(root *nodetree.Node, cfg Config) error {
	return unrollDir(root, cfg.SourceRoot, cfg.DestRoot, cfg)
}

func unrollDir(node *nodetree.Node, srcPath, dstPath string, cfg Config) error {
	if cfg.PruneActive && node.PruneMask == 0 {
		return nil
	}

	status := writer.WriteDirectory(dstPath, node.StMode)
	cfg.Stats.RecordDir(status)
	if status == writer.DirFail {
		return nil
	}

	for _, child := range node.Children {
		if cfg.PruneActive && child.PruneMask == 0 {
			continue
		}
		childSrc := filepath.Join(srcPath, child.Filename)
		childDst := filepath.Join(dstPath, child.Filename)

		switch child.Kind {
		case nodetree.KindDirectory:
			if err := unrollDir(child, childSrc, childDst, cfg); err != nil {
				return err
			}
		case nodetree.KindSymlink:
			unrollSymlink(child, childDst, cfg)
		case nodetree.KindRegular:
			unrollRegular(child, childSrc, childDst, cfg)
		case nodetree.KindDevice:
			unrollDevice(child, childDst, cfg)
		default:
			// FIFO, socket, other: recognized but never materialized.
		}
	}
	return nil
}

func unrollSymlink(node *nodetree.Node, dstPath string, cfg Config) {
	dangling, err := writer.WriteSymlink(dstPath, node.Target, cfg.Extra)
	if err != nil {
		cfg.Stats.NumError++
		return
	}
	cfg.Stats.NumSymDSuccess++
	if dangling {
		cfg.Stats.NumSymDDangling++
	}
}

func unrollRegular(node *nodetree.Node, srcPath, dstPath string, cfg Config) {
	c := cfg.Stats

	if node.AlwaysUseContents || cfg.CacheTwice {
		_, wclass, werr := writer.WriteRegular(dstPath, node.StMode, node.Contents)
		c.RecordWrite(wclass)
		if werr == nil {
			c.NumRegSuccess++
		}
		return
	}

	res := reader.Read(srcPath, cfg.Reglen, cfg.WaitMS)
	c.RecordRead(res)

	_, wclass, werr := writer.WriteRegular(dstPath, res.ModeBits, res.Data)
	c.RecordWrite(wclass)
	if res.Err == nil && werr == nil {
		c.NumRegSuccess++
	}
}

func unrollDevice(node *nodetree.Node, dstPath string, cfg Config) {
	class, err := writer.WriteDevice(dstPath, node.StMode, node.StRdev)
	if err != nil {
		cfg.Stats.NumMknodDFail++
		if class == writer.ErrOther {
			cfg.Stats.NumError++
		}
		return
	}
	cfg.Stats.NumMknodDSuccess++
}
