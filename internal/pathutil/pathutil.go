// Package pathutil provides the canonical-path containment test and
// relative-component splitter that the scanners, prune propagator, and
// unroller all build on.
package pathutil

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Contains reports whether hay (a canonical absolute path) contains
// needle (also canonical and absolute): hay == needle, or hay is reached
// by repeatedly taking needle's parent.
//
// This walks needle's parent chain textually (filepath.Dir) rather than
// splitting into components, so it agrees with the source on paths that
// differ only in redundant separators.
func Contains(hay, needle string) bool {
	hay = filepath.Clean(hay)
	cur := filepath.Clean(needle)

	if cur == hay {
		return true
	}
	for {
		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached the filesystem root without matching hay.
			return false
		}
		cur = parent
		if cur == hay {
			return true
		}
	}
}

// SplitRelative returns the leaf components of par strictly below base.
// Both par and base must be absolute and lexically normal. It fails with
// EDOM if par is not contained in base, EINVAL on malformed input.
func SplitRelative(par, base string) ([]string, error) {
	if par == "" || base == "" || !filepath.IsAbs(par) || !filepath.IsAbs(base) {
		return nil, unix.EINVAL
	}

	par = filepath.Clean(par)
	base = filepath.Clean(base)

	if !Contains(base, par) {
		return nil, unix.EDOM
	}

	var comps []string
	cur := par
	for cur != base {
		comps = append(comps, filepath.Base(cur))
		parent := filepath.Dir(cur)
		if parent == cur {
			// Contains() already established containment, so this can't
			// happen; treat it as a malformed-input guard rather than a
			// panic.
			return nil, unix.EINVAL
		}
		cur = parent
	}

	for i, j := 0, len(comps)-1; i < j; i, j = i+1, j-1 {
		comps[i], comps[j] = comps[j], comps[i]
	}
	return comps, nil
}
