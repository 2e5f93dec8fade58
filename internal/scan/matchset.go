package scan

import "slices"

// PathSet is a sorted vector of canonical absolute paths, matched by
// binary search exactly as spec.md §4.C6 step 5/6 specifies for
// --exclude/--dereference/--prune membership tests.
type PathSet struct {
	items []string
}

// NewPathSet builds a PathSet from an unsorted slice, sorting a copy.
func NewPathSet(paths []string) *PathSet {
	items := slices.Clone(paths)
	slices.Sort(items)
	return &PathSet{items: items}
}

// Contains reports whether path is present, without mutating the set.
func (p *PathSet) Contains(path string) bool {
	_, ok := slices.BinarySearch(p.items, path)
	return ok
}

// Consume reports whether path is present and, if so, removes it — the
// "consume on use" semantics spec.md §9's Open Question resolves
// dereference matching with (see DESIGN.md).
func (p *PathSet) Consume(path string) bool {
	idx, ok := slices.BinarySearch(p.items, path)
	if !ok {
		return false
	}
	p.items = slices.Delete(p.items, idx, idx+1)
	return true
}

// Len reports how many entries remain.
func (p *PathSet) Len() int { return len(p.items) }

// NameSet is a sorted vector of bare filenames (no path separators),
// used for --excl-fn, which matches by basename regardless of location.
type NameSet struct {
	items []string
}

// NewNameSet builds a NameSet from an unsorted slice of basenames.
func NewNameSet(names []string) *NameSet {
	items := slices.Clone(names)
	slices.Sort(items)
	return &NameSet{items: items}
}

// Contains reports whether name is present.
func (n *NameSet) Contains(name string) bool {
	_, ok := slices.BinarySearch(n.items, name)
	return ok
}

// Len reports how many entries are in the set.
func (n *NameSet) Len() int { return len(n.items) }
