// Package nodetree is the in-memory cached tree of spec.md §3/§4.C5: a
// tagged-variant node, one flat struct per the teacher's FileTask
// pattern (engine.FileTask in bamsammich-beam), dispatched by Kind
// rather than by an interface hierarchy.
package nodetree

// Kind tags which of the six variants a Node is.
type Kind int

const (
	KindDirectory Kind = iota
	KindSymlink
	KindRegular
	KindDevice
	KindFIFOSocket
	KindOther
)

// PruneMask is the set over {exact, all_below, up_chain} from spec.md §4.C8.
type PruneMask uint8

const (
	PruneExact    PruneMask = 1 << 0
	PruneAllBelow PruneMask = 1 << 1
	PruneUpChain  PruneMask = 1 << 2
)

// Node is exactly one of six kinds, sharing a common base (spec.md §3).
type Node struct {
	// Base fields, present on every node.
	Filename    string
	StDev       uint64
	StMode      uint32
	ParentIndex int
	PruneMask   PruneMask
	IsRoot      bool
	Kind        Kind

	// Directory.
	Children   []*Node
	ChildIndex map[string]int // filename -> index in Children, directories only
	ParentPath string         // cached absolute source path of this directory's parent
	Depth      int            // source-root depth; root is -1

	// Symlink.
	Target string // raw link text, verbatim

	// Regular.
	Contents          []byte
	ReadOK            bool // source read completed with no error class
	ReadFoundNothing  bool
	AlwaysUseContents bool // synthesized by deref (e.g. 0_source_symlink_target_path)

	// Device.
	IsBlock bool
	StRdev  uint64
}

// NewRoot creates the root directory node for path's leaf name.
func NewRoot(filename string, stDev uint64, stMode uint32) *Node {
	return &Node{
		Filename:   filename,
		StDev:      stDev,
		StMode:     stMode,
		IsRoot:     true,
		Kind:       KindDirectory,
		ChildIndex: make(map[string]int),
		Depth:      -1,
	}
}

// NewDirChild allocates a directory child of parent with depth =
// parent.Depth+1 and inserts it, returning the child so the caller can
// continue populating it.
func (parent *Node) NewDirChild(filename string, stDev uint64, stMode uint32, parentPath string) *Node {
	child := &Node{
		Filename:   filename,
		StDev:      stDev,
		StMode:     stMode,
		Kind:       KindDirectory,
		ChildIndex: make(map[string]int),
		ParentPath: parentPath,
		Depth:      parent.Depth + 1,
	}
	parent.InsertChild(child)
	return child
}

// InsertChild appends child to parent's child vector, sets the child's
// ParentIndex to its slot, and — for directory children — records it in
// the filename->index map (invariant 2, spec.md §3).
func (parent *Node) InsertChild(child *Node) int {
	idx := len(parent.Children)
	child.ParentIndex = idx
	parent.Children = append(parent.Children, child)
	if child.Kind == KindDirectory {
		parent.ChildIndex[child.Filename] = idx
	}
	return idx
}

// Child looks up a directory's child by filename if, and only if, that
// child is itself a directory (invariant 2: non-directory siblings are
// not mapped).
func (parent *Node) Child(filename string) (*Node, bool) {
	idx, ok := parent.ChildIndex[filename]
	if !ok {
		return nil, false
	}
	return parent.Children[idx], true
}

// Locate walks root's filename->index maps along comps, reconstructing a
// directory pointer top-down from the root without any parent pointers.
// The scanners in internal/scan do not use it: they recurse while holding
// *Node pointers, which stay valid as child vectors grow, so they never
// rebuild their position from the root. LocateChain and LocateAny (used by
// the prune propagator) perform the same walk.
func Locate(root *Node, comps []string) (*Node, bool) {
	cur := root
	for _, comp := range comps {
		next, ok := cur.Child(comp)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// LocateChain is Locate but also returns every directory visited along
// the way, root first, for callers that need to mark the ancestor spine
// (the prune propagator's up_chain bit).
func LocateChain(root *Node, comps []string) ([]*Node, bool) {
	chain := []*Node{root}
	cur := root
	for _, comp := range comps {
		next, ok := cur.Child(comp)
		if !ok {
			return nil, false
		}
		chain = append(chain, next)
		cur = next
	}
	return chain, true
}

// LocateAny resolves comps to any node, not just a directory: every
// component but the last must be a directory (walked via the
// filename->index map); the last component is found by a linear scan of
// its parent's child vector, since non-directory children aren't mapped.
// The returned chain includes every ancestor directory plus the found
// node itself, root first.
func LocateAny(root *Node, comps []string) (*Node, []*Node, bool) {
	if len(comps) == 0 {
		return root, []*Node{root}, true
	}
	dirChain, ok := LocateChain(root, comps[:len(comps)-1])
	if !ok {
		return nil, nil, false
	}
	parent := dirChain[len(dirChain)-1]
	leaf := comps[len(comps)-1]
	for _, child := range parent.Children {
		if child.Filename == leaf {
			return child, append(dirChain, child), true
		}
	}
	return nil, nil, false
}
