// Package calltree reconstructs the caller chain around a flagged call site
// and classifies it as hot when it is reachable from a performance-critical
// entry point.
package calltree

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/callaudit/pkg/universe"
)

// LimitName is the name of the sentinel node that replaces truncated callers.
const LimitName = "<depth limit>"

const (
	// DefaultMaxDepth bounds the caller chain below the root.
	DefaultMaxDepth = 8
	// DefaultMaxNodes bounds the total size of one tree.
	DefaultMaxNodes = 512
)

// Node is one frame of a call tree. The root is the flagged callee; the
// children of a node are the methods that call it.
type Node struct {
	Method   universe.MethodRef `json:"-"`
	Name     string             `json:"name"`
	Location *universe.Location `json:"location,omitempty"`
	Hot      bool               `json:"hot"`
	Limit    bool               `json:"limit,omitempty"`
	Children []*Node            `json:"children,omitempty"`
}

// PrettyName returns "Type.Method" for the frame.
func (n *Node) PrettyName() string {
	if n == nil {
		return ""
	}
	if n.Limit {
		return n.Name
	}
	return n.Method.PrettyName()
}

// Caller returns the first child, the method that made the flagged call.
func (n *Node) Caller() *Node {
	if n == nil || len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// Depth returns the number of levels in the tree, the root included.
func (n *Node) Depth() int {
	if n == nil {
		return 0
	}
	deepest := 0
	for _, c := range n.Children {
		deepest = max(deepest, c.Depth())
	}
	return deepest + 1
}

// Walk calls fn for n and each descendant in depth-first order.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// TypeHierarchy resolves base types for hot path matching.
type TypeHierarchy interface {
	BaseTypes(typ string) []string
}

// Builder builds call trees. It is safe for concurrent use once configured.
// Hotness does not depend on MaxDepth or MaxNodes: a truncated branch is hot
// when any of its callers reaches an entry point.
type Builder struct {
	Callers  *CallerIndex
	HotPaths *HotPaths
	Types    TypeHierarchy
	// MaxDepth is the deepest caller level expanded; deeper callers are
	// replaced by a limit sentinel. Zero uses DefaultMaxDepth.
	MaxDepth int
	// MaxNodes caps the size of one tree. Zero uses DefaultMaxNodes.
	MaxNodes int

	once sync.Once
	hot  *xsync.Map[*universe.Method, bool]
}

// Build returns the tree for a call to callee made at site.
func (b *Builder) Build(callee universe.MethodRef, site Site) *Node {
	maxDepth := b.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	budget := b.MaxNodes
	if budget <= 0 {
		budget = DefaultMaxNodes
	}
	st := &buildState{b: b, maxDepth: maxDepth, budget: budget - 1}

	root := &Node{Method: callee, Name: callee.FullName()}
	root.Hot = b.matches(callee, false)
	if site.Caller != nil {
		visited := map[string]struct{}{callee.FullName(): {}}
		child := st.expand(site, 1, visited)
		root.Children = []*Node{child}
		root.Hot = root.Hot || child.Hot
	}
	return root
}

type buildState struct {
	b        *Builder
	maxDepth int
	budget   int
}

// expand builds the node for the method making the call at site, then its
// callers. visited holds the methods on the current branch.
func (st *buildState) expand(site Site, depth int, visited map[string]struct{}) *Node {
	ref := site.Caller.Ref
	key := ref.FullName()
	st.budget--
	n := &Node{
		Method:   ref,
		Name:     key,
		Location: site.Location(),
		Hot:      st.b.matches(ref, site.Caller.HotPath),
	}

	callers := st.b.Callers.Callers(ref)
	if len(callers) == 0 {
		return n
	}
	if depth >= st.maxDepth || st.budget <= 0 {
		limit := &Node{Name: LimitName, Limit: true, Hot: st.b.anyReachesHot(callers)}
		n.Children = []*Node{limit}
		n.Hot = n.Hot || limit.Hot
		return n
	}

	visited[key] = struct{}{}
	defer delete(visited, key)

	for k, caller := range callers {
		if _, onBranch := visited[caller.Caller.Ref.FullName()]; onBranch {
			continue
		}
		if st.budget <= 0 {
			limit := &Node{Name: LimitName, Limit: true, Hot: st.b.anyReachesHot(callers[k:])}
			n.Children = append(n.Children, limit)
			n.Hot = n.Hot || limit.Hot
			break
		}
		child := st.expand(caller, depth+1, visited)
		n.Children = append(n.Children, child)
		n.Hot = n.Hot || child.Hot
	}
	return n
}

func (b *Builder) matches(ref universe.MethodRef, directive bool) bool {
	if directive {
		return true
	}
	if b.HotPaths.Len() == 0 {
		return false
	}
	var bases []string
	if b.Types != nil {
		bases = b.Types.BaseTypes(ref.DeclaringType.FullName())
	}
	return b.HotPaths.Match(ref, bases)
}

func (b *Builder) anyReachesHot(sites []Site) bool {
	for _, s := range sites {
		if b.reachesHot(s.Caller) {
			return true
		}
	}
	return false
}

// reachesHot reports whether start or any transitive caller of start is a
// hot entry point. The search is breadth-first with one visited set, so it
// terminates on cyclic call graphs. Results are cached per method.
func (b *Builder) reachesHot(start *universe.Method) bool {
	if start == nil {
		return false
	}
	b.once.Do(func() { b.hot = xsync.NewMap[*universe.Method, bool]() })
	if hot, ok := b.hot.Load(start); ok {
		return hot
	}

	found := false
	visited := map[*universe.Method]struct{}{start: {}}
	queue := []*universe.Method{start}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		if b.matches(m.Ref, m.HotPath) {
			found = true
			break
		}
		for _, s := range b.Callers.Callers(m.Ref) {
			if _, seen := visited[s.Caller]; seen {
				continue
			}
			visited[s.Caller] = struct{}{}
			queue = append(queue, s.Caller)
		}
	}
	b.hot.Store(start, found)
	return found
}
