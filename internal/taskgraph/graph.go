package taskgraph

import (
	"container/heap"
)

// graph is a read-only adjacency view over the session's DependsOn lists.
// The task records stay the source of truth; a graph is built on demand and
// never mutated.
type graph struct {
	order    []string            // insertion order
	index    map[string]int      // id -> insertion index
	edges    map[string][]string // task -> tasks it depends on
	selected map[string]bool
}

func newGraph(tasks []*Task) graph {
	g := graph{
		order:    make([]string, 0, len(tasks)),
		index:    make(map[string]int, len(tasks)),
		edges:    make(map[string][]string, len(tasks)),
		selected: make(map[string]bool, len(tasks)),
	}
	for i, t := range tasks {
		g.order = append(g.order, t.ID)
		g.index[t.ID] = i
		g.edges[t.ID] = t.DependsOn
		g.selected[t.ID] = t.IsSelected
	}
	return g
}

// pathTo walks DependsOn edges from start and returns the first path found
// that reaches target, start and target included. It returns nil when target
// is unreachable. The visited set bounds the walk to O(V+E) even if the
// stored edges are already malformed.
func (g graph) pathTo(start, target string) []string {
	if start == target {
		return []string{start}
	}

	parent := map[string]string{start: ""}
	stack := []string{start}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]

		for _, next := range g.edges[cur] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			if next == target {
				return unwindPath(parent, start, target)
			}
			stack = append(stack, next)
		}
	}
	return nil
}

func unwindPath(parent map[string]string, start, target string) []string {
	var rev []string
	for cur := target; ; cur = parent[cur] {
		rev = append(rev, cur)
		if cur == start {
			break
		}
	}
	path := make([]string, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}

// cycleWith returns the witness cycle that the edge taskID -> candidateID
// would close, or nil if the edge is safe. A self edge yields [id, id].
func (g graph) cycleWith(taskID, candidateID string) []string {
	if taskID == candidateID {
		return []string{taskID, taskID}
	}
	back := g.pathTo(candidateID, taskID)
	if back == nil {
		return nil
	}
	return append([]string{taskID}, back...)
}

// dependents returns the ids whose DependsOn contains id, in insertion order.
func (g graph) dependents(id string) []string {
	var out []string
	for _, tid := range g.order {
		for _, d := range g.edges[tid] {
			if d == id {
				out = append(out, tid)
				break
			}
		}
	}
	return out
}

// transitiveDependents returns every task that directly or indirectly
// depends on id, breadth-first.
func (g graph) transitiveDependents(id string) []string {
	reverse := make(map[string][]string, len(g.order))
	for _, tid := range g.order {
		for _, d := range g.edges[tid] {
			reverse[d] = append(reverse[d], tid)
		}
	}

	var out []string
	visited := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range reverse[cur] {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder runs Kahn's algorithm over the nodes accepted by keep,
// dependencies first, ties broken by insertion order. Edges to nodes outside
// keep are ignored. The second result is false when a cycle prevented a
// complete ordering.
func (g graph) topoOrder(keep func(id string) bool) ([]string, bool) {
	indeg := make(map[string]int, len(g.order))
	waiting := make(map[string][]string, len(g.order)) // dependency -> dependents
	total := 0
	for _, id := range g.order {
		if !keep(id) {
			continue
		}
		total++
		indeg[id] = 0
		seen := make(map[string]bool, len(g.edges[id]))
		for _, d := range g.edges[id] {
			if _, known := g.index[d]; !known || !keep(d) || seen[d] {
				continue
			}
			seen[d] = true
			indeg[id]++
			waiting[d] = append(waiting[d], id)
		}
	}

	ready := &indexHeap{}
	heap.Init(ready)
	for _, id := range g.order {
		if keep(id) && indeg[id] == 0 {
			heap.Push(ready, g.index[id])
		}
	}

	out := make([]string, 0, total)
	for ready.Len() > 0 {
		id := g.order[heap.Pop(ready).(int)]
		out = append(out, id)
		for _, dep := range waiting[id] {
			indeg[dep]--
			if indeg[dep] == 0 {
				heap.Push(ready, g.index[dep])
			}
		}
	}
	return out, len(out) == total
}

// findCycle returns one witness cycle using a colored DFS, or nil.
func (g graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.order))
	var stack []string
	var cycle []string

	var dfs func(u string) bool
	dfs = func(u string) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, v := range g.edges[u] {
			if _, known := g.index[v]; !known {
				continue
			}
			switch color[v] {
			case white:
				if dfs(v) {
					return true
				}
			case gray:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == v {
						cycle = append(append([]string(nil), stack[i:]...), v)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && dfs(id) {
			return cycle
		}
	}
	return nil
}

// acyclic checks the whole graph with Kahn's algorithm, independently of the
// incremental check done at insertion time.
func (g graph) acyclic() error {
	if _, ok := g.topoOrder(func(string) bool { return true }); ok {
		return nil
	}
	return &CycleError{Path: g.findCycle()}
}
