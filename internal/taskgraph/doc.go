// Package taskgraph holds the task configuration session of the JML wizard:
// an ordered store of generated tasks, the dependency graph derived from
// their DependsOn lists, the gateway through which tasks change, and the
// views (category counts, progress, blocking) computed from them.
//
// The dependency relation is kept acyclic at all times. Edges are checked
// at insertion by walking the existing DependsOn edges from the proposed
// prerequisite; Acyclic re-checks the whole graph with Kahn's algorithm.
package taskgraph
