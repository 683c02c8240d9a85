package taskgraph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// independentCycleCheck is a plain recursive DFS, deliberately unrelated to
// the Kahn-based check used by the package.
func independentCycleCheck(tasks []Task) bool {
	edges := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		edges[t.ID] = t.DependsOn
	}
	state := make(map[string]int)
	var visit func(id string) bool
	visit = func(id string) bool {
		switch state[id] {
		case 1:
			return true
		case 2:
			return false
		}
		state[id] = 1
		for _, d := range edges[id] {
			if visit(d) {
				return true
			}
		}
		state[id] = 2
		return false
	}
	for _, t := range tasks {
		if visit(t.ID) {
			return true
		}
	}
	return false
}

func TestGateway_RandomOperationsStayAcyclic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		n := 3 + rng.Intn(12)
		tasks := make([]Task, n)
		for i := range tasks {
			tasks[i] = Task{ID: fmt.Sprintf("t%02d", i), Title: "task", Category: Categories[i%len(Categories)]}
		}
		s, err := NewSession(SessionStart{Tasks: tasks})
		require.NoError(t, err)

		accepted, rejected := 0, 0
		for step := 0; step < 200; step++ {
			a := tasks[rng.Intn(n)].ID
			b := tasks[rng.Intn(n)].ID

			switch rng.Intn(5) {
			case 0:
				require.NoError(t, s.RemoveDependency(a, b))
			case 1:
				require.NoError(t, s.SetSelected(a, rng.Intn(2) == 0))
			default:
				predicted := s.WouldCreateCycle(a, b)
				err := s.AddDependency(a, b)
				if predicted {
					require.ErrorIs(t, err, ErrCycle, "round %d step %d: %s -> %s", round, step, a, b)
					rejected++
				} else {
					require.NoError(t, err)
					accepted++
					// the reverse edge must now be refused
					assert.True(t, s.WouldCreateCycle(b, a))
				}
			}

			require.False(t, independentCycleCheck(s.Tasks()), "round %d step %d", round, step)
			require.NoError(t, s.Acyclic())
		}
		assert.Positive(t, accepted)
		assert.Positive(t, rejected)
	}
}

func TestGraph_AcyclicDetectsStoredCycle(t *testing.T) {
	tasks := []*Task{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"c"}},
		{ID: "c", DependsOn: []string{"a"}},
		{ID: "d"},
	}
	err := newGraph(tasks).acyclic()

	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cerr.Path)
}

func TestGraph_SelfLoopIsACycle(t *testing.T) {
	err := newGraph([]*Task{{ID: "a", DependsOn: []string{"a"}}}).acyclic()
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"a", "a"}, cerr.Path)
}

func TestGraph_PathToTerminatesOnMalformedGraph(t *testing.T) {
	g := newGraph([]*Task{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c"},
	})
	assert.Nil(t, g.pathTo("a", "c"))
	assert.Equal(t, []string{"a", "b"}, g.pathTo("a", "b"))
}

func TestGraph_TransitiveDependents(t *testing.T) {
	s := newTestSession(t, []Task{
		{ID: "a", Title: "a"}, {ID: "b", Title: "b"}, {ID: "c", Title: "c"}, {ID: "d", Title: "d"},
	})
	require.NoError(t, s.AddDependency("b", "a"))
	require.NoError(t, s.AddDependency("c", "b"))
	require.NoError(t, s.AddDependency("d", "a"))

	assert.Equal(t, []string{"b", "d", "c"}, s.TransitiveDependents("a"))
	assert.Empty(t, s.TransitiveDependents("c"))
}
