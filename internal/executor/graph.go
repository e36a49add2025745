package executor

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

var (
	ErrUnknownTask   = errors.New("unknown task")
	ErrCycle         = errors.New("dependency would create a cycle")
	ErrSelfDependent = errors.New("task cannot depend on itself")
)

// Graph is a set of tasks with precedence edges. Run executes it level by
// level: a task starts only after every task it depends on has finished.
type Graph struct {
	g     *simple.DirectedGraph
	tasks map[int64]func()
}

func NewGraph() *Graph {
	return &Graph{
		g:     simple.NewDirectedGraph(),
		tasks: make(map[int64]func()),
	}
}

// AddTask adds id to the graph. A non-nil fn replaces the task's work; a
// node without work only orders its neighbours.
func (g *Graph) AddTask(id int64, fn func()) {
	if _, ok := g.tasks[id]; !ok {
		g.g.AddNode(simple.Node(id))
		g.tasks[id] = nil
	}
	if fn != nil {
		g.tasks[id] = fn
	}
}

func (g *Graph) HasTask(id int64) bool {
	_, ok := g.tasks[id]
	return ok
}

func (g *Graph) Len() int {
	return len(g.tasks)
}

// Runnable counts the tasks that have work attached.
func (g *Graph) Runnable() int {
	n := 0
	for _, fn := range g.tasks {
		if fn != nil {
			n++
		}
	}
	return n
}

// PathExists reports whether from must run before to.
func (g *Graph) PathExists(from, to int64) bool {
	if !g.HasTask(from) || !g.HasTask(to) {
		return false
	}
	return topo.PathExistsIn(g.g, simple.Node(from), simple.Node(to))
}

// DependsOn orders task before dependent. An edge that would close a cycle
// is rejected.
func (g *Graph) DependsOn(dependent, task int64) error {
	if dependent == task {
		return fmt.Errorf("%w: %d", ErrSelfDependent, task)
	}
	if !g.HasTask(dependent) {
		return fmt.Errorf("%w: %d", ErrUnknownTask, dependent)
	}
	if !g.HasTask(task) {
		return fmt.Errorf("%w: %d", ErrUnknownTask, task)
	}
	if g.PathExists(dependent, task) {
		return fmt.Errorf("%w: %d -> %d", ErrCycle, task, dependent)
	}
	g.g.SetEdge(g.g.NewEdge(simple.Node(task), simple.Node(dependent)))
	return nil
}

// Levels groups tasks so that every dependency of a task sits in an earlier
// level. Within a level tasks are ordered by id.
func (g *Graph) Levels() ([][]int64, error) {
	order, err := topo.SortStabilized(g.g, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycle, err)
	}
	depth := make(map[int64]int, len(order))
	var levels [][]int64
	for _, node := range order {
		id := node.ID()
		level := 0
		preds := g.g.To(id)
		for preds.Next() {
			if d := depth[preds.Node().ID()] + 1; d > level {
				level = d
			}
		}
		depth[id] = level
		for len(levels) <= level {
			levels = append(levels, nil)
		}
		levels[level] = append(levels[level], id)
	}
	for _, level := range levels {
		slices.Sort(level)
	}
	return levels, nil
}

// Run executes every task on e and blocks until the whole graph has finished.
func (g *Graph) Run(e *Executor) error {
	levels, err := g.Levels()
	if err != nil {
		return err
	}
	for _, level := range levels {
		e.ParallelFor(len(level), func(i int) {
			if fn := g.tasks[level[i]]; fn != nil {
				fn()
			}
		})
	}
	return nil
}
