package wbs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nichiki/claude-orchestrator/internal/core"
)

// Load reads a WBS document from path, validates it, and returns a ready
// Graph. Load fails with a LoadError if the file is unreadable or
// unparseable, a CycleError if the task+phase dependency graph is cyclic,
// and a DomainError (ErrCatLoad) if a dependency references an unknown
// task or a task id is duplicated.
func Load(path string) (*Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, core.ErrLoad(path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, core.ErrLoad(path, err)
	}

	return FromDocument(doc)
}

// FromDocument builds a Graph from an already-parsed Document, running the
// same validation Load performs. Exposed separately so callers that already
// have the document in memory (e.g. tests, or a non-YAML source) can build a
// graph without round-tripping through a file.
func FromDocument(doc Document) (*Graph, error) {
	g := newGraph()

	for _, phase := range doc.Phases {
		if _, exists := g.phasePred[phase.ID]; exists {
			return nil, (&core.DomainError{
				Category: core.ErrCatLoad,
				Code:     "DUPLICATE_PHASE",
				Message:  fmt.Sprintf("duplicate phase id %q", phase.ID),
			})
		}
		g.phasePred[phase.ID] = phase.DependsOnPhase
		g.phaseOrder = append(g.phaseOrder, phase.ID)

		for _, t := range phase.Tasks {
			if _, exists := g.tasks[t.ID]; exists {
				return nil, (&core.DomainError{
					Category: core.ErrCatLoad,
					Code:     "DUPLICATE_TASK",
					Message:  fmt.Sprintf("duplicate task id %q", t.ID),
				})
			}
			task := t
			task.Phase = phase.ID
			task.State = StatePending
			g.tasks[t.ID] = &task
			g.taskOrder = append(g.taskOrder, t.ID)
			g.phaseTasks[phase.ID] = append(g.phaseTasks[phase.ID], t.ID)
		}
	}

	// Every referenced dependency id must exist in the task set.
	for _, id := range g.taskOrder {
		for _, dep := range g.tasks[id].Dependencies {
			if _, ok := g.tasks[dep]; !ok {
				return nil, (&core.DomainError{
					Category: core.ErrCatLoad,
					Code:     "UNKNOWN_DEPENDENCY",
					Message:  fmt.Sprintf("task %q depends on unknown task %q", id, dep),
				})
			}
		}
	}

	// Every phase predecessor must exist.
	for phaseID, pred := range g.phasePred {
		if pred == "" {
			continue
		}
		if _, ok := g.phasePred[pred]; !ok {
			return nil, (&core.DomainError{
				Category: core.ErrCatLoad,
				Code:     "UNKNOWN_PHASE",
				Message:  fmt.Sprintf("phase %q depends on unknown phase %q", phaseID, pred),
			})
		}
	}

	if err := checkAcyclic(g); err != nil {
		return nil, err
	}

	return g, nil
}

// checkAcyclic verifies the union of task dependencies and phase
// dependencies forms a DAG. Phase dependencies are modeled as an edge from
// every task in the predecessor phase to every task in the successor phase,
// since all of the former must complete before any of the latter may start.
func checkAcyclic(g *Graph) error {
	adj := make(map[string][]string, len(g.tasks))
	for _, id := range g.taskOrder {
		adj[id] = append(adj[id], g.tasks[id].Dependencies...)
	}
	for phaseID, pred := range g.phasePred {
		if pred == "" {
			continue
		}
		for _, from := range g.phaseTasks[pred] {
			for _, to := range g.phaseTasks[phaseID] {
				adj[to] = append(adj[to], from)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(g.tasks))

	var visit func(id string) error
	visit = func(id string) error {
		state[id] = visiting
		for _, dep := range adj[id] {
			switch state[dep] {
			case visiting:
				return core.ErrCycle(dep)
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[id] = visited
		return nil
	}

	for _, id := range g.taskOrder {
		if state[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}
