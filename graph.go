package formula

// NodeState is the traversal state of a graph node
type NodeState uint8

const (
	Unvisited NodeState = iota
	InProgress
	Done
)

// DependencyNode represents a reference in the dependency graph
type DependencyNode struct {
	ID  uint32
	Ref string // canonical reference

	// ids of the references this node reads, and of the nodes reading it.
	// kept as ordered slices so traversals are deterministic.
	Precedents []uint32
	Dependents []uint32
}

// DependencyGraph is a transient graph over canonical references. an edge
// A -> B means "B's formula references A". nodes live in an arena indexed
// by the ids of a ReferenceTable.
type DependencyGraph struct {
	refs  *ReferenceTable
	nodes []*DependencyNode
	edges map[[2]uint32]struct{}
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		refs:  NewReferenceTable(),
		edges: make(map[[2]uint32]struct{}),
	}
}

// GetOrCreateNode gets an existing node or creates a new one
func (dg *DependencyGraph) GetOrCreateNode(ref string) *DependencyNode {
	id := dg.refs.Intern(ref)
	if int(id) < len(dg.nodes) {
		return dg.nodes[id]
	}

	node := &DependencyNode{ID: id, Ref: ref}
	dg.nodes = append(dg.nodes, node)
	return node
}

// GetNode retrieves a node if it exists
func (dg *DependencyGraph) GetNode(ref string) (*DependencyNode, bool) {
	id, exists := dg.refs.Contains(ref)
	if !exists {
		return nil, false
	}
	return dg.nodes[id], true
}

// AddCellDependency records that from reads to
func (dg *DependencyGraph) AddCellDependency(from, to string) {
	fromNode := dg.GetOrCreateNode(from)
	toNode := dg.GetOrCreateNode(to)

	key := [2]uint32{fromNode.ID, toNode.ID}
	if _, exists := dg.edges[key]; exists {
		return
	}
	dg.edges[key] = struct{}{}

	fromNode.Precedents = append(fromNode.Precedents, toNode.ID)
	toNode.Dependents = append(toNode.Dependents, fromNode.ID)
}

// SetPrecedents replaces everything ref reads with deps
func (dg *DependencyGraph) SetPrecedents(ref string, deps []string) {
	node := dg.GetOrCreateNode(ref)

	// drop the old edges from both sides
	for _, precedentID := range node.Precedents {
		delete(dg.edges, [2]uint32{node.ID, precedentID})
		precedent := dg.nodes[precedentID]
		precedent.Dependents = removeID(precedent.Dependents, node.ID)
	}
	node.Precedents = nil

	for _, dep := range deps {
		dg.AddCellDependency(ref, dep)
	}
}

func removeID(ids []uint32, id uint32) []uint32 {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

// GetDirectDependents returns the references directly reading ref
func (dg *DependencyGraph) GetDirectDependents(ref string) []string {
	node, exists := dg.GetNode(ref)
	if !exists {
		return nil
	}
	return dg.refsOf(node.Dependents)
}

// GetDirectPrecedents returns the references ref directly reads
func (dg *DependencyGraph) GetDirectPrecedents(ref string) []string {
	node, exists := dg.GetNode(ref)
	if !exists {
		return nil
	}
	return dg.refsOf(node.Precedents)
}

func (dg *DependencyGraph) refsOf(ids []uint32) []string {
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		result = append(result, dg.nodes[id].Ref)
	}
	return result
}

// GetAllDependents returns every node downstream of ref in breadth-first
// order, without duplicates and without ref itself
func (dg *DependencyGraph) GetAllDependents(ref string) []uint32 {
	start, exists := dg.GetNode(ref)
	if !exists {
		return nil
	}

	seen := make([]bool, len(dg.nodes))
	seen[start.ID] = true
	queue := []uint32{start.ID}
	var result []uint32

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dependentID := range dg.nodes[id].Dependents {
			if seen[dependentID] {
				continue
			}
			seen[dependentID] = true
			result = append(result, dependentID)
			queue = append(queue, dependentID)
		}
	}
	return result
}

// HasCycleFrom runs a depth-first search along precedent edges starting
// at ref and reports whether it reaches a node that is still in progress
func (dg *DependencyGraph) HasCycleFrom(ref string) bool {
	start, exists := dg.GetNode(ref)
	if !exists {
		return false
	}

	state := make([]NodeState, len(dg.nodes))

	// explicit stack of (node, next precedent index) frames
	type frame struct {
		id   uint32
		next int
	}
	stack := []frame{{id: start.ID}}
	state[start.ID] = InProgress

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		precedents := dg.nodes[top.id].Precedents

		if top.next == len(precedents) {
			state[top.id] = Done
			stack = stack[:len(stack)-1]
			continue
		}

		nextID := precedents[top.next]
		top.next++

		switch state[nextID] {
		case InProgress:
			return true
		case Unvisited:
			state[nextID] = InProgress
			stack = append(stack, frame{id: nextID})
		}
	}
	return false
}

// CalculationOrder orders root and the given dependents with Kahn's
// algorithm, counting only edges inside that set. root comes first and is
// not included in the result. nodes caught in a cycle are returned
// separately, in the order they were given.
func (dg *DependencyGraph) CalculationOrder(rootID uint32, dependents []uint32) (ordered, unordered []uint32) {
	inSet := make([]bool, len(dg.nodes))
	inSet[rootID] = true
	for _, id := range dependents {
		inSet[id] = true
	}

	set := append([]uint32{rootID}, dependents...)
	inDegree := make([]int, len(dg.nodes))
	for _, id := range set {
		for _, precedentID := range dg.nodes[id].Precedents {
			if inSet[precedentID] {
				inDegree[id]++
			}
		}
	}

	var queue []uint32
	for _, id := range set {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	placed := make([]bool, len(dg.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		placed[id] = true
		if id != rootID {
			ordered = append(ordered, id)
		}

		for _, dependentID := range dg.nodes[id].Dependents {
			if !inSet[dependentID] {
				continue
			}
			inDegree[dependentID]--
			if inDegree[dependentID] == 0 {
				queue = append(queue, dependentID)
			}
		}
	}

	for _, id := range dependents {
		if !placed[id] {
			unordered = append(unordered, id)
		}
	}
	return ordered, unordered
}

// NodeCount returns the number of nodes in the graph
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

// buildGraph builds the graph for a set of cells. every cell gets a node
// and every formula cell gets edges to its dependencies.
func buildGraph(cells []Cell, maxRangeSize int) *DependencyGraph {
	dg := NewDependencyGraph()
	for _, cell := range cells {
		ref := NormalizeReference(cell.Reference())
		if ref == "" {
			continue
		}
		if HasFormula(cell) {
			dg.SetPrecedents(ref, parseDependencies(cell.FormulaText(), maxRangeSize))
		} else {
			dg.GetOrCreateNode(ref)
		}
	}
	return dg
}
