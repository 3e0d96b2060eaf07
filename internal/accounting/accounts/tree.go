package accounts

import (
	"sort"

	"github.com/google/uuid"
)

// AnomalyKind classifies stored data the forest builder had to repair.
type AnomalyKind string

const (
	// AnomalyDanglingParent means parent_id points outside the tenant result set.
	AnomalyDanglingParent AnomalyKind = "dangling_parent"
	// AnomalyCycle means the stored parent chain loops back on itself.
	AnomalyCycle AnomalyKind = "cycle"
)

// Anomaly flags an account that was promoted to root.
type Anomaly struct {
	AccountID uuid.UUID   `json:"accountId"`
	Code      string      `json:"code"`
	ParentID  *uuid.UUID  `json:"parentId,omitempty"`
	Kind      AnomalyKind `json:"kind"`
}

// Node is one account with its children ordered by code.
type Node struct {
	Account
	Children []*Node `json:"children"`
}

// Forest is the materialised CoA of one tenant.
type Forest struct {
	Roots     []*Node   `json:"roots"`
	Anomalies []Anomaly `json:"anomalies,omitempty"`
}

// BuildForest attaches every account to its parent in one pass over an
// arena indexed by id. Accounts whose parent is missing, or that sit on a
// stored cycle, become roots and are reported as anomalies.
func BuildForest(accounts []Account) Forest {
	arena := make([]Node, len(accounts))
	index := make(map[uuid.UUID]int, len(accounts))
	for i, a := range accounts {
		arena[i] = Node{Account: a}
		index[a.ID] = i
	}

	children := make([][]int, len(arena))
	parentOf := make([]int, len(arena))
	var roots []int
	var anomalies []Anomaly
	for i := range arena {
		parentOf[i] = -1
		pid := arena[i].ParentID
		if pid == nil {
			roots = append(roots, i)
			continue
		}
		p, ok := index[*pid]
		switch {
		case !ok:
			roots = append(roots, i)
			anomalies = append(anomalies, anomalyFor(arena[i].Account, AnomalyDanglingParent))
		case p == i:
			roots = append(roots, i)
			anomalies = append(anomalies, anomalyFor(arena[i].Account, AnomalyCycle))
		default:
			parentOf[i] = p
			children[p] = append(children[p], i)
		}
	}

	// Anything not reachable from a root hangs off a stored cycle. Promote the
	// lowest code on each loop and mark again until everything is reachable.
	reached := make([]bool, len(arena))
	mark := func(n int) {
		stack := []int{n}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if reached[n] {
				continue
			}
			reached[n] = true
			stack = append(stack, children[n]...)
		}
	}
	for _, r := range roots {
		mark(r)
	}
	for i := range arena {
		if reached[i] {
			continue
		}
		member := lowestOnLoop(arena, parentOf, i)
		p := parentOf[member]
		children[p] = removeIndex(children[p], member)
		parentOf[member] = -1
		roots = append(roots, member)
		anomalies = append(anomalies, anomalyFor(arena[member].Account, AnomalyCycle))
		mark(member)
	}

	for i := range arena {
		kids := children[i]
		sortByCode(arena, kids)
		arena[i].Children = make([]*Node, 0, len(kids))
		for _, k := range kids {
			arena[i].Children = append(arena[i].Children, &arena[k])
		}
	}
	sortByCode(arena, roots)
	forest := Forest{Roots: make([]*Node, 0, len(roots)), Anomalies: anomalies}
	for _, r := range roots {
		forest.Roots = append(forest.Roots, &arena[r])
	}
	return forest
}

// Walk visits nodes depth first in code order.
func (f Forest) Walk(fn func(n *Node, depth int)) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, r := range f.Roots {
		visit(r, 0)
	}
}

// CreatesCycle reports whether giving id the parent newParent would make id
// its own ancestor. parentOf maps every known account to its parent. The walk
// is bounded by the number of accounts so corrupt stored chains terminate;
// exceeding the bound is treated as a cycle.
func CreatesCycle(parentOf map[uuid.UUID]*uuid.UUID, id, newParent uuid.UUID) bool {
	cur := newParent
	for steps := 0; steps <= len(parentOf); steps++ {
		if cur == id {
			return true
		}
		next, ok := parentOf[cur]
		if !ok || next == nil {
			return false
		}
		cur = *next
	}
	return true
}

// Loops returns every parent loop in parentOf, one slice of members per loop.
// Chains that end at a root or leave the map are not loops.
func Loops(parentOf map[uuid.UUID]*uuid.UUID) [][]uuid.UUID {
	const (
		unseen = iota
		onPath
		done
	)
	state := make(map[uuid.UUID]int, len(parentOf))
	var loops [][]uuid.UUID
	for start := range parentOf {
		if state[start] != unseen {
			continue
		}
		var path []uuid.UUID
		index := make(map[uuid.UUID]int)
		cur := start
		for {
			if state[cur] == onPath {
				loops = append(loops, append([]uuid.UUID(nil), path[index[cur]:]...))
				break
			}
			if state[cur] == done {
				break
			}
			state[cur] = onPath
			index[cur] = len(path)
			path = append(path, cur)
			next, ok := parentOf[cur]
			if !ok || next == nil {
				break
			}
			cur = *next
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return loops
}

// ParentIndex builds the id -> parent map CreatesCycle expects.
func ParentIndex(accounts []Account) map[uuid.UUID]*uuid.UUID {
	out := make(map[uuid.UUID]*uuid.UUID, len(accounts))
	for _, a := range accounts {
		out[a.ID] = a.ParentID
	}
	return out
}

// lowestOnLoop follows parents from start until a node repeats and returns
// the loop member with the lowest code.
func lowestOnLoop(arena []Node, parentOf []int, start int) int {
	seen := make(map[int]bool)
	cur := start
	for !seen[cur] {
		seen[cur] = true
		cur = parentOf[cur]
	}
	best := cur
	for n := parentOf[cur]; n != cur; n = parentOf[n] {
		if arena[n].Code < arena[best].Code {
			best = n
		}
	}
	return best
}

func anomalyFor(a Account, kind AnomalyKind) Anomaly {
	return Anomaly{AccountID: a.ID, Code: a.Code, ParentID: a.ParentID, Kind: kind}
}

func sortByCode(arena []Node, idx []int) {
	sort.Slice(idx, func(a, b int) bool { return arena[idx[a]].Code < arena[idx[b]].Code })
}

func removeIndex(list []int, v int) []int {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
