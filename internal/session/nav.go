package session

import (
	"sort"
	"sync"
)

// NavigationController tracks the current question index over the fixed
// question list. Out-of-range jumps and moves past either boundary are
// no-ops, not errors. The visited set only grows and carries no semantics
// beyond "has been displayed at least once".
type NavigationController struct {
	mu      sync.Mutex
	current int
	count   int
	visited map[int]struct{}
}

// NewNavigationController starts at index 0 with it already visited.
func NewNavigationController(count int) *NavigationController {
	n := &NavigationController{
		count:   count,
		visited: make(map[int]struct{}),
	}
	if count > 0 {
		n.visited[0] = struct{}{}
	}
	return n
}

// GoTo jumps to the given index. Out-of-range indices leave the current
// index unchanged.
func (n *NavigationController) GoTo(index int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= n.count {
		return
	}
	n.current = index
	n.visited[index] = struct{}{}
}

// Next advances one question; no-op at the last question.
func (n *NavigationController) Next() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current+1 >= n.count {
		return
	}
	n.current++
	n.visited[n.current] = struct{}{}
}

// Previous moves back one question; no-op at the first question.
func (n *NavigationController) Previous() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == 0 {
		return
	}
	n.current--
	n.visited[n.current] = struct{}{}
}

// Current returns the current question index.
func (n *NavigationController) Current() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// HasVisited reports whether the index has been displayed at least once.
func (n *NavigationController) HasVisited(index int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.visited[index]
	return ok
}

// Visited returns the sorted list of visited indices.
func (n *NavigationController) Visited() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int, 0, len(n.visited))
	for i := range n.visited {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
