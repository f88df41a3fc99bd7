package graph

import "fmt"

// ValidationError reports a malformed graph: bad edge probabilities or a
// belief partition that is not a disjoint cover of the non-root nodes.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid graph: " + e.Reason
}

// DuplicateNodeError reports an attempt to add a node that already exists.
type DuplicateNodeError[K comparable] struct {
	ID K
}

func (e *DuplicateNodeError[K]) Error() string {
	return fmt.Sprintf("node %v already exists", e.ID)
}

// MissingNodeError reports a reference to a node that was never added.
type MissingNodeError[K comparable] struct {
	ID K
}

func (e *MissingNodeError[K]) Error() string {
	return fmt.Sprintf("node %v does not exist", e.ID)
}

// WrongEdgeEndpointError reports an edge with an illegal endpoint, such as an
// edge into the root.
type WrongEdgeEndpointError[K comparable] struct {
	From K
	To   K
}

func (e *WrongEdgeEndpointError[K]) Error() string {
	return fmt.Sprintf("edge %v -> %v has an illegal endpoint: the root cannot be a child", e.From, e.To)
}
