package workflow

// Node is a single node in a computation graph. Inputs maps input names
// to either literal values or [nodeID, outputSlot] references encoded as
// a two-element slice.
type Node struct {
	// ClassType selects the node's behavior inside the backend.
	ClassType string `json:"class_type"`
	// Inputs maps input names to values or node references.
	Inputs map[string]any `json:"inputs"`
}

// Graph is a computation graph keyed by node id.
type Graph map[string]*Node

// Clone returns a deep copy of the graph. Validation and conversion
// operate on a clone so a rejected graph never mutates the caller's copy.
func (g Graph) Clone() Graph {
	out := make(Graph, len(g))
	for id, node := range g {
		out[id] = node.clone()
	}
	return out
}

func (n *Node) clone() *Node {
	c := &Node{
		ClassType: n.ClassType,
		Inputs:    make(map[string]any, len(n.Inputs)),
	}
	for k, v := range n.Inputs {
		c.Inputs[k] = cloneValue(v)
	}
	return c
}

// cloneValue deep-copies the JSON-shaped values a node input can hold:
// scalars, []any node references, and nested maps.
func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// NodeIDs returns the ids of all nodes whose class type satisfies the
// predicate. Order is unspecified.
func (g Graph) NodeIDs(pred func(classType string) bool) []string {
	var ids []string
	for id, node := range g {
		if pred(node.ClassType) {
			ids = append(ids, id)
		}
	}
	return ids
}
