package workflow

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/streamhive/streambridge/types"
)

// Structural limits enforced before a graph is activated.
const (
	maxPrimaryInputs = 1
	maxInputs        = 2
	maxOutputs       = 3
)

// validationError builds the structured error the pipeline surfaces when
// a graph is rejected. The previously active graph stays in effect.
func validationError(format string, args ...any) *types.Error {
	return types.NewError(types.ErrWorkflowValidation, fmt.Sprintf(format, args...))
}

// IsValidationError reports whether err is a graph validation failure.
func IsValidationError(err error) bool {
	return types.GetErrorCode(err) == types.ErrWorkflowValidation
}

// nodeCounts tallies the graph's nodes by role.
type nodeCounts struct {
	primary int
	inputs  int // ordinary (non-primary) input nodes
	outputs int
}

func countRoles(g Graph) nodeCounts {
	var c nodeCounts
	for _, node := range g {
		role := RoleOf(node.ClassType)
		switch {
		case role == RolePrimaryInput:
			c.primary++
		case role.IsInput():
			c.inputs++
		case role.IsOutput():
			c.outputs++
		}
	}
	return c
}

// Validate checks the structural invariants without converting:
// at most one primary input; at most two ordinary inputs when no primary
// input exists; at most three outputs; at least one input and one output.
func Validate(g Graph) error {
	c := countRoles(g)
	if c.primary > maxPrimaryInputs {
		return validationError("too many primary inputs: %d (max %d)", c.primary, maxPrimaryInputs)
	}
	if c.primary == 0 && c.inputs > maxInputs {
		return validationError("too many inputs: %d (max %d)", c.inputs, maxInputs)
	}
	if c.outputs > maxOutputs {
		return validationError("too many outputs: %d (max %d)", c.outputs, maxOutputs)
	}
	if c.primary+c.inputs == 0 {
		return validationError("missing input node")
	}
	if c.outputs == 0 {
		return validationError("missing output node")
	}
	return nil
}

// ValidateAndConvert validates the graph's structure and, on success,
// returns a deep copy with recognized generic node types rewritten to the
// canonical tensor-exchange node types: the live-frame entry node becomes
// a tensor-input node with empty inputs, and each recognized image output
// node becomes a tensor-output node carrying its original "images"
// reference. The input graph is never mutated; on error it is returned
// unchanged semantics-wise (the caller keeps its previous graph active).
func ValidateAndConvert(g Graph, logger *zap.Logger) (Graph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := Validate(g); err != nil {
		return nil, err
	}

	out := g.Clone()
	converted := 0

	// The live-frame entry is the primary input when present, otherwise
	// a lone generic image input.
	if id, ok := liveFrameEntry(out); ok {
		out[id] = &Node{ClassType: NodeTensorInput, Inputs: map[string]any{}}
		converted++
	}

	for id, node := range out {
		switch node.ClassType {
		case NodePreviewImage, NodeSaveImage:
			out[id] = &Node{
				ClassType: NodeTensorOutput,
				Inputs:    map[string]any{"images": cloneValue(node.Inputs["images"])},
			}
			converted++
		}
	}

	logger.Debug("graph converted",
		zap.Int("nodes", len(out)),
		zap.Int("rewritten", converted))
	return out, nil
}

// liveFrameEntry picks the node that will receive live frames: the
// primary input node if one exists, otherwise the single generic image
// input. Returns false when no node is eligible (the graph already uses
// canonical tensor nodes, or has multiple generic inputs that stay as
// static assets).
func liveFrameEntry(g Graph) (string, bool) {
	var primaryID string
	var imageIDs []string
	for id, node := range g {
		switch node.ClassType {
		case NodePrimaryLoadImage:
			primaryID = id
		case NodeLoadImage:
			imageIDs = append(imageIDs, id)
		}
	}
	if primaryID != "" {
		return primaryID, true
	}
	if len(imageIDs) == 1 {
		return imageIDs[0], true
	}
	return "", false
}
