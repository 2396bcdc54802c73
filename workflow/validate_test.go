package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(classType string, inputs map[string]any) *Node {
	if inputs == nil {
		inputs = map[string]any{}
	}
	return &Node{ClassType: classType, Inputs: inputs}
}

func TestValidate_TooManyInputs(t *testing.T) {
	g := Graph{
		"1": node(NodeLoadImage, nil),
		"2": node(NodeLoadImage, nil),
		"3": node(NodeAudioTensorIn, nil),
	}
	_, err := ValidateAndConvert(g, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many inputs")
}

func TestValidate_TooManyPrimaryInputs(t *testing.T) {
	g := Graph{
		"1": node(NodePrimaryLoadImage, nil),
		"2": node(NodePrimaryLoadImage, nil),
		"3": node(NodePreviewImage, nil),
	}
	_, err := ValidateAndConvert(g, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many primary inputs")
}

func TestValidate_PrimaryInputLiftsOrdinaryLimit(t *testing.T) {
	// With a primary input present, three ordinary inputs are legal.
	g := Graph{
		"1": node(NodePrimaryLoadImage, nil),
		"2": node(NodeLoadImage, nil),
		"3": node(NodeLoadImage, nil),
		"4": node(NodeAudioTensorIn, nil),
		"5": node(NodePreviewImage, nil),
	}
	_, err := ValidateAndConvert(g, nil)
	require.NoError(t, err)
}

func TestValidate_TooManyOutputs(t *testing.T) {
	g := Graph{
		"1": node(NodeLoadImage, nil),
		"2": node(NodePreviewImage, nil),
		"3": node(NodeAudioTensorOut, nil),
		"4": node(NodePreviewImage, nil),
		"5": node(NodeTextTensorOut, nil),
	}
	_, err := ValidateAndConvert(g, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many outputs")
}

func TestValidate_MissingInput(t *testing.T) {
	g := Graph{"1": node(NodePreviewImage, nil)}
	_, err := ValidateAndConvert(g, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing input")
}

func TestValidate_MissingOutput(t *testing.T) {
	g := Graph{"1": node(NodeLoadImage, nil)}
	_, err := ValidateAndConvert(g, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing output")
}

func TestValidate_ErrorsAreValidationErrors(t *testing.T) {
	_, err := ValidateAndConvert(Graph{"1": node(NodeLoadImage, nil)}, nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestConvert_RewritesGenericNodes(t *testing.T) {
	g := Graph{
		"12": node(NodeLoadImage, map[string]any{"image": "sampled_frame.jpg"}),
		"13": node(NodePreviewImage, map[string]any{"images": []any{"12", float64(0)}}),
	}
	out, err := ValidateAndConvert(g, nil)
	require.NoError(t, err)

	require.Contains(t, out, "12")
	assert.Equal(t, NodeTensorInput, out["12"].ClassType)
	assert.Empty(t, out["12"].Inputs)

	require.Contains(t, out, "13")
	assert.Equal(t, NodeTensorOutput, out["13"].ClassType)
	assert.Equal(t, []any{"12", float64(0)}, out["13"].Inputs["images"])
}

func TestConvert_DoesNotMutateOriginal(t *testing.T) {
	g := Graph{
		"12": node(NodeLoadImage, map[string]any{"image": "sampled_frame.jpg"}),
		"13": node(NodePreviewImage, map[string]any{"images": []any{"12", float64(0)}}),
	}
	_, err := ValidateAndConvert(g, nil)
	require.NoError(t, err)
	assert.Equal(t, NodeLoadImage, g["12"].ClassType)
	assert.Equal(t, "sampled_frame.jpg", g["12"].Inputs["image"])
}

func TestConvert_PrimaryInputBecomesEntry(t *testing.T) {
	// With a primary input present, the generic LoadImage nodes stay as
	// static assets and only the primary is rewritten.
	g := Graph{
		"1": node(NodePrimaryLoadImage, map[string]any{"image": "live.jpg"}),
		"2": node(NodeLoadImage, map[string]any{"image": "style.png"}),
		"3": node(NodePreviewImage, map[string]any{"images": []any{"1", float64(0)}}),
	}
	out, err := ValidateAndConvert(g, nil)
	require.NoError(t, err)
	assert.Equal(t, NodeTensorInput, out["1"].ClassType)
	assert.Equal(t, NodeLoadImage, out["2"].ClassType)
}

func TestConvert_CanonicalGraphPassesUnchanged(t *testing.T) {
	g := Graph{
		"a": node(NodeTensorInput, nil),
		"b": node(NodeTensorOutput, map[string]any{"images": []any{"a", float64(0)}}),
	}
	out, err := ValidateAndConvert(g, nil)
	require.NoError(t, err)
	assert.Equal(t, NodeTensorInput, out["a"].ClassType)
	assert.Equal(t, NodeTensorOutput, out["b"].ClassType)
}
