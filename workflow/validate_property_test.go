package workflow

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// buildGraph assembles a graph with the requested number of nodes per role,
// padded with unrecognized processing nodes.
func buildGraph(primary, inputs, outputs, other int) Graph {
	g := Graph{}
	id := 0
	add := func(classType string) {
		id++
		g[fmt.Sprintf("%d", id)] = node(classType, nil)
	}
	for i := 0; i < primary; i++ {
		add(NodePrimaryLoadImage)
	}
	for i := 0; i < inputs; i++ {
		add(NodeLoadImage)
	}
	for i := 0; i < outputs; i++ {
		add(NodePreviewImage)
	}
	for i := 0; i < other; i++ {
		add("KSampler")
	}
	return g
}

func TestProperty_ValidationMatchesInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("graphs are accepted exactly when the structural invariants hold", prop.ForAll(
		func(primary, inputs, outputs, other int) bool {
			g := buildGraph(primary, inputs, outputs, other)
			err := Validate(g)

			valid := primary <= 1 &&
				(primary > 0 || inputs <= 2) &&
				outputs <= 3 &&
				primary+inputs >= 1 &&
				outputs >= 1

			if valid != (err == nil) {
				t.Logf("primary=%d inputs=%d outputs=%d other=%d err=%v",
					primary, inputs, outputs, other, err)
				return false
			}
			return true
		},
		gen.IntRange(0, 3),
		gen.IntRange(0, 4),
		gen.IntRange(0, 5),
		gen.IntRange(0, 3),
	))

	properties.Property("conversion never changes the accepted node count", prop.ForAll(
		func(inputs, outputs, other int) bool {
			g := buildGraph(0, inputs, outputs, other)
			if Validate(g) != nil {
				return true // rejected graphs are not converted
			}
			out, err := ValidateAndConvert(g, nil)
			if err != nil {
				return false
			}
			return len(out) == len(g)
		},
		gen.IntRange(1, 2),
		gen.IntRange(1, 3),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
