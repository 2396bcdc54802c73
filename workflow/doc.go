// Package workflow models the computation graphs submitted to inference
// backends: a flat mapping of node-id to node, each node carrying a
// class-type tag and an inputs mapping that may reference other nodes.
//
// The package validates graph structure before activation, rewrites
// recognized generic node types into the canonical tensor-exchange node
// types the queue layer expects, and detects which media modalities a
// graph accepts as input and produces as output. Node behavior is keyed
// by the class-type string through a closed role registry; unrecognized
// class types are ignored rather than rejected, so graphs can carry
// arbitrary processing nodes between their inputs and outputs.
package workflow
