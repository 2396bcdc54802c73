// Package types provides the shared data model for streambridge: media
// frames with carried timing, tensors exchanged with inference backends,
// and the structured error taxonomy used across the pipeline.
// This package has ZERO dependencies on other streambridge packages to
// avoid circular imports.
package types
