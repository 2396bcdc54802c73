package pipeline

import (
	"errors"

	"github.com/streamhive/streambridge/internal/tensorq"
	"github.com/streamhive/streambridge/types"
)

// mapPipelineErr translates queue sentinels into structured errors so
// callers see one error taxonomy across the pipeline surface.
func mapPipelineErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tensorq.ErrTimeout):
		return types.NewError(types.ErrInputTimeout, "timed out waiting for input frame").
			WithRetryable(true).WithCause(err)
	case errors.Is(err, tensorq.ErrClosed):
		return types.NewError(types.ErrClientClosed, "pipeline is shut down").WithCause(err)
	default:
		return err
	}
}
