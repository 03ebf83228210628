package llm

import "errors"

var (
	// ErrProvider indicates that the provider returned a failure or an
	// unparseable response. The pipeline treats it as a soft failure: the
	// affected stage is skipped, never the whole request.
	ErrProvider = errors.New("llm provider error")

	// ErrProviderTimeout indicates that the provider did not answer within
	// the stage's time budget.
	ErrProviderTimeout = errors.New("llm provider timeout")
)
