package domain

import "errors"

// Sentinel errors for the pipeline's error taxonomy. Provider-side failures
// are wrapped with %w so the original diagnostic text survives; callers only
// ever branch on these sentinels.
var (
	// ErrEmptyPrompt rejects a request before any provider is contacted.
	ErrEmptyPrompt = errors.New("prompt is required")

	// ErrUnknownModel means no routing rule claimed the model identifier.
	ErrUnknownModel = errors.New("invalid model selected")

	// ErrNoContent means a provider answered successfully but produced an
	// empty or absent text payload.
	ErrNoContent = errors.New("no content generated")
)
