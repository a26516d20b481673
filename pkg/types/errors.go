package types

import "errors"

// Closed set of failure kinds produced at the source of each failure.
// Boundaries (MCP tools) map these to transport codes exactly once;
// nothing in the engine inspects error message text.
var (
	// ErrNotFound indicates an unknown tag, playbook, or trace id.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates an out-of-range or self-referential input.
	ErrValidation = errors.New("validation failed")
	// ErrParse indicates malformed structured output from the LLM provider.
	ErrParse = errors.New("parse failed")
	// ErrProvider indicates a vector, LLM, or persistence call failure.
	ErrProvider = errors.New("provider failed")
)
