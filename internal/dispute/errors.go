package dispute

import "errors"

var (
	ErrNotFound       = errors.New("dispute not found")
	ErrInvalidDispute = errors.New("invalid dispute")

	ErrInvalidTransition     = errors.New("invalid dispute transition")
	ErrAlreadyResolved       = errors.New("dispute already resolved")
	ErrMissingResolutionText = errors.New("resolution text is required")
)
