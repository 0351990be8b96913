package checkout

import "errors"

var (
	ErrSuperseded         = errors.New("checkout attempt superseded by a newer one")
	ErrCancelled          = errors.New("checkout attempt cancelled")
	ErrNoTransition       = errors.New("no transition available")
	ErrTransitionRejected = errors.New("transition rejected by guard")
)
