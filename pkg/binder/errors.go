package binder

import "errors"

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrMissingContentType   = errors.New("missing content type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrInvalidQuery         = errors.New("invalid query parameter")
	ErrInvalidPath          = errors.New("invalid path parameter")
	// ErrNotApplicable is returned by a binder that has nothing to read from
	// the request. Wrap skips it.
	ErrNotApplicable = errors.New("binder not applicable")
)
