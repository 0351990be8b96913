package cache

import "errors"

var (
	ErrNotFound    = errors.New("cache: key not found")
	ErrOutOfDate   = errors.New("cache: state may be out of date, please refresh")
	ErrDecodeEntry = errors.New("cache: failed to decode cached value")
	ErrEncodeEntry = errors.New("cache: failed to encode value")
)
