package persona

import "errors"

var (
	ErrNotFound      = errors.New("persona not found")
	ErrNotConfigured = errors.New("persona source not configured")
)
