package turndoc

import "github.com/pandora-run/pandora/internal/perrors"

var (
	errNotFound = perrors.ErrNotFound
	errClosed   = perrors.ErrClosed
)
