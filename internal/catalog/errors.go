package catalog

import "errors"

// ErrNotFound marks lookups whose id or key matched nothing.
var ErrNotFound = errors.New("not found")

// ErrMissingKey marks drafts missing a natural key field.
var ErrMissingKey = errors.New("missing natural key field")
