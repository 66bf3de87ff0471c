package access

import "errors"

// ErrMissingDependency is returned by New when a required collaborator is nil.
var ErrMissingDependency = errors.New("access: missing dependency")
