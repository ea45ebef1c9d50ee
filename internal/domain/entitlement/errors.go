package entitlement

import "errors"

// ErrVersionConflict is returned by Mutate when the row changed between the locked read and the write.
var ErrVersionConflict = errors.New("entitlement was modified concurrently")
