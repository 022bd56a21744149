package link

import "errors"

// ErrHandleDead is returned by Send when the handle has no live
// connection to write to.
var ErrHandleDead = errors.New("link: handle has no live connection")
