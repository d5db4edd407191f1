package eventstream

import "errors"

// ErrNilEvent indicates a nil record event payload was provided to a publisher.
var ErrNilEvent = errors.New("nil record event")
