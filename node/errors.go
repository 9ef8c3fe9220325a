package node

import "errors"

var errDisposed = errors.New("node: handle disposed")
