package bvh

import (
	"errors"
	"fmt"
)

var (
	ErrTopologyChanged  = errors.New("bvh: vertex data does not match mesh topology")
	ErrInvalidMeshIndex = errors.New("bvh: invalid mesh index")
	ErrInvalidInstance  = errors.New("bvh: invalid instance index")
	ErrNotBuilt         = errors.New("bvh: structure has not been built")
	ErrStale            = errors.New("bvh: structure has pending changes")
	ErrUnknownSplit     = errors.New("bvh: unknown split strategy")
	ErrInvalidNodes     = errors.New("bvh: invalid node list")
)

// DebugChecks turns caller contract violations (querying a structure that
// was never built, refitting with a different topology) into panics.
var DebugChecks = false

func assertf(cond bool, format string, args ...interface{}) {
	if !cond && DebugChecks {
		panic(fmt.Sprintf("bvh: "+format, args...))
	}
}
