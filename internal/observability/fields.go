package observability

import "go.uber.org/zap"

// Field constructor aliases so call sites outside the logging layer don't
// import zap directly.
var (
	String   = zap.String
	Int      = zap.Int
	Bool     = zap.Bool
	Float64  = zap.Float64
	Duration = zap.Duration
	Error    = zap.Error
)
