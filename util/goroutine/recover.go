// Package goroutine holds small helpers for supervised goroutines.
package goroutine

import (
	"runtime/debug"

	"go.uber.org/zap"
)

// Recover logs a panic with its stack instead of crashing the process.
// Use as `defer goroutine.Recover("component", logger)` in goroutines
// whose death must not take down their supervisor.
func Recover(component string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		logger.Errorw("Recovered from panic",
			"component", component,
			"panic", r,
			"stack", string(debug.Stack()),
		)
	}
}
