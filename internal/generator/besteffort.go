package generator

import "go.uber.org/zap"

// BestEffort runs a side effect and downgrades any failure to a warning.
// It makes the non-propagation policy for pings, embeds and notification
// email explicit at the call site instead of hiding it in scattered
// error handling.
func BestEffort(logger *zap.Logger, operation string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn("Best-effort operation failed",
			zap.String("operation", operation),
			zap.Error(err))
	}
}
