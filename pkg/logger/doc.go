// Package logger builds the *slog.Logger used across licensekit.
//
// New applies functional options (format, level, static attributes and
// context extractors) and returns a logger whose handler injects values
// pulled from context.Context on every record. WithEnvironment selects the
// defaults for development (text, debug) and production/staging (json, info).
//
// Attribute helpers in attr.go keep key names consistent between packages:
//
//	log.ErrorContext(ctx, "license write failed after capture",
//		logger.Event("license_persistence_failure"),
//		logger.OrderID(order.ID),
//		logger.UserID(order.UserID),
//		logger.Error(err),
//	)
//
// Error and the id helpers return an empty slog.Attr for nil or empty
// values, which slog drops, so callers never need nil checks.
package logger
