// Package logging provides structured logging utilities for kubeconfig-sync.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Handler construction from CLI level and format flags
//   - Consistent attribute naming across the codebase
//   - Host/URL sanitization for API server addresses
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithSyncPath(slog.Default(), "/home/me/.kube")
//	logger.Info("file changed",
//	    logging.FilePath(path),
//	    logging.Event("change"))
//
// Sanitize sensitive data before logging:
//
//	logger.Warn("cluster unreachable", logging.Host(apiURL), logging.SanitizedErr(err))
//
// # Security Considerations
//
// Kubeconfig contents and credentials are never logged. API server URLs have
// IP addresses redacted to prevent topology leakage.
package logging
