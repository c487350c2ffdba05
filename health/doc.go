// Package health aggregates the health of the backend's dependencies for the
// /healthz endpoint.
//
// # Health States
//
//   - Healthy: operating normally
//   - Degraded: serving, but a dependency is failing (for example the last
//     persistence write failed and edits are only held in memory)
//   - Unhealthy: not able to serve
//
// # Usage
//
// Checks are pulled when the endpoint is hit, so a check must be cheap and
// non-blocking:
//
//	checker := health.NewChecker()
//	checker.Register("persistence", func() health.Status {
//		return health.FromError("persistence", persister.LastError(), "last write succeeded")
//	})
//
//	status := checker.Run("eipcanvas")
//	if status.IsUnhealthy() {
//		// answer 503
//	}
//
// Aggregation: any unhealthy sub-status makes the system unhealthy; otherwise
// any degraded sub-status makes it degraded.
//
// Error messages passed through FromError are sanitized: URLs, file paths, IP
// addresses, ports and credential assignments are replaced by placeholders.
package health
