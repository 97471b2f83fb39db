// Package async provides safe execution primitives for side effects that must
// outlive the request that triggered them.
//
// # Key Functions
//
// Detached: run a function synchronously under a context that ignores the
// parent's cancellation, with its own timeout and panic recovery
//
//	err := async.Detached(ctx, 5*time.Second, "provisioning", func(ctx context.Context) error {
//		return notify(ctx)
//	})
//
// SafeGo: the same guarantees in a background goroutine, with errors and panics
// logged through logrus
//
//	done := async.SafeGo(ctx, 5*time.Second, "provisioning", logger, func(ctx context.Context) error {
//		return notify(ctx)
//	})
//
// # Related Packages
//
//   - pkg/auth: runs the new-user provisioning notification through one of these
package async
