// Package observability provides structured logging, Prometheus metrics, health
// probes and OpenTelemetry tracing for authgate.
//
// # Structured Logging
//
// Loggers are logrus loggers with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("port", 8080).Info("Server started")
//
// Request-scoped entries travel in the context:
//
//	observability.FromContext(ctx).WithError(err).Warn("provisioning notification failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveLogin(observability.OutcomeNewUser, time.Since(start))
//
// All Observe* helpers are safe to call on a nil *Metrics, so components can be
// constructed without metrics in tests.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// /healthz always answers 200 while the process runs. /readyz answers 503 when the
// database is unreachable and reports "degraded" when only Redis is down.
//
// # Tracing
//
//	tp, err := observability.InitTracing(ctx, cfg, logger)
//	defer observability.ShutdownTracing(ctx, tp)
package observability
