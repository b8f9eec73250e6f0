// Package instrumentation provides OpenTelemetry metrics and tracing for the
// guard library.
//
// The library records against no-op providers until the host application
// wires real exporters, so enabling instrumentation never changes behavior,
// only visibility. Instruments cover authorization outcomes, rate limit
// blocks, verification denials, CSP violations and audit delivery health.
//
// Usage:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName: "onedrip-api",
//		Enabled:     true,
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Shutdown(ctx)
//
//	inst.Metrics().AuthorizeTotal.Add(ctx, 1)
package instrumentation
