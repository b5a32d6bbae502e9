// Package telemetry sets up OpenTelemetry tracing, metrics and logs for
// rowindex.
//
// Spans cover each rebuild stage and the embedding calls; OTLP metrics carry
// the embedding request counters; zap entries reach the LoggerProvider
// through logging.Logger.WithOTEL. All are exported to an OTLP collector
// over gRPC or HTTP when enabled:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sample_rate: 1.0
//	  metrics: true
//	  export_interval: "15s"
//
// Usage:
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	logger, err = logger.WithOTEL(tel.LoggerProvider())
//
// Tests use NewTestTelemetry and pass its Tracer to the code under test:
//
//	tt := telemetry.NewTestTelemetry()
//	p := &rebuild.Pipeline{Tracer: tt.Tracer("rowindex.rebuild"), ...}
//	tt.AssertSpanExists(t, "rebuild.Run")
package telemetry
