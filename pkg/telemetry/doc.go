// Package telemetry provides logging, tracing, metrics and events for
// assembly runs and component lifecycles.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and an in-process event publisher.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Metrics.Enabled = true
//	cfg.Metrics.ListenAddress = "localhost:9090"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	if err := tel.StartMetricsServer(ctx); err != nil {
//	    return err
//	}
//	ctx = tel.WithContext(ctx)
//
// # Assembly Runs
//
// StartAssembly opens a run with a fresh ID, a root span and a logger that
// carries assembly_id. Stage wraps each step in a child span. End records
// the outcome: failures are counted by the Kind of the returned
// *assembly.Error, and each merge error is counted by its own kind.
//
//	run := telemetry.StartAssembly(ctx, ids)
//	err := run.Stage("assemble", func(ctx context.Context) error {
//	    asm, err = assembly.Assemble(cfg, ids...)
//	    return err
//	})
//	run.End(asm, err)
//
// # Component Lifecycle
//
// RecordComponentOperation wraps a start or stop call on a constructed
// component with a span, a duration histogram and a component event. It
// calls the function directly when no telemetry is in the context.
//
// # Metrics
//
// All metrics share the configured namespace (default "assembler"):
//
//   - assemblies_started_total, assemblies_completed_total{status}
//   - assembly_duration_seconds{status}
//   - assembly_errors_total{kind}, merge_errors_total{kind}
//   - components_assembled{kind} (wired or opaque)
//   - policy_violations_total{policy,severity}
//   - reloads_total{source,status}
//   - component_operations_total{create_ref,operation,status}
//   - component_operation_duration_seconds{create_ref,operation}
//   - running_components, active_assemblies
//
// A disabled Metrics accepts every call and records nothing.
//
// # Events
//
// Events are delivered to subscribers synchronously, or in batches when
// EnableAsync is set. Filters select events by level, type, assembly or
// component.
package telemetry
