// Package system turns an assembly into running components.
//
// Constructors are registered by create-ref in a Registry. Build walks the
// reference graph of the assembly level by level, so that every component
// is constructed after the components it references, and constructs each
// level in parallel. A constructor receives the component's configuration
// with every reference alias replaced by the constructed dependency:
//
//	registry := system.NewRegistry()
//	registry.MustRegister("sql/pool", func(ctx context.Context, cfg map[string]any) (any, error) {
//	    return openPool(cfg["url"].(string))
//	})
//
//	sys, err := system.Build(ctx, asm, registry)
//	if err != nil {
//	    return err
//	}
//	if err := sys.Start(ctx); err != nil {
//	    return err
//	}
//	defer sys.Stop(ctx)
//
// Opaque values are kept as they are. Wired components without a create-ref
// are kept as their configuration map with dependencies injected.
//
// Components implementing Lifecycle are started in dependency order and
// stopped in reverse. When a start fails, the components already started
// are stopped before Start returns. With telemetry in the context each start
// and stop is traced, timed and published as a component event.
package system
