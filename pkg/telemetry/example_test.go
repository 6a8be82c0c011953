package telemetry_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/assembler/pkg/assembly"
	"github.com/openfroyo/assembler/pkg/telemetry"
)

// Example_assemblyRun instruments one assembly run end to end.
func Example_assemblyRun() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Output = "discard"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Println(event.Type)
	}, telemetry.FilterByType(telemetry.EventTypeAssemblyCompleted))

	ctx := tel.WithContext(context.Background())
	run := telemetry.StartAssembly(ctx, []assembly.ID{"api"})

	var asm *assembly.Assembly
	err = run.Stage("assemble", func(context.Context) error {
		var err error
		asm, err = assembly.Assemble(assembly.Configuration{
			"api": map[string]any{"create-ref": "http/server", "port": 8080},
		}, "api")
		return err
	})
	run.End(asm, err)

	fmt.Println(asm.Order)
	// Output:
	// assembly.completed
	// [api]
}

// Example_eventFiltering subscribes only to error-level events.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Output = "discard"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Println(event.Message)
	}, telemetry.FilterByLevel(telemetry.EventLevelError))

	_ = tel.Events.PublishComponentStarted("db", "sql/pool")
	_ = tel.Events.PublishComponentFailed("api", "http/server", "start", "address in use")

	// Output: Component api failed to start: address in use
}
