package assembly_test

import (
	"fmt"

	"github.com/openfroyo/assembler/pkg/assembly"
)

// Example demonstrates assembling a small service configuration.
func Example() {
	cfg := assembly.Configuration{
		"defaults": map[string]any{"timeout": "5s", "retries": 3},
		"dsn":      "postgres://localhost/app",
		"db": map[string]any{
			"create-ref": "sql/pool",
			"refs":       map[string]any{"dsn": "dsn"},
			"max_conns":  10,
		},
		"api": map[string]any{
			"create-ref": "http/server",
			"refs":       []any{"db"},
			"merge":      []any{"defaults"},
			"retries":    5,
		},
	}

	asm, err := assembly.Assemble(cfg, "api")
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("order:", asm.Order)
	fmt.Println("api:", asm.Config["api"])
	fmt.Println("api refs:", asm.Refs["api"])
	fmt.Println("db constructor:", asm.CreateRefs["db"])
	fmt.Println("dsn wired:", asm.Wired("dsn"))

	// Output:
	// order: [dsn db api]
	// api: map[retries:3 timeout:5s]
	// api refs: map[db:db]
	// db constructor: sql/pool
	// dsn wired: false
}

// Example_missingReference shows the aggregated error for unknown targets.
func Example_missingReference() {
	cfg := assembly.Configuration{
		"api":    map[string]any{"refs": []any{"db", "cache"}},
		"worker": map[string]any{"refs": []any{"cache"}},
	}

	_, err := assembly.Assemble(cfg)
	fmt.Println(assembly.IsMissingReference(err))
	fmt.Println(err)

	// Output:
	// true
	// [missing-reference] missing references: cache, db
}
