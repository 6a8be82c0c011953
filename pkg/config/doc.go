// Package config loads component configurations for the assembler.
//
// # Overview
//
// The config package turns configuration sources into an
// assembly.Configuration: a map from component ID to value. It is the host
// side of the assembly engine; the engine itself never reads files.
//
// # Sources
//
// The format of each file is chosen by extension:
//
//   - .yaml, .yml, .json: decoded with yaml.v3; every top-level key is a component
//   - .cue: evaluated with CUE; every regular top-level field is a component,
//     definitions and hidden fields stay private to the source
//   - .star: executed with Starlark; every global that is not a function and
//     does not start with an underscore is a component
//
// Directories contribute every supported file below them in lexical order.
// Sources are combined key-wise and a component defined twice is rejected
// with a DuplicateComponentError.
//
// # Components
//
// Loader: Dispatches files to the right decoder and combines the results.
//
// CUEParser: Evaluates CUE files, packages and inline content, reporting
// problems as SourceErrors with file positions.
//
// StarlarkEvaluator: Runs Starlark scripts with a timeout. load() is
// disabled and print() goes to the debug log.
//
// SchemaRegistry: Holds CUE schemas keyed by constructor identifier and
// checks assembled components against them.
//
// Watcher: Reloads sources when they change, debounced with fsnotify.
//
// Settings: The validated command line settings.
//
// # Usage Example
//
//	loader := config.NewLoader(logger, 30*time.Second)
//	cfg, err := loader.Load(ctx, "base.yaml", "services.cue", "generated.star")
//	if err != nil {
//	    return err
//	}
//
//	asm, err := assembly.New(logger).Assemble(cfg, "api")
//	if err != nil {
//	    return err
//	}
//
//	schemas := config.NewSchemaRegistry()
//	if err := schemas.RegisterFile("schemas.cue"); err != nil {
//	    return err
//	}
//	if err := schemas.ValidateAssembly(ctx, asm); err != nil {
//	    return err
//	}
package config
