package config

import (
	"context"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/openfroyo/assembler/pkg/assembly"
)

// CUEParser turns CUE sources into component configurations. Every
// top-level field of the evaluated value is a component. Hidden fields and
// definitions are skipped so they can hold shared schema.
type CUEParser struct {
	ctx *cue.Context
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{
		ctx: cuecontext.New(),
	}
}

// ParseFile parses a single CUE file.
func (cp *CUEParser) ParseFile(ctx context.Context, path string) (assembly.Configuration, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return cp.ParseString(ctx, path, string(content))
}

// ParseString parses inline CUE content. name is used in error positions.
func (cp *CUEParser) ParseString(ctx context.Context, name, content string) (assembly.Configuration, error) {
	val := cp.ctx.CompileString(content, cue.Filename(name))
	if err := val.Err(); err != nil {
		return nil, cp.convertCUEErrors(err)
	}
	return cp.extractComponents(val)
}

// extractComponents decodes each regular top-level field into a component.
func (cp *CUEParser) extractComponents(val cue.Value) (assembly.Configuration, error) {
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, cp.convertCUEErrors(err)
	}

	iter, err := val.Fields(cue.Optional(false), cue.Definitions(false), cue.Hidden(false))
	if err != nil {
		return nil, cp.convertCUEErrors(err)
	}

	cfg := make(assembly.Configuration)
	var problems SourceErrors
	for iter.Next() {
		name := iter.Selector().Unquoted()
		var decoded interface{}
		if err := iter.Value().Decode(&decoded); err != nil {
			problems = append(problems, SourceError{Message: fmt.Sprintf("failed to decode component %s: %v", name, err)})
			continue
		}
		cfg[assembly.ID(name)] = normalizeValue(decoded)
	}

	if len(problems) > 0 {
		return nil, problems
	}
	return cfg, nil
}

// convertCUEErrors converts CUE errors to SourceErrors.
func (cp *CUEParser) convertCUEErrors(err error) SourceErrors {
	var out SourceErrors

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		out = append(out, SourceError{
			File:    file,
			Line:    line,
			Column:  column,
			Message: errors.Details(e, nil),
		})
	}

	if len(out) == 0 {
		out = append(out, SourceError{Message: err.Error()})
	}
	return out
}
