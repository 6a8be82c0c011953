package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openfroyo/assembler/pkg/assembly"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator runs Starlark configuration scripts. Every exported,
// non-callable global a script leaves behind is a component.
type StarlarkEvaluator struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewStarlarkEvaluator creates an evaluator that cancels scripts running
// longer than timeout. A zero timeout means 30 seconds.
func NewStarlarkEvaluator(timeout time.Duration, logger zerolog.Logger) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
		logger:  logger.With().Str("component", "starlark").Logger(),
	}
}

// Evaluate runs script with input bound as predeclared names.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (*StarlarkResult, error) {
	return se.run(ctx, "config.star", script, input)
}

// EvaluateFile runs a Starlark configuration file and returns its
// components. Names starting with an underscore are private to the script.
func (se *StarlarkEvaluator) EvaluateFile(ctx context.Context, path string) (assembly.Configuration, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	result, err := se.run(ctx, path, string(src), nil)
	if err != nil {
		return nil, SourceError{File: path, Message: err.Error()}
	}

	cfg := make(assembly.Configuration, len(result.Output))
	for name, v := range result.Output {
		cfg[assembly.ID(name)] = normalizeValue(v)
	}
	return cfg, nil
}

func (se *StarlarkEvaluator) run(ctx context.Context, filename, script string, input map[string]interface{}) (*StarlarkResult, error) {
	started := time.Now()
	result := &StarlarkResult{}

	ctx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	output, err := se.exec(ctx, filename, script, input)
	result.ExecutionTime = time.Since(started)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("execution timeout after %v: %w", se.timeout, err)
		}
		result.Error = err.Error()
		return result, err
	}

	result.Output = output
	se.logger.Debug().
		Str("file", filename).
		Int("globals", len(output)).
		Dur("duration", result.ExecutionTime).
		Msg("Script evaluated")
	return result, nil
}

func (se *StarlarkEvaluator) exec(ctx context.Context, filename, script string, input map[string]interface{}) (map[string]interface{}, error) {
	thread := &starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			se.logger.Debug().Str("file", filename).Msg(msg)
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load(%q) is not supported", module)
		},
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(ctx.Err().Error())
	})
	defer stop()

	predeclared := starlark.StringDict{"struct": starlark.NewBuiltin("struct", starlarkstruct.Make)}
	for name, v := range input {
		sv, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", name, err)
		}
		predeclared[name] = sv
	}

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{}, len(globals))
	for name, v := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if _, ok := v.(starlark.Callable); ok {
			continue
		}
		gv, err := fromStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", name, err)
		}
		output[name] = gv
	}
	return output, nil
}

func toStarlark(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		elems := make([]starlark.Value, 0, len(val))
		for _, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}
	return nil, fmt.Errorf("unsupported type: %T", v)
}

// fromStarlark converts a script value into configuration data. Tuples,
// ranges and other iterables become lists; structs become maps.
func fromStarlark(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", val)
		}
		return int(i), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.Dict:
		out := make(map[string]interface{}, val.Len())
		for _, kv := range val.Items() {
			key, ok := kv[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", kv[0])
			}
			item, err := fromStarlark(kv[1])
			if err != nil {
				return nil, err
			}
			out[string(key)] = item
		}
		return out, nil
	case *starlarkstruct.Struct:
		out := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			item, err := fromStarlark(attr)
			if err != nil {
				return nil, err
			}
			out[name] = item
		}
		return out, nil
	case starlark.Iterable:
		iter := val.Iterate()
		defer iter.Done()

		out := []interface{}{}
		var elem starlark.Value
		for iter.Next(&elem) {
			item, err := fromStarlark(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
}
