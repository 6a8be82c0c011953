package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/openfroyo/assembler/pkg/assembly"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Loader reads component configurations from files and directories.
type Loader struct {
	logger   zerolog.Logger
	cue      *CUEParser
	starlark *StarlarkEvaluator
}

// NewLoader creates a loader. starlarkTimeout bounds each .star source; zero
// selects the evaluator default.
func NewLoader(logger zerolog.Logger, starlarkTimeout time.Duration) *Loader {
	return &Loader{
		logger:   logger.With().Str("component", "config-loader").Logger(),
		cue:      NewCUEParser(),
		starlark: NewStarlarkEvaluator(starlarkTimeout, logger),
	}
}

// Load reads every path and combines the results key-wise. A directory
// contributes all supported files below it in lexical order. A component ID
// defined by two sources is a DuplicateComponentError.
func (l *Loader) Load(ctx context.Context, paths ...string) (assembly.Configuration, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no configuration sources provided")
	}

	files, err := l.expand(paths)
	if err != nil {
		return nil, err
	}

	cfg := make(assembly.Configuration)
	origin := make(map[assembly.ID]string)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		part, err := l.LoadFile(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}

		for _, id := range part.IDs() {
			if first, exists := origin[id]; exists {
				return nil, &DuplicateComponentError{ID: string(id), First: first, Again: file}
			}
			origin[id] = file
			cfg[id] = part[id]
		}
	}

	l.logger.Debug().
		Int("files", len(files)).
		Int("components", len(cfg)).
		Msg("Configuration loaded")

	return cfg, nil
}

// LoadFile reads a single file, dispatching on its extension.
func (l *Loader) LoadFile(ctx context.Context, path string) (assembly.Configuration, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, fmt.Errorf("unsupported configuration format: %s", filepath.Ext(path))
	}

	l.logger.Debug().Str("file", path).Str("format", string(format)).Msg("Loading configuration file")

	switch format {
	case FormatCUE:
		return l.cue.ParseFile(ctx, path)
	case FormatStarlark:
		return l.starlark.EvaluateFile(ctx, path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return ParseYAML(path, data)
	}
}

// expand resolves directories into their supported files.
func (l *Loader) expand(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		var found []string
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if _, ok := FormatOf(p); ok {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", path, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// ParseYAML decodes YAML or JSON content. Multiple documents are combined
// like multiple files.
func ParseYAML(name string, data []byte) (assembly.Configuration, error) {
	cfg := make(assembly.Configuration)
	dec := yaml.NewDecoder(bytes.NewReader(data))

	for doc := 0; ; doc++ {
		var node map[string]interface{}
		err := dec.Decode(&node)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, SourceError{File: name, Message: err.Error()}
		}
		for k, v := range node {
			id := assembly.ID(k)
			if _, exists := cfg[id]; exists {
				return nil, &DuplicateComponentError{
					ID:    k,
					First: name,
					Again: fmt.Sprintf("%s (document %d)", name, doc+1),
				}
			}
			cfg[id] = normalizeValue(v)
		}
	}
	return cfg, nil
}

// normalizeValue converts decoded data into the shapes the assembly engine
// understands: string-keyed maps, []any lists and int for integers.
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case int64:
		if val >= math.MinInt && val <= math.MaxInt {
			return int(val)
		}
		return val
	case int32:
		return int(val)
	case uint64:
		if val <= math.MaxInt {
			return int(val)
		}
		return val
	default:
		return val
	}
}
