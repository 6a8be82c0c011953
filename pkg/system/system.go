package system

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openfroyo/assembler/pkg/assembly"
	"github.com/openfroyo/assembler/pkg/telemetry"
	"github.com/rs/zerolog"
)

// System holds the components constructed from one assembly.
type System struct {
	logger zerolog.Logger
	asm    *assembly.Assembly

	// mu protects components and started.
	mu         sync.RWMutex
	components map[assembly.ID]Wired
	started    []assembly.ID
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger      zerolog.Logger
	maxParallel int
}

// WithLogger sets the logger used by the system.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// WithMaxParallel bounds how many constructors of one level run at once.
func WithMaxParallel(n int) Option {
	return func(o *buildOptions) {
		o.maxParallel = n
	}
}

// Build constructs every component of asm level by level so that each
// constructor sees its dependencies already built. Components of one level
// are constructed in parallel. Opaque values are kept as they are and wired
// components without a create-ref are kept as their resolved configuration.
// The first failing level aborts the build.
func Build(ctx context.Context, asm *assembly.Assembly, registry *Registry, opts ...Option) (*System, error) {
	if asm == nil {
		return nil, fmt.Errorf("assembly is nil")
	}

	o := buildOptions{logger: zerolog.Nop(), maxParallel: 10}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxParallel <= 0 {
		o.maxParallel = 1
	}

	if registry == nil {
		registry = NewRegistry()
	}
	if missing := registry.Missing(asm); len(missing) > 0 {
		return nil, &UnknownConstructorError{Refs: missing}
	}

	levels, err := asm.Graph().Levels()
	if err != nil {
		return nil, err
	}

	s := &System{
		logger:     o.logger.With().Str("component", "system").Logger(),
		asm:        asm,
		components: make(map[assembly.ID]Wired, len(asm.Config)),
	}

	for level, ids := range levels {
		if err := s.buildLevel(ctx, registry, ids, o.maxParallel); err != nil {
			return nil, fmt.Errorf("level %d failed: %w", level, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	s.logger.Debug().
		Int("components", len(s.components)).
		Int("levels", len(levels)).
		Msg("System built")

	return s, nil
}

// buildLevel constructs one level with a bounded worker pool.
func (s *System) buildLevel(ctx context.Context, registry *Registry, ids []assembly.ID, maxParallel int) error {
	workerCount := maxParallel
	if len(ids) < workerCount {
		workerCount = len(ids)
	}

	workQueue := make(chan assembly.ID, len(ids))
	for _, id := range ids {
		workQueue <- id
	}
	close(workQueue)

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	index := make(map[assembly.ID]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range workQueue {
				if ctx.Err() != nil {
					errs[index[id]] = ctx.Err()
					continue
				}
				wired, err := s.construct(ctx, registry, id)
				if err != nil {
					errs[index[id]] = err
					continue
				}
				s.mu.Lock()
				s.components[id] = wired
				s.mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return errors.Join(errs...)
}

// construct builds a single component from the assembly.
func (s *System) construct(ctx context.Context, registry *Registry, id assembly.ID) (wired Wired, err error) {
	value := s.asm.Config[id]
	if !s.asm.Wired(id) {
		return DeclareDependencies(value, nil), nil
	}

	refs := s.asm.Refs[id]
	config, _ := value.(map[string]any)
	resolved := make(map[string]any, len(config)+len(refs))
	for k, v := range config {
		resolved[k] = v
	}

	s.mu.RLock()
	for alias, target := range refs {
		dep, ok := s.components[target]
		if !ok {
			s.mu.RUnlock()
			return Wired{}, &ComponentError{ID: id, Op: "construct", Err: fmt.Errorf("dependency %s is not built", target)}
		}
		resolved[alias] = dep.Object
	}
	s.mu.RUnlock()

	createRef, ok := s.asm.CreateRefs[id]
	if !ok {
		return DeclareDependencies(resolved, refs), nil
	}

	ctor, _ := registry.Lookup(createRef)

	defer func() {
		if r := recover(); r != nil {
			err = &ComponentError{ID: id, CreateRef: createRef, Op: "construct", Err: fmt.Errorf("constructor panicked: %v", r)}
		}
	}()

	obj, err := ctor(ctx, resolved)
	if err != nil {
		return Wired{}, &ComponentError{ID: id, CreateRef: createRef, Op: "construct", Err: err}
	}

	s.logger.Debug().
		Str("id", string(id)).
		Str("create_ref", createRef).
		Msg("Component constructed")

	return DeclareDependencies(obj, refs), nil
}

// Component returns the constructed component for id.
func (s *System) Component(id assembly.ID) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.components[id]
	return w.Object, ok
}

// Wired returns the component for id together with its reference map.
func (s *System) Wired(id assembly.ID) (Wired, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.components[id]
	return w, ok
}

// Dependency returns the component injected into id under alias.
func (s *System) Dependency(id assembly.ID, alias string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.components[id]
	if !ok {
		return nil, fmt.Errorf("component %s not found", id)
	}
	target, ok := w.Refs[alias]
	if !ok {
		return nil, fmt.Errorf("component %s has no reference %q", id, alias)
	}
	dep, ok := s.components[target]
	if !ok {
		return nil, fmt.Errorf("component %s not found", target)
	}
	return dep.Object, nil
}

// Order returns the component IDs with dependencies first.
func (s *System) Order() []assembly.ID {
	return append([]assembly.ID(nil), s.asm.Order...)
}

// Start starts every component implementing Lifecycle in dependency order.
// If one fails, the components already started are stopped in reverse order
// and the start error is returned together with any stop errors.
func (s *System) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.started) > 0 {
		return fmt.Errorf("system already started")
	}

	for _, id := range s.asm.Order {
		lc, ok := s.components[id].Object.(Lifecycle)
		if !ok {
			continue
		}
		createRef := s.asm.CreateRefs[id]

		err := telemetry.RecordComponentOperation(ctx, string(id), createRef, "start", lc.Start)
		if err != nil {
			startErr := &ComponentError{ID: id, CreateRef: createRef, Op: "start", Err: err}
			s.logger.Error().Err(err).Str("id", string(id)).Msg("Component failed to start")

			stopErr := s.stopStarted(context.WithoutCancel(ctx))
			return errors.Join(startErr, stopErr)
		}

		s.started = append(s.started, id)
		s.setRunning(ctx)
		s.logger.Debug().Str("id", string(id)).Msg("Component started")
	}

	s.logger.Info().Int("started", len(s.started)).Msg("System started")
	return nil
}

// Stop stops started components in reverse start order. Every component is
// asked to stop even if an earlier one fails.
func (s *System) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.stopStarted(ctx)
	s.logger.Info().Msg("System stopped")
	return err
}

// stopStarted stops started components in reverse order. Callers hold mu.
func (s *System) stopStarted(ctx context.Context) error {
	var errs []error
	for i := len(s.started) - 1; i >= 0; i-- {
		id := s.started[i]
		lc := s.components[id].Object.(Lifecycle)
		createRef := s.asm.CreateRefs[id]

		if err := telemetry.RecordComponentOperation(ctx, string(id), createRef, "stop", lc.Stop); err != nil {
			s.logger.Error().Err(err).Str("id", string(id)).Msg("Component failed to stop")
			errs = append(errs, &ComponentError{ID: id, CreateRef: createRef, Op: "stop", Err: err})
		}
		s.started = s.started[:i]
		s.setRunning(ctx)
	}
	return errors.Join(errs...)
}

func (s *System) setRunning(ctx context.Context) {
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.SetRunningComponents(len(s.started))
	}
}

// Running reports whether any component is started.
func (s *System) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.started) > 0
}
