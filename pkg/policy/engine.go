package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/openfroyo/assembler/pkg/assembly"
	"github.com/rs/zerolog"
)

// Engine evaluates Rego policies over assembled configurations.
type Engine struct {
	mu              sync.RWMutex
	policies        map[string]*compiledPolicy
	store           storage.Store
	logger          zerolog.Logger
	builtinPolicies []Policy
}

// compiledPolicy is a policy with its deny query prepared for reuse.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies:        make(map[string]*compiledPolicy),
		store:           inmem.New(),
		logger:          logger.With().Str("component", "policy-engine").Logger(),
		builtinPolicies: GetBuiltinPolicies(),
	}

	builtins, err := e.stageBuiltins(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}
	e.policies = builtins

	return e, nil
}

// Evaluate runs every enabled policy against every component of asm.
// Violations of blocking severity make the result disallowed; the rest are
// reported as warnings.
func (e *Engine) Evaluate(ctx context.Context, asm *assembly.Assembly) (*Result, error) {
	if asm == nil {
		return nil, fmt.Errorf("assembly is nil")
	}

	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	doc := assemblyDocument(asm)
	dependents := dependentsOf(asm)

	var found []Violation
	evaluatedPolicies := make([]string, 0, len(e.policies))

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		evaluatedPolicies = append(evaluatedPolicies, name)

		for _, id := range asm.Order {
			input := componentInput(asm, id, dependents[id], doc)

			violations, err := e.evaluatePolicy(ctx, cp, id, input)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				e.logger.Error().Err(err).
					Str("policy", name).
					Str("id", string(id)).
					Msg("Policy evaluation failed")
				return nil, fmt.Errorf("policy %s on component %s: %w", name, id, err)
			}
			found = append(found, violations...)
		}
	}

	result := &Result{
		Allowed:           true,
		EvaluatedAt:       time.Now(),
		EvaluatedPolicies: evaluatedPolicies,
	}
	seen := make(map[Violation]bool)
	for _, v := range found {
		if seen[v] {
			continue
		}
		seen[v] = true

		if v.Severity.Blocking() {
			result.Allowed = false
			result.Violations = append(result.Violations, v)
		} else {
			result.Warnings = append(result.Warnings, v)
		}
	}
	result.Duration = time.Since(startTime)

	e.logger.Debug().
		Int("components", len(asm.Order)).
		Int("policies", len(evaluatedPolicies)).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Assembly policy evaluation completed")

	return result, nil
}

// assemblyDocument renders the whole assembly as plain JSON-like values.
func assemblyDocument(asm *assembly.Assembly) map[string]interface{} {
	components := make(map[string]interface{}, len(asm.Config))
	for id, v := range asm.Config {
		components[string(id)] = v
	}

	order := make([]interface{}, len(asm.Order))
	for i, id := range asm.Order {
		order[i] = string(id)
	}

	return map[string]interface{}{
		"components": components,
		"order":      order,
	}
}

func dependentsOf(asm *assembly.Assembly) map[assembly.ID][]interface{} {
	out := make(map[assembly.ID][]interface{})
	for _, id := range asm.Order {
		for _, target := range asm.Refs[id].Targets() {
			out[target] = append(out[target], string(id))
		}
	}
	return out
}

// componentInput is the input document for one component.
func componentInput(asm *assembly.Assembly, id assembly.ID, dependents []interface{}, doc map[string]interface{}) map[string]interface{} {
	refs := make(map[string]interface{})
	for name, target := range asm.Refs[id] {
		refs[name] = string(target)
	}
	if dependents == nil {
		dependents = []interface{}{}
	}

	component := map[string]interface{}{
		"id":         string(id),
		"config":     asm.Config[id],
		"refs":       refs,
		"opaque":     !asm.Wired(id),
		"dependents": dependents,
	}
	if ref, ok := asm.CreateRefs[id]; ok {
		component["create_ref"] = ref
	}

	return map[string]interface{}{
		"component": component,
		"assembly":  doc,
	}
}

// evaluatePolicy evaluates one compiled policy for one component.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, id assembly.ID, input map[string]interface{}) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, id, d))
		}
	}

	return violations, nil
}

// createViolation builds a Violation from one element of a deny set.
func createViolation(policy *Policy, id assembly.ID, result interface{}) Violation {
	violation := Violation{
		Policy:    policy.Name,
		Component: string(id),
		Severity:  policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok && sev != "" {
			violation.Severity = Severity(sev)
		}
		if comp, ok := v["component"].(string); ok && comp != "" {
			violation.Component = comp
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compilePolicy parses a policy and prepares its deny query.
func (e *Engine) compilePolicy(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return nil, fmt.Errorf("policy %s is empty", policy.Name)
	}

	query := module.Package.Path.String() + ".deny"
	prepared, err := rego.New(
		rego.ParsedModule(module),
		rego.Store(e.store),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("query", query).
		Msg("Policy compiled successfully")

	return &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    prepared,
		compiled: time.Now(),
	}, nil
}

// stage compiles policies on top of a copy of base. base is not modified,
// so a failed compile leaves the installed set untouched.
func (e *Engine) stage(ctx context.Context, base map[string]*compiledPolicy, policies []Policy) (map[string]*compiledPolicy, error) {
	staged := make(map[string]*compiledPolicy, len(base)+len(policies))
	for name, cp := range base {
		staged[name] = cp
	}
	for i := range policies {
		p := policies[i]
		cp, err := e.compilePolicy(ctx, &p)
		if err != nil {
			return nil, fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
		staged[p.Name] = cp
	}
	return staged, nil
}

func (e *Engine) stageBuiltins(ctx context.Context) (map[string]*compiledPolicy, error) {
	staged, err := e.stage(ctx, nil, e.builtinPolicies)
	if err != nil {
		return nil, fmt.Errorf("built-in: %w", err)
	}
	e.logger.Debug().
		Int("count", len(e.builtinPolicies)).
		Msg("Built-in policies loaded")
	return staged, nil
}

// LoadPolicies loads and compiles policies from files and directories.
// Nothing is installed unless every policy compiles.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.AddPolicies(ctx, policies)
}

// AddPolicies compiles and installs policies, replacing any with the same
// name. Nothing is installed unless every policy compiles.
func (e *Engine) AddPolicies(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	staged, err := e.stage(ctx, e.policies, policies)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to compile policies")
		return err
	}
	e.policies = staged

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")
	return nil
}

// ReplacePolicies swaps all user policies for the given set, keeping the
// built-ins. It is the reload hook for Loader.Watch. The new set is compiled
// before the lock is taken and installed in one step, so a concurrent
// Evaluate sees either the old set or the new one.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	builtins, err := e.stageBuiltins(ctx)
	if err != nil {
		return err
	}
	staged, err := e.stage(ctx, builtins, policies)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to compile reloaded policies")
		return err
	}

	e.mu.Lock()
	e.policies = staged
	e.mu.Unlock()

	e.logger.Info().Int("count", len(policies)).Msg("Policies replaced")
	return nil
}

// SetData publishes a document under data.<key> for policies to read.
func (e *Engine) SetData(ctx context.Context, key string, value interface{}) error {
	if key == "" || strings.Contains(key, "/") {
		return fmt.Errorf("invalid data key: %q", key)
	}

	path, ok := storage.ParsePath("/" + key)
	if !ok {
		return fmt.Errorf("invalid data key: %q", key)
	}
	if err := storage.WriteOne(ctx, e.store, storage.AddOp, path, value); err != nil {
		return fmt.Errorf("failed to write data %s: %w", key, err)
	}

	e.logger.Debug().Str("key", key).Msg("Policy data updated")
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies ordered by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReloadPolicies drops all user policies and reloads the built-ins.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	builtins, err := e.stageBuiltins(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.policies = builtins
	e.mu.Unlock()
	return nil
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")

	return nil
}
