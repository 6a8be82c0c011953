package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/openfroyo/assembler/pkg/assembly"
	"github.com/openfroyo/assembler/pkg/config"
	"github.com/openfroyo/assembler/pkg/policy"
	"github.com/openfroyo/assembler/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// assembleFlags are the flags shared by commands that assemble.
type assembleFlags struct {
	ids               []string
	policyPaths       []string
	schemaPaths       []string
	allowedNamespaces []string
	output            string
}

func (f *assembleFlags) register(cmd *cobra.Command, withChecks bool) {
	cmd.Flags().StringSliceVar(&f.ids, "id", nil, "restrict to these components and their references")
	cmd.Flags().StringVarP(&f.output, "output", "o", "yaml", "output format (yaml, json)")
	if !withChecks {
		return
	}
	cmd.Flags().StringSliceVar(&f.policyPaths, "policy", nil, "Rego policy file or directory to enforce")
	cmd.Flags().StringSliceVar(&f.schemaPaths, "schema", nil, "CUE schema file keyed by create-ref")
	cmd.Flags().StringSliceVar(&f.allowedNamespaces, "allowed-namespace", nil, "create-ref namespaces permitted by policy")
}

// settings builds validated settings from flags and file arguments.
func (f *assembleFlags) settings(files []string) (config.Settings, error) {
	s := config.DefaultSettings()
	s.Files = files
	s.IDs = f.ids
	s.PolicyPaths = f.policyPaths
	s.SchemaPaths = f.schemaPaths
	s.AllowedNamespaces = f.allowedNamespaces
	s.LogLevel = logLevel
	if verbose {
		s.LogLevel = "debug"
	}
	s.Output = f.output
	if jsonOutput {
		s.Output = "json"
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// session holds what a command needs to load, assemble and check
// configuration.
type session struct {
	settings  config.Settings
	logger    zerolog.Logger
	tel       *telemetry.Telemetry
	loader    *config.Loader
	assembler *assembly.Assembler
	schemas   *config.SchemaRegistry
	policies  *policy.Engine
}

func newSession(ctx context.Context, cmd *cobra.Command, settings config.Settings) (*session, error) {
	logger := log.Logger

	telCfg := telemetry.DefaultConfig()
	telCfg.Logging.Level = settings.LogLevel
	if traceExporter != "none" {
		telCfg.Tracing.Enabled = true
		telCfg.Tracing.Exporter = traceExporter
		telCfg.Tracing.Endpoint = otlpEndpoint
	}
	if settings.MetricsAddr != "" {
		telCfg.Metrics.Enabled = true
		telCfg.Metrics.ListenAddress = settings.MetricsAddr
	}

	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	tel.Logger = telemetry.NewLoggerWithWriter(telCfg.Logging, cmd.ErrOrStderr())

	s := &session{
		settings:  settings,
		logger:    logger,
		tel:       tel,
		loader:    config.NewLoader(logger, settings.StarlarkTimeout),
		assembler: assembly.New(logger),
	}

	if len(settings.SchemaPaths) > 0 {
		s.schemas = config.NewSchemaRegistry()
		for _, path := range settings.SchemaPaths {
			if err := s.schemas.RegisterFile(path); err != nil {
				return nil, fmt.Errorf("failed to load schema %s: %w", path, err)
			}
		}
	}

	// The built-in create-ref-namespace policy enforces --allowed-namespace,
	// so the gate runs when either flag is given.
	if len(settings.PolicyPaths) > 0 || len(settings.AllowedNamespaces) > 0 {
		engine, err := policy.NewEngine(logger)
		if err != nil {
			return nil, err
		}
		if len(settings.PolicyPaths) > 0 {
			if err := engine.LoadPolicies(ctx, settings.PolicyPaths); err != nil {
				return nil, err
			}
		}
		if len(settings.AllowedNamespaces) > 0 {
			data := map[string]interface{}{"allowed_namespaces": toInterfaces(settings.AllowedNamespaces)}
			if err := engine.SetData(ctx, "settings", data); err != nil {
				return nil, err
			}
		}
		s.policies = engine
	}

	return s, nil
}

// context attaches the session telemetry to ctx.
func (s *session) context(ctx context.Context) context.Context {
	return s.tel.WithContext(ctx)
}

func (s *session) close(ctx context.Context) {
	if err := s.tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

func (s *session) ids() []assembly.ID {
	ids := make([]assembly.ID, len(s.settings.IDs))
	for i, id := range s.settings.IDs {
		ids[i] = assembly.ID(id)
	}
	return ids
}

// load reads the configured files inside a traced operation.
func (s *session) load(ctx context.Context) (assembly.Configuration, error) {
	op := telemetry.StartOperation(s.context(ctx), "config.load",
		attribute.StringSlice("config.files", s.settings.Files))

	cfg, err := s.loader.Load(op.Ctx, s.settings.Files...)
	op.End(err)
	if err != nil {
		return nil, err
	}

	op.Logger.Debugf("Loaded %d components in %s", len(cfg), op.Timer.Duration())
	return cfg, nil
}

// assemble runs one instrumented pass over cfg: assembly, schema checks and
// policy evaluation.
func (s *session) assemble(ctx context.Context, cfg assembly.Configuration) (*assembly.Assembly, *policy.Result, error) {
	ids := s.ids()
	run := telemetry.StartAssembly(ctx, ids)

	var (
		asm    *assembly.Assembly
		result *policy.Result
	)

	err := run.Stage("assemble", func(context.Context) error {
		var err error
		asm, err = s.assembler.Assemble(cfg, ids...)
		return err
	})

	if err == nil && s.schemas != nil {
		err = run.Stage("schemas", func(ctx context.Context) error {
			return s.schemas.ValidateAssembly(ctx, asm)
		})
	}

	if err == nil && s.policies != nil {
		err = run.Stage("policy", func(ctx context.Context) error {
			var err error
			result, err = s.policies.Evaluate(ctx, asm)
			if err != nil {
				return err
			}
			s.reportPolicy(run, result)
			if !result.Allowed {
				return &policyDeniedError{violations: result.Violations}
			}
			return nil
		})
	}

	run.End(asm, err)
	if err != nil {
		return nil, result, err
	}
	return asm, result, nil
}

func (s *session) reportPolicy(run *telemetry.AssemblyRun, result *policy.Result) {
	report := func(v policy.Violation) {
		s.tel.Metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
		_ = s.tel.Events.PublishPolicyViolation(run.ID, v.Component, v.Policy, string(v.Severity), v.Message)
	}

	for _, v := range result.Warnings {
		report(v)
		s.logger.Warn().
			Str("policy", v.Policy).
			Str("id", v.Component).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
	}
	for _, v := range result.Violations {
		report(v)
		s.logger.Error().
			Str("policy", v.Policy).
			Str("id", v.Component).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
	}
}

// policyDeniedError reports blocking policy violations.
type policyDeniedError struct {
	violations []policy.Violation
}

func (e *policyDeniedError) Error() string {
	msgs := make([]string, len(e.violations))
	for i, v := range e.violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Policy, v.Message)
	}
	return fmt.Sprintf("assembly denied by %d policy violation(s): %s", len(e.violations), strings.Join(msgs, "; "))
}

// render writes v to w in the given format.
func render(w io.Writer, format string, v interface{}) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func toInterfaces(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
