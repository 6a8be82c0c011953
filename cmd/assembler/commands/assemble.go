package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newAssembleCommand() *cobra.Command {
	var flags assembleFlags

	cmd := &cobra.Command{
		Use:   "assemble <files...>",
		Short: "Resolve configuration into an assembly",
		Long: `Resolve configuration into an assembly and print it.

The assembly lists each component's configuration with reserved keys
removed, its reference map, its create-ref and a dependency order.

This command checks:
  - Merge rules (cycles and failed merges)
  - Reference targets and create-ref identifiers
  - CUE schemas per create-ref (--schema)
  - Rego policies (--policy), including the built-in set`,
		Example: `  # Assemble every component
  assembler assemble app.yaml db.cue

  # Assemble one component and its references as JSON
  assembler assemble ./configs --id api --output json

  # Enforce policies and restrict constructor namespaces
  assembler assemble ./configs --policy ./policies --allowed-namespace http`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := flags.settings(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := newSession(ctx, cmd, settings)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			cfg, err := s.load(ctx)
			if err != nil {
				return err
			}

			asm, _, err := s.assemble(s.context(ctx), cfg)
			if err != nil {
				return err
			}

			log.Info().
				Int("components", len(asm.Config)).
				Int("wired", len(asm.Refs)).
				Msg("Assembly complete")

			return render(cmd.OutOrStdout(), settings.Output, asm)
		},
	}

	flags.register(cmd, true)

	return cmd
}
