package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMergedCommand() *cobra.Command {
	var flags assembleFlags

	cmd := &cobra.Command{
		Use:   "merged <files...>",
		Short: "Print the configuration after merge rules are applied",
		Long: `Print the configuration after every merge rule has been applied.

References are not validated and merge errors are not reported; only
structural cycles fail. With --id the output is restricted to the given
components and everything they reference.`,
		Example: `  # Print the merged configuration of a directory
  assembler merged ./configs

  # Restrict to one component and its references
  assembler merged app.yaml --id api`,
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

			merged, err := s.assembler.MergedConfig(cfg, s.ids()...)
			if err != nil {
				return err
			}

			log.Debug().
				Int("components", len(merged)).
				Msg("Configuration merged")

			return render(cmd.OutOrStdout(), settings.Output, merged)
		},
	}

	flags.register(cmd, false)

	return cmd
}
