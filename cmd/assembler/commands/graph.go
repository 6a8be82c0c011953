package commands

import (
	"fmt"

	"github.com/openfroyo/assembler/pkg/assembly"
	"github.com/spf13/cobra"
)

func newGraphCommand() *cobra.Command {
	var (
		flags assembleFlags
		kind  string
	)

	cmd := &cobra.Command{
		Use:   "graph <files...>",
		Short: "Print the merge or reference graph in DOT format",
		Long: `Print a dependency graph in Graphviz DOT format.

  - merge: edges from each component to the components it merges from,
    drawn over the raw configuration
  - refs: edges from each component to the components it references,
    drawn over the merged configuration

Missing targets are drawn dashed and opaque values as ellipses.`,
		Example: `  # Render the reference graph
  assembler graph ./configs | dot -Tsvg > refs.svg

  # Render the merge graph of one component's closure
  assembler graph app.yaml --kind merge --id api`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := flags.settings(args)
			if err != nil {
				return err
			}
			settings.GraphKind = kind
			if err := settings.Validate(); err != nil {
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

			var g *assembly.Graph
			switch kind {
			case "merge":
				g = assembly.BuildMergeGraph(cfg)
			default:
				cfg, err = s.assembler.MergedConfig(cfg)
				if err != nil {
					return err
				}
				g = assembly.BuildReferenceGraph(cfg)
			}

			if ids := s.ids(); len(ids) > 0 {
				g = g.Subgraph(g.Closure(ids))
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), g.ToDOT(cfg))
			return err
		},
	}

	flags.register(cmd, false)
	cmd.Flags().StringVar(&kind, "kind", "refs", "graph to render (merge, refs)")

	return cmd
}
