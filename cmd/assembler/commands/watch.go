package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openfroyo/assembler/pkg/assembly"
	"github.com/openfroyo/assembler/pkg/config"
	"github.com/openfroyo/assembler/pkg/policy"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var (
		flags       assembleFlags
		metricsAddr string
		debounce    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <files...>",
		Short: "Re-assemble whenever configuration or policies change",
		Long: `Assemble once, then watch the configuration files and policy paths and
re-assemble after every burst of changes.

Each successful assembly is printed as a new document. Failed reloads are
logged and nothing is printed for them. With --metrics-addr the
Prometheus metrics of every run are served until the command exits.`,
		Example: `  # Watch a directory of configuration
  assembler watch ./configs

  # Watch with policies and a metrics endpoint
  assembler watch ./configs --policy ./policies --metrics-addr localhost:9090`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := flags.settings(args)
			if err != nil {
				return err
			}
			settings.MetricsAddr = metricsAddr
			settings.WatchDebounce = debounce
			if err := settings.Validate(); err != nil {
				return err
			}

			s, err := newSession(cmd.Context(), cmd, settings)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			ctx := s.context(cmd.Context())

			if settings.MetricsAddr != "" {
				if err := s.tel.StartMetricsServer(ctx); err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
				log.Info().Str("address", settings.MetricsAddr).Msg("Serving metrics")
			}

			var mu sync.Mutex
			var last assembly.Configuration

			reassemble := func(ctx context.Context, cfg assembly.Configuration) {
				mu.Lock()
				defer mu.Unlock()

				last = cfg
				asm, _, err := s.assemble(ctx, cfg)
				if err != nil {
					log.Error().Err(err).Msg("Assembly failed")
					return
				}

				if settings.Output == "yaml" {
					fmt.Fprintln(cmd.OutOrStdout(), "---")
				}
				if err := render(cmd.OutOrStdout(), settings.Output, asm); err != nil {
					log.Error().Err(err).Msg("Failed to write assembly")
				}
			}

			watcher := config.NewWatcher(s.logger, s.loader, settings.Files, settings.WatchDebounce)
			err = watcher.Watch(ctx, func(ctx context.Context, cfg assembly.Configuration, err error) {
				s.tel.Metrics.RecordReload("config", err)
				_ = s.tel.Events.PublishConfigReloaded("config", err)
				if err != nil {
					log.Error().Err(err).Msg("Failed to reload configuration")
					return
				}
				reassemble(ctx, cfg)
			})
			if err != nil {
				return err
			}
			defer watcher.Stop()

			if s.policies != nil && len(settings.PolicyPaths) > 0 {
				policyLoader := policy.NewLoader(s.logger)
				err := policyLoader.Watch(ctx, settings.PolicyPaths, func(policies []policy.Policy) error {
					err := s.policies.ReplacePolicies(ctx, policies)
					s.tel.Metrics.RecordReload("policy", err)
					_ = s.tel.Events.PublishConfigReloaded("policy", err)
					if err != nil {
						return err
					}

					mu.Lock()
					cfg := last
					mu.Unlock()
					if cfg != nil {
						reassemble(ctx, cfg)
					}
					return nil
				})
				if err != nil {
					return err
				}
				defer policyLoader.StopWatching()
			}

			<-ctx.Done()
			log.Info().Msg("Stopped watching")
			return nil
		},
	}

	flags.register(cmd, true)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before reloading")

	return cmd
}
