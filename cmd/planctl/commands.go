package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"alcyxob/coaching-platform/internal/app"
	"alcyxob/coaching-platform/internal/config"
	"alcyxob/coaching-platform/internal/service"
)

type rootOptions struct {
	configPath string
	coachID    string
}

// withApp boots the engine for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg.Log)
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireCoach(opts *rootOptions) error {
	if opts.coachID == "" {
		return fmt.Errorf("--coach is required")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "planctl",
		Short:         "Operate the adaptive plan engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", ".", "directory holding config.yaml")
	root.PersistentFlags().StringVar(&opts.coachID, "coach", "", "coach id the operation runs as")

	root.AddCommand(
		newDetectCmd(opts),
		newGenerateCmd(opts),
		newBatchApproveCmd(opts),
		newForecastCmd(opts),
		newPolicyCmd(opts),
	)
	return root
}

func newDetectCmd(opts *rootOptions) *cobra.Command {
	var lookback int
	cmd := &cobra.Command{
		Use:   "detect DRAFT_ID",
		Short: "Detect adaptation triggers over the rolling window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCoach(opts); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				res, err := a.Triggers.Detect(ctx, opts.coachID, args[0], lookback)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().IntVar(&lookback, "lookback", 0, "lookback days, clamped to [10,60]; 0 uses the configured default")
	return cmd
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var triggerIDs []string
	cmd := &cobra.Command{
		Use:   "generate DRAFT_ID",
		Short: "Generate a proposal from the latest triggers or the given ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCoach(opts); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				p, err := a.Proposals.Generate(ctx, opts.coachID, args[0], triggerIDs)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	cmd.Flags().StringSliceVar(&triggerIDs, "trigger", nil, "trigger id to use (repeatable)")
	return cmd
}

func newBatchApproveCmd(opts *rootOptions) *cobra.Command {
	var (
		maxHours    float64
		proposalIDs []string
	)
	cmd := &cobra.Command{
		Use:   "batch-approve DRAFT_ID",
		Short: "Approve every lock-respecting PROPOSED proposal of a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCoach(opts); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				res, err := a.Proposals.BatchApprove(ctx, opts.coachID, args[0], service.BatchOptions{
					MaxHours:    maxHours,
					ProposalIDs: proposalIDs,
				})
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if res.Failed > 0 {
					return fmt.Errorf("%d of %d proposals failed", res.Failed, res.Total)
				}
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&maxHours, "max-hours", 0, "only proposals created within this many hours")
	cmd.Flags().StringSliceVar(&proposalIDs, "proposal", nil, "limit to these proposal ids (repeatable)")
	return cmd
}

func newForecastCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forecast DRAFT_ID",
		Short: "Print the CTL/ATL/TSB forecast of a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCoach(opts); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				m, err := a.Performance.Forecast(ctx, opts.coachID, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}
}

func newPolicyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect policy profiles",
	}
	show := &cobra.Command{
		Use:   "show [NAME]",
		Short: "Show a resolved profile, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					p, err := a.Policies.Resolve(args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), p)
				}
				for _, name := range a.Policies.Names() {
					p, err := a.Policies.Resolve(name)
					if err != nil {
						return err
					}
					if err := printJSON(cmd.OutOrStdout(), p); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Re-read overrides and print the resulting profile names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Policies.Refresh(ctx); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), a.Policies.Names())
			})
		},
	}
	cmd.AddCommand(show, refresh)
	return cmd
}
