package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/commission-scout/internal/llm"
	"github.com/xaenox/commission-scout/internal/pipeline"
	"github.com/xaenox/commission-scout/internal/storage"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a cycle now and then on the configured schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			p, store, err := a.pipeline()
			if err != nil {
				return err
			}
			defer store.Close()

			sched, err := pipeline.NewScheduler(p, a.cfg.Scheduler.Interval, a.cfg.Scheduler.Schedule, a.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if a.cfg.Metrics.Enabled {
				go func() {
					if err := a.metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger); err != nil {
						a.logger.Error("Metrics server failed", zap.Error(err))
					}
				}()
			}

			a.logger.Info("Starting commission scout",
				zap.String("schedule", sched.Spec()),
				zap.Duration("recency", a.cfg.RecencyWindow()),
				zap.Int("keywords", len(a.phrases.Search)))
			return sched.Run(ctx)
		},
	}
}

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			p, store, err := a.pipeline()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sum, err := p.RunCycle(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		},
	}
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Classify one text and print the verdict as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			clf, err := a.classifier()
			if err != nil {
				return err
			}

			res := clf.Classify(cmd.Context(), strings.Join(args, " "))
			if !res.OK() {
				return fmt.Errorf("classification failed (%s): %w", res.Failure, res.Err)
			}
			a.logger.Debug("Classified text", zap.String("stage", string(res.Stage)))
			return printJSON(cmd, res.Verdict)
		},
	}
}

func newExportCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Write stored posts to a .csv or .xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.store()
			if err != nil {
				return err
			}
			defer store.Close()

			posts, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if since > 0 {
				posts = storage.Recent(posts, time.Now().Add(-since))
			}
			if err := storage.Export(args[0], posts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d posts to %s\n", len(posts), args[0])
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "only posts stored within this window (e.g. 24h)")
	return cmd
}

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show today's token usage per API credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			creds := llm.Credentials(a.cfg.LLM.APIKeys)
			if len(creds) == 0 {
				return errors.New("no LLM API keys configured")
			}
			ledger := a.ledger(creds)

			ids := ledger.IDs()
			sort.Strings(ids)

			budget := a.cfg.Quota.DailyBudget
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "reset date:\t%s\n", ledger.ResetDate())
			fmt.Fprintln(w, "CREDENTIAL\tUSED\tREMAINING")
			for _, id := range ids {
				used := ledger.Usage(id)
				fmt.Fprintf(w, "%s\t%d\t%d\n", id, used, max(budget-used, 0))
			}
			return w.Flush()
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
