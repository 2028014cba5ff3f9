package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aescanero/dagrun/internal/application/loader"
	"github.com/aescanero/dagrun/internal/application/orchestrator"
	"github.com/aescanero/dagrun/internal/application/report"
	"github.com/aescanero/dagrun/internal/config"
	blobmemory "github.com/aescanero/dagrun/pkg/adapters/blob/memory"
	eventsmemory "github.com/aescanero/dagrun/pkg/adapters/events/memory"
	storagememory "github.com/aescanero/dagrun/pkg/adapters/storage/memory"
	"github.com/aescanero/dagrun/pkg/domain"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a workflow file and print its instances in dependency order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}
			g, err := orchestrator.NewValidator().Validate(wf)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "workflow %q: %d jobs, %d instances\n", wf.Name, len(g.Jobs()), g.Len())
			for _, id := range g.TopologicalOrder() {
				in, _ := g.Instance(id)
				needs := make([]string, 0, len(in.Job.Needs))
				for _, n := range in.Job.Needs {
					needs = append(needs, n.Name())
				}
				if len(needs) == 0 {
					fmt.Fprintf(out, "  %s\n", id)
				} else {
					fmt.Fprintf(out, "  %s (needs %s)\n", id, strings.Join(needs, ", "))
				}
			}
			return nil
		},
	}
}

func newRunCommand() *cobra.Command {
	var (
		vars    map[string]string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a workflow locally and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			logger := initLogger(level)
			defer func() { _ = logger.Sync() }()

			bus := eventsmemory.NewInMemoryEventBus(logger)
			defer bus.Close()

			eng, err := newEngine(cfg, logger, storagememory.NewReportStorage(), bus, blobmemory.NewBlobStore(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = eng.shutdown(context.Background()) }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runID, err := eng.manager.Submit(ctx, wf, vars)
			if err != nil {
				return err
			}

			rep, err := eng.manager.Wait(ctx, runID)
			if err != nil {
				// Interrupted: cancel the run and report what it got to.
				_ = eng.manager.Cancel(context.Background(), runID)
				if rep, err = eng.manager.Wait(context.Background(), runID); err != nil {
					return err
				}
			}

			fmt.Fprint(cmd.OutOrStdout(), report.Markdown(rep))
			if rep.Status != domain.RunStatusSucceeded {
				return fmt.Errorf("run %s %s", runID, rep.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&vars, "var", nil, "run variable as name=value (repeatable)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log scheduler activity to stderr")
	return cmd
}
