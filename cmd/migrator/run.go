package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"vm-migrator/config"
	"vm-migrator/core/costing"
	"vm-migrator/core/spec"

	"github.com/spf13/cobra"
)

var specFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one migration to completion",
	Long: `Run executes the migration described by the spec file, resuming
from the last checkpoint when one exists. Exit status is 0 only when the
job completes; on failure the terminal error names the failing stage and
error kind.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		parsed, err := spec.ParseFile(specFile)
		if err != nil {
			return err
		}
		m := &parsed.Migration

		cfg := config.Load()
		store, err := newStore(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// One source client serves both the pipeline and the estimate.
		source, err := newSourceClient(ctx, cfg, m)
		if err != nil {
			return err
		}
		orch, err := buildOrchestrator(ctx, cfg, store, m, source)
		if err != nil {
			return err
		}

		// Advisory estimate; never blocks the run.
		costing.NewEstimator(source).Estimate(ctx, m.InstanceID).Log(m.InstanceID)

		report, err := orch.Run(ctx, m.InstanceID)
		if err != nil {
			return err
		}
		fmt.Println(report.Summary())
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&specFile, "spec", "f", "", "path to the migration spec YAML")
	runCmd.MarkFlagRequired("spec")
}
