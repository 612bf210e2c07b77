package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"vm-migrator/config"
	"vm-migrator/core/checkpoint"
	"vm-migrator/core/orchestrator"
	"vm-migrator/core/repository"
	"vm-migrator/core/spec"
	"vm-migrator/core/stages"
	"vm-migrator/providers/aws"
	"vm-migrator/providers/gcp"
	"vm-migrator/storage"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "migrator",
	Short: "Migrates virtual machines between cloud providers",
	Long: `migrator snapshots a running source instance, exports a portable
disk image through an intermediate object store, imports it as a native
image on the destination, and provisions a new instance from it. Jobs
are checkpointed and resumable.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(runCmd, statusCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newStore selects the Postgres store when DATABASE_URL is set and the
// file store otherwise.
func newStore(cfg *config.Config) (checkpoint.Store, error) {
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(); err != nil {
			return nil, err
		}
		log.Println("Using Postgres checkpoint store")
		return repository.NewCheckpointRepository(db, 2*time.Hour), nil
	}
	return checkpoint.NewFileStore(cfg.StateDir)
}

// newSourceClient builds the source-cloud client for a spec, falling
// back to the configured default region.
func newSourceClient(ctx context.Context, cfg *config.Config, m *spec.MigrationSection) (*aws.Client, error) {
	region := m.Source.Region
	if region == "" {
		region = cfg.AWSRegion
	}
	return aws.NewClient(ctx, region)
}

// newBuilder wires providers, staging, and stages for one migration
// spec. Shared by the run command and the API server.
func newBuilder(cfg *config.Config, store checkpoint.Store) orchestrator.Builder {
	return func(m *spec.MigrationSection) (*orchestrator.Orchestrator, error) {
		ctx := context.Background()
		source, err := newSourceClient(ctx, cfg, m)
		if err != nil {
			return nil, err
		}
		return buildOrchestrator(ctx, cfg, store, m, source)
	}
}

// buildOrchestrator wires the destination client, staging, and stages
// around an already-built source client.
func buildOrchestrator(ctx context.Context, cfg *config.Config, store checkpoint.Store, m *spec.MigrationSection, source *aws.Client) (*orchestrator.Orchestrator, error) {
	project := m.Destination.Project
	if project == "" {
		project = cfg.GCPProject
	}
	creds := m.Destination.Credentials
	if creds == "" {
		creds = cfg.GCPCredentials
	}
	dest, err := gcp.NewClient(ctx, project, creds)
	if err != nil {
		return nil, err
	}

	staging, err := storage.NewStagingDir(m.StagingDir, m.InstanceID)
	if err != nil {
		return nil, err
	}

	deps := stages.Deps{Source: source, Dest: dest, Spec: m, Staging: staging}
	return orchestrator.New(store, stages.Pipeline(deps), stages.NewCleanupStage(deps), m.RetryBudget), nil
}
