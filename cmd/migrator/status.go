package main

import (
	"fmt"
	"sort"

	"vm-migrator/config"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [instance-id]",
	Short: "Show checkpointed migration state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		store, err := newStore(cfg)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			job, err := store.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", job.InstanceID, job.Status, job.CurrentStage)
			for _, stage := range sortedArtifacts(job.Artifacts) {
				fmt.Printf("  %s = %s\n", stage, job.Artifacts[stage])
			}
			if job.FailedStage != "" {
				fmt.Printf("  failed at %s (%s): %s\n", job.FailedStage, job.ErrorKind, job.ErrorDetail)
			}
			return nil
		}

		jobs, err := store.List()
		if err != nil {
			return err
		}
		for _, job := range jobs {
			fmt.Printf("%s\t%s\t%s\n", job.InstanceID, job.Status, job.CurrentStage)
		}
		return nil
	},
}

func sortedArtifacts(artifacts map[string]string) []string {
	keys := make([]string, 0, len(artifacts))
	for k := range artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
