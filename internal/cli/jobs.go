package cli

import (
	"fmt"
	"time"

	"github.com/panoptikon-go/panoptikon/internal/jobs"
	"github.com/spf13/cobra"
)

var (
	jobType         string
	jobMetadata     string
	jobIncludeDirs  []string
	jobExcludeDirs  []string
	jobWorkerBinary string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run a C6 job to completion (data_extraction, data_deletion, folder_rescan, folder_update)",
	Long: `The full enqueue/inspect/cancel job-manager surface (C6) is exposed
by the MCP server (internal/mcpserver), which holds one long-lived Manager
shared across requests. This CLI verb hosts a Manager for exactly one job's
lifetime: enqueue, spawn panoptikon-worker, wait, report, exit - the
one-shot equivalent of spec.md §4.5's "spawns a fresh worker process for
it, and awaits completion".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := jobs.Kind(jobType)
		switch kind {
		case jobs.KindDataExtraction, jobs.KindDataDeletion, jobs.KindFolderRescan, jobs.KindFolderUpdate:
		default:
			return fmt.Errorf("unknown job type %q", jobType)
		}

		paths := cfg.ToStorePaths()
		manager := jobs.NewManager(jobs.DefaultSpawner(jobWorkerBinary))
		defer manager.Stop()

		job := &jobs.Job{
			QueueID: manager.NextQueueID(),
			Type:    kind,
			ConnArgs: jobs.ConnArgs{
				IndexDB:    paths.IndexDB,
				UserDataDB: paths.UserDataDB,
				StorageDB:  paths.StorageDB,
			},
			Metadata:        jobMetadata,
			IncludedFolders: jobIncludeDirs,
			ExcludedFolders: jobExcludeDirs,
		}
		manager.Enqueue(job)

		for {
			status := manager.QueueStatus()
			done := true
			for _, s := range status {
				if s.QueueID == job.QueueID {
					done = false
					break
				}
			}
			if done {
				break
			}
			time.Sleep(200 * time.Millisecond)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "job %d (%s) complete\n", job.QueueID, job.Type)
		return nil
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobType, "type", string(jobs.KindDataExtraction), "job type: data_extraction, data_deletion, folder_rescan, folder_update")
	jobsCmd.Flags().StringVar(&jobMetadata, "metadata", "", "inference-id \"group/id\" for data_extraction/data_deletion")
	jobsCmd.Flags().StringSliceVar(&jobIncludeDirs, "include", nil, "folders to include (folder_rescan/folder_update)")
	jobsCmd.Flags().StringSliceVar(&jobExcludeDirs, "exclude", nil, "folders to exclude (folder_rescan/folder_update)")
	jobsCmd.Flags().StringVar(&jobWorkerBinary, "worker-binary", "panoptikon-worker", "path to the panoptikon-worker binary")

	rootCmd.AddCommand(jobsCmd)
}
