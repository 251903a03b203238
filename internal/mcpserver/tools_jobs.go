package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/panoptikon-go/panoptikon/internal/config"
	"github.com/panoptikon-go/panoptikon/internal/jobs"
)

// AddJobsEnqueueTool registers panoptikon_jobs_enqueue: submits a C6 job
// (data_extraction, data_deletion, folder_rescan, folder_update) to the
// manager's FIFO queue and returns its queue id immediately, without
// waiting for it to run.
func AddJobsEnqueueTool(s *server.MCPServer, manager *jobs.Manager, cfg *config.Config) {
	tool := mcp.NewTool(
		"panoptikon_jobs_enqueue",
		mcp.WithDescription("Enqueue a data_extraction, data_deletion, folder_rescan, or folder_update job. Returns its queue id without waiting for completion."),
		mcp.WithString("type", mcp.Required(), mcp.Description("data_extraction, data_deletion, folder_rescan, or folder_update")),
		mcp.WithString("metadata", mcp.Description("inference-id \"group/id\" for data_extraction/data_deletion")),
		mcp.WithArray("include", mcp.Description("folders to include (folder_rescan/folder_update)")),
		mcp.WithArray("exclude", mcp.Description("folders to exclude (folder_rescan/folder_update)")),
	)
	s.AddTool(tool, createJobsEnqueueHandler(manager, cfg))
}

func createJobsEnqueueHandler(manager *jobs.Manager, cfg *config.Config) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}

		typeStr, _ := argsMap["type"].(string)
		kind := jobs.Kind(typeStr)
		switch kind {
		case jobs.KindDataExtraction, jobs.KindDataDeletion, jobs.KindFolderRescan, jobs.KindFolderUpdate:
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown job type %q", typeStr)), nil
		}

		paths := cfg.ToStorePaths()
		metadata, _ := argsMap["metadata"].(string)

		job := &jobs.Job{
			QueueID: manager.NextQueueID(),
			Type:    kind,
			ConnArgs: jobs.ConnArgs{
				IndexDB:    paths.IndexDB,
				UserDataDB: paths.UserDataDB,
				StorageDB:  paths.StorageDB,
			},
			Metadata:        metadata,
			IncludedFolders: stringSlice(argsMap["include"]),
			ExcludedFolders: stringSlice(argsMap["exclude"]),
		}
		manager.Enqueue(job)

		jsonData, err := json.Marshal(map[string]any{"queue_id": job.QueueID})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}

// AddJobsStatusTool registers panoptikon_jobs_status: lists the running
// job (if any) followed by the queued jobs, in FIFO order.
func AddJobsStatusTool(s *server.MCPServer, manager *jobs.Manager) {
	tool := mcp.NewTool(
		"panoptikon_jobs_status",
		mcp.WithDescription("List the currently running job, if any, followed by queued jobs in FIFO order."),
	)
	s.AddTool(tool, createJobsStatusHandler(manager))
}

func createJobsStatusHandler(manager *jobs.Manager) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := manager.QueueStatus()
		jsonData, err := json.Marshal(status)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}

// AddJobsCancelTool registers panoptikon_jobs_cancel: cancels queued jobs
// by id, or terminates the running job's worker process if its id is
// given, returning the ids actually cancelled.
func AddJobsCancelTool(s *server.MCPServer, manager *jobs.Manager) {
	tool := mcp.NewTool(
		"panoptikon_jobs_cancel",
		mcp.WithDescription("Cancel queued jobs by id, or terminate the running job if its id is included. Returns the ids actually cancelled."),
		mcp.WithArray("queue_ids", mcp.Required(), mcp.Description("job queue ids to cancel")),
	)
	s.AddTool(tool, createJobsCancelHandler(manager))
}

func createJobsCancelHandler(manager *jobs.Manager) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}

		raw, _ := argsMap["queue_ids"].([]interface{})
		ids := make([]int64, 0, len(raw))
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				ids = append(ids, int64(f))
			}
		}

		cancelled := manager.Cancel(ids)
		jsonData, err := json.Marshal(map[string]any{"cancelled": cancelled})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}
