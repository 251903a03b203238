package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/panoptikon-go/panoptikon/internal/config"
	"github.com/panoptikon-go/panoptikon/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingSpawner hands back a process that blocks in Wait until the test
// releases it, so the manager's running job stays put long enough to assert
// against.
type blockingSpawner struct {
	release chan struct{}
}

func (b *blockingSpawner) spawn(ctx context.Context, job *jobs.Job) (jobs.WorkerProcess, error) {
	return &blockingProcess{pid: 1, release: b.release}, nil
}

type blockingProcess struct {
	pid     int
	release chan struct{}
}

func (p *blockingProcess) PID() int { return p.pid }
func (p *blockingProcess) Wait() error {
	<-p.release
	return nil
}
func (p *blockingProcess) Terminate() error {
	close(p.release)
	return nil
}

func newBlockingManager(t *testing.T) (*jobs.Manager, *blockingSpawner) {
	t.Helper()
	sp := &blockingSpawner{release: make(chan struct{})}
	m := jobs.NewManager(sp.spawn)
	t.Cleanup(m.Stop)
	return m, sp
}

func textResult(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestJobsEnqueueHandlerAcceptsKnownKind(t *testing.T) {
	manager, _ := newBlockingManager(t)
	cfg := &config.Config{Store: config.StoreConfig{DataFolder: t.TempDir()}}
	handler := createJobsEnqueueHandler(manager, cfg)

	request := mcp.CallToolRequest{Params: mcp.CallToolParams{
		Arguments: map[string]interface{}{
			"type":     "data_extraction",
			"metadata": "wd-tags/wd-swinv2-tagger-v3",
		},
	}}

	result, err := handler(context.Background(), request)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(textResult(t, result)), &resp))
	assert.Equal(t, float64(1), resp["queue_id"])
}

func TestJobsEnqueueHandlerRejectsUnknownKind(t *testing.T) {
	manager, _ := newBlockingManager(t)
	cfg := &config.Config{Store: config.StoreConfig{DataFolder: t.TempDir()}}
	handler := createJobsEnqueueHandler(manager, cfg)

	request := mcp.CallToolRequest{Params: mcp.CallToolParams{
		Arguments: map[string]interface{}{"type": "not_a_kind"},
	}}

	result, err := handler(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textResult(t, result), "unknown job type")
}

func TestJobsEnqueueHandlerRejectsMalformedArguments(t *testing.T) {
	manager, _ := newBlockingManager(t)
	cfg := &config.Config{Store: config.StoreConfig{DataFolder: t.TempDir()}}
	handler := createJobsEnqueueHandler(manager, cfg)

	request := mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: "not a map"}}

	result, err := handler(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textResult(t, result), "invalid arguments format")
}

func TestJobsStatusHandlerReportsRunningThenQueued(t *testing.T) {
	manager, sp := newBlockingManager(t)
	cfg := &config.Config{Store: config.StoreConfig{DataFolder: t.TempDir()}}
	enqueue := createJobsEnqueueHandler(manager, cfg)
	status := createJobsStatusHandler(manager)

	for i := 0; i < 2; i++ {
		_, err := enqueue(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{"type": "folder_rescan"},
		}})
		require.NoError(t, err)
	}

	// Give the consumer goroutine a moment to pick up the first job.
	assert.Eventually(t, func() bool {
		result, err := status(context.Background(), mcp.CallToolRequest{})
		require.NoError(t, err)
		var jobList []jobs.JobStatus
		require.NoError(t, json.Unmarshal([]byte(textResult(t, result)), &jobList))
		return len(jobList) == 2 && jobList[0].Running && !jobList[1].Running
	}, time.Second, 10*time.Millisecond)

	close(sp.release)
}

func TestJobsCancelHandlerCancelsQueuedIDs(t *testing.T) {
	manager, sp := newBlockingManager(t)
	defer close(sp.release)
	cfg := &config.Config{Store: config.StoreConfig{DataFolder: t.TempDir()}}
	enqueue := createJobsEnqueueHandler(manager, cfg)
	cancel := createJobsCancelHandler(manager)

	// First job occupies the running slot; second and third sit queued.
	var queueIDs []int64
	for i := 0; i < 3; i++ {
		result, err := enqueue(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{"type": "folder_update"},
		}})
		require.NoError(t, err)
		var resp map[string]any
		require.NoError(t, json.Unmarshal([]byte(textResult(t, result)), &resp))
		queueIDs = append(queueIDs, int64(resp["queue_id"].(float64)))
	}

	assert.Eventually(t, func() bool {
		return manager.QueueStatus()[0].Running
	}, time.Second, 10*time.Millisecond)

	result, err := cancel(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{
		Arguments: map[string]interface{}{
			"queue_ids": []interface{}{float64(queueIDs[1]), float64(queueIDs[2])},
		},
	}})
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(textResult(t, result)), &resp))
	cancelled, ok := resp["cancelled"].([]interface{})
	require.True(t, ok)
	assert.Len(t, cancelled, 2)
}

func TestJobsCancelHandlerRejectsMalformedArguments(t *testing.T) {
	manager, sp := newBlockingManager(t)
	close(sp.release)
	cancel := createJobsCancelHandler(manager)

	result, err := cancel(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: "nope"}})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textResult(t, result), "invalid arguments format")
}
