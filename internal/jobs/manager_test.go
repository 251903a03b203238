package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess is a controllable WorkerProcess for tests: it blocks in Wait
// until released (or terminated), recording whether Terminate was called.
type fakeProcess struct {
	pid        int
	terminated chan struct{}
	exited     chan struct{}
	release    chan struct{}
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, terminated: make(chan struct{}), exited: make(chan struct{}), release: make(chan struct{})}
}

func (f *fakeProcess) PID() int { return f.pid }

func (f *fakeProcess) Wait() error {
	select {
	case <-f.release:
	case <-f.terminated:
	}
	close(f.exited)
	return nil
}

func (f *fakeProcess) Terminate() error {
	select {
	case <-f.terminated:
	default:
		close(f.terminated)
	}
	select {
	case <-f.exited:
	case <-time.After(time.Second):
	}
	return nil
}

func TestManagerRunsJobsFIFO(t *testing.T) {
	var spawned []int64
	procs := make(chan *fakeProcess, 8)

	spawn := func(ctx context.Context, job *Job) (WorkerProcess, error) {
		spawned = append(spawned, job.QueueID)
		p := newFakeProcess(int(job.QueueID))
		procs <- p
		return p, nil
	}

	m := NewManager(spawn)
	defer m.Stop()

	m.Enqueue(&Job{QueueID: 1, Type: KindFolderRescan})
	m.Enqueue(&Job{QueueID: 2, Type: KindFolderRescan})

	p1 := <-procs
	require.Eventually(t, func() bool {
		return len(m.QueueStatus()) == 2
	}, time.Second, 10*time.Millisecond)

	status := m.QueueStatus()
	assert.True(t, status[0].Running)
	assert.Equal(t, int64(1), status[0].QueueID)
	assert.Equal(t, int64(2), status[1].QueueID)

	close(p1.release)

	p2 := <-procs
	require.Eventually(t, func() bool {
		s := m.QueueStatus()
		return len(s) == 1 && s[0].QueueID == 2 && s[0].Running
	}, time.Second, 10*time.Millisecond)

	close(p2.release)
	require.Eventually(t, func() bool { return len(m.QueueStatus()) == 0 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, []int64{1, 2}, spawned)
}

func TestManagerCancelQueued(t *testing.T) {
	blocker := newFakeProcess(1)
	spawn := func(ctx context.Context, job *Job) (WorkerProcess, error) {
		return blocker, nil
	}
	m := NewManager(spawn)
	defer m.Stop()

	m.Enqueue(&Job{QueueID: 1, Type: KindFolderRescan})
	require.Eventually(t, func() bool { return len(m.QueueStatus()) == 1 }, time.Second, 10*time.Millisecond)

	m.Enqueue(&Job{QueueID: 2, Type: KindFolderRescan})
	m.Enqueue(&Job{QueueID: 3, Type: KindFolderRescan})

	cancelled := m.Cancel([]int64{2})
	assert.Equal(t, []int64{2}, cancelled)

	status := m.QueueStatus()
	ids := make([]int64, len(status))
	for i, s := range status {
		ids[i] = s.QueueID
	}
	assert.Equal(t, []int64{1, 3}, ids)

	close(blocker.release)
}

func TestManagerCancelRunning(t *testing.T) {
	running := newFakeProcess(42)
	spawn := func(ctx context.Context, job *Job) (WorkerProcess, error) {
		return running, nil
	}
	m := NewManager(spawn)
	defer m.Stop()

	m.Enqueue(&Job{QueueID: 1, Type: KindFolderRescan})
	require.Eventually(t, func() bool {
		s := m.QueueStatus()
		return len(s) == 1 && s[0].Running
	}, time.Second, 10*time.Millisecond)

	cancelled := m.Cancel([]int64{1})
	assert.Equal(t, []int64{1}, cancelled)

	select {
	case <-running.terminated:
	case <-time.After(time.Second):
		t.Fatal("expected Terminate to be called on the running process")
	}
}
