package jobs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// WorkerProcess abstracts a running job's OS process so the manager can be
// tested without actually forking (spec.md §4.5: "spawns a fresh worker
// process for it, and awaits completion").
type WorkerProcess interface {
	// Wait blocks until the process exits.
	Wait() error
	// Terminate requests graceful shutdown, escalating to a hard kill if the
	// process doesn't exit within the grace period.
	Terminate() error
	PID() int
}

// WorkerSpawner starts a job's worker process. The default spawns
// `panoptikon-worker` as a subprocess using an exec.CommandContext +
// SIGTERM-then-SIGKILL shutdown pattern, applied here to a one-shot job
// worker rather than a long-lived server process.
type WorkerSpawner func(ctx context.Context, job *Job) (WorkerProcess, error)

// execWorkerProcess wraps an *exec.Cmd as a WorkerProcess. Wait and
// Terminate can be called concurrently (the manager's consumer goroutine
// blocks in Wait while Cancel may call Terminate from another goroutine),
// so the actual cmd.Wait() call is deduplicated behind waitOnce and its
// completion is broadcast via waitDone - otherwise both callers would
// invoke exec.Cmd.Wait() concurrently, which os/exec forbids.
type execWorkerProcess struct {
	cmd      *exec.Cmd
	waitOnce sync.Once
	waitErr  error
	waitDone chan struct{}
}

func newExecWorkerProcess(cmd *exec.Cmd) *execWorkerProcess {
	return &execWorkerProcess{cmd: cmd, waitDone: make(chan struct{})}
}

func (p *execWorkerProcess) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		close(p.waitDone)
	})
	return p.waitErr
}

func (p *execWorkerProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Terminate mirrors local.go's Close(): SIGTERM, then a bounded wait, then
// SIGKILL on timeout.
func (p *execWorkerProcess) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	select {
	case <-p.waitDone:
		return nil
	case <-time.After(5 * time.Second):
		return p.cmd.Process.Kill()
	}
}

// DefaultSpawner builds a WorkerSpawner that execs the named
// panoptikon-worker binary with the job's kind, metadata, and store paths
// as flags.
func DefaultSpawner(binaryPath string) WorkerSpawner {
	return func(ctx context.Context, job *Job) (WorkerProcess, error) {
		args := []string{
			"-job-type", string(job.Type),
			"-index-db", job.ConnArgs.IndexDB,
			"-user-data-db", job.ConnArgs.UserDataDB,
			"-storage-db", job.ConnArgs.StorageDB,
		}
		if job.Metadata != "" {
			args = append(args, "-metadata", job.Metadata)
		}
		for _, f := range job.IncludedFolders {
			args = append(args, "-include", f)
		}
		for _, f := range job.ExcludedFolders {
			args = append(args, "-exclude", f)
		}

		cmd := exec.CommandContext(ctx, binaryPath, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start worker process: %w", err)
		}
		return newExecWorkerProcess(cmd), nil
	}
}
