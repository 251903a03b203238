package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Manager is the single-consumer job queue (C6). Grounded directly on
// panoptikon/api/routers/jobs/manager.py's JobManager: a lock-guarded queue
// plus running-job pointer, a consumer goroutine in place of the Python
// worker thread, and a spawned worker process in place of
// multiprocessing.Process. Queue mutations hold the lock; process
// spawn/join never does (spec.md §5 "Shared resources").
type Manager struct {
	spawn WorkerSpawner

	mu         sync.Mutex
	queue      []*Job
	queuedByID map[int64]*Job
	running    *RunningJob
	counter    int64

	wake chan struct{}
	done chan struct{}
}

// NewManager starts the consumer goroutine and returns the manager.
func NewManager(spawn WorkerSpawner) *Manager {
	m := &Manager{
		spawn:      spawn,
		queuedByID: make(map[int64]*Job),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go m.consume()
	return m
}

// Stop halts the consumer goroutine after its current job (if any) finishes.
func (m *Manager) Stop() {
	close(m.done)
}

// NextQueueID allocates the next monotonic queue id.
func (m *Manager) NextQueueID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return m.counter
}

// Enqueue appends a job to the tail of the queue and wakes the consumer.
func (m *Manager) Enqueue(job *Job) {
	m.mu.Lock()
	m.queue = append(m.queue, job)
	m.queuedByID[job.QueueID] = job
	m.mu.Unlock()
	log.Printf("[jobs] enqueued job %d: %s", job.QueueID, job.Type)

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// consume is the single consumer loop: pop head job when idle, spawn its
// worker process, block until it exits, repeat. Mirrors job_consumer's
// pop-spawn-join-sleep cycle (manager.py), polled instead of
// condition-variable-woken per spec.md §5 ("precise event wakeup is
// acceptable but not required").
func (m *Manager) consume() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		case <-ticker.C:
		}

		for {
			select {
			case <-m.done:
				return
			default:
			}
			job := m.dequeue()
			if job == nil {
				break
			}
			m.runJob(job)
		}
	}
}

func (m *Manager) dequeue() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running != nil || len(m.queue) == 0 {
		return nil
	}
	job := m.queue[0]
	m.queue = m.queue[1:]
	delete(m.queuedByID, job.QueueID)
	return job
}

func (m *Manager) runJob(job *Job) {
	proc, err := m.spawn(context.Background(), job)
	if err != nil {
		log.Printf("[jobs] job %d failed to start: %v", job.QueueID, err)
		return
	}

	running := &RunningJob{Job: job, Cmd: proc}
	m.mu.Lock()
	m.running = running
	m.mu.Unlock()
	log.Printf("[jobs] started job %d (%s) pid=%d", job.QueueID, job.Type, proc.PID())

	err = proc.Wait()
	if err != nil {
		log.Printf("[jobs] job %d exited with error: %v", job.QueueID, err)
	} else {
		log.Printf("[jobs] job %d completed", job.QueueID)
	}

	m.mu.Lock()
	if m.running == running {
		m.running = nil
	}
	m.mu.Unlock()
}

// QueueStatus lists the running job (if any) followed by the queued jobs,
// in FIFO order.
func (m *Manager) QueueStatus() []JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []JobStatus
	if m.running != nil {
		out = append(out, toStatus(m.running.Job, true))
	}
	for _, job := range m.queue {
		out = append(out, toStatus(job, false))
	}
	return out
}

func toStatus(job *Job, running bool) JobStatus {
	return JobStatus{
		QueueID:  job.QueueID,
		Type:     job.Type,
		Metadata: job.Metadata,
		IndexDB:  job.ConnArgs.IndexDB,
		Running:  running,
	}
}

// Cancel removes queued jobs by id, or cancels the running job if its id is
// present, returning the ids actually cancelled.
func (m *Manager) Cancel(ids []int64) []int64 {
	var cancelled []int64
	for _, id := range ids {
		if m.isRunning(id) {
			if cid, ok := m.CancelRunning(); ok {
				cancelled = append(cancelled, cid)
			}
			continue
		}
		if m.removeQueued(id) {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled
}

func (m *Manager) isRunning(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running != nil && m.running.Job.QueueID == id
}

func (m *Manager) removeQueued(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queuedByID[id]; !ok {
		return false
	}
	delete(m.queuedByID, id)
	for i, job := range m.queue {
		if job.QueueID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
	log.Printf("[jobs] cancelled queued job %d", id)
	return true
}

// CancelRunning terminates the currently running job's worker process, if
// any, and reports its id.
func (m *Manager) CancelRunning() (int64, bool) {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if running == nil {
		return 0, false
	}

	if err := running.Cmd.Terminate(); err != nil {
		log.Printf("[jobs] error terminating job %d: %v", running.Job.QueueID, err)
	}
	log.Printf("[jobs] cancelled running job %d (pid %d)", running.Job.QueueID, running.Cmd.PID())
	return running.Job.QueueID, true
}
