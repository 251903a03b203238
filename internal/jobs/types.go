package jobs

// Kind enumerates the four job kinds the manager accepts (spec.md §4.5).
type Kind string

const (
	KindDataExtraction Kind = "data_extraction"
	KindDataDeletion   Kind = "data_deletion"
	KindFolderRescan   Kind = "folder_rescan"
	KindFolderUpdate   Kind = "folder_update"
)

// ConnArgs names the store paths a worker process needs to open its own
// handle (spec.md §4.1 Paths), threaded through as plain strings rather
// than a live *storage.Handle since the worker is a separate process.
type ConnArgs struct {
	IndexDB    string
	UserDataDB string
	StorageDB  string
}

// Job is one unit of queued work. Grounded on
// panoptikon/api/routers/jobs/manager.py's Job dataclass.
type Job struct {
	QueueID         int64
	Type            Kind
	ConnArgs        ConnArgs
	Metadata        string // inference-id "group/id" for data_extraction/data_deletion
	IncludedFolders []string
	ExcludedFolders []string
}

// RunningJob pairs a Job with its live worker process handle.
type RunningJob struct {
	Job *Job
	Cmd WorkerProcess
}

// JobStatus is the queue_status() projection of a Job: its queue id, kind,
// metadata and index db path, plus whether it is currently running. The
// other store paths and the folder lists are not included.
type JobStatus struct {
	QueueID  int64
	Type     Kind
	Metadata string
	IndexDB  string
	Running  bool
}
