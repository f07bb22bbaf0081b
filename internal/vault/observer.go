package vault

// Observer receives notifications of completed accounting and backup events.
// Implementations must be safe for concurrent use.
type Observer interface {
	UploadTracked(size int64)
	UploadRejected()
	DeletionTracked(size int64)
	UsageRecalculated()
	BackupCreated(size int64)
	BackupFailed()
	BackupsRemoved(n int)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) UploadTracked(int64)   {}
func (NopObserver) UploadRejected()       {}
func (NopObserver) DeletionTracked(int64) {}
func (NopObserver) UsageRecalculated()    {}
func (NopObserver) BackupCreated(int64)   {}
func (NopObserver) BackupFailed()         {}
func (NopObserver) BackupsRemoved(int)    {}
