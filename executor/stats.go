package executor

// Stats counts scheduling activity. Running includes queued tasks.
type Stats struct {
	Spawned   uint64
	Completed uint64
	Failed    uint64
	Polls     uint64
	Running   int
	Waiting   int
}
