package adapter

import "context"

// Signal is a cooperative control request observed by the run loop at checkpoints.
type Signal string

const (
	SignalNone   Signal = ""
	SignalPause  Signal = "pause"
	SignalCancel Signal = "cancel"
)

// JobSignals carries control requests from the API to whichever worker runs the job.
type JobSignals interface {
	Raise(ctx context.Context, jobID string, s Signal) error
	Peek(ctx context.Context, jobID string) (Signal, error)
	Clear(ctx context.Context, jobID string) error
}
