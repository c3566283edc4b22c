package device

import "context"

// CoreTaskRunner is the Go expression of spec §5's "host-provided
// core-task thread that owns device construction/destruction": a single
// dedicated goroutine that every driver construct/destruct/reset call is
// funneled through, so the server's own event-handling goroutines never
// call into the driver's constructor or destructor directly (spec §5,
// "the server never calls the true driver's constructor or destructor
// from its own event loop").
type CoreTaskRunner struct {
	jobs chan coreJob
	done chan struct{}
}

type coreJob struct {
	fn    func() error
	reply chan error
}

// NewCoreTaskRunner starts the dedicated worker goroutine.
func NewCoreTaskRunner() *CoreTaskRunner {
	r := &CoreTaskRunner{
		jobs: make(chan coreJob),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *CoreTaskRunner) loop() {
	for {
		select {
		case job := <-r.jobs:
			job.reply <- job.fn()
		case <-r.done:
			return
		}
	}
}

// Run submits fn to the core-task thread and blocks until it completes,
// matching runCoreTask(callback, data, wait=true) from spec §6.
func (r *CoreTaskRunner) Run(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	job := coreJob{fn: fn, reply: reply}
	select {
	case r.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return context.Canceled
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down the worker goroutine.
func (r *CoreTaskRunner) Stop() {
	close(r.done)
}
