// Package progress defines the observer interface long-running jobs report to.
package progress

// Reporter receives progress updates at defined checkpoints.
type Reporter interface {
	// OnProgress is called with the task name and its current progress.
	OnProgress(task string, current, total int)
}

// Func is a function adapter for Reporter.
type Func func(task string, current, total int)

// OnProgress implements Reporter.
func (f Func) OnProgress(task string, current, total int) {
	f(task, current, total)
}

// Report calls r.OnProgress when r is non-nil.
func Report(r Reporter, task string, current, total int) {
	if r != nil {
		r.OnProgress(task, current, total)
	}
}
