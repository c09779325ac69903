package mbox

// task runs deferred channel work on its own goroutine: scheduled runs are
// coalesced, so re-triggering while a run is already pending is a no-op
// rather than a queued duplicate.
type task struct {
	kick  chan struct{}
	flush chan chan struct{}
	stop  chan struct{}
	done  chan struct{}
}

func startTask(run func()) *task {
	t := &task{
		kick:  make(chan struct{}, 1),
		flush: make(chan chan struct{}),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go t.loop(run)
	return t
}

func (t *task) loop(run func()) {
	defer close(t.done)
	for {
		select {
		case <-t.kick:
			run()
		case ack := <-t.flush:
			run()
			close(ack)
		case <-t.stop:
			return
		}
	}
}

// schedule requests a run. Safe from interrupt context: never blocks.
func (t *task) schedule() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// flushSync waits for any in-flight run to finish, then runs once more so
// work pending at call time completes before flushSync returns.
func (t *task) flushSync() {
	ack := make(chan struct{})
	select {
	case t.flush <- ack:
		<-ack
	case <-t.done:
	}
}

// kill stops the task and waits until its goroutine has fully exited, so
// the caller may free state the run function touches.
func (t *task) kill() {
	close(t.stop)
	<-t.done
}
