package mbox

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskRunsOnSchedule(t *testing.T) {
	ran := make(chan struct{}, 8)
	tk := startTask(func() { ran <- struct{}{} })
	defer tk.kill()

	tk.schedule()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scheduled run")
	}
}

func TestTaskCoalescesWhileRunning(t *testing.T) {
	var runs atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	tk := startTask(func() {
		runs.Add(1)
		if runs.Load() == 1 {
			entered <- struct{}{}
			<-release
		}
	})
	defer tk.kill()

	tk.schedule()
	<-entered

	// Re-triggering while a run is in flight pends at most one more run.
	for i := 0; i < 10; i++ {
		tk.schedule()
	}
	close(release)
	tk.flushSync()

	if got := runs.Load(); got > 3 {
		t.Fatalf("runs = %d after 10 schedules during a run, want <= 3", got)
	}
}

func TestTaskFlushWaitsForInFlightRun(t *testing.T) {
	var done atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	tk := startTask(func() {
		select {
		case entered <- struct{}{}:
			<-release
			done.Store(true)
		default:
		}
	})
	defer tk.kill()

	tk.schedule()
	<-entered

	flushed := make(chan struct{})
	go func() {
		tk.flushSync()
		close(flushed)
	}()

	select {
	case <-flushed:
		t.Fatal("flushSync returned while a run was still in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for flushSync")
	}
	if !done.Load() {
		t.Fatal("flushSync returned before the in-flight run finished")
	}
}

func TestTaskKillWaitsForExit(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	finished := make(chan struct{}, 1)
	tk := startTask(func() {
		entered <- struct{}{}
		<-release
		finished <- struct{}{}
	})

	tk.schedule()
	<-entered
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	tk.kill()

	select {
	case <-finished:
	default:
		t.Fatal("kill() returned before the running task finished")
	}
}

func TestTaskFlushAfterKill(t *testing.T) {
	tk := startTask(func() {})
	tk.kill()
	// Must not hang.
	tk.flushSync()
}
