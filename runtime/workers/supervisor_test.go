package workers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingWorker struct {
	runs    atomic.Int32
	outcome func(run int32) error
}

func (w *countingWorker) Run(ctx context.Context) error {
	return w.outcome(w.runs.Add(1))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_Supervisor_Restarts_Crashed_Worker(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{outcome: func(run int32) error {
		if run < 3 {
			return fmt.Errorf("crash %d", run)
		}
		return nil
	}}

	sup := NewSupervisor(testLogger(), time.Millisecond)
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not finish")
	}
	req.Equal(int32(3), worker.runs.Load())
}

func Test_Supervisor_Recovers_Panic(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{outcome: func(run int32) error {
		if run == 1 {
			panic("boom")
		}
		return nil
	}}

	sup := NewSupervisor(testLogger(), time.Millisecond)
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not survive the panic")
	}
	req.Equal(int32(2), worker.runs.Load())
}

func Test_Supervisor_Stop_Cancels_Workers(t *testing.T) {
	req := require.New(t)
	started := make(chan struct{})
	worker := &blockingWorker{started: started}

	sup := NewSupervisor(testLogger(), time.Millisecond)
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker never started")
	}
	sup.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not drain after Stop")
	}
	req.True(worker.stopped.Load())
}

type blockingWorker struct {
	started chan struct{}
	stopped atomic.Bool
}

func (w *blockingWorker) Run(ctx context.Context) error {
	close(w.started)
	<-ctx.Done()
	w.stopped.Store(true)
	return nil
}
