package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingWorker struct {
	runs  int32
	fail  bool
	panic bool
}

func (w *countingWorker) Name() string { return "counting" }

func (w *countingWorker) Run(ctx context.Context) error {
	n := atomic.AddInt32(&w.runs, 1)
	if w.panic && n == 1 {
		panic("first run explodes")
	}
	if w.fail {
		return errors.New("upstream down")
	}
	return nil
}

func (w *countingWorker) count() int32 { return atomic.LoadInt32(&w.runs) }

func waitForRuns(t *testing.T, w *countingWorker, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for w.count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected at least %d runs, got %d", n, w.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorkerGroup_RunsImmediatelyAndPeriodically(t *testing.T) {
	w := &countingWorker{}
	group := NewWorkerGroup(context.Background())
	group.Add(w, 10*time.Millisecond)

	if group.Len() != 1 {
		t.Fatalf("Expected 1 worker, got %d", group.Len())
	}

	group.Start()
	waitForRuns(t, w, 3)
	group.Stop(time.Second)

	stopped := w.count()
	time.Sleep(30 * time.Millisecond)
	if w.count() != stopped {
		t.Error("Worker kept running after Stop")
	}
}

func TestPeriodicWorker_SurvivesErrorsAndPanics(t *testing.T) {
	tests := []struct {
		name   string
		worker *countingWorker
	}{
		{"errors", &countingWorker{fail: true}},
		{"panic", &countingWorker{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			pw := NewPeriodicWorker(tt.worker, 5*time.Millisecond)
			pw.Start(ctx)

			waitForRuns(t, tt.worker, 2)

			cancel()
			pw.Stop(time.Second)
		})
	}
}
