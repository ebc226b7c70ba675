package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunPipelinesWaitsForScheduler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var schedDone atomic.Bool
	runScheduler := func(ctx context.Context) {
		<-ctx.Done()
		// Simulates finishing an in-flight item after shutdown arrives.
		time.Sleep(50 * time.Millisecond)
		schedDone.Store(true)
	}
	runBot := func(ctx context.Context) {
		<-ctx.Done()
	}

	finished := make(chan struct{})
	go func() {
		runPipelines(ctx, runScheduler, runBot)
		close(finished)
	}()

	cancel()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("runPipelines did not return")
	}
	if !schedDone.Load() {
		t.Fatal("runPipelines returned before the scheduler loop finished")
	}
}
