package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestSubmitReturnsJobResult(t *testing.T) {
	d := NewDispatcher(Config{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})
	defer d.Close()

	if err := d.Submit(context.Background(), "client-a", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	boom := errors.New("boom")
	if err := d.Submit(context.Background(), "client-a", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestSubmitRecoversPanics(t *testing.T) {
	d := NewDispatcher(Config{MaxWorkers: 1})
	defer d.Close()

	err := d.Submit(context.Background(), "k", func(context.Context) error { panic("kaboom") })
	if err == nil {
		t.Fatalf("expected error from panicking job")
	}
	// the worker survives the panic
	if err := d.Submit(context.Background(), "k", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("submit after panic: %v", err)
	}
}

func TestEnqueueBusyWhenFull(t *testing.T) {
	d := NewDispatcher(Config{MaxWorkers: 1, QueueSize: 1})
	defer d.Close()

	gate := make(chan struct{})
	started := make(chan struct{})
	first, err := d.Enqueue(context.Background(), "a", func(context.Context) error {
		close(started)
		<-gate
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	<-started
	second, err := d.Enqueue(context.Background(), "b", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("enqueue second: %v", err)
	}
	if _, err := d.Enqueue(context.Background(), "c", func(context.Context) error { return nil }); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}

	close(gate)
	<-first.Done()
	<-second.Done()
	if second.Err() != nil {
		t.Fatalf("second job: %v", second.Err())
	}

	// capacity is back once jobs finish
	if err := d.Submit(context.Background(), "c", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("submit after drain: %v", err)
	}
}

func TestDispatcherAlternatesKeys(t *testing.T) {
	d := NewDispatcher(Config{MaxWorkers: 1, QueueSize: 8})
	defer d.Close()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	gate := make(chan struct{})
	started := make(chan struct{})
	blocker, err := d.Enqueue(context.Background(), "a", func(context.Context) error {
		close(started)
		<-gate
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue blocker: %v", err)
	}
	<-started

	var jobs []*Job
	for _, step := range []struct{ key, name string }{
		{"a", "a2"}, {"a", "a3"}, {"a", "a4"}, {"b", "b1"},
	} {
		job, err := d.Enqueue(context.Background(), step.key, record(step.name))
		if err != nil {
			t.Fatalf("enqueue %s: %v", step.name, err)
		}
		jobs = append(jobs, job)
	}
	close(gate)
	<-blocker.Done()
	for _, job := range jobs {
		<-job.Done()
	}

	want := []string{"a2", "b1", "a3", "a4"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSubmitSkipsCancelledJobs(t *testing.T) {
	d := NewDispatcher(Config{MaxWorkers: 1})
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := d.Submit(ctx, "k", func(context.Context) error { ran = true; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// give a dispatched job the chance to run before checking
	time.Sleep(20 * time.Millisecond)
	if ran {
		t.Fatalf("cancelled job should not run")
	}
}

func TestCloseDropsQueuedJobs(t *testing.T) {
	d := NewDispatcher(Config{MaxWorkers: 1, QueueSize: 4})

	gate := make(chan struct{})
	started := make(chan struct{})
	running, err := d.Enqueue(context.Background(), "a", func(context.Context) error {
		close(started)
		<-gate
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-started
	queued, err := d.Enqueue(context.Background(), "b", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("enqueue queued: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case <-queued.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("queued job was not dropped")
	}
	if !errors.Is(queued.Err(), ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", queued.Err())
	}

	close(gate)
	<-running.Done()
	<-closed
	if running.Err() != nil {
		t.Fatalf("running job: %v", running.Err())
	}
	if _, err := d.Enqueue(context.Background(), "c", func(context.Context) error { return nil }); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed after close, got %v", err)
	}
	waitFor(t, func() bool {
		r, _ := d.pool.size()
		return r == 0
	})
}

func TestPoolRetiresIdleWorkers(t *testing.T) {
	p := newJobChannelPool(0, 3, 20*time.Millisecond)
	defer p.close()

	var chans []chan *Job
	for i := 0; i < 3; i++ {
		chans = append(chans, p.acquire())
	}
	if r, _ := p.size(); r != 3 {
		t.Fatalf("running = %d, want 3", r)
	}
	for _, ch := range chans {
		p.Release(ch)
	}
	waitFor(t, func() bool {
		r, _ := p.size()
		return r == 0
	})
}

func TestPoolKeepsMinWorkers(t *testing.T) {
	d := NewDispatcher(Config{MinWorkers: 2, MaxWorkers: 4, IdleTimeout: 10 * time.Millisecond})
	defer d.Close()

	time.Sleep(60 * time.Millisecond)
	running, idle, pending := d.Stats()
	if running != 2 || idle != 2 || pending != 0 {
		t.Fatalf("stats = (%d, %d, %d), want (2, 2, 0)", running, idle, pending)
	}
}
