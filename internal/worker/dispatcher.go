package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"reelshare/internal/logging"
)

var (
	// ErrDispatcherBusy is returned when every worker is busy and the queue is full.
	ErrDispatcherBusy = errors.New("dispatcher busy")
	// ErrDispatcherClosed is returned for work submitted after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

// Config sizes the dispatcher.
type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type keyQueue struct {
	jobs     []*Job
	enqueued bool
}

// Dispatcher runs jobs on a bounded pool, taking turns between keys so one
// busy client cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan *Job
	slots    chan struct{}

	mu        sync.Mutex
	queues    map[string]*keyQueue // job queue for each key
	ready     *list.List           // round-robin order of keys with work
	positions map[string]*list.Element

	closed    atomic.Bool
	closeOnce sync.Once
	quit      chan struct{}
	stopped   chan struct{}
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	capacity := cfg.MaxWorkers + cfg.QueueSize
	d := &Dispatcher{
		pool:      newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout),
		jobQueue:  make(chan *Job, capacity),
		slots:     make(chan struct{}, capacity),
		queues:    make(map[string]*keyQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnIdle()
	}

	go d.run()
	return d
}

// Enqueue queues fn under key without waiting for it to run.
func (d *Dispatcher) Enqueue(ctx context.Context, key string, fn func(ctx context.Context) error) (*Job, error) {
	if d.closed.Load() {
		return nil, ErrDispatcherClosed
	}
	select {
	case d.slots <- struct{}{}:
	default:
		return nil, ErrDispatcherBusy
	}
	job := newJob(ctx, key, fn, d.releaseSlot)
	select {
	case d.jobQueue <- job:
		return job, nil
	case <-d.quit:
		d.releaseSlot()
		return nil, ErrDispatcherClosed
	}
}

// Submit runs fn under key and waits for its result or for ctx to end.
func (d *Dispatcher) Submit(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	job, err := d.Enqueue(ctx, key, fn)
	if err != nil {
		return err
	}
	select {
	case <-job.Done():
		return job.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, drops queued jobs and lets running ones finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.quit)
		d.pool.close()
		<-d.stopped

		d.drain()
		d.mu.Lock()
		var dropped []*Job
		for key, q := range d.queues {
			dropped = append(dropped, q.jobs...)
			delete(d.queues, key)
		}
		d.ready.Init()
		d.positions = make(map[string]*list.Element)
		d.mu.Unlock()
		for _, job := range dropped {
			job.finish(ErrDispatcherClosed)
		}
	})
}

func (d *Dispatcher) releaseSlot() {
	<-d.slots
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		if !d.hasReady() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		if !d.dispatchOne() {
			return
		}
	}
}

func (d *Dispatcher) hasReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready.Len() > 0
}

// drain moves everything waiting on jobQueue into the per-key queues.
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		default:
			return
		}
	}
}

func (d *Dispatcher) enqueueJob(job *Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Key]
	if q == nil {
		q = &keyQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.Key] = d.ready.PushBack(job.Key)
}

// dispatchOne waits for a free worker, then hands it the next job of the key
// at the front of the ready list. It returns false once the pool is closed.
func (d *Dispatcher) dispatchOne() bool {
	workerChan := d.pool.acquire()
	if workerChan == nil {
		return false
	}
	// pick up jobs that arrived while waiting so their keys get a turn
	d.drain()

	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		d.pool.Release(workerChan)
		return true
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, key)
		delete(d.queues, key)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	logging.Debug("dispatching job", "key", key, "worker", d.pool.workerID(workerChan))
	workerChan <- job
	return true
}

// Stats reports pool occupancy.
func (d *Dispatcher) Stats() (running, idle, pending int) {
	running, idle = d.pool.size()
	return running, idle, len(d.slots)
}
