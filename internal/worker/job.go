package worker

import (
	"context"
	"fmt"
	"sync"

	"reelshare/internal/logging"
)

// Job is one unit of work queued under a client key.
type Job struct {
	Key string

	ctx     context.Context
	fn      func(ctx context.Context) error
	done    chan struct{}
	err     error
	once    sync.Once
	release func()
	stop    bool
}

var stopJob = &Job{stop: true}

func newJob(ctx context.Context, key string, fn func(ctx context.Context) error, release func()) *Job {
	return &Job{
		Key:     key,
		ctx:     ctx,
		fn:      fn,
		done:    make(chan struct{}),
		release: release,
	}
}

// Done is closed once the job has run or was dropped.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err is the job result; only meaningful after Done is closed.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

func (j *Job) run() {
	if err := j.ctx.Err(); err != nil {
		j.finish(err)
		return
	}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("job panicked", "key", j.Key, "panic", r)
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		err = j.fn(j.ctx)
	}()
	j.finish(err)
}

func (j *Job) finish(err error) {
	j.once.Do(func() {
		j.err = err
		if j.release != nil {
			j.release()
		}
		close(j.done)
	})
}
