package worker

// Worker runs jobs handed to it on its own channel.
type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan *Job
}

func newWorker(id int, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan *Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.stop {
				w.pool.retire(w.jobChannel)
				return
			}
			job.run()
			if !w.pool.Release(w.jobChannel) {
				return
			}
		}
	}()
}
